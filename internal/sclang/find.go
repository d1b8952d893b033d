// Package sclang locates and drives the SuperCollider language interpreter,
// both as a persistent subprocess and for one-shot code execution.
package sclang

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrNotFound is returned when no sclang binary can be located.
var ErrNotFound = errors.New("sclang not found: install SuperCollider and put sclang on PATH or at a standard location")

// Find locates the sclang executable: PATH first, then the usual install
// locations for the current platform.
func Find() (string, error) {
	if path, err := exec.LookPath("sclang"); err == nil {
		return path, nil
	}

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		candidates = []string{
			"/Applications/SuperCollider.app/Contents/MacOS/sclang",
			"/Applications/SuperCollider/SuperCollider.app/Contents/MacOS/sclang",
			filepath.Join(home, "Applications/SuperCollider.app/Contents/MacOS/sclang"),
		}
	case "linux":
		candidates = []string{
			"/usr/bin/sclang",
			"/usr/local/bin/sclang",
			"/opt/SuperCollider/bin/sclang",
		}
	case "windows":
		candidates = []string{
			`C:\Program Files\SuperCollider\sclang.exe`,
			`C:\Program Files (x86)\SuperCollider\sclang.exe`,
		}
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", ErrNotFound
}
