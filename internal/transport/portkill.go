package transport

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Runner abstracts command execution so port recovery is testable without
// spawning real processes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// killPortOwner finds processes holding the given UDP port via lsof and
// sends them SIGTERM. Reports whether any signal was delivered. Our own PID
// is never signalled.
func killPortOwner(ctx context.Context, runner Runner, port int, log *zap.Logger) bool {
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := runner.Run(lookupCtx, "lsof", "-t", "-i", "UDP:"+strconv.Itoa(port))
	if err != nil {
		log.Debug("port owner lookup failed", zap.Int("port", port), zap.Error(err))
		return false
	}

	self := os.Getpid()
	killed := false
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || pid == self {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			log.Debug("signal failed", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		log.Info("terminated process holding reply port", zap.Int("pid", pid), zap.Int("port", port))
		killed = true
	}
	return killed
}
