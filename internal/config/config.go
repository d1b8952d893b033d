package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Network endpoints. Replies from scsynth are addressed to the source
	// port of our datagrams, so ReplyPort is both the listen port and the
	// send port.
	Host        string `yaml:"host"`
	ScsynthPort int    `yaml:"scsynth_port"`
	SclangPort  int    `yaml:"sclang_port"`
	ReplyPort   int    `yaml:"reply_port"`

	RefDBPath string `yaml:"ref_db_path"`

	StatusTimeout    time.Duration `yaml:"status_timeout"`
	EvalTimeout      time.Duration `yaml:"eval_timeout"`
	MaxEvalTimeout   time.Duration `yaml:"max_eval_timeout"`
	ValidateTimeout  time.Duration `yaml:"validate_timeout"`
	RecordTimeout    time.Duration `yaml:"record_timeout"`
	StartupGrace     time.Duration `yaml:"startup_grace"`
	StopTimeout      time.Duration `yaml:"stop_timeout"`
	KillTimeout      time.Duration `yaml:"kill_timeout"`
	PortReleaseDelay time.Duration `yaml:"port_release_delay"`
	StaleAfter       time.Duration `yaml:"stale_after"`
	SweepGuard       time.Duration `yaml:"sweep_guard"`

	AnalysisHistory int `yaml:"analysis_history"`
	OnsetCapacity   int `yaml:"onset_capacity"`
	LogCapacity     int `yaml:"log_capacity"`
	AnalyzerRate    int `yaml:"analyzer_rate"`
	EvalOutputLimit int `yaml:"eval_output_limit"`
}

// SpectrumBandFrequencies lists the center frequencies (Hz) of the 14-band
// spectrum analyzer. They must match the SynthDef loaded into scsynth.
var SpectrumBandFrequencies = [14]float64{
	60, 100, 156, 244, 380, 594, 928, 1449, 2262, 3531, 5512, 8603, 13428, 16000,
}

func DefaultConfig() Config {
	return Config{
		Host:             "127.0.0.1",
		ScsynthPort:      57110,
		SclangPort:       57121,
		ReplyPort:        57130,
		RefDBPath:        defaultRefDBPath(),
		StatusTimeout:    1 * time.Second,
		EvalTimeout:      30 * time.Second,
		MaxEvalTimeout:   5 * time.Minute,
		ValidateTimeout:  10 * time.Second,
		RecordTimeout:    10 * time.Second,
		StartupGrace:     2 * time.Second,
		StopTimeout:      2 * time.Second,
		KillTimeout:      1 * time.Second,
		PortReleaseDelay: 200 * time.Millisecond,
		StaleAfter:       1 * time.Second,
		SweepGuard:       100 * time.Millisecond,
		AnalysisHistory:  100,
		OnsetCapacity:    100,
		LogCapacity:      500,
		AnalyzerRate:     10,
		EvalOutputLimit:  7000,
	}
}

// Load overlays the YAML file at path onto the defaults. A missing file is
// not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func defaultRefDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "screpl-refs.db"
	}
	return filepath.Join(home, ".local", "state", "screpl", "refs.db")
}
