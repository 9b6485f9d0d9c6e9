package logcfg

import (
	"os"

	logs "github.com/danmuck/smplog"
)

const (
	envConfigPath = "PEERNET_LOG_CONFIG"
	envFallback   = "SMPLOG_CONFIG"
)

// Load returns file-backed logging configuration when available, otherwise defaults.
func Load() logs.Config {
	for _, env := range []string{envConfigPath, envFallback} {
		if path := os.Getenv(env); path != "" {
			if cfg, err := logs.ConfigFromFile(path); err == nil {
				return cfg
			}
		}
	}

	candidates := []string{
		"./peernet.log.toml",
		"./smplog.config.toml",
		"./local/smplog.config.toml",
	}

	for _, path := range candidates {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg
		}
	}

	return logs.DefaultConfig()
}
