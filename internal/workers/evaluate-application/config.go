// internal/workers/evaluate-application/config.go
package evaluateapplication

import (
	"time"

	"loan-decision/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(cfg config.WorkerConfig) *Config {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = config.GetDuration(cfg.Timeout)
	}
	return &Config{Timeout: timeout}
}
