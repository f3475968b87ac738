// internal/workers/build-task/config.go
package buildtask

import (
	"time"

	"pages-deployer/internal/common/config"
)

type Config struct {
	Timeout       time.Duration
	MaxJobsActive int
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Timeout:       config.GetDuration(cfg.Camunda.Timeout),
		MaxJobsActive: cfg.Camunda.MaxJobsActive,
	}
}
