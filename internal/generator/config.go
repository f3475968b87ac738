// internal/generator/config.go
package generator

import (
	"time"

	"pages-deployer/internal/common/config"
)

type Config struct {
	Backend      string
	Model        string
	Temperature  float64
	APIKey       string
	GatewayURL   string
	Timeout      time.Duration
	LicenseOwner string
}

// LoadConfig maps the llm section onto the generator.
func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Backend:      cfg.LLM.Backend,
		Model:        cfg.LLM.Model,
		Temperature:  cfg.LLM.Temperature,
		APIKey:       cfg.LLM.APIKey,
		GatewayURL:   cfg.LLM.GatewayURL,
		Timeout:      config.GetDuration(cfg.LLM.Timeout),
		LicenseOwner: cfg.GitHub.Owner,
	}
}
