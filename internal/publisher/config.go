// internal/publisher/config.go
package publisher

import (
	"time"

	"pages-deployer/internal/common/config"
)

type Config struct {
	APIURL         string
	Token          string
	Owner          string
	Branch         string
	PagesBranch    string
	PagesPath      string
	RequestTimeout time.Duration
	PollAttempts   int
	PollInterval   time.Duration
	AuthorName     string
	AuthorEmail    string
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		APIURL:         cfg.GitHub.APIURL,
		Token:          cfg.GitHub.Token,
		Owner:          cfg.GitHub.Owner,
		Branch:         cfg.GitHub.DefaultBranch,
		PagesBranch:    cfg.GitHub.PagesBranch,
		PagesPath:      cfg.GitHub.PagesPath,
		RequestTimeout: config.GetDuration(cfg.GitHub.RequestTimeout),
		PollAttempts:   cfg.GitHub.PagesPollAttempts,
		PollInterval:   config.GetDuration(cfg.GitHub.PagesPollInterval),
		AuthorName:     cfg.GitHub.CommitAuthorName,
		AuthorEmail:    cfg.GitHub.CommitAuthorEmail,
	}
}
