// internal/publisher/publisher.go
package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	apperrors "pages-deployer/internal/common/errors"
	"pages-deployer/internal/common/logger"
	"pages-deployer/internal/common/retry"
	"pages-deployer/internal/models"
)

const (
	licenseFile    = "LICENSE"
	licenseMessage = "Add MIT License"
	entryPoint     = "index.html"
)

// Steps, as reported in warnings and fatal errors.
const (
	StepEnsureRepo  = "ensureRepo"
	StepPush        = "pushWorkspace"
	StepLicense     = "ensureLicense"
	StepContents    = "verifyContents"
	StepEnablePages = "enablePages"
	StepPollPages   = "pollPages"
)

// RepoHost is the remote side of a publish.
type RepoHost interface {
	EnsureRepo(ctx context.Context, name, description string) (*RepoInfo, error)
	EnsureFile(ctx context.Context, repo, path, branch, message, content string) (string, error)
	ListRoot(ctx context.Context, repo, ref string) ([]string, error)
	EnablePages(ctx context.Context, repo, branch, path string) error
	PagesStatus(ctx context.Context, repo string) (string, bool, error)
	ExpectedPagesURL(repo string) string
}

// Result is one completed publish. Warnings hold the non-fatal step failures.
type Result struct {
	Repo     models.PublishedRepo
	Created  bool
	Warnings []*apperrors.StandardError
}

type Publisher struct {
	host   RepoHost
	git    Committer
	config *Config
	logger logger.Logger
	sleep  retry.SleepFunc
}

func New(host RepoHost, git Committer, cfg *Config, log logger.Logger) *Publisher {
	return &Publisher{
		host:   host,
		git:    git,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "publisher"}),
		sleep:  retry.Sleep,
	}
}

// WithSleep replaces the wait between pages status polls.
func (p *Publisher) WithSleep(sleep retry.SleepFunc) *Publisher {
	p.sleep = sleep
	return p
}

// Publish pushes dir as the full content of repo name. Repository creation and push
// failures are fatal. Every later step degrades to a warning.
func (p *Publisher) Publish(ctx context.Context, name, dir, description string) (*Result, error) {
	log := p.logger.WithFields(map[string]interface{}{"repo": name})

	info, err := p.host.EnsureRepo(ctx, name, description)
	if err != nil {
		return nil, apperrors.NewPublishFatalError(StepEnsureRepo, err)
	}
	log.Info("repository ready", map[string]interface{}{"created": info.Created, "url": info.HTMLURL})

	sha, err := p.git.CommitAll(dir, CommitMessage)
	if err != nil {
		return nil, apperrors.NewPublishFatalError(StepPush, err)
	}
	if err := p.git.ForcePush(ctx, dir, info.CloneURL, p.config.Branch); err != nil {
		return nil, apperrors.NewPublishFatalError(StepPush, err)
	}
	log.Info("workspace pushed", map[string]interface{}{"commit": sha, "branch": p.config.Branch})

	res := &Result{
		Repo:    models.PublishedRepo{RepoURL: info.HTMLURL, CommitSHA: sha},
		Created: info.Created,
	}

	if licenseSHA, err := p.ensureLicense(ctx, name, dir); err != nil {
		res.warn(log, StepLicense, err)
	} else if licenseSHA != "" {
		res.Repo.CommitSHA = licenseSHA
	}

	p.verifyContents(ctx, log, res, name)
	res.Repo.PagesURL = p.ensurePages(ctx, log, res, name)

	return res, nil
}

func (p *Publisher) ensureLicense(ctx context.Context, name, dir string) (string, error) {
	content, err := os.ReadFile(filepath.Join(dir, licenseFile))
	if err != nil {
		return "", fmt.Errorf("read workspace license: %w", err)
	}
	return p.host.EnsureFile(ctx, name, licenseFile, p.config.Branch, licenseMessage, string(content))
}

func (p *Publisher) verifyContents(ctx context.Context, log logger.Logger, res *Result, name string) {
	names, err := p.host.ListRoot(ctx, name, p.config.Branch)
	if err != nil {
		log.Warn("could not list repository contents", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, n := range names {
		if n == entryPoint {
			return
		}
	}
	res.warn(log, StepContents, errors.New("index.html not found at repository root"))
}

// ensurePages enables serving and polls until the site is built. A failed enable
// is only a warning, since serving may already be on. It always returns a URL.
func (p *Publisher) ensurePages(ctx context.Context, log logger.Logger, res *Result, name string) string {
	fallback := p.host.ExpectedPagesURL(name)

	if err := p.host.EnablePages(ctx, name, p.config.PagesBranch, p.config.PagesPath); err != nil {
		res.warn(log, StepEnablePages, err)
	}

	url, ready, err := retry.PollUntil(ctx, p.config.PollAttempts, p.config.PollInterval, p.sleep,
		func(ctx context.Context, attempt int) (string, bool, error) {
			url, built, err := p.host.PagesStatus(ctx, name)
			log.Debug("pages status", map[string]interface{}{"attempt": attempt, "built": built})
			return url, built, err
		})
	if ready {
		log.Info("pages live", map[string]interface{}{"url": url})
		return url
	}

	if err == nil {
		err = fmt.Errorf("pages not built after %d checks", p.config.PollAttempts)
	}
	res.warn(log, StepPollPages, err)
	return fallback
}

func (r *Result) warn(log logger.Logger, step string, err error) {
	w := apperrors.NewPublishSoftWarning(step, err)
	r.Warnings = append(r.Warnings, w)
	log.Warn("publish step degraded", map[string]interface{}{"step": step, "error": err.Error()})
}
