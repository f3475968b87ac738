// Package app wires configuration into a ready pipeline and its backing services.
package app

import (
	"context"
	"fmt"
	"time"

	"pages-deployer/internal/attachments"
	awsclient "pages-deployer/internal/common/aws"
	"pages-deployer/internal/common/config"
	"pages-deployer/internal/common/database"
	"pages-deployer/internal/common/logger"
	"pages-deployer/internal/common/observability"
	"pages-deployer/internal/common/retry"
	"pages-deployer/internal/generator"
	"pages-deployer/internal/notifier"
	"pages-deployer/internal/pipeline"
	"pages-deployer/internal/publisher"
	"pages-deployer/internal/store"
)

// App holds the wired pipeline and everything that must be closed with it.
type App struct {
	Config        *config.Config
	Pipeline      *pipeline.Pipeline
	Store         store.Store
	Observability *observability.Observability

	logger  logger.Logger
	closers []func() error
}

// New connects every configured backing service and assembles the pipeline.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{Config: cfg, logger: log}
	a.Observability = observability.New(cfg.App.Name)

	deps := pipeline.Deps{
		Materializer:  attachments.NewMaterializer(log),
		Checks:        pipeline.DefaultChecks(cfg.Checks.SecretScan, cfg.Checks.MaxFileBytes),
		Observability: a.Observability,
	}

	st, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = st
	deps.Store = st
	deps.Tasks = st

	if deps.Registry, err = a.openRegistry(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Database.Elasticsearch.Enabled {
		es, err := database.OpenAuditIndex(cfg.Database.Elasticsearch)
		if err == nil {
			err = connect(ctx, log, "Elasticsearch connection", 15, func(ctx context.Context) error {
				return database.PingElasticsearch(ctx, es)
			})
		}
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Auditor = store.NewAuditIndexer(es, cfg.Database.Elasticsearch.Index)
		log.Info("Elasticsearch connected successfully", nil)
	}

	if cfg.Alerts.SNS.Enabled {
		client, err := awsclient.NewSNSClient(ctx, cfg.Alerts.SNS.Region)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("sns client: %w", err)
		}
		deps.Alerter = pipeline.NewSNSAlerter(client, cfg.Alerts.SNS.TopicARN)
	}

	genCfg := generator.LoadConfig(cfg)
	backend, err := generator.NewBackend(ctx, genCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("model backend: %w", err)
	}
	deps.Generator = generator.New(backend, genCfg, log)

	pubCfg := publisher.LoadConfig(cfg)
	hosting, err := publisher.NewHosting(pubCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("hosting client: %w", err)
	}
	deps.Publisher = publisher.New(hosting, publisher.NewGoGitCommitter(pubCfg), pubCfg, log)
	deps.Notifier = notifier.New(notifier.LoadConfig(cfg), log)

	if err := deps.Validate(); err != nil {
		a.Close()
		return nil, err
	}
	a.Pipeline = pipeline.New(&pipeline.Config{Secret: cfg.App.Secret, WorkDir: cfg.App.WorkDir}, deps, log)

	log.Info("pipeline ready", map[string]interface{}{
		"backend":  backend.Name(),
		"registry": cfg.Registry.Driver,
		"owner":    cfg.GitHub.Owner,
		"audit":    deps.Auditor != nil,
		"alerts":   deps.Alerter != nil,
	})
	return a, nil
}

// OpenStore connects only the submission store, for tooling that needs nothing else.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{Config: cfg, logger: log}
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = st
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	pgCfg := a.Config.Database.Postgres
	if !pgCfg.Enabled() {
		a.logger.Warn("no postgres configured, using in-memory store", nil)
		return store.NewMemoryStore(), nil
	}

	db, err := database.OpenPostgres(pgCfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err := connect(ctx, a.logger, "PostgreSQL connection", 15, db.PingContext); err != nil {
		return nil, err
	}

	st := store.NewPostgresStore(db, a.logger)
	if err := st.Init(ctx); err != nil {
		return nil, err
	}
	a.logger.Info("PostgreSQL connected successfully", nil)
	return st, nil
}

func (a *App) openRegistry(ctx context.Context) (pipeline.Registry, error) {
	if a.Config.Registry.Driver != "redis" {
		return pipeline.NewMemoryRegistry(), nil
	}

	rdb := database.OpenRegistryRedis(a.Config.Database.Redis, a.Config.Server.Workers)
	a.closers = append(a.closers, rdb.Close)
	err := connect(ctx, a.logger, "Redis connection", 10, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("Redis connected successfully", nil)
	return pipeline.NewRedisRegistry(rdb,
		config.GetDuration(a.Config.Registry.LockTTL),
		config.GetDuration(a.Config.Registry.LockPoll)), nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	a.closers = nil
	a.Observability.Shutdown()
}

// connect retries fn with exponential backoff, logging each failure.
func connect(ctx context.Context, log logger.Logger, name string, attempts int, fn func(ctx context.Context) error) error {
	policy := retry.NewPolicy(attempts, retry.Exponential(2, 2*time.Second, 30*time.Second))
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		log.Warn(name+" failed, retrying...", map[string]interface{}{
			"error":       err.Error(),
			"attempt":     attempt,
			"maxRetries":  attempts,
			"nextRetryIn": wait.String(),
		})
	}
	if n, err := policy.Do(ctx, fn); err != nil {
		return fmt.Errorf("%s failed after %d attempts: %w", name, n, err)
	}
	return nil
}
