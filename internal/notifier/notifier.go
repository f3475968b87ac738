// Package notifier posts build results to the evaluator's callback URL.
package notifier

import (
	"context"
	"net/http"
	"time"

	"pages-deployer/internal/common/config"
	apperrors "pages-deployer/internal/common/errors"
	httpclient "pages-deployer/internal/common/http"
	"pages-deployer/internal/common/logger"
	"pages-deployer/internal/common/retry"
	"pages-deployer/internal/models"
)

type Config struct {
	Timeout    time.Duration
	Attempts   int
	Multiplier float64
	BackoffMin time.Duration
	BackoffMax time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Timeout:    config.GetDuration(cfg.Evaluation.Timeout),
		Attempts:   cfg.Evaluation.RetryAttempts,
		Multiplier: cfg.Evaluation.BackoffMultiplier,
		BackoffMin: config.GetDuration(cfg.Evaluation.BackoffMin),
		BackoffMax: config.GetDuration(cfg.Evaluation.BackoffMax),
	}
}

type Notifier struct {
	client  *httpclient.Client
	timeout time.Duration
	policy  retry.Policy
	logger  logger.Logger
}

func New(cfg *Config, log logger.Logger) *Notifier {
	n := &Notifier{
		// Each attempt carries its own deadline through the context.
		client:  httpclient.NewClientWithHTTP(&http.Client{}),
		timeout: cfg.Timeout,
		policy:  retry.NewPolicy(cfg.Attempts, retry.Exponential(cfg.Multiplier, cfg.BackoffMin, cfg.BackoffMax)),
		logger:  log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
	n.policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		n.logger.Warn("callback attempt failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
	}
	return n
}

// WithSleep replaces the backoff wait.
func (n *Notifier) WithSleep(sleep retry.SleepFunc) *Notifier {
	n.policy = n.policy.WithSleep(sleep)
	return n
}

// Notify POSTs payload to url, retrying transport errors and non-2xx answers with
// exponential backoff. It returns the attempts made and a NOTIFY_FAILED error once
// they run out.
func (n *Notifier) Notify(ctx context.Context, url string, payload models.NotificationPayload) (int, error) {
	attempts, err := n.policy.Do(ctx, func(ctx context.Context) error {
		callCtx := ctx
		if n.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, n.timeout)
			defer cancel()
		}
		_, err := n.client.PostJSON(callCtx, url, payload, nil)
		return err
	})
	if err != nil {
		return attempts, apperrors.NewNotifyFailedError(attempts, err)
	}

	n.logger.Info("callback delivered", map[string]interface{}{
		"task":     payload.Task,
		"round":    payload.Round,
		"attempts": attempts,
	})
	return attempts, nil
}
