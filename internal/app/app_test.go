package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pages-deployer/internal/common/config"
	"pages-deployer/internal/common/logger"
	"pages-deployer/internal/store"
)

func localConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "pages-deployer-test"
	cfg.App.Secret = "s3cret"
	cfg.App.WorkDir = t.TempDir()
	cfg.GitHub.APIURL = "http://127.0.0.1:1/api/v3"
	cfg.GitHub.Token = "token"
	cfg.GitHub.Owner = "octo"
	cfg.GitHub.DefaultBranch = "main"
	cfg.GitHub.PagesBranch = "main"
	cfg.LLM.Backend = "fake"
	cfg.Registry.Driver = "memory"
	cfg.Evaluation.RetryAttempts = 1
	cfg.Checks.SecretScan = true
	cfg.Checks.MaxFileBytes = 1 << 20
	return cfg
}

func TestNew_LocalStack(t *testing.T) {
	a, err := New(context.Background(), localConfig(t), logger.NewTestLogger(t))
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Pipeline)
	_, isMemory := a.Store.(*store.MemoryStore)
	assert.True(t, isMemory)
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := localConfig(t)
	cfg.LLM.Backend = "nope"

	_, err := New(context.Background(), cfg, logger.NewTestLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model backend")
}

func TestOpenStore_Memory(t *testing.T) {
	a, err := OpenStore(context.Background(), localConfig(t), logger.NewTestLogger(t))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Store.LatestSubmission(context.Background(), "demo", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConnect(t *testing.T) {
	calls := 0
	err := connect(context.Background(), logger.NewNoOpLogger(), "Redis connection", 1, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	err = connect(context.Background(), logger.NewNoOpLogger(), "Redis connection", 1, func(context.Context) error {
		return errors.New("refused")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Redis connection failed after 1 attempts")
	assert.Contains(t, err.Error(), "refused")
}
