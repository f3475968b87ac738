package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  secret: s3cret
github:
  token: tok
  owner: octo
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "pages-deployer", cfg.App.Name)
	assert.Equal(t, "./workspace", cfg.App.WorkDir)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIURL)
	assert.Equal(t, "main", cfg.GitHub.DefaultBranch)
	assert.Equal(t, "main", cfg.GitHub.PagesBranch, "pages branch follows the push branch")
	assert.Equal(t, 10, cfg.GitHub.PagesPollAttempts)
	assert.Equal(t, 5000, cfg.GitHub.PagesPollInterval)
	assert.Equal(t, "gemini", cfg.LLM.Backend)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 5, cfg.Evaluation.RetryAttempts)
	assert.Equal(t, 1000, cfg.Evaluation.BackoffMin)
	assert.Equal(t, 16000, cfg.Evaluation.BackoffMax)
	assert.Equal(t, "memory", cfg.Registry.Driver)
	assert.True(t, cfg.Checks.SecretScan)
	assert.Equal(t, int64(5<<20), cfg.Checks.MaxFileBytes)
	assert.False(t, cfg.Database.Postgres.Enabled())
}

func TestLoadFromFile_FlatEnvOverrides(t *testing.T) {
	t.Setenv("APP_SECRET", "from-env")
	t.Setenv("GITHUB_TOKEN", "env-token")
	t.Setenv("GITHUB_OWNER", "env-owner")
	t.Setenv("EVALUATION_TIMEOUT_SECONDS", "90")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/builds?sslmode=disable")

	path := writeConfig(t, `
llm:
  backend: fake
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.App.Secret)
	assert.Equal(t, "env-token", cfg.GitHub.Token)
	assert.Equal(t, "env-owner", cfg.GitHub.Owner)
	assert.Equal(t, 90000, cfg.Evaluation.Timeout)
	assert.Equal(t, 90*time.Second, GetDuration(cfg.Evaluation.Timeout))
	assert.True(t, cfg.Database.Postgres.Enabled())
	assert.Equal(t, "postgres://u:p@db:5432/builds?sslmode=disable", cfg.Database.Postgres.URL)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing secret",
			body:    "github:\n  token: t\n  owner: o\n",
			wantErr: "app.secret is required",
		},
		{
			name:    "missing owner",
			body:    "app:\n  secret: s\ngithub:\n  token: t\n",
			wantErr: "github.owner is required",
		},
		{
			name:    "gateway without url",
			body:    "app:\n  secret: s\ngithub:\n  token: t\n  owner: o\nllm:\n  backend: gateway\n",
			wantErr: "llm.gateway_url is required",
		},
		{
			name:    "redis registry without address",
			body:    "app:\n  secret: s\ngithub:\n  token: t\n  owner: o\nregistry:\n  driver: redis\n",
			wantErr: "database.redis.address is required",
		},
		{
			name:    "unknown backend",
			body:    "app:\n  secret: s\ngithub:\n  token: t\n  owner: o\nllm:\n  backend: nope\n",
			wantErr: "not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPostgresConfig_Enabled(t *testing.T) {
	assert.True(t, PostgresConfig{Host: "db"}.Enabled())
	assert.True(t, PostgresConfig{URL: "postgres://db/builds"}.Enabled())
	assert.False(t, PostgresConfig{Port: 5432}.Enabled())
}
