// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml and applies
// environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// bools cannot be defaulted after unmarshal
	v.SetDefault("checks.secret_scan", true)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up towards the module root.
func loadEnvFile() string {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig maps the flat variable names operators already export.
func overrideEmptyConfig(cfg *Config) {
	setString := func(dst *string, names ...string) {
		if *dst != "" {
			return
		}
		for _, name := range names {
			if val := os.Getenv(name); val != "" {
				*dst = val
				return
			}
		}
	}

	setString(&cfg.App.Secret, "APP_SECRET")
	setString(&cfg.App.WorkDir, "WORK_DIR")
	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")
	setString(&cfg.GitHub.Owner, "GITHUB_OWNER")
	setString(&cfg.GitHub.APIURL, "GITHUB_API_URL")
	setString(&cfg.GitHub.DefaultBranch, "DEFAULT_BRANCH")
	setString(&cfg.GitHub.PagesBranch, "GITHUB_PAGES_BRANCH")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setString(&cfg.LLM.APIKey, "GENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	setString(&cfg.Database.Postgres.URL, "DATABASE_URL")
	setString(&cfg.Database.Redis.Address, "REDIS_ADDRESS")

	if cfg.LLM.Temperature == 0 {
		if val, err := strconv.ParseFloat(os.Getenv("LLM_TEMPERATURE"), 64); err == nil {
			cfg.LLM.Temperature = val
		}
	}
	if cfg.Evaluation.Timeout == 0 {
		if secs, err := strconv.Atoi(os.Getenv("EVALUATION_TIMEOUT_SECONDS")); err == nil {
			cfg.Evaluation.Timeout = secs * 1000
		}
	}
	if cfg.Evaluation.RetryAttempts == 0 {
		if n, err := strconv.Atoi(os.Getenv("EVALUATION_RETRY_ATTEMPTS")); err == nil {
			cfg.Evaluation.RetryAttempts = n
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "pages-deployer"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.App.WorkDir == "" {
		cfg.App.WorkDir = "./workspace"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15000
	}
	if cfg.Server.Workers == 0 {
		cfg.Server.Workers = 4
	}
	if cfg.Server.QueueSize == 0 {
		cfg.Server.QueueSize = 64
	}

	if cfg.GitHub.APIURL == "" {
		cfg.GitHub.APIURL = "https://api.github.com"
	}
	if cfg.GitHub.DefaultBranch == "" {
		cfg.GitHub.DefaultBranch = "main"
	}
	if cfg.GitHub.PagesBranch == "" {
		cfg.GitHub.PagesBranch = cfg.GitHub.DefaultBranch
	}
	if cfg.GitHub.PagesPath == "" {
		cfg.GitHub.PagesPath = "/"
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 30000
	}
	if cfg.GitHub.PagesPollAttempts == 0 {
		cfg.GitHub.PagesPollAttempts = 10
	}
	if cfg.GitHub.PagesPollInterval == 0 {
		cfg.GitHub.PagesPollInterval = 5000
	}
	if cfg.GitHub.CommitAuthorName == "" {
		cfg.GitHub.CommitAuthorName = "pages-deployer"
	}
	if cfg.GitHub.CommitAuthorEmail == "" {
		cfg.GitHub.CommitAuthorEmail = "pages-deployer@users.noreply.github.com"
	}

	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = "gemini"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-2.5-flash"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120000
	}

	if cfg.Evaluation.Timeout == 0 {
		cfg.Evaluation.Timeout = 30000
	}
	if cfg.Evaluation.RetryAttempts == 0 {
		cfg.Evaluation.RetryAttempts = 5
	}
	if cfg.Evaluation.BackoffMultiplier == 0 {
		cfg.Evaluation.BackoffMultiplier = 1
	}
	if cfg.Evaluation.BackoffMin == 0 {
		cfg.Evaluation.BackoffMin = 1000
	}
	if cfg.Evaluation.BackoffMax == 0 {
		cfg.Evaluation.BackoffMax = 16000
	}

	if cfg.Registry.Driver == "" {
		cfg.Registry.Driver = "memory"
	}
	if cfg.Registry.LockTTL == 0 {
		cfg.Registry.LockTTL = 600000
	}
	if cfg.Registry.LockPoll == 0 {
		cfg.Registry.LockPoll = 200
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "build-runs"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 4
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 900000
	}

	if cfg.Checks.MaxFileBytes == 0 {
		cfg.Checks.MaxFileBytes = 5 << 20
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.App.Secret == "" {
		return fmt.Errorf("app.secret is required")
	}
	if cfg.GitHub.Token == "" {
		return fmt.Errorf("github.token is required")
	}
	if cfg.GitHub.Owner == "" {
		return fmt.Errorf("github.owner is required")
	}

	switch cfg.LLM.Backend {
	case "gemini", "fake":
	case "gateway":
		if cfg.LLM.GatewayURL == "" {
			return fmt.Errorf("llm.gateway_url is required for the gateway backend")
		}
	default:
		return fmt.Errorf("llm.backend %q is not supported", cfg.LLM.Backend)
	}

	switch cfg.Registry.Driver {
	case "memory":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis registry")
		}
	default:
		return fmt.Errorf("registry.driver %q is not supported", cfg.Registry.Driver)
	}

	if cfg.Evaluation.RetryAttempts < 1 {
		return fmt.Errorf("evaluation.retry_attempts must be at least 1")
	}
	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when enabled")
	}
	if cfg.Alerts.SNS.Enabled && cfg.Alerts.SNS.TopicARN == "" {
		return fmt.Errorf("alerts.sns.topic_arn is required when enabled")
	}
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when enabled")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
