// internal/common/config/config.go
package config

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Camunda    CamundaConfig    `mapstructure:"camunda"`
	Checks     ChecksConfig     `mapstructure:"checks"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Secret      string `mapstructure:"secret"`
	WorkDir     string `mapstructure:"work_dir"`
}

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
	Workers      int    `mapstructure:"workers"`
	QueueSize    int    `mapstructure:"queue_size"`
}

// GitHubConfig holds settings for the hosting provider.
type GitHubConfig struct {
	APIURL            string `mapstructure:"api_url"`
	Token             string `mapstructure:"token"`
	Owner             string `mapstructure:"owner"`
	DefaultBranch     string `mapstructure:"default_branch"`
	PagesBranch       string `mapstructure:"pages_branch"`
	PagesPath         string `mapstructure:"pages_path"`
	RequestTimeout    int    `mapstructure:"request_timeout"` // milliseconds
	PagesPollAttempts int    `mapstructure:"pages_poll_attempts"`
	PagesPollInterval int    `mapstructure:"pages_poll_interval"` // milliseconds
	CommitAuthorName  string `mapstructure:"commit_author_name"`
	CommitAuthorEmail string `mapstructure:"commit_author_email"`
}

// LLMConfig selects and tunes the model backend.
type LLMConfig struct {
	Backend     string  `mapstructure:"backend"` // gemini, gateway, fake
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	APIKey      string  `mapstructure:"api_key"`
	GatewayURL  string  `mapstructure:"gateway_url"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
}

// EvaluationConfig controls the callback notifier.
type EvaluationConfig struct {
	Timeout           int     `mapstructure:"timeout"` // milliseconds
	RetryAttempts     int     `mapstructure:"retry_attempts"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	BackoffMin        int     `mapstructure:"backoff_min"` // milliseconds
	BackoffMax        int     `mapstructure:"backoff_max"` // milliseconds
}

type RegistryConfig struct {
	Driver   string `mapstructure:"driver"`    // memory, redis
	LockTTL  int    `mapstructure:"lock_ttl"`  // milliseconds
	LockPoll int    `mapstructure:"lock_poll"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	URL            string `mapstructure:"url"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// Enabled reports whether a Postgres store was configured at all.
func (p PostgresConfig) Enabled() bool {
	return p.URL != "" || p.Host != ""
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AlertsConfig holds operator alerting for fatal builds.
type AlertsConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
		Region   string `mapstructure:"region"`
	} `mapstructure:"sns"`
}

type CamundaConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BrokerAddress string `mapstructure:"broker_address"`
	MaxJobsActive int    `mapstructure:"max_jobs_active"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
}

// ChecksConfig toggles the pre-publish checks.
type ChecksConfig struct {
	SecretScan   bool  `mapstructure:"secret_scan"`
	MaxFileBytes int64 `mapstructure:"max_file_bytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
