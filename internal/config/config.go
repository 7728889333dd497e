package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Lark      LarkConfig      `mapstructure:"lark"`
	BP        BPConfig        `mapstructure:"bp"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Links     LinksConfig     `mapstructure:"links"`
	GST       GSTConfig       `mapstructure:"gst"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"` // empty uses the embedded schema
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID            string `mapstructure:"app_id"`
	AppSecret        string `mapstructure:"app_secret"`
	ApprovalCode     string `mapstructure:"approval_code"`
	InitiatorOpenID  string `mapstructure:"initiator_open_id"`
	VerifyToken      string `mapstructure:"verify_token"`
	EncryptKey       string `mapstructure:"encrypt_key"`
	BaseURL          string `mapstructure:"base_url"`
	WebSocketEnabled bool   `mapstructure:"websocket_enabled"`
	NotifyApprover   bool   `mapstructure:"notify_approver"`
}

// BPConfig holds the ERP business-partner API configuration
type BPConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig holds OpenAI API configuration. GST scanning runs without
// the oracle when APIKey is empty.
type OpenAIConfig struct {
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	BaseURL      string `mapstructure:"base_url"`
	PromptsPath  string `mapstructure:"prompts_path"`
	MaxTextChars int    `mapstructure:"max_text_chars"`
}

// StorageConfig holds attachment storage configuration
type StorageConfig struct {
	AttachmentDir string `mapstructure:"attachment_dir"`
}

// LinksConfig holds the public base URL used in approver-facing links
type LinksConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// GSTConfig holds GST scanning configuration
type GSTConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxPages    int `mapstructure:"max_pages"`
}

// OutboxConfig holds escalation outbox configuration
type OutboxConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	Lease        time.Duration `mapstructure:"lease"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBase    time.Duration `mapstructure:"retry_base"`
	RetryMax     time.Duration `mapstructure:"retry_max"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// RetryConfig bounds every outbound call
type RetryConfig struct {
	MaxTries        uint          `mapstructure:"max_tries"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// ReconcileConfig holds the reconciler schedule
type ReconcileConfig struct {
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_upload_mb", 32)

	// Database defaults
	v.SetDefault("database.path", "data/vendor_portal.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", 0)

	// Lark defaults
	v.SetDefault("lark.websocket_enabled", false)
	v.SetDefault("lark.notify_approver", true)

	// BP defaults
	v.SetDefault("bp.timeout", 30*time.Second)

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_text_chars", 12000)

	v.SetDefault("storage.attachment_dir", "attachments")
	v.SetDefault("links.base_url", "http://localhost:8080")

	v.SetDefault("gst.concurrency", 4)
	v.SetDefault("gst.max_pages", 10)

	// Outbox defaults
	v.SetDefault("outbox.debounce", 5*time.Second)
	v.SetDefault("outbox.lease", 2*time.Minute)
	v.SetDefault("outbox.max_attempts", 8)
	v.SetDefault("outbox.retry_base", 30*time.Second)
	v.SetDefault("outbox.retry_max", 30*time.Minute)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.batch_size", 20)

	// Retry defaults
	v.SetDefault("retry.max_tries", 5)
	v.SetDefault("retry.max_elapsed", 2*time.Minute)
	v.SetDefault("retry.attempt_timeout", 10*time.Second)
	v.SetDefault("retry.initial_interval", 500*time.Millisecond)
	v.SetDefault("retry.max_interval", 10*time.Second)

	v.SetDefault("reconcile.schedule", "@every 5m")
	v.SetDefault("reconcile.batch_size", 50)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	// Sensitive credentials from environment
	bindings := map[string]string{
		"lark.app_id":        "LARK_APP_ID",
		"lark.app_secret":    "LARK_APP_SECRET",
		"lark.approval_code": "LARK_APPROVAL_CODE",
		"lark.verify_token":  "LARK_VERIFY_TOKEN",
		"lark.encrypt_key":   "LARK_ENCRYPT_KEY",
		"bp.api_key":         "BP_API_KEY",
		"bp.password":        "BP_PASSWORD",
		"openai.api_key":     "OPENAI_API_KEY",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate Lark credentials
	if c.Lark.AppID == "" {
		return fmt.Errorf("lark.app_id is required")
	}
	if c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required")
	}
	if c.Lark.ApprovalCode == "" {
		return fmt.Errorf("lark.approval_code is required")
	}

	if c.BP.BaseURL == "" {
		return fmt.Errorf("bp.base_url is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.AttachmentDir == "" {
		return fmt.Errorf("storage.attachment_dir is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Outbox.MaxAttempts < 1 {
		return fmt.Errorf("outbox.max_attempts must be at least 1")
	}
	if c.GST.Concurrency < 1 {
		return fmt.Errorf("gst.concurrency must be at least 1")
	}

	return nil
}
