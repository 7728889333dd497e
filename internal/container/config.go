// Package container provides dependency injection and lifecycle management
// for the vendor portal following Clean Architecture principles.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/vendor-portal/internal/infrastructure/retry"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Lark API configuration
	Lark LarkConfig

	// ERP business-partner API configuration
	BP BPConfig

	// OpenAI configuration
	OpenAI OpenAIConfig

	// Storage configuration
	Storage StorageConfig

	// GST scanning configuration
	GST GSTConfig

	// Outbox configuration
	Outbox OutboxConfig

	// Retry bounds every outbound call
	Retry retry.Policy

	// Worker configuration
	Worker WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// MigrationsDir overrides the embedded schema when set
	MigrationsDir string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	AppID     string
	AppSecret string

	// ApprovalCode is the approval definition escalations are filed under
	ApprovalCode string

	// InitiatorOpenID is the user instances are filed as
	InitiatorOpenID string

	// VerifyToken and EncryptKey secure the webhook
	VerifyToken string
	EncryptKey  string

	BaseURL string

	// WebSocketEnabled receives events over the long connection
	WebSocketEnabled bool

	// NotifyApprover sends a direct message after an instance is filed
	NotifyApprover bool
}

// BPConfig holds ERP settings.
type BPConfig struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
	Timeout  time.Duration
}

// OpenAIConfig holds OpenAI API settings. An empty APIKey disables the
// GST oracle.
type OpenAIConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	PromptsPath  string
	MaxTextChars int
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// AttachmentDir is the base directory for attachments
	AttachmentDir string

	// PublicBaseURL prefixes links sent to approvers
	PublicBaseURL string
}

// GSTConfig holds GST scanning settings.
type GSTConfig struct {
	Concurrency int
	MaxPages    int
}

// OutboxConfig holds escalation outbox settings.
type OutboxConfig struct {
	Debounce    time.Duration
	Lease       time.Duration
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// Outbox worker settings
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	// Reconciler settings
	ReconcileSchedule  string
	ReconcileBatchSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "data/vendor_portal.db",
			MaxOpenConns: 4,
			MaxIdleConns: 4,
		},
		Lark: LarkConfig{
			NotifyApprover: true,
		},
		BP: BPConfig{
			Timeout: 30 * time.Second,
		},
		OpenAI: OpenAIConfig{
			Model:        "gpt-4o-mini",
			MaxTextChars: 12000,
		},
		Storage: StorageConfig{
			AttachmentDir: "attachments",
			PublicBaseURL: "http://localhost:8080",
		},
		GST: GSTConfig{
			Concurrency: 4,
			MaxPages:    10,
		},
		Outbox: OutboxConfig{
			Debounce:    5 * time.Second,
			Lease:       2 * time.Minute,
			MaxAttempts: 8,
			RetryBase:   30 * time.Second,
			RetryMax:    30 * time.Minute,
		},
		Retry: retry.DefaultPolicy(),
		Worker: WorkerConfig{
			OutboxPollInterval: 2 * time.Second,
			OutboxBatchSize:    20,
			ReconcileSchedule:  "@every 5m",
			ReconcileBatchSize: 50,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	// Validate Lark configuration
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

	// Validate storage configuration
	if c.Storage.AttachmentDir == "" {
		return fmt.Errorf("storage.attachment_dir is required")
	}

	return nil
}
