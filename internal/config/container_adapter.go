package config

import (
	"github.com/garyjia/vendor-portal/internal/container"
	"github.com/garyjia/vendor-portal/internal/infrastructure/retry"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Lark: container.LarkConfig{
			AppID:            c.Lark.AppID,
			AppSecret:        c.Lark.AppSecret,
			ApprovalCode:     c.Lark.ApprovalCode,
			InitiatorOpenID:  c.Lark.InitiatorOpenID,
			VerifyToken:      c.Lark.VerifyToken,
			EncryptKey:       c.Lark.EncryptKey,
			BaseURL:          c.Lark.BaseURL,
			WebSocketEnabled: c.Lark.WebSocketEnabled,
			NotifyApprover:   c.Lark.NotifyApprover,
		},
		BP: container.BPConfig{
			BaseURL:  c.BP.BaseURL,
			APIKey:   c.BP.APIKey,
			Username: c.BP.Username,
			Password: c.BP.Password,
			Timeout:  c.BP.Timeout,
		},
		OpenAI: container.OpenAIConfig{
			APIKey:       c.OpenAI.APIKey,
			Model:        c.OpenAI.Model,
			BaseURL:      c.OpenAI.BaseURL,
			PromptsPath:  c.OpenAI.PromptsPath,
			MaxTextChars: c.OpenAI.MaxTextChars,
		},
		Storage: container.StorageConfig{
			AttachmentDir: c.Storage.AttachmentDir,
			PublicBaseURL: c.Links.BaseURL,
		},
		GST: container.GSTConfig{
			Concurrency: c.GST.Concurrency,
			MaxPages:    c.GST.MaxPages,
		},
		Outbox: container.OutboxConfig{
			Debounce:    c.Outbox.Debounce,
			Lease:       c.Outbox.Lease,
			MaxAttempts: c.Outbox.MaxAttempts,
			RetryBase:   c.Outbox.RetryBase,
			RetryMax:    c.Outbox.RetryMax,
		},
		Retry: retry.Policy{
			MaxTries:        c.Retry.MaxTries,
			MaxElapsed:      c.Retry.MaxElapsed,
			AttemptTimeout:  c.Retry.AttemptTimeout,
			InitialInterval: c.Retry.InitialInterval,
			MaxInterval:     c.Retry.MaxInterval,
		},
		Worker: container.WorkerConfig{
			OutboxPollInterval: c.Outbox.PollInterval,
			OutboxBatchSize:    c.Outbox.BatchSize,
			ReconcileSchedule:  c.Reconcile.Schedule,
			ReconcileBatchSize: c.Reconcile.BatchSize,
		},
	}
}
