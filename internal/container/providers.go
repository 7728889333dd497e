package container

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/application/dispatcher"
	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/application/service"
	"github.com/garyjia/vendor-portal/internal/application/workflow"
	"github.com/garyjia/vendor-portal/internal/infrastructure/document"
	"github.com/garyjia/vendor-portal/internal/infrastructure/export"
	"github.com/garyjia/vendor-portal/internal/infrastructure/external/bp"
	infraLark "github.com/garyjia/vendor-portal/internal/infrastructure/external/lark"
	"github.com/garyjia/vendor-portal/internal/infrastructure/external/openai"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/repository"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/vendor-portal/internal/infrastructure/storage"
	"github.com/garyjia/vendor-portal/internal/infrastructure/worker"
	"github.com/garyjia/vendor-portal/internal/interfaces/websocket"
	"github.com/garyjia/vendor-portal/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Supplier   port.SupplierRepository
	Approver   port.ApproverRepository
	Approval   port.ApprovalRepository
	Attachment port.AttachmentRepository
	History    port.HistoryRepository
	Outbox     port.OutboxRepository
	GST        port.GSTRepository
}

// ExternalBundle holds the outbound integration clients.
type ExternalBundle struct {
	LarkClient *infraLark.SDKClient
	Approvals  *infraLark.ApprovalAPI
	Workflow   port.WorkflowEngine
	Partners   port.BusinessPartnerClient
	// Oracle is nil when no OpenAI key is configured.
	Oracle port.GSTOracle
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	FileStorage port.FileStorage
	Links       port.LinkBuilder
	Reader      port.DocumentReader
	Exporter    port.SpreadsheetExporter
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Supplier   service.SupplierService
	Directory  service.DirectoryService
	Attachment service.AttachmentService
	GST        service.GSTService
	Export     service.ExportService
}

// ProvideDatabase opens the SQLite database, applies pending migrations
// and wraps it in the transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrations(cfg.MigrationsDir)
	} else {
		err = migrator.RunEmbedded()
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repository instances.
func ProvideRepositories(db *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Supplier:   repository.NewSupplierRepository(db, logger),
		Approver:   repository.NewApproverRepository(db, logger),
		Approval:   repository.NewApprovalRepository(db, logger),
		Attachment: repository.NewAttachmentRepository(db, logger),
		History:    repository.NewHistoryRepository(db, logger),
		Outbox:     repository.NewOutboxRepository(db, logger),
		GST:        repository.NewGSTRepository(db, logger),
	}, nil
}

// ProvideExternalClients creates the Lark, ERP and OpenAI clients.
func ProvideExternalClients(cfg *Config, logger *zap.Logger) (*ExternalBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	larkClient := infraLark.NewSDKClient(infraLark.Config{
		AppID:           cfg.Lark.AppID,
		AppSecret:       cfg.Lark.AppSecret,
		ApprovalCode:    cfg.Lark.ApprovalCode,
		InitiatorOpenID: cfg.Lark.InitiatorOpenID,
		BaseURL:         cfg.Lark.BaseURL,
	}, logger)

	bundle := &ExternalBundle{
		LarkClient: larkClient,
		Approvals:  infraLark.NewApprovalAPI(larkClient, logger),
		Workflow:   infraLark.NewWorkflowEngine(larkClient, cfg.Retry, cfg.Lark.NotifyApprover, logger),
		Partners: bp.NewClient(bp.Config{
			BaseURL:  cfg.BP.BaseURL,
			APIKey:   cfg.BP.APIKey,
			Username: cfg.BP.Username,
			Password: cfg.BP.Password,
			Timeout:  cfg.BP.Timeout,
		}, cfg.Retry, logger),
	}

	if cfg.OpenAI.APIKey == "" {
		logger.Info("OpenAI API key not configured, GST oracle disabled")
		return bundle, nil
	}

	var prompts *openai.PromptConfig
	if cfg.OpenAI.PromptsPath != "" {
		loaded, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
		prompts = loaded
	}
	bundle.Oracle = openai.NewGSTOracle(openai.Config{
		APIKey:       cfg.OpenAI.APIKey,
		Model:        cfg.OpenAI.Model,
		BaseURL:      cfg.OpenAI.BaseURL,
		MaxTextChars: cfg.OpenAI.MaxTextChars,
	}, prompts, cfg.Retry, logger)

	return bundle, nil
}

// ProvideStorage creates the attachment store and its helpers.
func ProvideStorage(cfg *Config, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := os.MkdirAll(cfg.Storage.AttachmentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}

	return &StorageBundle{
		FileStorage: storage.NewLocalFileStorage(cfg.Storage.AttachmentDir, logger),
		Links:       storage.NewURLLinkBuilder(cfg.Storage.PublicBaseURL),
		Reader:      document.NewPDFReader(cfg.GST.MaxPages, logger),
		Exporter:    export.NewExcelExporter(logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger})), nil
}

// EngineDeps holds dependencies for the workflow engine.
type EngineDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	External   *ExternalBundle
	Storage    *StorageBundle
	Dispatcher dispatcher.Dispatcher
	Outbox     OutboxConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the escalation engine and subscribes it
// to the dispatcher.
func ProvideWorkflowEngine(deps *EngineDeps) (*workflow.Engine, error) {
	if deps == nil || deps.Repos == nil || deps.External == nil || deps.Storage == nil {
		return nil, fmt.Errorf("engine dependencies are required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}
	opts := []workflow.Option{}
	if deps.Outbox.Debounce > 0 {
		opts = append(opts, workflow.WithDebounce(deps.Outbox.Debounce))
	}
	if deps.Outbox.Lease > 0 {
		opts = append(opts, workflow.WithLease(deps.Outbox.Lease))
	}
	if deps.Outbox.MaxAttempts > 0 {
		opts = append(opts, workflow.WithMaxAttempts(deps.Outbox.MaxAttempts))
	}
	if deps.Outbox.RetryBase > 0 && deps.Outbox.RetryMax > 0 {
		opts = append(opts, workflow.WithRetryDelay(deps.Outbox.RetryBase, deps.Outbox.RetryMax))
	}

	engine, err := workflow.NewEngine(workflow.Dependencies{
		Suppliers:   deps.Repos.Supplier,
		Approvals:   deps.Repos.Approval,
		Attachments: deps.Repos.Attachment,
		History:     deps.Repos.History,
		Outbox:      deps.Repos.Outbox,
		TxManager:   deps.TxManager,
		Engine:      deps.External.Workflow,
		Partners:    deps.External.Partners,
		Links:       deps.Storage.Links,
		Dispatcher:  deps.Dispatcher,
		Logger:      logger,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow engine: %w", err)
	}

	if deps.Dispatcher != nil {
		engine.RegisterHandlers(deps.Dispatcher, logger)
	}
	return engine, nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	External   *ExternalBundle
	Storage    *StorageBundle
	Dispatcher dispatcher.Dispatcher
	GST        GSTConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.External == nil || deps.Storage == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos

	return &ServiceBundle{
		Supplier: service.NewSupplierService(
			repos.Supplier, repos.Approver, repos.Approval, repos.History,
			deps.TxManager, deps.Dispatcher, logger,
		),
		Directory: service.NewDirectoryService(repos.Approver, logger),
		Attachment: service.NewAttachmentService(
			repos.Supplier, repos.Attachment, deps.Storage.FileStorage,
			deps.TxManager, deps.Dispatcher, logger,
		),
		GST: service.NewGSTService(
			repos.Supplier, repos.Attachment, repos.GST, deps.Storage.FileStorage,
			deps.Storage.Reader, deps.External.Oracle, deps.TxManager,
			deps.GST.Concurrency, logger,
		),
		Export: service.NewExportService(repos.Supplier, repos.Approval, deps.Storage.Exporter, logger),
	}, nil
}

// ProvideEventProcessor creates the processor for inbound Lark approval
// events, routing decisions into the callback processor.
func ProvideEventProcessor(cfg *LarkConfig, engine *workflow.Engine, comments infraLark.CommentSource, logger *zap.Logger) *infraLark.EventProcessor {
	return infraLark.NewEventProcessor(cfg.ApprovalCode, &decisionRouter{callbacks: engine.Callbacks}, comments, logger)
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Repos     *RepositoryBundle
	Engine    *workflow.Engine
	Events    *infraLark.EventProcessor
	Lark      *LarkConfig
	WorkerCfg *WorkerConfig
	Logger    *zap.Logger
}

// ProvideWorkers creates and registers the background workers.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Engine == nil || deps.Repos == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	manager.Register(worker.NewOutboxWorker(worker.OutboxWorkerConfig{
		PollInterval: deps.WorkerCfg.OutboxPollInterval,
		BatchSize:    deps.WorkerCfg.OutboxBatchSize,
	}, deps.Engine.Outbox, deps.Logger))

	manager.Register(worker.NewReconciler(worker.ReconcilerConfig{
		Schedule:  deps.WorkerCfg.ReconcileSchedule,
		BatchSize: deps.WorkerCfg.ReconcileBatchSize,
	}, deps.Repos.Supplier, deps.Engine.Finalizer, deps.Engine.Outbox, deps.Logger))

	if deps.Lark != nil && deps.Lark.WebSocketEnabled && deps.Events != nil {
		manager.Register(websocket.NewLarkAdapter(websocket.LarkAdapterConfig{
			AppID:     deps.Lark.AppID,
			AppSecret: deps.Lark.AppSecret,
		}, deps.Events, deps.Logger))
	}

	return manager, nil
}

// decisionRouter adapts the Lark event processor to the callback
// processor.
type decisionRouter struct {
	callbacks *workflow.CallbackProcessor
}

func (r *decisionRouter) HandleDecision(ctx context.Context, d infraLark.Decision) error {
	_, err := r.callbacks.ProcessExternal(ctx, workflow.ExternalDecision{
		ExternalRef: d.InstanceCode,
		Status:      d.Status,
		Comment:     d.Comment,
	})
	return err
}
