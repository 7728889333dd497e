package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/config"
	"github.com/garyjia/vendor-portal/internal/container"
	httpapi "github.com/garyjia/vendor-portal/internal/interfaces/http"
	"github.com/garyjia/vendor-portal/internal/webhook"
	"github.com/garyjia/vendor-portal/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default $CONFIG_PATH or configs/config.yaml)")
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	// Load configuration
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:   cfg.Logger.Level,
		Format:  cfg.Logger.Format,
		Service: "vendor-portal",
		Outputs: []string{cfg.Logger.OutputPath},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting vendor portal",
		zap.String("config", path),
		zap.Int("port", cfg.Server.Port))

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return err
	}
	defer c.Close()

	services := c.Services()
	engine := c.Engine()
	verifier := webhook.NewVerifier(cfg.Lark.VerifyToken, cfg.Lark.EncryptKey)
	hook := webhook.NewHandler(verifier, c.EventProcessor(), logger)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		MaxUploadMemory: cfg.Server.MaxUploadMB << 20,
	}, httpapi.Services{
		Suppliers:   services.Supplier,
		Directory:   services.Directory,
		Attachments: services.Attachment,
		GST:         services.GST,
		Export:      services.Export,
		Escalator:   engine.Trigger,
		Callbacks:   engine.Callbacks,
		Health:      c,
		Webhook:     hook.Handle,
	}, c.ServiceLogger())

	// Start blocks until a signal cancels ctx, then shuts the server down.
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Shutting down")
	return nil
}
