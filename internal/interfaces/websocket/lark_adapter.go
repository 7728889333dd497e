// Package websocket receives Lark events over the SDK's long connection,
// for deployments that cannot expose the webhook publicly.
package websocket

import (
	"context"
	"fmt"
	"sync"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/infrastructure/external/lark"
)

// EventHandler handles one customized Lark event
type EventHandler interface {
	HandleCustomizedEvent(ctx context.Context, event *larkevent.EventReq) error
}

// LarkAdapterConfig holds configuration for the Lark WebSocket adapter.
type LarkAdapterConfig struct {
	AppID     string
	AppSecret string
}

// LarkAdapter wraps the Lark WebSocket SDK client and feeds approval
// instance events to the event processor.
type LarkAdapter struct {
	cfg     LarkAdapterConfig
	handler EventHandler
	logger  *zap.Logger

	mu      sync.RWMutex
	started bool
	cancel  context.CancelFunc
}

// NewLarkAdapter creates a new Lark WebSocket adapter.
func NewLarkAdapter(cfg LarkAdapterConfig, handler EventHandler, logger *zap.Logger) *LarkAdapter {
	return &LarkAdapter{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Name returns the worker name for identification
func (a *LarkAdapter) Name() string {
	return "LarkWebSocket"
}

// Start opens the long connection in the background. The SDK client
// reconnects on its own until ctx is cancelled.
func (a *LarkAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("adapter already started")
	}

	// verification token and encrypt key are not used over the long connection
	sdkDispatcher := larkdispatcher.NewEventDispatcher("", "")
	sdkDispatcher.OnCustomizedEvent(lark.ApprovalInstanceEvent, a.handler.HandleCustomizedEvent)

	client := larkws.NewClient(
		a.cfg.AppID,
		a.cfg.AppSecret,
		larkws.WithEventHandler(sdkDispatcher),
	)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.started = true

	a.logger.Info("Starting Lark WebSocket adapter", zap.String("app_id", a.cfg.AppID))

	go func() {
		if err := client.Start(runCtx); err != nil && runCtx.Err() == nil {
			a.logger.Error("Lark WebSocket client error", zap.Error(err))
		}
		a.mu.Lock()
		a.started = false
		a.mu.Unlock()
	}()

	return nil
}

// Stop cancels the connection context.
func (a *LarkAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.started = false
	a.logger.Info("Lark WebSocket adapter stopped")
	return nil
}

// IsRunning returns whether the adapter is currently running.
func (a *LarkAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}
