package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OutboxProcessor delivers due outbox intents
type OutboxProcessor interface {
	ProcessDue(ctx context.Context, limit int) (int, error)
}

// OutboxWorkerConfig holds configuration for the outbox worker
type OutboxWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxBatches bounds how many full batches one tick drains.
	MaxBatches int
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() OutboxWorkerConfig {
	return OutboxWorkerConfig{
		PollInterval: 2 * time.Second,
		BatchSize:    20,
		MaxBatches:   10,
	}
}

// OutboxWorker polls the outbox and delivers due intents
type OutboxWorker struct {
	config    OutboxWorkerConfig
	processor OutboxProcessor
	logger    *zap.Logger

	state  runState
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(config OutboxWorkerConfig, processor OutboxProcessor, logger *zap.Logger) *OutboxWorker {
	defaults := DefaultOutboxWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxBatches <= 0 {
		config.MaxBatches = defaults.MaxBatches
	}
	return &OutboxWorker{
		config:    config,
		processor: processor,
		logger:    logger,
	}
}

// Start begins the worker polling loop
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return fmt.Errorf("outbox worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.state.mu.Lock()
	w.state.running = true
	w.state.mu.Unlock()

	w.logger.Info("OutboxWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(runCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the in-flight tick to finish
func (w *OutboxWorker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()
	<-done

	st := w.Status()
	w.logger.Info("OutboxWorker stopped",
		zap.Int64("processed_count", st.Processed),
		zap.Int64("failed_count", st.Failed))
	return nil
}

// Name returns the worker name for identification
func (w *OutboxWorker) Name() string {
	return "OutboxWorker"
}

// Status returns the worker's counters
func (w *OutboxWorker) Status() Status {
	return w.state.status(w.Name())
}

func (w *OutboxWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		w.state.mu.Lock()
		w.state.running = false
		w.state.mu.Unlock()
	}()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Poll loop context cancelled")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick drains due intents in batches until a batch comes back short.
func (w *OutboxWorker) Tick(ctx context.Context) int {
	total := 0
	for i := 0; i < w.config.MaxBatches; i++ {
		n, err := w.processor.ProcessDue(ctx, w.config.BatchSize)
		total += n
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("Failed to process outbox", zap.Error(err))
			}
			w.state.record(total, err)
			return total
		}
		if n < w.config.BatchSize {
			break
		}
	}
	w.state.record(total, nil)
	if total > 0 {
		w.logger.Debug("Outbox intents processed", zap.Int("count", total))
	}
	return total
}
