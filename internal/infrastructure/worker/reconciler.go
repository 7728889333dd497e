package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultReconcileSchedule runs the sweep every five minutes
const DefaultReconcileSchedule = "@every 5m"

// FinalizableSource lists suppliers whose whole ledger is approved but
// which were never finalized.
type FinalizableSource interface {
	ListFinalizable(ctx context.Context, limit int) ([]string, error)
}

// SupplierFinalizer provisions the business partner for a supplier
type SupplierFinalizer interface {
	Finalize(ctx context.Context, supplierName string) (string, error)
}

// LeaseReleaser returns abandoned outbox intents to the queue
type LeaseReleaser interface {
	ReleaseExpired(ctx context.Context) (int64, error)
}

// ReconcilerConfig holds configuration for the reconciler
type ReconcilerConfig struct {
	Schedule   string
	BatchSize  int
	RunTimeout time.Duration
}

// Reconciler periodically repairs state left behind by crashes or
// failed finalizations.
type Reconciler struct {
	config    ReconcilerConfig
	source    FinalizableSource
	finalizer SupplierFinalizer
	releaser  LeaseReleaser
	logger    *zap.Logger

	state  runState
	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewReconciler creates a new reconciler
func NewReconciler(config ReconcilerConfig, source FinalizableSource, finalizer SupplierFinalizer, releaser LeaseReleaser, logger *zap.Logger) *Reconciler {
	if config.Schedule == "" {
		config.Schedule = DefaultReconcileSchedule
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 2 * time.Minute
	}
	return &Reconciler{
		config:    config,
		source:    source,
		finalizer: finalizer,
		releaser:  releaser,
		logger:    logger,
	}
}

// Start schedules the sweep
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("reconciler already running")
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{r.logger}), cron.SkipIfStillRunning(cronLogger{r.logger})),
	)
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	if _, err := c.AddFunc(r.config.Schedule, func() { r.RunOnce(runCtx) }); err != nil {
		r.cancel()
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.config.Schedule, err)
	}
	c.Start()
	r.cron = c
	r.state.mu.Lock()
	r.state.running = true
	r.state.mu.Unlock()

	r.logger.Info("Reconciler started", zap.String("schedule", r.config.Schedule))
	return nil
}

// Stop unschedules the sweep and waits for a running one to finish
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	<-c.Stop().Done()

	r.state.mu.Lock()
	r.state.running = false
	r.state.mu.Unlock()
	r.logger.Info("Reconciler stopped")
	return nil
}

// Name returns the worker name for identification
func (r *Reconciler) Name() string {
	return "Reconciler"
}

// Status returns the reconciler's counters
func (r *Reconciler) Status() Status {
	return r.state.status(r.Name())
}

// RunOnce releases expired leases and finalizes stuck suppliers. It
// returns how many suppliers were finalized.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, r.config.RunTimeout)
	defer cancel()

	var runErr error
	if _, err := r.releaser.ReleaseExpired(ctx); err != nil {
		r.logger.Error("Failed to release expired outbox leases", zap.Error(err))
		runErr = err
	}

	names, err := r.source.ListFinalizable(ctx, r.config.BatchSize)
	if err != nil {
		r.logger.Error("Failed to list finalizable suppliers", zap.Error(err))
		r.state.record(0, err)
		return 0
	}

	finalized := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		bpID, err := r.finalizer.Finalize(ctx, name)
		if err != nil {
			r.logger.Error("Reconcile finalization failed",
				zap.String("supplier_name", name),
				zap.Error(err))
			runErr = err
			continue
		}
		finalized++
		r.logger.Info("Reconciled supplier",
			zap.String("supplier_name", name),
			zap.String("business_partner_id", bpID))
	}

	r.state.record(finalized, runErr)
	return finalized
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
