// Package workflow drives suppliers through their approval chain: it
// escalates the active level to the external workflow engine, applies
// approve/reject callbacks, and provisions the business partner once
// every level has approved.
package workflow

import (
	"errors"
	"time"

	"github.com/garyjia/vendor-portal/internal/application/dispatcher"
	"github.com/garyjia/vendor-portal/internal/application/port"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Dependencies are the collaborators shared by the engine components.
// Dispatcher may be nil, in which case no domain events are emitted.
type Dependencies struct {
	Suppliers   port.SupplierRepository
	Approvals   port.ApprovalRepository
	Attachments port.AttachmentRepository
	History     port.HistoryRepository
	Outbox      port.OutboxRepository
	TxManager   port.TransactionManager
	Engine      port.WorkflowEngine
	Partners    port.BusinessPartnerClient
	Links       port.LinkBuilder
	Locker      *KeyedLocker
	Dispatcher  dispatcher.Dispatcher
	Logger      Logger
}

func (d *Dependencies) validate() error {
	switch {
	case d.Suppliers == nil, d.Approvals == nil, d.Attachments == nil, d.History == nil, d.Outbox == nil:
		return errors.New("workflow: repositories are required")
	case d.TxManager == nil:
		return errors.New("workflow: transaction manager is required")
	case d.Engine == nil:
		return errors.New("workflow: workflow engine client is required")
	case d.Partners == nil:
		return errors.New("workflow: business partner client is required")
	case d.Links == nil:
		return errors.New("workflow: link builder is required")
	case d.Logger == nil:
		return errors.New("workflow: logger is required")
	}
	if d.Locker == nil {
		d.Locker = NewKeyedLocker()
	}
	return nil
}

// Settings tune the outbox.
type Settings struct {
	// Debounce delays the first escalation after the latest upload.
	Debounce time.Duration
	// Lease is how long a claimed intent stays invisible to other workers.
	Lease time.Duration
	// MaxAttempts bounds deliveries of one intent before it is FAILED.
	MaxAttempts int
	// RetryBase and RetryMax shape the delay between deliveries.
	RetryBase time.Duration
	RetryMax  time.Duration

	now func() time.Time
}

// DefaultSettings returns the settings used when no option overrides them.
func DefaultSettings() Settings {
	return Settings{
		Debounce:    5 * time.Second,
		Lease:       2 * time.Minute,
		MaxAttempts: 8,
		RetryBase:   30 * time.Second,
		RetryMax:    30 * time.Minute,
		now:         time.Now,
	}
}

// Option configures the engine
type Option func(*Settings)

// WithDebounce sets the upload debounce delay
func WithDebounce(d time.Duration) Option {
	return func(s *Settings) { s.Debounce = d }
}

// WithLease sets the outbox claim lease
func WithLease(d time.Duration) Option {
	return func(s *Settings) { s.Lease = d }
}

// WithMaxAttempts sets how many times one intent is delivered
func WithMaxAttempts(n int) Option {
	return func(s *Settings) { s.MaxAttempts = n }
}

// WithRetryDelay sets the exponential redelivery delay bounds
func WithRetryDelay(base, max time.Duration) Option {
	return func(s *Settings) {
		s.RetryBase = base
		s.RetryMax = max
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Settings) { s.now = now }
}

// Engine bundles the escalation components wired over one set of
// dependencies.
type Engine struct {
	Trigger   *EscalationTrigger
	Callbacks *CallbackProcessor
	Finalizer *Finalizer
	Outbox    *Outbox
}

// NewEngine wires the trigger, callback processor, finalizer and outbox.
func NewEngine(deps Dependencies, opts ...Option) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	trigger := newEscalationTrigger(deps, settings.now)
	finalizer := newFinalizer(deps)
	outbox := newOutbox(deps, trigger, settings)
	callbacks := newCallbackProcessor(deps, outbox, finalizer)

	return &Engine{
		Trigger:   trigger,
		Callbacks: callbacks,
		Finalizer: finalizer,
		Outbox:    outbox,
	}, nil
}
