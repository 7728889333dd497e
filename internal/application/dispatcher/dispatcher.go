package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/vendor-portal/internal/domain/event"
)

// Dispatcher fans supplier lifecycle events out to subscribed handlers.
//
// Dispatch runs inside the caller's unit of work (for example the upload
// transaction), so a failing handler rolls the caller back. DispatchAsync
// is for notifications emitted after commit. Async events for the same
// supplier are delivered one at a time in emission order; different
// suppliers proceed in parallel.
type Dispatcher interface {
	Subscribe(eventType event.Type, handler Handler)
	SubscribeNamed(eventType event.Type, name string, handler Handler)
	SubscribeObserver(eventType event.Type, name string, handler Handler)
	Unsubscribe(eventType event.Type, name string)

	Dispatch(ctx context.Context, evt *event.Event) error
	DispatchAsync(ctx context.Context, evt *event.Event)

	ListHandlers(eventType event.Type) []HandlerInfo
	Pending() int

	// Close rejects new events and waits for queued async work.
	Close() error
}

// Logger is the subset of the service logger the dispatcher needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger

	// async work, one FIFO per supplier. closed is written under qmu so
	// no enqueue can call wg.Add once Close has started waiting.
	qmu     sync.Mutex
	queues  map[string][]func()
	pending atomic.Int64
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// Option configures the dispatcher.
type Option func(*eventDispatcher)

// WithLogger attaches a logger.
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
		queues:   make(map[string][]func()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.Lock()
	name := fmt.Sprintf("handler-%d", len(d.handlers[eventType]))
	d.mu.Unlock()
	d.register(HandlerInfo{Name: name, EventType: eventType, Handler: handler})
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.register(HandlerInfo{Name: name, EventType: eventType, Handler: handler})
}

func (d *eventDispatcher) SubscribeObserver(eventType event.Type, name string, handler Handler) {
	d.register(HandlerInfo{Name: name, EventType: eventType, Handler: handler, Observer: true})
}

func (d *eventDispatcher) register(info HandlerInfo) {
	d.mu.Lock()
	d.handlers[info.EventType] = append(d.handlers[info.EventType], info)
	d.mu.Unlock()

	d.logInfo("Handler registered",
		"event_type", info.EventType,
		"handler_name", info.Name,
		"observer", info.Observer,
	)
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.handlers[eventType][:0:0]
	for _, h := range d.handlers[eventType] {
		if h.Name != name {
			kept = append(kept, h)
		}
	}
	d.handlers[eventType] = kept
}

func (d *eventDispatcher) snapshot(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]HandlerInfo(nil), d.handlers[eventType]...)
}

// Dispatch runs handlers in subscription order and returns the first
// non-observer failure.
func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}

	for _, info := range d.snapshot(evt.Type) {
		err := d.safeExecute(ctx, evt, info)
		if err == nil {
			continue
		}
		d.logError("Handler failed",
			"event_type", evt.Type,
			"supplier", evt.SupplierName,
			"handler_name", info.Name,
			"error", err,
		)
		if !info.Observer {
			return fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}
	return nil
}

// DispatchAsync queues evt behind earlier events for the same supplier.
// Handlers see a context detached from ctx's cancellation so they
// outlive the request that emitted the event.
func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	handlers := d.snapshot(evt.Type)
	if len(handlers) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	accepted := d.enqueue(evt.SupplierName, func() {
		for _, info := range handlers {
			if err := d.safeExecute(detached, evt, info); err != nil {
				d.logError("Async handler failed",
					"event_type", evt.Type,
					"supplier", evt.SupplierName,
					"handler_name", info.Name,
					"error", err,
				)
			}
		}
	})
	if !accepted {
		d.logError("Dropping event, dispatcher is closed",
			"event_type", evt.Type,
			"supplier", evt.SupplierName,
		)
	}
}

// enqueue appends job to key's queue and reports false once the
// dispatcher is closed.
func (d *eventDispatcher) enqueue(key string, job func()) bool {
	d.qmu.Lock()
	if d.closed.Load() {
		d.qmu.Unlock()
		return false
	}
	d.wg.Add(1)
	d.pending.Add(1)
	q, running := d.queues[key]
	d.queues[key] = append(q, job)
	d.qmu.Unlock()

	if !running {
		go d.drain(key)
	}
	return true
}

// drain owns key's queue until it is empty. The key stays in the map
// while a drainer runs so enqueue never starts a second one.
func (d *eventDispatcher) drain(key string) {
	for {
		d.qmu.Lock()
		q := d.queues[key]
		if len(q) == 0 {
			delete(d.queues, key)
			d.qmu.Unlock()
			return
		}
		job := q[0]
		d.queues[key] = q[1:]
		d.qmu.Unlock()

		job()
		d.pending.Add(-1)
		d.wg.Done()
	}
}

// Pending reports async events queued or running.
func (d *eventDispatcher) Pending() int {
	return int(d.pending.Load())
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	handlers := d.snapshot(eventType)
	for i := range handlers {
		handlers[i].Handler = nil
	}
	return handlers
}

func (d *eventDispatcher) Close() error {
	d.qmu.Lock()
	swapped := d.closed.CompareAndSwap(false, true)
	d.qmu.Unlock()
	if !swapped {
		return fmt.Errorf("dispatcher already closed")
	}
	d.logInfo("Draining dispatcher", "pending", d.Pending())
	d.wg.Wait()
	return nil
}

func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return info.Handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) logError(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
