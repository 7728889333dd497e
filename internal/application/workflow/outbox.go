package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
)

// Outbox schedules escalations as durable intents and delivers them
// through the trigger. An intent survives restarts; its key makes
// scheduling the same escalation twice harmless.
type Outbox struct {
	repo     port.OutboxRepository
	trigger  *EscalationTrigger
	logger   Logger
	settings Settings
}

func newOutbox(deps Dependencies, trigger *EscalationTrigger, settings Settings) *Outbox {
	return &Outbox{
		repo:     deps.Outbox,
		trigger:  trigger,
		logger:   deps.Logger,
		settings: settings,
	}
}

// ScheduleFirstEscalation (re)arms the level 1 escalation to fire one
// debounce interval from now. Repeated uploads keep pushing it back
// until it has been claimed.
func (o *Outbox) ScheduleFirstEscalation(ctx context.Context, supplierName string) error {
	intent := &entity.OutboxIntent{
		Kind:         entity.IntentKindEscalate,
		Key:          entity.EscalationKey(supplierName, 1),
		SupplierName: supplierName,
		Level:        1,
		DueAt:        o.settings.now().Add(o.settings.Debounce),
	}
	if err := o.repo.Debounce(ctx, intent); err != nil {
		return fmt.Errorf("failed to schedule first escalation: %w", err)
	}

	o.logger.Info("First escalation scheduled",
		"supplier", supplierName,
		"due_at", intent.DueAt,
	)
	return nil
}

// EnqueueEscalation records the escalation of level, due now. Call it in
// the transaction that made level the next pending one.
func (o *Outbox) EnqueueEscalation(ctx context.Context, supplierName string, level int) (string, error) {
	intent := &entity.OutboxIntent{
		Kind:         entity.IntentKindEscalate,
		Key:          entity.EscalationKey(supplierName, level),
		SupplierName: supplierName,
		Level:        level,
		DueAt:        o.settings.now(),
	}
	inserted, err := o.repo.Enqueue(ctx, intent)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue escalation: %w", err)
	}
	if !inserted {
		o.logger.Info("Escalation already enqueued", "key", intent.Key)
	}
	return intent.Key, nil
}

// DeliverKey delivers the intent stored under key if it is still due.
func (o *Outbox) DeliverKey(ctx context.Context, key string) error {
	intent, err := o.repo.GetByKey(ctx, key)
	if err != nil {
		return err
	}
	if intent == nil || intent.Status != entity.IntentStatusPending {
		return nil
	}
	return o.Deliver(ctx, intent)
}

// Deliver claims intent and runs the trigger. Losing the claim is not an
// error. A failed trigger re-schedules the intent with exponential delay
// until MaxAttempts, then parks it as FAILED.
func (o *Outbox) Deliver(ctx context.Context, intent *entity.OutboxIntent) error {
	now := o.settings.now()
	claimed, err := o.repo.Claim(ctx, intent.ID, now, now.Add(o.settings.Lease))
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	attempt := intent.Attempts + 1

	result, runErr := o.trigger.Escalate(ctx, intent.SupplierName)
	if runErr == nil {
		if result.Level != 0 && result.Level != intent.Level {
			o.logger.Info("Intent level differs from active level",
				"key", intent.Key,
				"active_level", result.Level,
			)
		}
		return o.repo.MarkDone(ctx, intent.ID)
	}

	if errors.Is(runErr, apperr.ErrNotFound) || errors.Is(runErr, apperr.ErrValidation) || attempt >= o.settings.MaxAttempts {
		o.logger.Error("Intent failed permanently",
			"key", intent.Key,
			"attempts", attempt,
			"error", runErr,
		)
		if err := o.repo.MarkFailed(ctx, intent.ID, runErr.Error()); err != nil {
			return err
		}
		return runErr
	}

	next := o.settings.now().Add(o.RetryDelay(attempt))
	o.logger.Error("Intent delivery failed, rescheduled",
		"key", intent.Key,
		"attempts", attempt,
		"next_due", next,
		"error", runErr,
	)
	if err := o.repo.MarkRetry(ctx, intent.ID, runErr.Error(), next); err != nil {
		return err
	}
	return runErr
}

// ProcessDue delivers up to limit due intents and returns how many were
// attempted.
func (o *Outbox) ProcessDue(ctx context.Context, limit int) (int, error) {
	due, err := o.repo.ListDue(ctx, o.settings.now(), limit)
	if err != nil {
		return 0, err
	}
	for _, intent := range due {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		// failures are recorded on the intent itself
		_ = o.Deliver(ctx, intent)
	}
	return len(due), nil
}

// ReleaseExpired returns intents abandoned mid-delivery to the queue.
func (o *Outbox) ReleaseExpired(ctx context.Context) (int64, error) {
	n, err := o.repo.ReleaseExpired(ctx, o.settings.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.logger.Info("Released expired outbox leases", "count", n)
	}
	return n, nil
}

// RetryDelay is the delay before delivery attempt+1: RetryBase doubled
// per failed attempt, capped at RetryMax, without jitter.
func (o *Outbox) RetryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.settings.RetryBase
	b.MaxInterval = max(o.settings.RetryMax, o.settings.RetryBase)
	b.Multiplier = 2
	b.RandomizationFactor = 0

	d := b.NextBackOff()
	for i := 1; i < attempt && d < b.MaxInterval; i++ {
		d = b.NextBackOff()
	}
	return d
}
