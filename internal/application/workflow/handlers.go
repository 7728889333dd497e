package workflow

import (
	"context"

	"github.com/garyjia/vendor-portal/internal/application/dispatcher"
	"github.com/garyjia/vendor-portal/internal/domain/event"
)

// RegisterHandlers subscribes the engine to the domain events it reacts
// to and adds an audit log line for every engine event.
func (e *Engine) RegisterHandlers(d dispatcher.Dispatcher, logger Logger) {
	d.SubscribeNamed(event.TypeAttachmentsUploaded, "schedule-first-escalation",
		func(ctx context.Context, evt *event.Event) error {
			return e.Outbox.ScheduleFirstEscalation(ctx, evt.SupplierName)
		})

	audit := func(ctx context.Context, evt *event.Event) error {
		logger.Info("Domain event",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"supplier", evt.SupplierName,
			"level", evt.Level,
			"payload", evt.Payload,
		)
		return nil
	}
	for _, t := range []event.Type{
		event.TypeSupplierCreated,
		event.TypeEscalationSent,
		event.TypeApprovalRecorded,
		event.TypeSupplierRejected,
		event.TypeSupplierApproved,
		event.TypeFinalizationFailed,
	} {
		d.SubscribeObserver(t, "audit-log", audit)
	}
}
