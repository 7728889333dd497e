package dispatcher

import (
	"context"

	"github.com/garyjia/vendor-portal/internal/domain/event"
)

// Handler reacts to one supplier lifecycle event.
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a subscription. Handler is left nil in ListHandlers output.
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler

	// Observer handlers only watch. Their errors are logged and never
	// abort a synchronous dispatch.
	Observer bool
}
