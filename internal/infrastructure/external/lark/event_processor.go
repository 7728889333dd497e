package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"go.uber.org/zap"
)

// ApprovalInstanceEvent is the event type Lark uses for instance
// status changes.
const ApprovalInstanceEvent = "approval_instance"

// Decision is an approval instance status change.
type Decision struct {
	InstanceCode string
	Status       string
	Comment      string
}

// DecisionHandler applies decisions to the approval ledger.
type DecisionHandler interface {
	HandleDecision(ctx context.Context, d Decision) error
}

// CommentSource looks up the approver comment of an instance. Instance
// events carry only the status.
type CommentSource interface {
	LatestComment(ctx context.Context, instanceCode string) (string, error)
}

// approvalEvent covers both the v1 callback body, where the type sits in
// event.type, and the v2 body with header.event_type.
type approvalEvent struct {
	Type   string `json:"type"`
	Token  string `json:"token"`
	Header struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		Token     string `json:"token"`
	} `json:"header"`
	Event struct {
		Type         string `json:"type"`
		ApprovalCode string `json:"approval_code"`
		InstanceCode string `json:"instance_code"`
		Status       string `json:"status"`
		Comment      string `json:"comment"`
	} `json:"event"`
}

func (e *approvalEvent) eventType() string {
	if e.Header.EventType != "" {
		return e.Header.EventType
	}
	return e.Event.Type
}

// EventProcessor routes Lark approval events into the decision handler.
type EventProcessor struct {
	approvalCode string
	handler      DecisionHandler
	comments     CommentSource
	logger       *zap.Logger
}

// NewEventProcessor creates a new EventProcessor. comments may be nil.
func NewEventProcessor(approvalCode string, handler DecisionHandler, comments CommentSource, logger *zap.Logger) *EventProcessor {
	return &EventProcessor{
		approvalCode: approvalCode,
		handler:      handler,
		comments:     comments,
		logger:       logger,
	}
}

// HandleCustomizedEvent adapts the SDK event payload for processing.
func (p *EventProcessor) HandleCustomizedEvent(ctx context.Context, event *larkevent.EventReq) error {
	return p.ProcessEvent(ctx, event.Body)
}

// ProcessEvent parses an approval event payload and hands approved or
// rejected instances to the handler. Other events are ignored.
func (p *EventProcessor) ProcessEvent(ctx context.Context, payload []byte) error {
	var event approvalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse approval event payload: %w", err)
	}

	eventType := event.eventType()
	if !strings.Contains(eventType, ApprovalInstanceEvent) {
		p.logger.Info("Unhandled event type", zap.String("event_type", eventType))
		return nil
	}

	if p.approvalCode != "" && event.Event.ApprovalCode != "" && event.Event.ApprovalCode != p.approvalCode {
		p.logger.Info("Ignoring approval event for different approval code",
			zap.String("approval_code", event.Event.ApprovalCode))
		return nil
	}

	instanceCode := event.Event.InstanceCode
	if instanceCode == "" {
		p.logger.Warn("Instance code not found in approval event",
			zap.String("event_type", eventType))
		return nil
	}

	status := strings.ToUpper(strings.TrimSpace(event.Event.Status))
	if status != "APPROVED" && status != "REJECTED" {
		p.logger.Debug("Ignoring approval status",
			zap.String("instance_code", instanceCode),
			zap.String("status", status))
		return nil
	}

	comment := event.Event.Comment
	if comment == "" && p.comments != nil {
		c, err := p.comments.LatestComment(ctx, instanceCode)
		if err != nil {
			p.logger.Warn("Failed to load approval comment",
				zap.String("instance_code", instanceCode),
				zap.Error(err))
		}
		comment = c
	}

	p.logger.Info("Processing approval decision",
		zap.String("instance_code", instanceCode),
		zap.String("status", status))

	return p.handler.HandleDecision(ctx, Decision{
		InstanceCode: instanceCode,
		Status:       status,
		Comment:      comment,
	})
}
