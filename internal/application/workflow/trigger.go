package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/vendor-portal/internal/application/dispatcher"
	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/domain/event"
)

// EscalationResult reports what one trigger invocation did.
type EscalationResult struct {
	SupplierName string `json:"supplierName"`
	Level        int    `json:"level,omitempty"`
	ExternalRef  string `json:"externalRef,omitempty"`
	Skipped      bool   `json:"skipped"`
	Reason       string `json:"reason,omitempty"`
}

// EscalationTrigger hands the first PENDING level of a supplier to the
// workflow engine.
type EscalationTrigger struct {
	suppliers   port.SupplierRepository
	approvals   port.ApprovalRepository
	attachments port.AttachmentRepository
	history     port.HistoryRepository
	txManager   port.TransactionManager
	engine      port.WorkflowEngine
	links       port.LinkBuilder
	locker      *KeyedLocker
	dispatcher  dispatcher.Dispatcher
	logger      Logger
	now         func() time.Time
}

func newEscalationTrigger(deps Dependencies, now func() time.Time) *EscalationTrigger {
	return &EscalationTrigger{
		suppliers:   deps.Suppliers,
		approvals:   deps.Approvals,
		attachments: deps.Attachments,
		history:     deps.History,
		txManager:   deps.TxManager,
		engine:      deps.Engine,
		links:       deps.Links,
		locker:      deps.Locker,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		now:         now,
	}
}

// Escalate submits the supplier's first PENDING level unless it was
// already submitted. It is a no-op when nothing is pending.
func (t *EscalationTrigger) Escalate(ctx context.Context, supplierName string) (*EscalationResult, error) {
	unlock := t.locker.Lock(supplierName)
	defer unlock()
	return t.escalateLocked(ctx, supplierName, false)
}

// Resend submits the first PENDING level even if it was submitted before.
func (t *EscalationTrigger) Resend(ctx context.Context, supplierName string) (*EscalationResult, error) {
	unlock := t.locker.Lock(supplierName)
	defer unlock()
	return t.escalateLocked(ctx, supplierName, true)
}

func (t *EscalationTrigger) escalateLocked(ctx context.Context, supplierName string, resend bool) (*EscalationResult, error) {
	supplier, err := t.suppliers.GetByName(ctx, supplierName)
	if err != nil {
		return nil, fmt.Errorf("failed to load supplier: %w", err)
	}
	if supplier == nil {
		return nil, apperr.NotFound("supplier %q", supplierName)
	}

	ledger, err := t.approvals.ListBySupplier(ctx, supplierName)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	if len(ledger) == 0 {
		return nil, apperr.NotFound("no approval records for supplier %q", supplierName)
	}

	result := &EscalationResult{SupplierName: supplierName}
	if supplier.IsTerminal() {
		result.Skipped = true
		result.Reason = "supplier is " + supplier.Status
		return result, nil
	}

	var (
		active *entity.ApprovalRecord
		prior  []string
	)
	for _, rec := range ledger {
		if rec.IsPending() {
			active = rec
			break
		}
		if rec.Comment != "" {
			prior = append(prior, fmt.Sprintf("L%d: %s", rec.Level, rec.Comment))
		}
	}
	if active == nil {
		result.Skipped = true
		result.Reason = "no pending level"
		return result, nil
	}

	result.Level = active.Level
	if active.EscalatedAt != nil && !resend {
		result.Skipped = true
		result.Reason = "level already escalated"
		result.ExternalRef = active.ExternalRef
		t.logger.Info("Escalation skipped, level already escalated",
			"supplier", supplierName,
			"level", active.Level,
			"external_ref", active.ExternalRef,
		)
		return result, nil
	}

	req, err := t.buildRequest(ctx, supplier, active, strings.Join(prior, "\n"))
	if err != nil {
		return nil, err
	}

	// The version is part of the key: a retry of the same send is
	// deduplicated downstream, a resend after success is not.
	requestKey := fmt.Sprintf("%s:v%d", entity.EscalationKey(supplierName, active.Level), active.Version)

	receipt, err := t.engine.SubmitEscalation(ctx, req, requestKey)
	if err != nil {
		t.logger.Error("Escalation submit failed",
			"supplier", supplierName,
			"level", active.Level,
			"approver", active.ApproverEmail,
			"error", err,
		)
		if errors.Is(err, apperr.ErrIntegration) {
			return nil, err
		}
		return nil, apperr.Integration("submit escalation", err)
	}

	at := t.now().UTC()
	err = t.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := t.approvals.MarkEscalated(txCtx, supplierName, active.Level, active.Version, receipt.ExternalRef, at)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("ledger row %s/%d changed during escalation", supplierName, active.Level)
		}
		return t.history.Create(txCtx, &entity.ApprovalHistory{
			SupplierName:   supplierName,
			Level:          active.Level,
			Action:         entity.ActionEscalated,
			PreviousStatus: active.Status,
			NewStatus:      active.Status,
			Actor:          entity.SystemActor,
			Comment:        receipt.ExternalRef,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record escalation: %w", err)
	}

	result.ExternalRef = receipt.ExternalRef
	t.logger.Info("Escalation sent",
		"supplier", supplierName,
		"level", active.Level,
		"approver", active.ApproverEmail,
		"external_ref", receipt.ExternalRef,
		"resend", resend,
	)
	t.emit(ctx, event.NewEvent(event.TypeEscalationSent, supplierName, active.Level, map[string]interface{}{
		"external_ref":   receipt.ExternalRef,
		"approver_email": active.ApproverEmail,
		"resend":         resend,
	}))
	return result, nil
}

func (t *EscalationTrigger) buildRequest(ctx context.Context, s *entity.Supplier, active *entity.ApprovalRecord, priorComments string) (*port.EscalationRequest, error) {
	attachments, err := t.attachments.ListBySupplier(ctx, s.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}

	req := &port.EscalationRequest{
		SupplierName:  s.Name,
		Email:         s.PrimaryContact.Email,
		Country:       s.MainAddress.Country,
		Phone:         s.PrimaryContact.Phone,
		Status:        entity.StatusPending,
		ApproverName:  active.ApproverName,
		ApproverEmail: active.ApproverEmail,
		ApproverLevel: active.Level,
		PriorComments: priorComments,
	}
	if len(attachments) > 0 {
		req.AttachmentLink1 = t.links.AttachmentLink(s.Name, attachments[0].ID)
		req.AttachmentsZipLink = t.links.ArchiveLink(s.Name)
	}
	if len(attachments) > 1 {
		req.AttachmentLink2 = t.links.AttachmentLink(s.Name, attachments[1].ID)
	}
	return req, nil
}

func (t *EscalationTrigger) emit(ctx context.Context, evt *event.Event) {
	if t.dispatcher != nil {
		t.dispatcher.DispatchAsync(ctx, evt)
	}
}
