package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/vendor-portal/internal/application/dispatcher"
	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/domain/event"
	domainwf "github.com/garyjia/vendor-portal/internal/domain/workflow"
)

// CallbackAction is what the processor did with a notification.
type CallbackAction string

const (
	// ActionAdvanced means the level approved while another level is still
	// pending. NextLevel is the lowest pending level, escalated unless it
	// already was.
	ActionAdvanced CallbackAction = "ADVANCED"
	// ActionRejected means the level and everything above it were rejected.
	ActionRejected CallbackAction = "REJECTED"
	// ActionFinalized means the last level approved and the supplier is provisioned.
	ActionFinalized CallbackAction = "FINALIZED"
	// ActionReplayed means the notification repeated a recorded decision.
	ActionReplayed CallbackAction = "REPLAYED"
)

// CallbackRequest is one approve/reject notification from the workflow
// engine. Level 0 means the field was missing.
type CallbackRequest struct {
	SupplierName  string `json:"supplierName"`
	Level         int    `json:"level"`
	Status        string `json:"status"`
	Comment       string `json:"comment,omitempty"`
	ApproverEmail string `json:"approverEmail"`
}

// Validate checks the request shape without touching storage.
func (r *CallbackRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.SupplierName) == "" {
		missing = append(missing, "supplierName")
	}
	if r.Level == 0 {
		missing = append(missing, "level")
	}
	if strings.TrimSpace(r.Status) == "" {
		missing = append(missing, "status")
	}
	if strings.TrimSpace(r.ApproverEmail) == "" {
		missing = append(missing, "approverEmail")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	if r.Level < 0 {
		return apperr.Validation("level must be positive, got %d", r.Level)
	}
	if _, _, ok := domainwf.OutcomeTrigger(r.Status); !ok {
		return apperr.Validation("unknown status %q, expected Approved or Rejected", r.Status)
	}
	return nil
}

// CallbackResult is the acknowledgement returned for a processed callback.
type CallbackResult struct {
	SupplierName      string         `json:"supplierName"`
	Level             int            `json:"level"`
	Outcome           string         `json:"outcome"`
	Action            CallbackAction `json:"action"`
	SupplierStatus    string         `json:"supplierStatus"`
	NextLevel         int            `json:"nextLevel,omitempty"`
	BusinessPartnerID string         `json:"businessPartnerId,omitempty"`
}

// CallbackProcessor applies approve/reject notifications to the ledger.
type CallbackProcessor struct {
	suppliers  port.SupplierRepository
	approvals  port.ApprovalRepository
	history    port.HistoryRepository
	txManager  port.TransactionManager
	outbox     *Outbox
	finalizer  *Finalizer
	locker     *KeyedLocker
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

func newCallbackProcessor(deps Dependencies, outbox *Outbox, finalizer *Finalizer) *CallbackProcessor {
	return &CallbackProcessor{
		suppliers:  deps.Suppliers,
		approvals:  deps.Approvals,
		history:    deps.History,
		txManager:  deps.TxManager,
		outbox:     outbox,
		finalizer:  finalizer,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// Process applies req. A notification that repeats the recorded
// decision of a row is acknowledged as REPLAYED; one that contradicts it
// is a stale decision and is not worth redelivering.
func (p *CallbackProcessor) Process(ctx context.Context, req *CallbackRequest) (*CallbackResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.SupplierName)
	trigger, target, _ := domainwf.OutcomeTrigger(req.Status)
	outcome := target.String()

	unlock := p.locker.Lock(name)
	defer unlock()

	supplier, err := p.suppliers.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load supplier: %w", err)
	}
	row, err := p.approvals.Get(ctx, name, req.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger row: %w", err)
	}
	if supplier == nil || row == nil || !strings.EqualFold(row.ApproverEmail, strings.TrimSpace(req.ApproverEmail)) {
		return nil, apperr.NotFound("no approval record for supplier %q level %d approver %s", name, req.Level, req.ApproverEmail)
	}

	result := &CallbackResult{
		SupplierName: name,
		Level:        req.Level,
		Outcome:      outcome,
	}

	if !row.IsPending() {
		if row.Status != outcome {
			return nil, apperr.Stale("level %d of supplier %q is already %s", req.Level, name, row.Status)
		}
		return p.replayLocked(ctx, supplier, row, result, unlock)
	}
	if supplier.IsTerminal() {
		return nil, apperr.Stale("supplier %q is already %s", name, supplier.Status)
	}

	machine, err := domainwf.NewLedgerRowMachine(row.Status)
	if err != nil {
		return nil, err
	}
	if err := machine.Fire(ctx, trigger); err != nil {
		return nil, apperr.Stale("level %d of supplier %q: %v", req.Level, name, err)
	}

	ledger, err := p.approvals.ListBySupplier(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	var above []*entity.ApprovalRecord
	for _, rec := range ledger {
		if rec.Level > req.Level {
			above = append(above, rec)
		}
	}
	next := lowestPending(ledger, req.Level)

	actor := strings.TrimSpace(req.ApproverEmail)
	var nextKey string
	err = p.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		previous := row.Status
		version := row.Version
		row.Status = machine.State().String()
		row.Comment = req.Comment

		ok, err := p.approvals.UpdateDecision(txCtx, row, version)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("ledger row %s/%d was modified concurrently", name, req.Level)
		}
		if err := p.history.Create(txCtx, &entity.ApprovalHistory{
			SupplierName:   name,
			Level:          req.Level,
			Action:         outcome,
			PreviousStatus: previous,
			NewStatus:      row.Status,
			Actor:          actor,
			Comment:        req.Comment,
		}); err != nil {
			return err
		}

		if outcome == entity.StatusRejected {
			return p.cascadeLocked(txCtx, supplier, req.Level, above)
		}
		if next != nil && next.EscalatedAt == nil {
			key, err := p.outbox.EnqueueEscalation(txCtx, name, next.Level)
			if err != nil {
				return err
			}
			nextKey = key
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("Callback applied",
		"supplier", name,
		"level", req.Level,
		"outcome", outcome,
		"approver", actor,
	)
	recorded := event.NewEvent(event.TypeApprovalRecorded, name, req.Level, map[string]interface{}{
		"outcome":        outcome,
		"approver_email": actor,
		"comment":        req.Comment,
	})
	p.emit(ctx, recorded)

	switch {
	case outcome == entity.StatusRejected:
		result.Action = ActionRejected
		result.SupplierStatus = entity.StatusRejected
		p.emit(ctx, event.NewEventWithCorrelation(event.TypeSupplierRejected, name, req.Level, map[string]interface{}{
			"comment":         req.Comment,
			"cascaded_levels": len(above),
		}, recorded.ID))
		return result, nil

	case next != nil:
		result.Action = ActionAdvanced
		result.SupplierStatus = entity.StatusPending
		result.NextLevel = next.Level
		if nextKey != "" {
			unlock()
			p.deliver(ctx, nextKey)
		}
		return result, nil

	default:
		bpID, err := p.finalizer.finalizeLocked(ctx, name)
		if err != nil {
			return nil, err
		}
		result.Action = ActionFinalized
		result.SupplierStatus = entity.StatusApproved
		result.BusinessPartnerID = bpID
		return result, nil
	}
}

// cascadeLocked rejects every level above level and then the supplier.
func (p *CallbackProcessor) cascadeLocked(ctx context.Context, supplier *entity.Supplier, level int, above []*entity.ApprovalRecord) error {
	for _, rec := range above {
		m, err := domainwf.NewLedgerRowMachine(rec.Status)
		if err != nil {
			return err
		}
		if err := m.Fire(ctx, domainwf.TriggerCascadeReject); err != nil {
			return apperr.Conflict("cannot cascade level %d: %v", rec.Level, err)
		}
	}

	if _, err := p.approvals.RejectAbove(ctx, supplier.Name, level, entity.AutoRejectComment); err != nil {
		return err
	}
	for _, rec := range above {
		if err := p.history.Create(ctx, &entity.ApprovalHistory{
			SupplierName:   supplier.Name,
			Level:          rec.Level,
			Action:         entity.ActionCascadeReject,
			PreviousStatus: rec.Status,
			NewStatus:      entity.StatusRejected,
			Actor:          entity.SystemActor,
			Comment:        entity.AutoRejectComment,
		}); err != nil {
			return err
		}
	}

	sm, err := domainwf.NewSupplierMachine(supplier.Status, nil)
	if err != nil {
		return err
	}
	if err := sm.Fire(ctx, domainwf.TriggerReject); err != nil {
		return apperr.Conflict("cannot reject supplier %q: %v", supplier.Name, err)
	}
	ok, err := p.suppliers.Reject(ctx, supplier.Name)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("supplier %q changed during rejection", supplier.Name)
	}
	return nil
}

// replayLocked acknowledges a notification that matches the recorded
// decision. The only follow-up work it may do is finish what the
// original delivery left undone.
func (p *CallbackProcessor) replayLocked(ctx context.Context, supplier *entity.Supplier, row *entity.ApprovalRecord, result *CallbackResult, unlock func()) (*CallbackResult, error) {
	result.Action = ActionReplayed
	result.SupplierStatus = supplier.Status
	result.BusinessPartnerID = supplier.BusinessPartnerID

	p.logger.Info("Callback replayed",
		"supplier", supplier.Name,
		"level", row.Level,
		"status", row.Status,
	)

	if row.Status != entity.StatusApproved || supplier.Status != entity.StatusPending {
		return result, nil
	}

	ledger, err := p.approvals.ListBySupplier(ctx, supplier.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	next := lowestPending(ledger, 0)
	if next == nil {
		bpID, err := p.finalizer.finalizeLocked(ctx, supplier.Name)
		if err != nil {
			return nil, err
		}
		result.Action = ActionFinalized
		result.SupplierStatus = entity.StatusApproved
		result.BusinessPartnerID = bpID
		return result, nil
	}

	result.NextLevel = next.Level
	if next.EscalatedAt == nil {
		unlock()
		p.deliver(ctx, entity.EscalationKey(supplier.Name, next.Level))
	}
	return result, nil
}

// lowestPending returns the lowest PENDING row other than level, or nil
// when every other row is decided. ledger is ordered by level.
func lowestPending(ledger []*entity.ApprovalRecord, level int) *entity.ApprovalRecord {
	for _, rec := range ledger {
		if rec.Level != level && rec.IsPending() {
			return rec
		}
	}
	return nil
}

// deliver runs a freshly committed intent right away. A failure leaves
// the intent scheduled for the outbox worker.
func (p *CallbackProcessor) deliver(ctx context.Context, key string) {
	if err := p.outbox.DeliverKey(ctx, key); err != nil {
		p.logger.Error("Immediate escalation failed, left to outbox worker",
			"key", key,
			"error", err,
		)
	}
}

func (p *CallbackProcessor) emit(ctx context.Context, evt *event.Event) {
	if p.dispatcher != nil {
		p.dispatcher.DispatchAsync(ctx, evt)
	}
}
