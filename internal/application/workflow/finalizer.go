package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/vendor-portal/internal/application/dispatcher"
	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/domain/event"
	domainwf "github.com/garyjia/vendor-portal/internal/domain/workflow"
)

// Finalizer provisions the business partner of a fully approved
// supplier and marks it APPROVED.
type Finalizer struct {
	suppliers  port.SupplierRepository
	approvals  port.ApprovalRepository
	history    port.HistoryRepository
	txManager  port.TransactionManager
	partners   port.BusinessPartnerClient
	locker     *KeyedLocker
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

func newFinalizer(deps Dependencies) *Finalizer {
	return &Finalizer{
		suppliers:  deps.Suppliers,
		approvals:  deps.Approvals,
		history:    deps.History,
		txManager:  deps.TxManager,
		partners:   deps.Partners,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// BusinessPartnerKey is the stable request key of a supplier's partner.
func BusinessPartnerKey(supplierName string) string {
	return "bp:" + supplierName
}

// Finalize returns the supplier's business-partner ID, creating the
// partner first if the supplier is still PENDING with every level
// approved.
func (f *Finalizer) Finalize(ctx context.Context, supplierName string) (string, error) {
	unlock := f.locker.Lock(supplierName)
	defer unlock()
	return f.finalizeLocked(ctx, supplierName)
}

func (f *Finalizer) finalizeLocked(ctx context.Context, supplierName string) (string, error) {
	supplier, err := f.suppliers.GetByName(ctx, supplierName)
	if err != nil {
		return "", fmt.Errorf("failed to load supplier: %w", err)
	}
	if supplier == nil {
		return "", apperr.NotFound("supplier %q", supplierName)
	}

	switch supplier.Status {
	case entity.StatusApproved:
		return supplier.BusinessPartnerID, nil
	case entity.StatusRejected:
		return "", apperr.Stale("supplier %q is rejected", supplierName)
	}

	ledger, err := f.approvals.ListBySupplier(ctx, supplierName)
	if err != nil {
		return "", fmt.Errorf("failed to load ledger: %w", err)
	}

	cleared := func(context.Context) bool {
		if len(ledger) == 0 {
			return false
		}
		for _, rec := range ledger {
			if rec.Status != entity.StatusApproved {
				return false
			}
		}
		return true
	}
	machine, err := domainwf.NewSupplierMachine(supplier.Status, cleared)
	if err != nil {
		return "", err
	}
	if err := machine.Fire(ctx, domainwf.TriggerFinalize); err != nil {
		if errors.Is(err, domainwf.ErrGuardFailed) {
			return "", apperr.Conflict("supplier %q has levels not yet approved", supplierName)
		}
		return "", apperr.Conflict("cannot finalize supplier %q: %v", supplierName, err)
	}

	bpID, err := f.partners.CreateBusinessPartner(ctx, &port.BusinessPartnerRequest{
		SupplierName: supplierName,
		Category:     entity.BusinessPartnerCategoryOrganization,
		Grouping:     entity.BusinessPartnerGrouping,
		RequestKey:   BusinessPartnerKey(supplierName),
	})
	if err != nil {
		f.logger.Error("Business partner creation failed",
			"supplier", supplierName,
			"error", err,
		)
		f.emit(ctx, event.NewEvent(event.TypeFinalizationFailed, supplierName, 0, map[string]interface{}{
			"error": err.Error(),
		}))
		if errors.Is(err, apperr.ErrIntegration) {
			return "", err
		}
		return "", apperr.Integration("create business partner", err)
	}

	err = f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := f.suppliers.MarkApproved(txCtx, supplierName, bpID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("supplier %q changed during finalization", supplierName)
		}
		return f.history.Create(txCtx, &entity.ApprovalHistory{
			SupplierName:   supplierName,
			Level:          len(ledger),
			Action:         entity.ActionFinalized,
			PreviousStatus: entity.StatusPending,
			NewStatus:      entity.StatusApproved,
			Actor:          entity.SystemActor,
			Comment:        bpID,
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to record finalization: %w", err)
	}

	f.logger.Info("Supplier finalized",
		"supplier", supplierName,
		"business_partner_id", bpID,
	)
	f.emit(ctx, event.NewEvent(event.TypeSupplierApproved, supplierName, 0, map[string]interface{}{
		"business_partner_id": bpID,
	}))
	return bpID, nil
}

func (f *Finalizer) emit(ctx context.Context, evt *event.Event) {
	if f.dispatcher != nil {
		f.dispatcher.DispatchAsync(ctx, evt)
	}
}
