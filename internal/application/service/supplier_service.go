package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/vendor-portal/internal/application/dispatcher"
	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/domain/event"
	"github.com/garyjia/vendor-portal/pkg/utils"
)

// SupplierService manages suppliers and exposes their ledgers
type SupplierService interface {
	// Create stores the supplier and seeds its approval chain from the
	// directory of its country in one transaction.
	Create(ctx context.Context, s *entity.Supplier) (*entity.Supplier, error)
	Get(ctx context.Context, name string) (*entity.Supplier, error)
	List(ctx context.Context, filter entity.SupplierFilter) ([]*entity.Supplier, error)
	Approvals(ctx context.Context, name string) ([]entity.ApprovalView, error)
	History(ctx context.Context, name string) ([]*entity.ApprovalHistory, error)
}

type supplierServiceImpl struct {
	suppliers  port.SupplierRepository
	approvers  port.ApproverRepository
	approvals  port.ApprovalRepository
	history    port.HistoryRepository
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

// NewSupplierService creates a new SupplierService
func NewSupplierService(
	suppliers port.SupplierRepository,
	approvers port.ApproverRepository,
	approvals port.ApprovalRepository,
	history port.HistoryRepository,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) SupplierService {
	return &supplierServiceImpl{
		suppliers:  suppliers,
		approvers:  approvers,
		approvals:  approvals,
		history:    history,
		txManager:  txManager,
		dispatcher: d,
		logger:     logger,
	}
}

func (s *supplierServiceImpl) Create(ctx context.Context, in *entity.Supplier) (*entity.Supplier, error) {
	if err := validateSupplier(in); err != nil {
		return nil, err
	}

	supplier := *in
	supplier.ID = 0
	supplier.Status = entity.StatusPending
	supplier.BusinessPartnerID = ""

	var levels int
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.suppliers.Create(txCtx, &supplier); err != nil {
			if errors.Is(err, port.ErrDuplicate) {
				return apperr.Validation("Supplier '%s' already exists", supplier.Name)
			}
			return err
		}

		chain, err := s.approvers.ListByCountry(txCtx, supplier.MainAddress.Country)
		if err != nil {
			return fmt.Errorf("failed to load approver chain: %w", err)
		}
		records, err := seedLedger(supplier.Name, chain)
		if err != nil {
			return err
		}
		if err := s.approvals.CreateBatch(txCtx, records); err != nil {
			return err
		}

		for _, rec := range records {
			if err := s.history.Create(txCtx, &entity.ApprovalHistory{
				SupplierName: supplier.Name,
				Level:        rec.Level,
				Action:       entity.ActionSeeded,
				NewStatus:    entity.StatusPending,
				Actor:        entity.SystemActor,
				Comment:      rec.ApproverEmail,
			}); err != nil {
				return err
			}
		}
		levels = len(records)
		return nil
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrValidation) {
			s.logger.Error("Failed to create supplier", "supplier", supplier.Name, "error", err)
		}
		return nil, err
	}

	s.logger.Info("Supplier created",
		"supplier", supplier.Name,
		"country", supplier.MainAddress.Country,
		"levels", levels,
	)
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeSupplierCreated, supplier.Name, 0, map[string]interface{}{
			"country": supplier.MainAddress.Country,
			"levels":  levels,
		}))
	}
	return &supplier, nil
}

// seedLedger turns the directory chain into PENDING ledger rows. The
// chain must be ordered by level and run 1..n without gaps.
func seedLedger(supplierName string, chain []*entity.Approver) ([]*entity.ApprovalRecord, error) {
	if len(chain) == 0 {
		return nil, apperr.Validation("no approvers configured for the supplier's country")
	}
	records := make([]*entity.ApprovalRecord, 0, len(chain))
	for i, a := range chain {
		if a.Level != i+1 {
			return nil, apperr.Validation("approver chain for %s is not contiguous: expected level %d, found %d", a.Country, i+1, a.Level)
		}
		records = append(records, &entity.ApprovalRecord{
			SupplierName:  supplierName,
			Level:         a.Level,
			ApproverName:  a.Name,
			ApproverEmail: a.Email,
			Status:        entity.StatusPending,
		})
	}
	return records, nil
}

func validateSupplier(s *entity.Supplier) error {
	if s == nil {
		return apperr.Validation("supplier is required")
	}
	s.Name = utils.SanitizeString(strings.TrimSpace(s.Name))
	s.MainAddress.Country = strings.TrimSpace(s.MainAddress.Country)
	s.PrimaryContact.Email = strings.TrimSpace(s.PrimaryContact.Email)

	if s.Name == "" {
		return apperr.Validation("supplierName is required")
	}
	if strings.ContainsAny(s.Name, `/\`) {
		return apperr.Validation("supplierName must not contain path separators")
	}
	if s.MainAddress.Country == "" {
		return apperr.Validation("mainAddress.country is required")
	}
	if s.PrimaryContact.Email != "" {
		if err := utils.ValidateEmail(s.PrimaryContact.Email); err != nil {
			return apperr.Validation("primaryContact.email: %v", err)
		}
	}
	return nil
}

func (s *supplierServiceImpl) Get(ctx context.Context, name string) (*entity.Supplier, error) {
	supplier, err := s.suppliers.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if supplier == nil {
		return nil, apperr.NotFound("supplier %q", name)
	}
	return supplier, nil
}

func (s *supplierServiceImpl) List(ctx context.Context, filter entity.SupplierFilter) ([]*entity.Supplier, error) {
	if filter.Status != "" {
		filter.Status = strings.ToUpper(filter.Status)
		if !entity.IsValidStatus(filter.Status) {
			return nil, apperr.Validation("unknown status %q", filter.Status)
		}
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apperr.Validation("limit and offset must not be negative")
	}
	suppliers, err := s.suppliers.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if suppliers == nil {
		suppliers = []*entity.Supplier{}
	}
	return suppliers, nil
}

func (s *supplierServiceImpl) Approvals(ctx context.Context, name string) ([]entity.ApprovalView, error) {
	if _, err := s.Get(ctx, name); err != nil {
		return nil, err
	}
	records, err := s.approvals.ListBySupplier(ctx, name)
	if err != nil {
		return nil, err
	}
	views := make([]entity.ApprovalView, 0, len(records))
	for _, rec := range records {
		views = append(views, rec.View())
	}
	return views, nil
}

func (s *supplierServiceImpl) History(ctx context.Context, name string) ([]*entity.ApprovalHistory, error) {
	if _, err := s.Get(ctx, name); err != nil {
		return nil, err
	}
	history, err := s.history.ListBySupplier(ctx, name)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []*entity.ApprovalHistory{}
	}
	return history, nil
}
