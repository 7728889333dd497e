package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/vendor-portal/internal/domain/entity"
)

// ErrDuplicate is returned by Create methods when the business key is taken.
var ErrDuplicate = errors.New("duplicate key")

// Repositories return (nil, nil) from single-row getters when the row
// does not exist. Callers turn that into apperr.NotFound.

// SupplierRepository persists suppliers.
type SupplierRepository interface {
	Create(ctx context.Context, s *entity.Supplier) error
	GetByName(ctx context.Context, name string) (*entity.Supplier, error)
	List(ctx context.Context, filter entity.SupplierFilter) ([]*entity.Supplier, error)

	// Reject moves a PENDING supplier to REJECTED. It reports false when
	// the supplier was not PENDING.
	Reject(ctx context.Context, name string) (bool, error)

	// MarkApproved moves a PENDING supplier to APPROVED and records the
	// business-partner ID in one compare-and-set.
	MarkApproved(ctx context.Context, name, businessPartnerID string) (bool, error)

	// ListFinalizable returns PENDING suppliers whose ledger is entirely
	// APPROVED.
	ListFinalizable(ctx context.Context, limit int) ([]string, error)
}

// ApproverRepository persists the approver directory.
type ApproverRepository interface {
	Create(ctx context.Context, a *entity.Approver) error
	GetByLevelAndCountry(ctx context.Context, level int, country string) (*entity.Approver, error)

	// ListByCountry returns entries ordered by level. An empty country
	// lists the whole directory ordered by country, then level.
	ListByCountry(ctx context.Context, country string) ([]*entity.Approver, error)
}

// ApprovalRepository persists the approval ledger.
type ApprovalRepository interface {
	CreateBatch(ctx context.Context, records []*entity.ApprovalRecord) error

	// ListBySupplier returns the ledger ordered by level ascending.
	ListBySupplier(ctx context.Context, supplierName string) ([]*entity.ApprovalRecord, error)
	Get(ctx context.Context, supplierName string, level int) (*entity.ApprovalRecord, error)
	GetByExternalRef(ctx context.Context, externalRef string) (*entity.ApprovalRecord, error)
	ListAll(ctx context.Context) ([]*entity.ApprovalRecord, error)

	// UpdateDecision writes status and comment on the row matching
	// (supplier, level, approver email) at expectedVersion. It reports
	// false when no row matched.
	UpdateDecision(ctx context.Context, rec *entity.ApprovalRecord, expectedVersion int64) (bool, error)

	// RejectAbove force-rejects every level strictly above level and
	// returns the number of rows changed.
	RejectAbove(ctx context.Context, supplierName string, level int, comment string) (int64, error)

	// MarkEscalated records that the row was handed to the workflow
	// engine, guarded by expectedVersion.
	MarkEscalated(ctx context.Context, supplierName string, level int, expectedVersion int64, externalRef string, at time.Time) (bool, error)
}

// AttachmentRepository persists attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, att *entity.Attachment) error
	GetByID(ctx context.Context, id string) (*entity.Attachment, error)
	ListBySupplier(ctx context.Context, supplierName string) ([]*entity.Attachment, error)
}

// OutboxRepository persists deferred intents.
type OutboxRepository interface {
	// Enqueue inserts the intent unless one with the same key exists.
	// It reports whether a row was inserted.
	Enqueue(ctx context.Context, intent *entity.OutboxIntent) (bool, error)

	// Debounce inserts the intent, or pushes DueAt of a still PENDING
	// intent with the same key forward.
	Debounce(ctx context.Context, intent *entity.OutboxIntent) error

	GetByKey(ctx context.Context, key string) (*entity.OutboxIntent, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.OutboxIntent, error)

	// Claim leases a due PENDING intent until lockedUntil. It reports
	// false when another worker holds it or it is not due.
	Claim(ctx context.Context, id string, now, lockedUntil time.Time) (bool, error)
	MarkDone(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, lastErr string, nextDue time.Time) error
	MarkFailed(ctx context.Context, id string, lastErr string) error

	// ReleaseExpired returns PROCESSING intents whose lease ran out to
	// PENDING.
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
}

// HistoryRepository persists the ledger audit trail.
type HistoryRepository interface {
	Create(ctx context.Context, h *entity.ApprovalHistory) error
	ListBySupplier(ctx context.Context, supplierName string) ([]*entity.ApprovalHistory, error)
}

// GSTRepository persists GST scan results.
type GSTRepository interface {
	// ReplaceForSupplier swaps the supplier's results for checks.
	ReplaceForSupplier(ctx context.Context, supplierName string, checks []*entity.GSTCheck) error
	ListBySupplier(ctx context.Context, supplierName string) ([]*entity.GSTCheck, error)
}

// TransactionManager runs fn in a transaction carried by ctx.
// Nested calls join the outer transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
