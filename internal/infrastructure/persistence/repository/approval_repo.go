package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ApprovalRepository implements port.ApprovalRepository over the
// approval_records table (the ledger).
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new ledger repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

const approvalColumns = `
	id, supplier_name, level, approver_name, approver_email, status, comment,
	version, escalated_at, external_ref, created_at, updated_at`

// CreateBatch seeds ledger rows. Call it inside a transaction so a
// partial chain is never visible.
func (r *ApprovalRepository) CreateBatch(ctx context.Context, records []*entity.ApprovalRecord) error {
	query := `
		INSERT INTO approval_records (
			supplier_name, level, approver_name, approver_email, status,
			comment, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	exec := sqlite.Executor(ctx, r.db)
	ts := now()
	for _, rec := range records {
		if rec.Status == "" {
			rec.Status = entity.StatusPending
		}
		result, err := exec.ExecContext(ctx, query,
			rec.SupplierName, rec.Level, rec.ApproverName, rec.ApproverEmail,
			rec.Status, rec.Comment, ts, ts)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("ledger row %s/%d: %w", rec.SupplierName, rec.Level, port.ErrDuplicate)
			}
			r.logger.Error("Failed to create ledger row",
				zap.String("supplier", rec.SupplierName),
				zap.Int("level", rec.Level),
				zap.Error(err))
			return fmt.Errorf("failed to create ledger row: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		rec.ID = id
		rec.Version = 1
		rec.CreatedAt = ts
		rec.UpdatedAt = ts
	}
	return nil
}

// ListBySupplier returns the supplier's ledger ordered by level
func (r *ApprovalRepository) ListBySupplier(ctx context.Context, supplierName string) ([]*entity.ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_records WHERE supplier_name = ? ORDER BY level ASC`
	return r.query(ctx, query, supplierName)
}

// ListAll returns every ledger row ordered by supplier and level
func (r *ApprovalRepository) ListAll(ctx context.Context) ([]*entity.ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_records ORDER BY supplier_name, level`
	return r.query(ctx, query)
}

// Get retrieves the row for (supplier, level)
func (r *ApprovalRepository) Get(ctx context.Context, supplierName string, level int) (*entity.ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_records WHERE supplier_name = ? AND level = ?`
	return r.queryOne(ctx, query, supplierName, level)
}

// GetByExternalRef retrieves the row escalated under externalRef
func (r *ApprovalRepository) GetByExternalRef(ctx context.Context, externalRef string) (*entity.ApprovalRecord, error) {
	if externalRef == "" {
		return nil, nil
	}
	query := `SELECT ` + approvalColumns + ` FROM approval_records WHERE external_ref = ? ORDER BY id DESC LIMIT 1`
	return r.queryOne(ctx, query, externalRef)
}

// UpdateDecision writes rec.Status and rec.Comment if the row still
// matches (supplier, level, approver email) at expectedVersion.
func (r *ApprovalRepository) UpdateDecision(ctx context.Context, rec *entity.ApprovalRecord, expectedVersion int64) (bool, error) {
	query := `
		UPDATE approval_records
		SET status = ?, comment = ?, version = version + 1, updated_at = ?
		WHERE supplier_name = ? AND level = ? AND approver_email = ? AND version = ?
	`

	ts := now()
	res, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		rec.Status, rec.Comment, ts,
		rec.SupplierName, rec.Level, rec.ApproverEmail, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to update ledger row",
			zap.String("supplier", rec.SupplierName),
			zap.Int("level", rec.Level),
			zap.Error(err))
		return false, fmt.Errorf("failed to update ledger row: %w", err)
	}

	n, err := affected(res)
	if err != nil {
		return false, err
	}
	if n > 0 {
		rec.Version = expectedVersion + 1
		rec.UpdatedAt = ts
	}
	return n > 0, nil
}

// RejectAbove force-rejects every level strictly above level
func (r *ApprovalRepository) RejectAbove(ctx context.Context, supplierName string, level int, comment string) (int64, error) {
	query := `
		UPDATE approval_records
		SET status = ?, comment = ?, version = version + 1, updated_at = ?
		WHERE supplier_name = ? AND level > ?
	`

	res, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		entity.StatusRejected, comment, now(), supplierName, level)
	if err != nil {
		r.logger.Error("Failed to cascade rejection",
			zap.String("supplier", supplierName),
			zap.Int("level", level),
			zap.Error(err))
		return 0, fmt.Errorf("failed to cascade rejection: %w", err)
	}
	return affected(res)
}

// MarkEscalated records the hand-off to the workflow engine
func (r *ApprovalRepository) MarkEscalated(ctx context.Context, supplierName string, level int, expectedVersion int64, externalRef string, at time.Time) (bool, error) {
	query := `
		UPDATE approval_records
		SET escalated_at = ?, external_ref = ?, version = version + 1, updated_at = ?
		WHERE supplier_name = ? AND level = ? AND version = ? AND status = ?
	`

	res, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		at.UTC(), externalRef, now(), supplierName, level, expectedVersion, entity.StatusPending)
	if err != nil {
		r.logger.Error("Failed to mark ledger row escalated",
			zap.String("supplier", supplierName),
			zap.Int("level", level),
			zap.Error(err))
		return false, fmt.Errorf("failed to mark escalated: %w", err)
	}

	n, err := affected(res)
	return n > 0, err
}

func (r *ApprovalRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*entity.ApprovalRecord, error) {
	rec, err := scanApproval(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get ledger row", zap.Error(err))
		return nil, fmt.Errorf("failed to get ledger row: %w", err)
	}
	return rec, nil
}

func (r *ApprovalRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalRecord, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list ledger rows", zap.Error(err))
		return nil, fmt.Errorf("failed to list ledger rows: %w", err)
	}
	defer rows.Close()

	var records []*entity.ApprovalRecord
	for rows.Next() {
		rec, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanApproval(row rowScanner) (*entity.ApprovalRecord, error) {
	var (
		rec         entity.ApprovalRecord
		escalatedAt sql.NullTime
	)
	err := row.Scan(
		&rec.ID,
		&rec.SupplierName,
		&rec.Level,
		&rec.ApproverName,
		&rec.ApproverEmail,
		&rec.Status,
		&rec.Comment,
		&rec.Version,
		&escalatedAt,
		&rec.ExternalRef,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.EscalatedAt = timePtr(escalatedAt)
	return &rec, nil
}
