package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GSTRepository implements port.GSTRepository
type GSTRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewGSTRepository creates a new GST result repository
func NewGSTRepository(db *sql.DB, logger *zap.Logger) port.GSTRepository {
	return &GSTRepository{
		db:     db,
		logger: logger,
	}
}

// ReplaceForSupplier deletes the previous scan and stores checks.
// Run it inside a transaction to make the swap atomic.
func (r *GSTRepository) ReplaceForSupplier(ctx context.Context, supplierName string, checks []*entity.GSTCheck) error {
	exec := sqlite.Executor(ctx, r.db)

	if _, err := exec.ExecContext(ctx, `DELETE FROM gst_checks WHERE supplier_name = ?`, supplierName); err != nil {
		r.logger.Error("Failed to clear GST checks", zap.String("supplier", supplierName), zap.Error(err))
		return fmt.Errorf("failed to clear gst checks: %w", err)
	}

	query := `
		INSERT INTO gst_checks (
			id, supplier_name, attachment_id, file_name, gstin, legal_name,
			state_code, valid, message, checked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, c := range checks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CheckedAt.IsZero() {
			c.CheckedAt = now()
		}
		c.SupplierName = supplierName
		_, err := exec.ExecContext(ctx, query,
			c.ID, supplierName, c.AttachmentID, c.FileName, c.GSTIN, c.LegalName,
			c.StateCode, c.Valid, c.Message, c.CheckedAt.UTC())
		if err != nil {
			r.logger.Error("Failed to store GST check",
				zap.String("supplier", supplierName),
				zap.String("attachment_id", c.AttachmentID),
				zap.Error(err))
			return fmt.Errorf("failed to store gst check: %w", err)
		}
	}
	return nil
}

// ListBySupplier returns the stored scan results
func (r *GSTRepository) ListBySupplier(ctx context.Context, supplierName string) ([]*entity.GSTCheck, error) {
	query := `
		SELECT id, supplier_name, attachment_id, file_name, gstin, legal_name,
			state_code, valid, message, checked_at
		FROM gst_checks
		WHERE supplier_name = ?
		ORDER BY file_name, rowid
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, supplierName)
	if err != nil {
		r.logger.Error("Failed to list GST checks", zap.String("supplier", supplierName), zap.Error(err))
		return nil, fmt.Errorf("failed to list gst checks: %w", err)
	}
	defer rows.Close()

	var checks []*entity.GSTCheck
	for rows.Next() {
		var c entity.GSTCheck
		if err := rows.Scan(
			&c.ID, &c.SupplierName, &c.AttachmentID, &c.FileName, &c.GSTIN,
			&c.LegalName, &c.StateCode, &c.Valid, &c.Message, &c.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan gst check: %w", err)
		}
		checks = append(checks, &c)
	}
	return checks, rows.Err()
}
