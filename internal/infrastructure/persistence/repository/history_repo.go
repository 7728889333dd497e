package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.ApprovalHistory) error {
	query := `
		INSERT INTO approval_history (
			supplier_name, level, action, previous_status, new_status,
			actor, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	ts := now()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		history.SupplierName,
		history.Level,
		history.Action,
		history.PreviousStatus,
		history.NewStatus,
		history.Actor,
		history.Comment,
		ts,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	history.CreatedAt = ts
	return nil
}

// ListBySupplier retrieves the audit trail of a supplier, oldest first
func (r *HistoryRepository) ListBySupplier(ctx context.Context, supplierName string) ([]*entity.ApprovalHistory, error) {
	query := `
		SELECT id, supplier_name, level, action, previous_status, new_status,
			actor, comment, created_at
		FROM approval_history
		WHERE supplier_name = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, supplierName)
	if err != nil {
		r.logger.Error("Failed to get history by supplier", zap.String("supplier", supplierName), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.ApprovalHistory
	for rows.Next() {
		var record entity.ApprovalHistory
		err := rows.Scan(
			&record.ID,
			&record.SupplierName,
			&record.Level,
			&record.Action,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.Actor,
			&record.Comment,
			&record.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan history record", zap.Error(err))
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}
