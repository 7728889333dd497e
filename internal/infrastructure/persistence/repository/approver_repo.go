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

// ApproverRepository implements port.ApproverRepository
type ApproverRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApproverRepository creates a new approver directory repository
func NewApproverRepository(db *sql.DB, logger *zap.Logger) port.ApproverRepository {
	return &ApproverRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a directory entry. A taken (level, country) yields
// port.ErrDuplicate.
func (r *ApproverRepository) Create(ctx context.Context, a *entity.Approver) error {
	query := `
		INSERT INTO approvers (level, country, name, email, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	ts := now()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		a.Level, a.Country, a.Name, a.Email, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("approver level %d country %s: %w", a.Level, a.Country, port.ErrDuplicate)
		}
		r.logger.Error("Failed to create approver",
			zap.Int("level", a.Level),
			zap.String("country", a.Country),
			zap.Error(err))
		return fmt.Errorf("failed to create approver: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	a.ID = id
	a.CreatedAt = ts
	return nil
}

// GetByLevelAndCountry retrieves one directory entry
func (r *ApproverRepository) GetByLevelAndCountry(ctx context.Context, level int, country string) (*entity.Approver, error) {
	query := `
		SELECT id, level, country, name, email, created_at
		FROM approvers
		WHERE level = ? AND country = ?
	`

	var a entity.Approver
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, level, country).Scan(
		&a.ID, &a.Level, &a.Country, &a.Name, &a.Email, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approver", zap.Int("level", level), zap.String("country", country), zap.Error(err))
		return nil, fmt.Errorf("failed to get approver: %w", err)
	}
	return &a, nil
}

// ListByCountry returns directory entries ordered by level
func (r *ApproverRepository) ListByCountry(ctx context.Context, country string) ([]*entity.Approver, error) {
	query := `SELECT id, level, country, name, email, created_at FROM approvers`
	var args []interface{}
	if country != "" {
		query += ` WHERE country = ? ORDER BY level`
		args = append(args, country)
	} else {
		query += ` ORDER BY country, level`
	}

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list approvers", zap.String("country", country), zap.Error(err))
		return nil, fmt.Errorf("failed to list approvers: %w", err)
	}
	defer rows.Close()

	var approvers []*entity.Approver
	for rows.Next() {
		var a entity.Approver
		if err := rows.Scan(&a.ID, &a.Level, &a.Country, &a.Name, &a.Email, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approver: %w", err)
		}
		approvers = append(approvers, &a)
	}
	return approvers, rows.Err()
}
