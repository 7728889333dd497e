package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// SupplierRepository implements port.SupplierRepository
type SupplierRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSupplierRepository creates a new supplier repository
func NewSupplierRepository(db *sql.DB, logger *zap.Logger) port.SupplierRepository {
	return &SupplierRepository{
		db:     db,
		logger: logger,
	}
}

const supplierColumns = `
	id, name, street, line2, line3, city, postal_code, country, region,
	contact_first_name, contact_last_name, contact_email, contact_phone,
	category, category_region, additional_info,
	status, business_partner_id, created_at, updated_at`

// Create inserts a supplier. A taken name yields port.ErrDuplicate.
func (r *SupplierRepository) Create(ctx context.Context, s *entity.Supplier) error {
	query := `
		INSERT INTO suppliers (
			name, street, line2, line3, city, postal_code, country, region,
			contact_first_name, contact_last_name, contact_email, contact_phone,
			category, category_region, additional_info,
			status, business_partner_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ts := now()
	if s.Status == "" {
		s.Status = entity.StatusPending
	}

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		s.Name,
		s.MainAddress.Street,
		s.MainAddress.Line2,
		s.MainAddress.Line3,
		s.MainAddress.City,
		s.MainAddress.PostalCode,
		s.MainAddress.Country,
		s.MainAddress.Region,
		s.PrimaryContact.FirstName,
		s.PrimaryContact.LastName,
		s.PrimaryContact.Email,
		s.PrimaryContact.Phone,
		s.CategoryAndRegion.Category,
		s.CategoryAndRegion.Region,
		s.AdditionalInfo.Details,
		s.Status,
		s.BusinessPartnerID,
		ts,
		ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("supplier %q: %w", s.Name, port.ErrDuplicate)
		}
		r.logger.Error("Failed to create supplier", zap.String("supplier", s.Name), zap.Error(err))
		return fmt.Errorf("failed to create supplier: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	s.ID = id
	s.CreatedAt = ts
	s.UpdatedAt = ts
	return nil
}

// GetByName retrieves a supplier by its business key
func (r *SupplierRepository) GetByName(ctx context.Context, name string) (*entity.Supplier, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers WHERE name = ?`

	s, err := scanSupplier(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get supplier", zap.String("supplier", name), zap.Error(err))
		return nil, fmt.Errorf("failed to get supplier: %w", err)
	}
	return s, nil
}

// List returns suppliers matching filter, newest first
func (r *SupplierRepository) List(ctx context.Context, filter entity.SupplierFilter) ([]*entity.Supplier, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Name != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Name)+"%")
	}
	if filter.City != "" {
		where = append(where, "LOWER(city) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.City)+"%")
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + supplierColumns + ` FROM suppliers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list suppliers", zap.Error(err))
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []*entity.Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan supplier: %w", err)
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

// Reject moves a PENDING supplier to REJECTED
func (r *SupplierRepository) Reject(ctx context.Context, name string) (bool, error) {
	query := `
		UPDATE suppliers SET status = ?, updated_at = ?
		WHERE name = ? AND status = ?
	`

	res, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		entity.StatusRejected, now(), name, entity.StatusPending)
	if err != nil {
		r.logger.Error("Failed to reject supplier", zap.String("supplier", name), zap.Error(err))
		return false, fmt.Errorf("failed to reject supplier: %w", err)
	}

	n, err := affected(res)
	return n > 0, err
}

// MarkApproved moves a PENDING supplier to APPROVED with its partner ID
func (r *SupplierRepository) MarkApproved(ctx context.Context, name, businessPartnerID string) (bool, error) {
	query := `
		UPDATE suppliers SET status = ?, business_partner_id = ?, updated_at = ?
		WHERE name = ? AND status = ?
	`

	res, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		entity.StatusApproved, businessPartnerID, now(), name, entity.StatusPending)
	if err != nil {
		r.logger.Error("Failed to approve supplier", zap.String("supplier", name), zap.Error(err))
		return false, fmt.Errorf("failed to approve supplier: %w", err)
	}

	n, err := affected(res)
	return n > 0, err
}

// ListFinalizable returns PENDING suppliers with a fully APPROVED ledger
func (r *SupplierRepository) ListFinalizable(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT s.name
		FROM suppliers s
		WHERE s.status = ?
		  AND EXISTS (SELECT 1 FROM approval_records a WHERE a.supplier_name = s.name)
		  AND NOT EXISTS (
			SELECT 1 FROM approval_records a
			WHERE a.supplier_name = s.name AND a.status != ?
		  )
		ORDER BY s.updated_at
		LIMIT ?
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query,
		entity.StatusPending, entity.StatusApproved, limit)
	if err != nil {
		r.logger.Error("Failed to list finalizable suppliers", zap.Error(err))
		return nil, fmt.Errorf("failed to list finalizable suppliers: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan supplier name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSupplier(row rowScanner) (*entity.Supplier, error) {
	var s entity.Supplier
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.MainAddress.Street,
		&s.MainAddress.Line2,
		&s.MainAddress.Line3,
		&s.MainAddress.City,
		&s.MainAddress.PostalCode,
		&s.MainAddress.Country,
		&s.MainAddress.Region,
		&s.PrimaryContact.FirstName,
		&s.PrimaryContact.LastName,
		&s.PrimaryContact.Email,
		&s.PrimaryContact.Phone,
		&s.CategoryAndRegion.Category,
		&s.CategoryAndRegion.Region,
		&s.AdditionalInfo.Details,
		&s.Status,
		&s.BusinessPartnerID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
