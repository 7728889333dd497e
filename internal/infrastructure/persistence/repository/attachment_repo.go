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

// AttachmentRepository implements port.AttachmentRepository
type AttachmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *sql.DB, logger *zap.Logger) port.AttachmentRepository {
	return &AttachmentRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores attachment metadata. An empty ID is filled with a UUID.
func (r *AttachmentRepository) Create(ctx context.Context, att *entity.Attachment) error {
	query := `
		INSERT INTO attachments (
			id, supplier_name, file_name, mime_type, size, storage_path, uploaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.UploadedAt.IsZero() {
		att.UploadedAt = now()
	}

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		att.ID,
		att.SupplierName,
		att.FileName,
		att.MimeType,
		att.Size,
		att.StoragePath,
		att.UploadedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create attachment",
			zap.String("supplier", att.SupplierName),
			zap.String("file_name", att.FileName),
			zap.Error(err))
		return fmt.Errorf("failed to create attachment: %w", err)
	}

	r.logger.Debug("Attachment created",
		zap.String("attachment_id", att.ID),
		zap.String("supplier", att.SupplierName))
	return nil
}

// GetByID retrieves attachment metadata by ID
func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*entity.Attachment, error) {
	query := `
		SELECT id, supplier_name, file_name, mime_type, size, storage_path, uploaded_at
		FROM attachments
		WHERE id = ?
	`

	var att entity.Attachment
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&att.ID,
		&att.SupplierName,
		&att.FileName,
		&att.MimeType,
		&att.Size,
		&att.StoragePath,
		&att.UploadedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get attachment", zap.String("attachment_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &att, nil
}

// ListBySupplier returns the supplier's attachments in upload order
func (r *AttachmentRepository) ListBySupplier(ctx context.Context, supplierName string) ([]*entity.Attachment, error) {
	query := `
		SELECT id, supplier_name, file_name, mime_type, size, storage_path, uploaded_at
		FROM attachments
		WHERE supplier_name = ?
		ORDER BY uploaded_at ASC, rowid ASC
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, supplierName)
	if err != nil {
		r.logger.Error("Failed to list attachments", zap.String("supplier", supplierName), zap.Error(err))
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*entity.Attachment
	for rows.Next() {
		var att entity.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.SupplierName,
			&att.FileName,
			&att.MimeType,
			&att.Size,
			&att.StoragePath,
			&att.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, &att)
	}
	return attachments, rows.Err()
}
