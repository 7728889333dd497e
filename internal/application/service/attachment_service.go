package service

import (
	"archive/zip"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/garyjia/vendor-portal/internal/application/dispatcher"
	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/domain/event"
	"github.com/garyjia/vendor-portal/pkg/utils"
)

// UploadFile is one file of a multipart upload.
type UploadFile struct {
	FileName string
	MimeType string
	Reader   io.Reader
}

// AttachmentService stores and serves supplier documents
type AttachmentService interface {
	// Upload stores files and, in the same transaction as their metadata,
	// emits attachments.uploaded so the first escalation gets scheduled.
	Upload(ctx context.Context, supplierName string, files []UploadFile) ([]*entity.Attachment, error)
	List(ctx context.Context, supplierName string) ([]*entity.Attachment, error)
	Open(ctx context.Context, supplierName, attachmentID string) (*entity.Attachment, io.ReadCloser, error)
	// WriteArchive streams every attachment of the supplier as a zip.
	WriteArchive(ctx context.Context, supplierName string, w io.Writer) error
	Contents(ctx context.Context, supplierName string) ([]entity.AttachmentContent, error)
}

type attachmentServiceImpl struct {
	suppliers   port.SupplierRepository
	attachments port.AttachmentRepository
	storage     port.FileStorage
	txManager   port.TransactionManager
	dispatcher  dispatcher.Dispatcher
	logger      Logger
}

// NewAttachmentService creates a new AttachmentService
func NewAttachmentService(
	suppliers port.SupplierRepository,
	attachments port.AttachmentRepository,
	storage port.FileStorage,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) AttachmentService {
	return &attachmentServiceImpl{
		suppliers:   suppliers,
		attachments: attachments,
		storage:     storage,
		txManager:   txManager,
		dispatcher:  d,
		logger:      logger,
	}
}

func (s *attachmentServiceImpl) requireSupplier(ctx context.Context, name string) error {
	supplier, err := s.suppliers.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if supplier == nil {
		return apperr.NotFound("supplier %q", name)
	}
	return nil
}

func (s *attachmentServiceImpl) Upload(ctx context.Context, supplierName string, files []UploadFile) ([]*entity.Attachment, error) {
	if len(files) == 0 {
		return nil, apperr.Validation("No file uploaded")
	}
	if err := s.requireSupplier(ctx, supplierName); err != nil {
		return nil, err
	}

	saved := make([]*entity.Attachment, 0, len(files))
	cleanup := func() {
		for _, att := range saved {
			if err := s.storage.Delete(ctx, att.StoragePath); err != nil {
				s.logger.Error("Failed to remove orphaned upload", "path", att.StoragePath, "error", err)
			}
		}
	}

	for _, f := range files {
		name := utils.SanitizeFileName(f.FileName)
		if name == "" {
			cleanup()
			return nil, apperr.Validation("invalid file name %q", f.FileName)
		}
		path, size, err := s.storage.Save(ctx, supplierName, name, f.Reader)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to store %s: %w", name, err)
		}
		saved = append(saved, &entity.Attachment{
			SupplierName: supplierName,
			FileName:     name,
			MimeType:     detectMimeType(name, f.MimeType),
			Size:         size,
			StoragePath:  path,
		})
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, att := range saved {
			if err := s.attachments.Create(txCtx, att); err != nil {
				return err
			}
		}
		if s.dispatcher == nil {
			return nil
		}
		return s.dispatcher.Dispatch(txCtx, event.NewEvent(event.TypeAttachmentsUploaded, supplierName, 0, map[string]interface{}{
			"count": len(saved),
		}))
	})
	if err != nil {
		cleanup()
		s.logger.Error("Failed to record upload", "supplier", supplierName, "error", err)
		return nil, err
	}

	s.logger.Info("Attachments uploaded", "supplier", supplierName, "count", len(saved))
	return saved, nil
}

func detectMimeType(fileName, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); byExt != "" {
		return byExt
	}
	if declared != "" {
		return declared
	}
	return "application/octet-stream"
}

func (s *attachmentServiceImpl) List(ctx context.Context, supplierName string) ([]*entity.Attachment, error) {
	if err := s.requireSupplier(ctx, supplierName); err != nil {
		return nil, err
	}
	list, err := s.attachments.ListBySupplier(ctx, supplierName)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*entity.Attachment{}
	}
	return list, nil
}

func (s *attachmentServiceImpl) Open(ctx context.Context, supplierName, attachmentID string) (*entity.Attachment, io.ReadCloser, error) {
	att, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	if att == nil || att.SupplierName != supplierName {
		return nil, nil, apperr.NotFound("attachment %s of supplier %q", attachmentID, supplierName)
	}
	rc, err := s.storage.Open(ctx, att.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	return att, rc, nil
}

func (s *attachmentServiceImpl) nonEmptyList(ctx context.Context, supplierName string) ([]*entity.Attachment, error) {
	list, err := s.List(ctx, supplierName)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperr.NotFound("No files found for supplier")
	}
	return list, nil
}

func (s *attachmentServiceImpl) WriteArchive(ctx context.Context, supplierName string, w io.Writer) error {
	list, err := s.nonEmptyList(ctx, supplierName)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	used := make(map[string]int, len(list))
	for _, att := range list {
		name := att.FileName
		if n := used[name]; n > 0 {
			ext := filepath.Ext(name)
			name = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
		}
		used[att.FileName]++

		if err := s.addToArchive(ctx, zw, name, att); err != nil {
			return err
		}
	}
	return zw.Close()
}

func (s *attachmentServiceImpl) addToArchive(ctx context.Context, zw *zip.Writer, name string, att *entity.Attachment) error {
	rc, err := s.storage.Open(ctx, att.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", att.FileName, err)
	}
	defer rc.Close()

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: att.UploadedAt,
	})
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, rc); err != nil {
		return fmt.Errorf("failed to archive %s: %w", att.FileName, err)
	}
	return nil
}

func (s *attachmentServiceImpl) Contents(ctx context.Context, supplierName string) ([]entity.AttachmentContent, error) {
	list, err := s.nonEmptyList(ctx, supplierName)
	if err != nil {
		return nil, err
	}

	out := make([]entity.AttachmentContent, 0, len(list))
	for _, att := range list {
		data, err := s.storage.Read(ctx, att.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", att.FileName, err)
		}
		out = append(out, entity.AttachmentContent{
			FileName: att.FileName,
			MimeType: att.MimeType,
			Content:  base64.StdEncoding.EncodeToString(data),
		})
	}
	return out, nil
}
