package service

import (
	"context"
	"fmt"
	"io"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
)

// ExportService renders the supplier register for download
type ExportService interface {
	Export(ctx context.Context, w io.Writer) error
}

type exportServiceImpl struct {
	suppliers port.SupplierRepository
	approvals port.ApprovalRepository
	exporter  port.SpreadsheetExporter
	logger    Logger
}

// NewExportService creates a new ExportService
func NewExportService(
	suppliers port.SupplierRepository,
	approvals port.ApprovalRepository,
	exporter port.SpreadsheetExporter,
	logger Logger,
) ExportService {
	return &exportServiceImpl{
		suppliers: suppliers,
		approvals: approvals,
		exporter:  exporter,
		logger:    logger,
	}
}

func (s *exportServiceImpl) Export(ctx context.Context, w io.Writer) error {
	suppliers, err := s.suppliers.List(ctx, entity.SupplierFilter{})
	if err != nil {
		return fmt.Errorf("failed to list suppliers: %w", err)
	}
	approvals, err := s.approvals.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}
	if err := s.exporter.Export(w, suppliers, approvals); err != nil {
		s.logger.Error("Failed to export suppliers", "error", err)
		return err
	}
	s.logger.Info("Suppliers exported", "suppliers", len(suppliers), "approvals", len(approvals))
	return nil
}
