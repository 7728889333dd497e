package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
)

const (
	suppliersSheet = "Suppliers"
	approvalsSheet = "Approvals"
	timeLayout     = "2006-01-02 15:04:05"
)

var supplierHeader = []interface{}{
	"Supplier Name", "Status", "Business Partner ID", "Street", "City", "Postal Code",
	"Country", "Region", "Contact First Name", "Contact Last Name", "Contact Email",
	"Contact Phone", "Category", "Category Region", "Additional Details", "Created At", "Updated At",
}

var approvalHeader = []interface{}{
	"Supplier Name", "Level", "Approver Name", "Approver Email", "Status", "Comment",
	"Escalated At", "External Ref", "Updated At",
}

// ExcelExporter writes suppliers and their approval ledgers as an xlsx workbook
type ExcelExporter struct {
	logger *zap.Logger
}

var _ port.SpreadsheetExporter = (*ExcelExporter)(nil)

// NewExcelExporter creates a new exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// Export renders one sheet of suppliers and one of ledger rows into w.
func (e *ExcelExporter) Export(w io.Writer, suppliers []*entity.Supplier, approvals []*entity.ApprovalRecord) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", suppliersSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := file.NewSheet(approvalsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := e.writeRows(file, suppliersSheet, supplierHeader, len(suppliers), func(i int) []interface{} {
		s := suppliers[i]
		return []interface{}{
			s.Name, s.Status, s.BusinessPartnerID, s.MainAddress.Street, s.MainAddress.City,
			s.MainAddress.PostalCode, s.MainAddress.Country, s.MainAddress.Region,
			s.PrimaryContact.FirstName, s.PrimaryContact.LastName, s.PrimaryContact.Email,
			s.PrimaryContact.Phone, s.CategoryAndRegion.Category, s.CategoryAndRegion.Region,
			s.AdditionalInfo.Details, formatTime(&s.CreatedAt), formatTime(&s.UpdatedAt),
		}
	}); err != nil {
		return err
	}

	if err := e.writeRows(file, approvalsSheet, approvalHeader, len(approvals), func(i int) []interface{} {
		a := approvals[i]
		return []interface{}{
			a.SupplierName, a.Level, a.ApproverName, a.ApproverEmail, a.Status, a.Comment,
			formatTime(a.EscalatedAt), a.ExternalRef, formatTime(&a.UpdatedAt),
		}
	}); err != nil {
		return err
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Exported workbook",
		zap.Int("supplier_count", len(suppliers)),
		zap.Int("approval_count", len(approvals)))

	return nil
}

func (e *ExcelExporter) writeRows(file *excelize.File, sheet string, header []interface{}, n int, row func(int) []interface{}) error {
	if err := file.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	for i := 0; i < n; i++ {
		values := row(i)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	if err := file.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		e.logger.Warn("Failed to freeze header row", zap.String("sheet", sheet), zap.Error(err))
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
