package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/pkg/utils"
)

// DefaultGSTConcurrency bounds parallel document scans per request.
const DefaultGSTConcurrency = 4

// GSTService checks GST registration numbers found in supplier documents
type GSTService interface {
	// Scan reads every PDF attachment of the supplier, extracts the GSTIN
	// and replaces the stored results.
	Scan(ctx context.Context, supplierName string) ([]*entity.GSTCheck, error)
	List(ctx context.Context, supplierName string) ([]*entity.GSTCheck, error)
}

type gstServiceImpl struct {
	suppliers   port.SupplierRepository
	attachments port.AttachmentRepository
	checks      port.GSTRepository
	storage     port.FileStorage
	reader      port.DocumentReader
	oracle      port.GSTOracle
	txManager   port.TransactionManager
	concurrency int
	logger      Logger
	now         func() time.Time
}

// NewGSTService creates a new GSTService. oracle may be nil, in which
// case only the regex candidates are validated.
func NewGSTService(
	suppliers port.SupplierRepository,
	attachments port.AttachmentRepository,
	checks port.GSTRepository,
	storage port.FileStorage,
	reader port.DocumentReader,
	oracle port.GSTOracle,
	txManager port.TransactionManager,
	concurrency int,
	logger Logger,
) GSTService {
	if concurrency <= 0 {
		concurrency = DefaultGSTConcurrency
	}
	return &gstServiceImpl{
		suppliers:   suppliers,
		attachments: attachments,
		checks:      checks,
		storage:     storage,
		reader:      reader,
		oracle:      oracle,
		txManager:   txManager,
		concurrency: concurrency,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *gstServiceImpl) requireSupplier(ctx context.Context, name string) error {
	supplier, err := s.suppliers.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if supplier == nil {
		return apperr.NotFound("supplier %q", name)
	}
	return nil
}

func (s *gstServiceImpl) Scan(ctx context.Context, supplierName string) ([]*entity.GSTCheck, error) {
	if err := s.requireSupplier(ctx, supplierName); err != nil {
		return nil, err
	}
	all, err := s.attachments.ListBySupplier(ctx, supplierName)
	if err != nil {
		return nil, err
	}

	var pdfs []*entity.Attachment
	for _, att := range all {
		if isPDF(att) {
			pdfs = append(pdfs, att)
		}
	}
	if len(pdfs) == 0 {
		return nil, apperr.Validation("supplier %q has no PDF attachments to scan", supplierName)
	}

	results := make([]*entity.GSTCheck, len(pdfs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, att := range pdfs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.scanOne(gctx, att)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.checks.ReplaceForSupplier(txCtx, supplierName, results)
	})
	if err != nil {
		s.logger.Error("Failed to store GST results", "supplier", supplierName, "error", err)
		return nil, err
	}

	valid := 0
	for _, r := range results {
		if r.Valid {
			valid++
		}
	}
	s.logger.Info("GST scan completed", "supplier", supplierName, "documents", len(results), "valid", valid)
	return results, nil
}

// scanOne never fails the whole scan; problems are reported on the check.
func (s *gstServiceImpl) scanOne(ctx context.Context, att *entity.Attachment) *entity.GSTCheck {
	check := &entity.GSTCheck{
		SupplierName: att.SupplierName,
		AttachmentID: att.ID,
		FileName:     att.FileName,
		CheckedAt:    s.now(),
	}

	text, err := s.reader.ExtractText(s.storage.GetFullPath(att.StoragePath))
	if err != nil {
		s.logger.Error("Failed to extract document text", "attachment", att.ID, "error", err)
		check.Message = fmt.Sprintf("text extraction failed: %v", err)
		return check
	}

	candidates := utils.GSTINCandidateRegex.FindAllString(strings.ToUpper(text), -1)
	if len(candidates) > 0 {
		check.GSTIN = candidates[0]
	}

	var notes []string
	if s.oracle != nil && strings.TrimSpace(text) != "" {
		extraction, err := s.oracle.ExtractGST(ctx, text)
		switch {
		case err != nil:
			s.logger.Error("GST oracle failed", "attachment", att.ID, "error", err)
			notes = append(notes, "oracle unavailable")
		case extraction != nil:
			check.LegalName = strings.TrimSpace(extraction.LegalName)
			check.StateCode = strings.TrimSpace(extraction.StateCode)
			if check.GSTIN == "" {
				check.GSTIN = utils.NormalizeGSTIN(extraction.GSTIN)
			}
		}
	}

	if check.GSTIN == "" {
		check.Message = joinNotes(append(notes, "no GSTIN found"))
		return check
	}
	if check.StateCode == "" {
		check.StateCode = utils.GSTINStateCode(check.GSTIN)
	}
	if err := utils.ValidateGSTIN(check.GSTIN); err != nil {
		check.Message = joinNotes(append(notes, err.Error()))
		return check
	}

	check.Valid = true
	check.Message = joinNotes(notes)
	return check
}

func joinNotes(notes []string) string {
	return strings.Join(notes, "; ")
}

func isPDF(att *entity.Attachment) bool {
	if entity.MimeLabel(att.MimeType) == "PDF" {
		return true
	}
	return strings.EqualFold(filepath.Ext(att.FileName), ".pdf")
}

func (s *gstServiceImpl) List(ctx context.Context, supplierName string) ([]*entity.GSTCheck, error) {
	if err := s.requireSupplier(ctx, supplierName); err != nil {
		return nil, err
	}
	checks, err := s.checks.ListBySupplier(ctx, supplierName)
	if err != nil {
		return nil, err
	}
	if checks == nil {
		checks = []*entity.GSTCheck{}
	}
	return checks, nil
}
