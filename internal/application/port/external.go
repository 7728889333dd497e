package port

import (
	"context"
	"io"

	"github.com/garyjia/vendor-portal/internal/domain/entity"
)

// EscalationRequest is the context handed to the workflow engine for one
// approver level.
type EscalationRequest struct {
	SupplierName       string `json:"supplierName"`
	Email              string `json:"email"`
	Country            string `json:"country"`
	Phone              string `json:"phone"`
	Status             string `json:"status"`
	ApproverName       string `json:"approverName"`
	ApproverEmail      string `json:"approverEmail"`
	ApproverLevel      int    `json:"approverLevel"`
	PriorComments      string `json:"priorComments"`
	AttachmentLink1    string `json:"attachmentLink1"`
	AttachmentLink2    string `json:"attachmentLink2"`
	AttachmentsZipLink string `json:"attachmentsZipLink"`
}

// EscalationReceipt identifies the task created by the workflow engine.
type EscalationReceipt struct {
	ExternalRef string
}

// WorkflowEngine presents an approval task to a human approver.
// requestKey is stable per (supplier, level) so the engine can drop
// duplicate submissions.
type WorkflowEngine interface {
	SubmitEscalation(ctx context.Context, req *EscalationRequest, requestKey string) (*EscalationReceipt, error)
}

// BusinessPartnerRequest is the finalization call to the ERP.
type BusinessPartnerRequest struct {
	SupplierName string
	Category     string
	Grouping     string
	RequestKey   string
}

// BusinessPartnerClient creates partners in the downstream ERP.
// Implementations must return the existing partner for a RequestKey
// seen before.
type BusinessPartnerClient interface {
	CreateBusinessPartner(ctx context.Context, req *BusinessPartnerRequest) (string, error)
}

// GSTExtraction is what the oracle found in one document.
type GSTExtraction struct {
	GSTIN     string `json:"gstin"`
	LegalName string `json:"legal_name"`
	StateCode string `json:"state_code"`
}

// GSTOracle extracts registration details from document text.
type GSTOracle interface {
	ExtractGST(ctx context.Context, documentText string) (*GSTExtraction, error)
}

// DocumentReader pulls plain text out of a stored document.
type DocumentReader interface {
	ExtractText(path string) (string, error)
}

// SpreadsheetExporter renders suppliers and their ledgers.
type SpreadsheetExporter interface {
	Export(w io.Writer, suppliers []*entity.Supplier, approvals []*entity.ApprovalRecord) error
}
