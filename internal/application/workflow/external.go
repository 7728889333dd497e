package workflow

import (
	"context"
	"strings"

	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	domainwf "github.com/garyjia/vendor-portal/internal/domain/workflow"
)

// ExternalDecision is a status change reported by the workflow engine
// for one of the tasks it created.
type ExternalDecision struct {
	ExternalRef string
	Status      string
	Comment     string
}

// ProcessExternal resolves the ledger row escalated as d.ExternalRef and
// applies the decision to it. Statuses other than approved or rejected
// (pending, canceled, deleted) are ignored and yield a nil result.
func (p *CallbackProcessor) ProcessExternal(ctx context.Context, d ExternalDecision) (*CallbackResult, error) {
	ref := strings.TrimSpace(d.ExternalRef)
	if ref == "" {
		return nil, apperr.Validation("missing instance code")
	}
	if _, _, ok := domainwf.OutcomeTrigger(d.Status); !ok {
		p.logger.Info("Ignoring workflow status", "external_ref", ref, "status", d.Status)
		return nil, nil
	}

	row, err := p.approvals.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperr.NotFound("no approval escalated as %s", ref)
	}

	return p.Process(ctx, &CallbackRequest{
		SupplierName:  row.SupplierName,
		Level:         row.Level,
		Status:        d.Status,
		Comment:       d.Comment,
		ApproverEmail: row.ApproverEmail,
	})
}
