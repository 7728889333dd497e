package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/infrastructure/retry"
)

type instanceCreator interface {
	CreateInstance(ctx context.Context, form, uuid string) (string, error)
}

type textSender interface {
	SendText(ctx context.Context, email, text string) (string, error)
}

// WorkflowEngine files escalations as Lark approval instances and
// pings the approver by direct message.
type WorkflowEngine struct {
	instances instanceCreator
	messenger textSender
	policy    retry.Policy
	logger    *zap.Logger
}

var _ port.WorkflowEngine = (*WorkflowEngine)(nil)

// NewWorkflowEngine creates the Lark workflow engine adapter.
// notifyApprover enables the direct message after an instance is filed.
func NewWorkflowEngine(client *SDKClient, policy retry.Policy, notifyApprover bool, logger *zap.Logger) *WorkflowEngine {
	var messenger textSender
	if notifyApprover {
		messenger = NewMessenger(client, logger)
	}
	return newWorkflowEngine(NewApprovalAPI(client, logger), messenger, policy, logger)
}

func newWorkflowEngine(instances instanceCreator, messenger textSender, policy retry.Policy, logger *zap.Logger) *WorkflowEngine {
	return &WorkflowEngine{
		instances: instances,
		messenger: messenger,
		policy:    policy,
		logger:    logger,
	}
}

// SubmitEscalation creates the approval instance for req. The instance
// uuid is derived from requestKey, so a retried submission returns the
// instance Lark already created.
func (w *WorkflowEngine) SubmitEscalation(ctx context.Context, req *port.EscalationRequest, requestKey string) (*port.EscalationReceipt, error) {
	form, err := BuildForm(req)
	if err != nil {
		return nil, err
	}
	instanceUUID := InstanceUUID(requestKey)

	code, err := retry.Do(ctx, w.policy, w.logger, "lark create approval instance",
		func(ctx context.Context) (string, error) {
			return w.instances.CreateInstance(ctx, form, instanceUUID)
		})
	if err != nil {
		return nil, err
	}

	w.logger.Info("Approval instance created",
		zap.String("supplier", req.SupplierName),
		zap.Int("level", req.ApproverLevel),
		zap.String("instance_code", code),
		zap.String("request_key", requestKey))

	if w.messenger != nil {
		text := approverMessage(req, code)
		_, err := retry.Do(ctx, w.policy, w.logger, "lark notify approver",
			func(ctx context.Context) (string, error) {
				return w.messenger.SendText(ctx, req.ApproverEmail, text)
			})
		if err != nil {
			// the instance exists and shows up in the approver's inbox anyway
			w.logger.Warn("Failed to notify approver",
				zap.String("supplier", req.SupplierName),
				zap.String("approver", req.ApproverEmail),
				zap.Error(err))
		}
	}

	return &port.EscalationReceipt{ExternalRef: code}, nil
}

// InstanceUUID maps a request key to the stable uuid sent to Lark.
func InstanceUUID(requestKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("vendor-portal:"+requestKey)).String()
}

type formWidget struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// BuildForm renders req as the Lark approval form. Widget ids must
// match the ids of the approval definition.
func BuildForm(req *port.EscalationRequest) (string, error) {
	if req == nil {
		return "", retry.Permanent(fmt.Errorf("escalation request is required"))
	}
	widgets := []formWidget{
		{ID: "supplier_name", Type: "input", Value: req.SupplierName},
		{ID: "supplier_email", Type: "input", Value: req.Email},
		{ID: "country", Type: "input", Value: req.Country},
		{ID: "phone", Type: "input", Value: req.Phone},
		{ID: "status", Type: "input", Value: req.Status},
		{ID: "approver_name", Type: "input", Value: req.ApproverName},
		{ID: "approver_email", Type: "input", Value: req.ApproverEmail},
		{ID: "approver_level", Type: "input", Value: strconv.Itoa(req.ApproverLevel)},
		{ID: "prior_comments", Type: "textarea", Value: req.PriorComments},
		{ID: "attachment_link_1", Type: "input", Value: req.AttachmentLink1},
		{ID: "attachment_link_2", Type: "input", Value: req.AttachmentLink2},
		{ID: "attachments_zip_link", Type: "input", Value: req.AttachmentsZipLink},
	}
	data, err := json.Marshal(widgets)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to marshal form: %w", err))
	}
	return string(data), nil
}

func approverMessage(req *port.EscalationRequest, instanceCode string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Supplier %s is waiting for your approval (level %d).\n", req.SupplierName, req.ApproverLevel)
	fmt.Fprintf(&b, "Approval: %s\n", instanceCode)
	if req.PriorComments != "" {
		fmt.Fprintf(&b, "Earlier comments:\n%s\n", req.PriorComments)
	}
	for _, link := range []string{req.AttachmentLink1, req.AttachmentLink2, req.AttachmentsZipLink} {
		if link != "" {
			fmt.Fprintf(&b, "%s\n", link)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
