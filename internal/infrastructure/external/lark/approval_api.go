package lark

import (
	"context"
	"fmt"
	"net/http"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkApproval "github.com/larksuite/oapi-sdk-go/v3/service/approval/v4"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/infrastructure/retry"
)

// codeAlreadySubscribed is returned when the approval code is subscribed.
const codeAlreadySubscribed = 1390007

// ApprovalAPI handles Lark approval-related operations
type ApprovalAPI struct {
	client *SDKClient
	logger *zap.Logger
}

// NewApprovalAPI creates a new approval API handler
func NewApprovalAPI(client *SDKClient, logger *zap.Logger) *ApprovalAPI {
	return &ApprovalAPI{
		client: client,
		logger: logger,
	}
}

// CreateInstance files a new approval instance from form and returns
// its instance code. uuid makes the call idempotent: Lark returns the
// instance already created for the same uuid.
func (a *ApprovalAPI) CreateInstance(ctx context.Context, form, uuid string) (string, error) {
	if a.client.approvalCode == "" {
		return "", retry.Permanent(fmt.Errorf("approval code is not configured"))
	}

	req := larkApproval.NewCreateInstanceReqBuilder().
		InstanceCreate(larkApproval.NewInstanceCreateBuilder().
			ApprovalCode(a.client.approvalCode).
			OpenId(a.client.initiatorOpenID).
			Form(form).
			Uuid(uuid).
			Build()).
		Build()

	resp, err := a.client.client.Approval.Instance.Create(ctx, req)
	if err != nil {
		a.logger.Error("Failed to create approval instance",
			zap.String("uuid", uuid),
			zap.Error(err))
		return "", fmt.Errorf("failed to create instance: %w", err)
	}

	if !resp.Success() {
		a.logger.Error("API returned failure",
			zap.String("uuid", uuid),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return "", apiError(resp.ApiResp, resp.Code, resp.Msg)
	}

	if resp.Data == nil || resp.Data.InstanceCode == nil {
		return "", fmt.Errorf("create instance returned no instance code")
	}
	return *resp.Data.InstanceCode, nil
}

// LatestComment returns the most recent approver comment on an instance,
// or "" when there is none.
func (a *ApprovalAPI) LatestComment(ctx context.Context, instanceCode string) (string, error) {
	req := larkApproval.NewGetInstanceReqBuilder().
		InstanceId(instanceCode).
		Build()

	resp, err := a.client.client.Approval.Instance.Get(ctx, req)
	if err != nil {
		a.logger.Error("Failed to get instance detail",
			zap.String("instance_code", instanceCode),
			zap.Error(err))
		return "", fmt.Errorf("failed to get instance: %w", err)
	}

	if !resp.Success() {
		return "", apiError(resp.ApiResp, resp.Code, resp.Msg)
	}
	if resp.Data == nil {
		return "", nil
	}

	comment := ""
	for _, c := range resp.Data.CommentList {
		if c != nil && c.Comment != nil && *c.Comment != "" {
			comment = *c.Comment
		}
	}
	return comment, nil
}

// SubscribeApprovalEvent subscribes to approval events for the configured
// approval code. Lark only delivers instance events for subscribed codes.
func (a *ApprovalAPI) SubscribeApprovalEvent(ctx context.Context) error {
	approvalCode := a.client.approvalCode
	if approvalCode == "" {
		return fmt.Errorf("approval code cannot be empty")
	}

	req := larkApproval.NewSubscribeApprovalReqBuilder().
		ApprovalCode(approvalCode).
		Build()

	resp, err := a.client.client.Approval.Approval.Subscribe(ctx, req)
	if err != nil {
		a.logger.Error("Failed to subscribe to approval events",
			zap.String("approval_code", approvalCode),
			zap.Error(err))
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	if !resp.Success() {
		if resp.Code == codeAlreadySubscribed {
			a.logger.Info("Approval already subscribed",
				zap.String("approval_code", approvalCode))
			return nil
		}

		a.logger.Error("API returned failure when subscribing",
			zap.String("approval_code", approvalCode),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("subscription failed: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	a.logger.Info("Subscribed to approval events",
		zap.String("approval_code", approvalCode))
	return nil
}

// apiError turns a failed Lark response into an error. Responses
// rejected with a 4xx status (other than rate limiting) are permanent.
func apiError(apiResp *larkcore.ApiResp, code int, msg string) error {
	err := fmt.Errorf("API error: code=%d, msg=%s", code, msg)
	if apiResp != nil && retry.IsClientError(apiResp.StatusCode) {
		return retry.Permanent(err)
	}
	if apiResp != nil && apiResp.StatusCode == http.StatusOK && isParamError(code) {
		return retry.Permanent(err)
	}
	return err
}

// isParamError reports Lark business codes for malformed requests.
func isParamError(code int) bool {
	switch code {
	case 1390001, 1390002, 1390003, 99991400:
		return true
	}
	return false
}
