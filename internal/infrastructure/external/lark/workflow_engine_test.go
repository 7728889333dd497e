package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/infrastructure/retry"
)

type stubCreator struct {
	forms    []string
	uuids    []string
	failures int
	err      error
}

func (s *stubCreator) CreateInstance(ctx context.Context, form, uuid string) (string, error) {
	s.forms = append(s.forms, form)
	s.uuids = append(s.uuids, uuid)
	if s.err != nil {
		return "", s.err
	}
	if s.failures > 0 {
		s.failures--
		return "", errors.New("gateway timeout")
	}
	return "INST-" + uuid[:8], nil
}

type stubSender struct {
	emails []string
	texts  []string
	err    error
}

func (s *stubSender) SendText(ctx context.Context, email, text string) (string, error) {
	s.emails = append(s.emails, email)
	s.texts = append(s.texts, text)
	return "msg-1", s.err
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxTries:        3,
		MaxElapsed:      time.Second,
		AttemptTimeout:  time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}
}

func escalationRequest() *port.EscalationRequest {
	return &port.EscalationRequest{
		SupplierName:       "Acme",
		Email:              "contact@acme.test",
		Country:            "US",
		Phone:              "555-0100",
		Status:             "PENDING",
		ApproverName:       "Jane",
		ApproverEmail:      "jane@example.com",
		ApproverLevel:      2,
		PriorComments:      "L1: looks fine",
		AttachmentLink1:    "https://portal.test/a/1",
		AttachmentsZipLink: "https://portal.test/a/archive",
	}
}

func TestWorkflowEngine_SubmitEscalation(t *testing.T) {
	creator := &stubCreator{}
	sender := &stubSender{}
	engine := newWorkflowEngine(creator, sender, testPolicy(), zap.NewNop())

	receipt, err := engine.SubmitEscalation(context.Background(), escalationRequest(), "escalate:Acme:2:v1")
	require.NoError(t, err)
	assert.Equal(t, "INST-"+InstanceUUID("escalate:Acme:2:v1")[:8], receipt.ExternalRef)

	require.Len(t, creator.forms, 1)
	var widgets []formWidget
	require.NoError(t, json.Unmarshal([]byte(creator.forms[0]), &widgets))
	values := map[string]string{}
	for _, w := range widgets {
		values[w.ID] = w.Value
	}
	assert.Equal(t, "Acme", values["supplier_name"])
	assert.Equal(t, "2", values["approver_level"])
	assert.Equal(t, "L1: looks fine", values["prior_comments"])
	assert.Equal(t, "", values["attachment_link_2"])

	require.Len(t, sender.emails, 1)
	assert.Equal(t, "jane@example.com", sender.emails[0])
	assert.Contains(t, sender.texts[0], "Supplier Acme is waiting for your approval (level 2)")
	assert.Contains(t, sender.texts[0], receipt.ExternalRef)
	assert.Contains(t, sender.texts[0], "https://portal.test/a/archive")
}

func TestWorkflowEngine_RetriesWithSameUUID(t *testing.T) {
	creator := &stubCreator{failures: 2}
	engine := newWorkflowEngine(creator, nil, testPolicy(), zap.NewNop())

	_, err := engine.SubmitEscalation(context.Background(), escalationRequest(), "escalate:Acme:2:v1")
	require.NoError(t, err)

	require.Len(t, creator.uuids, 3)
	assert.Equal(t, creator.uuids[0], creator.uuids[1])
	assert.Equal(t, creator.uuids[0], creator.uuids[2])
}

func TestWorkflowEngine_PermanentFailure(t *testing.T) {
	creator := &stubCreator{err: retry.Permanent(errors.New("API error: code=1390001, msg=param is invalid"))}
	sender := &stubSender{}
	engine := newWorkflowEngine(creator, sender, testPolicy(), zap.NewNop())

	_, err := engine.SubmitEscalation(context.Background(), escalationRequest(), "k")
	require.Error(t, err)
	assert.Len(t, creator.forms, 1)
	assert.Empty(t, sender.emails)
}

func TestWorkflowEngine_NotificationFailureIsNotFatal(t *testing.T) {
	creator := &stubCreator{}
	sender := &stubSender{err: errors.New("user not found")}
	engine := newWorkflowEngine(creator, sender, testPolicy(), zap.NewNop())

	receipt, err := engine.SubmitEscalation(context.Background(), escalationRequest(), "k")
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ExternalRef)
	assert.Len(t, sender.emails, 3)
}

func TestInstanceUUID(t *testing.T) {
	a := InstanceUUID("escalate:Acme:1:v1")
	assert.Equal(t, a, InstanceUUID("escalate:Acme:1:v1"))
	assert.NotEqual(t, a, InstanceUUID("escalate:Acme:1:v2"))
	assert.Len(t, a, 36)
}

func TestBuildForm_NilRequest(t *testing.T) {
	_, err := BuildForm(nil)
	assert.Error(t, err)
}
