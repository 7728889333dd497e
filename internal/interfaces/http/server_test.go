package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/vendor-portal/internal/application/service"
	"github.com/garyjia/vendor-portal/internal/application/workflow"
	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeSuppliers struct {
	created *entity.Supplier
	filter  entity.SupplierFilter
	err     error
}

func (f *fakeSuppliers) Create(ctx context.Context, s *entity.Supplier) (*entity.Supplier, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := *s
	out.Status = entity.StatusPending
	f.created = &out
	return &out, nil
}

func (f *fakeSuppliers) Get(ctx context.Context, name string) (*entity.Supplier, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &entity.Supplier{Name: name, Status: entity.StatusPending}, nil
}

func (f *fakeSuppliers) List(ctx context.Context, filter entity.SupplierFilter) ([]*entity.Supplier, error) {
	f.filter = filter
	return []*entity.Supplier{{Name: "Acme"}}, f.err
}

func (f *fakeSuppliers) Approvals(ctx context.Context, name string) ([]entity.ApprovalView, error) {
	return []entity.ApprovalView{{Level: 1, Status: entity.StatusApproved}, {Level: 2, Status: entity.StatusPending}}, f.err
}

func (f *fakeSuppliers) History(ctx context.Context, name string) ([]*entity.ApprovalHistory, error) {
	return nil, f.err
}

type fakeDirectory struct {
	country string
	err     error
}

func (f *fakeDirectory) List(ctx context.Context, country string) ([]*entity.Approver, error) {
	f.country = country
	return []*entity.Approver{}, nil
}

func (f *fakeDirectory) Add(ctx context.Context, a *entity.Approver) (*entity.Approver, error) {
	if f.err != nil {
		return nil, f.err
	}
	return a, nil
}

type fakeAttachments struct {
	uploaded []service.UploadFile
	bodies   []string
	list     []*entity.Attachment
	err      error
}

func (f *fakeAttachments) Upload(ctx context.Context, name string, files []service.UploadFile) ([]*entity.Attachment, error) {
	f.uploaded = files
	var out []*entity.Attachment
	for i, file := range files {
		b, _ := io.ReadAll(file.Reader)
		f.bodies = append(f.bodies, string(b))
		out = append(out, &entity.Attachment{ID: string(rune('a' + i)), SupplierName: name, FileName: file.FileName, MimeType: "application/pdf"})
	}
	return out, f.err
}

func (f *fakeAttachments) List(ctx context.Context, name string) ([]*entity.Attachment, error) {
	return f.list, f.err
}

func (f *fakeAttachments) Open(ctx context.Context, name, id string) (*entity.Attachment, io.ReadCloser, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	body := "%PDF-1.4 test"
	return &entity.Attachment{ID: id, FileName: "gst cert.pdf", MimeType: "application/pdf", Size: int64(len(body))},
		io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeAttachments) WriteArchive(ctx context.Context, name string, w io.Writer) error {
	_, err := w.Write([]byte("PK-zip"))
	return err
}

func (f *fakeAttachments) Contents(ctx context.Context, name string) ([]entity.AttachmentContent, error) {
	return []entity.AttachmentContent{{FileName: "a.pdf", MimeType: "application/pdf", Content: "JVBERg=="}}, f.err
}

type fakeGST struct{ scanned string }

func (f *fakeGST) Scan(ctx context.Context, name string) ([]*entity.GSTCheck, error) {
	f.scanned = name
	return []*entity.GSTCheck{{SupplierName: name, GSTIN: "27AAPFU0939F1ZV", Valid: true}}, nil
}

func (f *fakeGST) List(ctx context.Context, name string) ([]*entity.GSTCheck, error) {
	return []*entity.GSTCheck{}, nil
}

type fakeExport struct{ err error }

func (f *fakeExport) Export(ctx context.Context, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("xlsx-bytes"))
	return err
}

type fakeEscalator struct{ resent, escalated bool }

func (f *fakeEscalator) Escalate(ctx context.Context, name string) (*workflow.EscalationResult, error) {
	f.escalated = true
	return &workflow.EscalationResult{SupplierName: name, Skipped: true, Reason: "already escalated"}, nil
}

func (f *fakeEscalator) Resend(ctx context.Context, name string) (*workflow.EscalationResult, error) {
	f.resent = true
	return &workflow.EscalationResult{SupplierName: name, Level: 1, ExternalRef: "INST-1"}, nil
}

type fakeCallbacks struct {
	req *workflow.CallbackRequest
	err error
}

func (f *fakeCallbacks) Process(ctx context.Context, req *workflow.CallbackRequest) (*workflow.CallbackResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.CallbackResult{SupplierName: req.SupplierName, Level: req.Level, Action: workflow.ActionAdvanced, NextLevel: req.Level + 1}, nil
}

type fakeHealth struct{ healthy bool }

func (f fakeHealth) Health(ctx context.Context) (bool, interface{}) {
	return f.healthy, map[string]string{"database": "ok"}
}

type fixture struct {
	suppliers   *fakeSuppliers
	directory   *fakeDirectory
	attachments *fakeAttachments
	gst         *fakeGST
	export      *fakeExport
	escalator   *fakeEscalator
	callbacks   *fakeCallbacks
	router      *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{
		suppliers:   &fakeSuppliers{},
		directory:   &fakeDirectory{},
		attachments: &fakeAttachments{},
		gst:         &fakeGST{},
		export:      &fakeExport{},
		escalator:   &fakeEscalator{},
		callbacks:   &fakeCallbacks{},
	}
	srv := NewServer(DefaultServerConfig(), Services{
		Suppliers:   f.suppliers,
		Directory:   f.directory,
		Attachments: f.attachments,
		GST:         f.gst,
		Export:      f.export,
		Escalator:   f.escalator,
		Callbacks:   f.callbacks,
		Health:      fakeHealth{healthy: true},
		Webhook:     func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "hook"}) },
	}, nopLogger{})
	f.router = srv.Router()
	return f
}

func (f *fixture) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) doJSON(method, path, body string) *httptest.ResponseRecorder {
	return f.do(method, path, strings.NewReader(body), "application/json")
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)

	srv := NewServer(DefaultServerConfig(), Services{Health: fakeHealth{healthy: false}}, nopLogger{})
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy")
}

func TestCreateSupplier(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(http.MethodPost, "/api/suppliers", `{"supplierName":"Acme","mainAddress":{"country":"US","city":"Austin"}}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, f.suppliers.created)
	assert.Equal(t, "Acme", f.suppliers.created.Name)
	assert.Equal(t, "Austin", f.suppliers.created.MainAddress.City)

	w = f.doJSON(http.MethodPost, "/api/suppliers", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", decode(t, w).Error)

	f.suppliers.err = apperr.Validation("Supplier 'Acme' already exists")
	w = f.doJSON(http.MethodPost, "/api/suppliers", `{"supplierName":"Acme"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp = decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "Supplier 'Acme' already exists", resp.Error)
}

func TestListSuppliers(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/suppliers?name=ac&city=aus&status=pending&limit=5&offset=10", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.SupplierFilter{Name: "ac", City: "aus", Status: "PENDING", Limit: 5, Offset: 10}, f.suppliers.filter)

	w = f.do(http.MethodGet, "/api/suppliers?limit=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/suppliers?limit=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSupplierAndLedger(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/suppliers/Acme", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"supplierName":"Acme"`)

	w = f.do(http.MethodGet, "/api/suppliers/Acme/approvals", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []entity.ApprovalView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, 1, body.Data[0].Level)

	f.suppliers.err = apperr.NotFound("supplier %q", "Nope")
	w = f.do(http.MethodGet, "/api/suppliers/Nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, `supplier "Nope"`, decode(t, w).Error)
}

func TestExportRouteTakesPrecedence(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/suppliers/export", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.Equal(t, "xlsx-bytes", w.Body.String())

	f.export.err = errors.New("disk full")
	w = f.do(http.MethodGet, "/api/suppliers/export", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w).Error)
}

func TestEscalate(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/suppliers/Acme/escalate", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.escalator.escalated)
	assert.False(t, f.escalator.resent)

	w = f.do(http.MethodPost, "/api/suppliers/Acme/escalate?resend=true", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.escalator.resent)
	assert.Contains(t, w.Body.String(), "INST-1")
}

func TestApprovalCallback(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "advanced", body: `{"supplierName":"Acme","level":1,"status":"Approved","approverEmail":"a@x.com"}`, wantStatus: http.StatusOK},
		{name: "malformed", body: `{"supplierName":"Acme"`, wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
		{name: "level type", body: `{"supplierName":"Acme","level":"one"}`, wantStatus: http.StatusBadRequest, wantError: "invalid value for field level"},
		{name: "missing level", body: `{"supplierName":"Acme","status":"Approved","approverEmail":"a@x.com"}`, err: apperr.Validation("missing required fields: level"), wantStatus: http.StatusBadRequest, wantError: "missing required fields: level"},
		{name: "unknown level", body: `{"supplierName":"Acme","level":99,"status":"Approved","approverEmail":"a@x.com"}`, err: apperr.NotFound("no approval record for level 99"), wantStatus: http.StatusNotFound},
		{name: "conflict", body: `{"supplierName":"Acme","level":1,"status":"Approved","approverEmail":"a@x.com"}`, err: apperr.Conflict("ledger row Acme/1 was modified concurrently"), wantStatus: http.StatusConflict, wantError: "ledger row Acme/1 was modified concurrently"},
		{name: "stale", body: `{"supplierName":"Acme","level":1,"status":"Rejected","approverEmail":"a@x.com"}`, err: apperr.Stale("level 1 already APPROVED"), wantStatus: http.StatusConflict, wantError: "level 1 already APPROVED"},
		{name: "downstream", body: `{"supplierName":"Acme","level":2,"status":"Approved","approverEmail":"a@x.com"}`, err: apperr.Integration("create business partner", errors.New("timeout")), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.callbacks.err = tt.err

			w := f.doJSON(http.MethodPost, "/api/approvals/callback", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			assert.Equal(t, tt.wantStatus == http.StatusOK, resp.Success)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
			if tt.wantStatus == http.StatusConflict {
				want := "1"
				if errors.Is(tt.err, apperr.ErrStale) {
					want = ""
				}
				assert.Equal(t, want, w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestApprovalCallback_PassesRequest(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(http.MethodPost, "/api/approvals/callback", `{"supplierName":"Acme","level":2,"status":"Rejected","comment":"bad docs","approverEmail":"b@x.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, &workflow.CallbackRequest{SupplierName: "Acme", Level: 2, Status: "Rejected", Comment: "bad docs", ApproverEmail: "b@x.com"}, f.callbacks.req)
	assert.Contains(t, w.Body.String(), `"action":"ADVANCED"`)
}

func TestApprovers(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/approvers?country=IN", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IN", f.directory.country)

	w = f.doJSON(http.MethodPost, "/api/approvers", `{"level":1,"country":"US","name":"Ann","email":"ann@x.com"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	f.directory.err = apperr.Conflict("Approver already exists for Level 1 and Country US")
	w = f.doJSON(http.MethodPost, "/api/approvers", `{"level":1,"country":"US","name":"Ann","email":"ann@x.com"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Approver already exists for Level 1 and Country US", decode(t, w).Error)
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadAttachments(t *testing.T) {
	f := newFixture(t)

	body, ct := multipartBody(t, "file", map[string]string{"a.pdf": "one", "b.pdf": "two"})
	w := f.do(http.MethodPost, "/api/suppliers/Acme/attachments", body, ct)
	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, f.attachments.uploaded, 2)
	assert.ElementsMatch(t, []string{"one", "two"}, f.attachments.bodies)
	assert.Contains(t, w.Body.String(), `"type":"PDF"`)

	body, ct = multipartBody(t, "other", map[string]string{"a.pdf": "one"})
	w = f.do(http.MethodPost, "/api/suppliers/Acme/attachments", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No file uploaded", decode(t, w).Error)

	w = f.doJSON(http.MethodPost, "/api/suppliers/Acme/attachments", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadAttachment(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/suppliers/Acme/attachments/att-1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="gst cert.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4 test", w.Body.String())

	f.attachments.err = apperr.NotFound("attachment %q", "att-2")
	w = f.do(http.MethodGet, "/api/suppliers/Acme/attachments/att-2", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadArchive(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/suppliers/Acme/attachments/archive", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No files found for supplier", decode(t, w).Error)

	f.attachments.list = []*entity.Attachment{{ID: "1", FileName: "a.pdf"}}
	w = f.do(http.MethodGet, "/api/suppliers/Acme/attachments/archive", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, "PK-zip", w.Body.String())
}

func TestAttachmentContentsAndGST(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/suppliers/Acme/attachments/content", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"JVBERg=="`)

	w = f.do(http.MethodPost, "/api/suppliers/Acme/gst/scan", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Acme", f.gst.scanned)
	assert.Contains(t, w.Body.String(), "27AAPFU0939F1ZV")

	w = f.do(http.MethodGet, "/api/suppliers/Acme/gst", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookRouteAndCORS(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/webhook/lark", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hook")

	w = f.do(http.MethodOptions, "/api/suppliers", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
