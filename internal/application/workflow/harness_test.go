package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/vendor-portal/internal/application/dispatcher"
	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/repository"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/vendor-portal/pkg/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeWorkflowEngine struct {
	mu       sync.Mutex
	requests []*port.EscalationRequest
	keys     []string
	failures int
}

func (f *fakeWorkflowEngine) SubmitEscalation(ctx context.Context, req *port.EscalationRequest, requestKey string) (*port.EscalationReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("workflow engine unavailable")
	}
	f.requests = append(f.requests, req)
	f.keys = append(f.keys, requestKey)
	return &port.EscalationReceipt{ExternalRef: fmt.Sprintf("INST-%s-%d-%d", req.SupplierName, req.ApproverLevel, len(f.requests))}, nil
}

func (f *fakeWorkflowEngine) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

// levels returns the approver level of every accepted submission.
func (f *fakeWorkflowEngine) levels() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.ApproverLevel)
	}
	return out
}

type fakePartners struct {
	mu    sync.Mutex
	calls int
	err   error
	byKey map[string]string
}

func (f *fakePartners) CreateBusinessPartner(ctx context.Context, req *port.BusinessPartnerRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.byKey == nil {
		f.byKey = make(map[string]string)
	}
	if id, ok := f.byKey[req.RequestKey]; ok {
		return id, nil
	}
	id := fmt.Sprintf("BP-%04d", len(f.byKey)+1)
	f.byKey[req.RequestKey] = id
	return id, nil
}

func (f *fakePartners) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticLinks struct{}

func (staticLinks) AttachmentLink(supplierName, attachmentID string) string {
	return "https://portal.test/suppliers/" + supplierName + "/attachments/" + attachmentID
}

func (staticLinks) ArchiveLink(supplierName string) string {
	return "https://portal.test/suppliers/" + supplierName + "/attachments/archive"
}

type harness struct {
	engine      *Engine
	clock       *fakeClock
	wf          *fakeWorkflowEngine
	bp          *fakePartners
	suppliers   port.SupplierRepository
	approvals   port.ApprovalRepository
	attachments port.AttachmentRepository
	history     port.HistoryRepository
	outbox      port.OutboxRepository
}

func newHarness(t *testing.T, d dispatcher.Dispatcher, opts ...Option) *harness {
	t.Helper()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "engine.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunEmbedded())

	logger := zap.NewNop()
	h := &harness{
		clock:       &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		wf:          &fakeWorkflowEngine{},
		bp:          &fakePartners{},
		suppliers:   repository.NewSupplierRepository(db.DB, logger),
		approvals:   repository.NewApprovalRepository(db.DB, logger),
		attachments: repository.NewAttachmentRepository(db.DB, logger),
		history:     repository.NewHistoryRepository(db.DB, logger),
		outbox:      repository.NewOutboxRepository(db.DB, logger),
	}

	opts = append([]Option{WithClock(h.clock.Now), WithDebounce(5 * time.Second)}, opts...)
	h.engine, err = NewEngine(Dependencies{
		Suppliers:   h.suppliers,
		Approvals:   h.approvals,
		Attachments: h.attachments,
		History:     h.history,
		Outbox:      h.outbox,
		TxManager:   sqlite.NewDB(db.DB, logger),
		Engine:      h.wf,
		Partners:    h.bp,
		Links:       staticLinks{},
		Dispatcher:  d,
		Logger:      nopLogger{},
	}, opts...)
	require.NoError(t, err)
	return h
}

// seed creates a PENDING supplier with one ledger row per level.
func (h *harness) seed(t *testing.T, name, country string, levels int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.suppliers.Create(ctx, &entity.Supplier{
		Name:           name,
		MainAddress:    entity.Address{City: "Springfield", Country: country},
		PrimaryContact: entity.Contact{Email: "contact@" + name + ".test", Phone: "555-0100"},
	}))
	var recs []*entity.ApprovalRecord
	for l := 1; l <= levels; l++ {
		recs = append(recs, &entity.ApprovalRecord{
			SupplierName:  name,
			Level:         l,
			ApproverName:  fmt.Sprintf("Approver %d", l),
			ApproverEmail: approverEmail(l),
		})
	}
	require.NoError(t, h.approvals.CreateBatch(ctx, recs))
}

func (h *harness) attach(t *testing.T, supplier string, files ...string) {
	t.Helper()
	for _, f := range files {
		require.NoError(t, h.attachments.Create(context.Background(), &entity.Attachment{
			SupplierName: supplier,
			FileName:     f,
			MimeType:     "application/pdf",
			StoragePath:  supplier + "/" + f,
		}))
	}
}

func (h *harness) ledger(t *testing.T, supplier string) []*entity.ApprovalRecord {
	t.Helper()
	recs, err := h.approvals.ListBySupplier(context.Background(), supplier)
	require.NoError(t, err)
	return recs
}

func (h *harness) supplier(t *testing.T, name string) *entity.Supplier {
	t.Helper()
	s, err := h.suppliers.GetByName(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func (h *harness) callback(t *testing.T, supplier string, level int, status, comment string) (*CallbackResult, error) {
	t.Helper()
	return h.engine.Callbacks.Process(context.Background(), &CallbackRequest{
		SupplierName:  supplier,
		Level:         level,
		Status:        status,
		Comment:       comment,
		ApproverEmail: approverEmail(level),
	})
}

func approverEmail(level int) string {
	return fmt.Sprintf("approver%d@example.com", level)
}

func activeCount(recs []*entity.ApprovalRecord) int {
	n := 0
	for _, r := range recs {
		if r.IsActive() {
			n++
		}
	}
	return n
}

type ledgerSnapshot struct {
	Level   int
	Status  string
	Comment string
	Version int64
}

func snapshot(recs []*entity.ApprovalRecord) []ledgerSnapshot {
	out := make([]ledgerSnapshot, 0, len(recs))
	for _, r := range recs {
		out = append(out, ledgerSnapshot{Level: r.Level, Status: r.Status, Comment: r.Comment, Version: r.Version})
	}
	return out
}
