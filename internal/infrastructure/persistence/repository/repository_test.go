package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/vendor-portal/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "repo.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunEmbedded())
	return db
}

func seedSupplier(t *testing.T, repo port.SupplierRepository, name, city string) *entity.Supplier {
	t.Helper()
	s := &entity.Supplier{
		Name:        name,
		MainAddress: entity.Address{City: city, Country: "IN"},
	}
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}

func seedLedger(t *testing.T, repo port.ApprovalRepository, supplier string, levels int) []*entity.ApprovalRecord {
	t.Helper()
	var recs []*entity.ApprovalRecord
	for l := 1; l <= levels; l++ {
		recs = append(recs, &entity.ApprovalRecord{
			SupplierName:  supplier,
			Level:         l,
			ApproverName:  "Approver",
			ApproverEmail: "l" + string(rune('0'+l)) + "@example.com",
		})
	}
	require.NoError(t, repo.CreateBatch(context.Background(), recs))
	return recs
}

func TestSupplierRepository_CreateAndGet(t *testing.T) {
	db := openDB(t)
	repo := NewSupplierRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	s := seedSupplier(t, repo, "Acme", "Pune")
	assert.NotZero(t, s.ID)
	assert.Equal(t, entity.StatusPending, s.Status)

	got, err := repo.GetByName(ctx, "Acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Pune", got.MainAddress.City)
	assert.Equal(t, "IN", got.MainAddress.Country)

	missing, err := repo.GetByName(ctx, "Nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.Create(ctx, &entity.Supplier{Name: "Acme", MainAddress: entity.Address{Country: "IN"}})
	assert.ErrorIs(t, err, port.ErrDuplicate)
}

func TestSupplierRepository_ListFilters(t *testing.T) {
	db := openDB(t)
	repo := NewSupplierRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	seedSupplier(t, repo, "Acme Steel", "Pune")
	seedSupplier(t, repo, "Bolt Works", "Mumbai")
	seedSupplier(t, repo, "acme paper", "Delhi")

	got, err := repo.List(ctx, entity.SupplierFilter{Name: "ACME"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.List(ctx, entity.SupplierFilter{City: "mum"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bolt Works", got[0].Name)

	got, err = repo.List(ctx, entity.SupplierFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	ok, err := repo.Reject(ctx, "Bolt Works")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = repo.List(ctx, entity.SupplierFilter{Status: entity.StatusRejected})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bolt Works", got[0].Name)
}

func TestSupplierRepository_StatusTransitionsAreCompareAndSet(t *testing.T) {
	db := openDB(t)
	repo := NewSupplierRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	seedSupplier(t, repo, "Acme", "Pune")

	ok, err := repo.MarkApproved(ctx, "Acme", "BP-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkApproved(ctx, "Acme", "BP-2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Reject(ctx, "Acme")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByName(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, got.Status)
	assert.Equal(t, "BP-1", got.BusinessPartnerID)
}

func TestSupplierRepository_ListFinalizable(t *testing.T) {
	db := openDB(t)
	suppliers := NewSupplierRepository(db.DB, zap.NewNop())
	approvals := NewApprovalRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	seedSupplier(t, suppliers, "Done", "Pune")
	seedSupplier(t, suppliers, "Open", "Pune")
	seedSupplier(t, suppliers, "Empty", "Pune")

	for _, rec := range seedLedger(t, approvals, "Done", 2) {
		rec.Status = entity.StatusApproved
		ok, err := approvals.UpdateDecision(ctx, rec, rec.Version)
		require.NoError(t, err)
		require.True(t, ok)
	}
	seedLedger(t, approvals, "Open", 2)

	names, err := suppliers.ListFinalizable(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Done"}, names)
}

func TestApproverRepository(t *testing.T) {
	db := openDB(t)
	repo := NewApproverRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &entity.Approver{Level: 2, Country: "IN", Name: "B", Email: "b@example.com"}))
	require.NoError(t, repo.Create(ctx, &entity.Approver{Level: 1, Country: "IN", Name: "A", Email: "a@example.com"}))
	require.NoError(t, repo.Create(ctx, &entity.Approver{Level: 1, Country: "SG", Name: "S", Email: "s@example.com"}))

	err := repo.Create(ctx, &entity.Approver{Level: 1, Country: "IN", Name: "X", Email: "x@example.com"})
	assert.ErrorIs(t, err, port.ErrDuplicate)

	list, err := repo.ListByCountry(ctx, "IN")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Level)
	assert.Equal(t, 2, list[1].Level)

	all, err := repo.ListByCountry(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	a, err := repo.GetByLevelAndCountry(ctx, 1, "SG")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "s@example.com", a.Email)

	a, err = repo.GetByLevelAndCountry(ctx, 3, "IN")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestApprovalRepository_UpdateDecisionIsVersioned(t *testing.T) {
	db := openDB(t)
	suppliers := NewSupplierRepository(db.DB, zap.NewNop())
	repo := NewApprovalRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	seedSupplier(t, suppliers, "Acme", "Pune")
	recs := seedLedger(t, repo, "Acme", 3)

	rec := *recs[0]
	rec.Status = entity.StatusApproved
	rec.Comment = "ok"
	ok, err := repo.UpdateDecision(ctx, &rec, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), rec.Version)

	stale := *recs[0]
	stale.Status = entity.StatusRejected
	ok, err = repo.UpdateDecision(ctx, &stale, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	wrongEmail := *recs[1]
	wrongEmail.ApproverEmail = "someone@else.com"
	wrongEmail.Status = entity.StatusApproved
	ok, err = repo.UpdateDecision(ctx, &wrongEmail, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Get(ctx, "Acme", 1)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, got.Status)
	assert.Equal(t, "ok", got.Comment)

	err = repo.CreateBatch(ctx, []*entity.ApprovalRecord{{SupplierName: "Acme", Level: 1, ApproverName: "x", ApproverEmail: "x@example.com"}})
	assert.ErrorIs(t, err, port.ErrDuplicate)
}

func TestApprovalRepository_RejectAbove(t *testing.T) {
	db := openDB(t)
	suppliers := NewSupplierRepository(db.DB, zap.NewNop())
	repo := NewApprovalRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	seedSupplier(t, suppliers, "Acme", "Pune")
	seedLedger(t, repo, "Acme", 4)

	n, err := repo.RejectAbove(ctx, "Acme", 2, entity.AutoRejectComment)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ledger, err := repo.ListBySupplier(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, ledger, 4)
	assert.Equal(t, entity.StatusPending, ledger[0].Status)
	assert.Equal(t, entity.StatusPending, ledger[1].Status)
	for _, rec := range ledger[2:] {
		assert.Equal(t, entity.StatusRejected, rec.Status)
		assert.Equal(t, entity.AutoRejectComment, rec.Comment)
	}
}

func TestApprovalRepository_MarkEscalated(t *testing.T) {
	db := openDB(t)
	suppliers := NewSupplierRepository(db.DB, zap.NewNop())
	repo := NewApprovalRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	seedSupplier(t, suppliers, "Acme", "Pune")
	seedLedger(t, repo, "Acme", 1)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ok, err := repo.MarkEscalated(ctx, "Acme", 1, 1, "INST-1", at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkEscalated(ctx, "Acme", 1, 1, "INST-2", at)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByExternalRef(ctx, "INST-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Level)
	require.NotNil(t, got.EscalatedAt)
	assert.True(t, at.Equal(*got.EscalatedAt))
	assert.Equal(t, int64(2), got.Version)

	got, err = repo.GetByExternalRef(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransaction_RollsBackLedgerWrites(t *testing.T) {
	db := openDB(t)
	suppliers := NewSupplierRepository(db.DB, zap.NewNop())
	repo := NewApprovalRepository(db.DB, zap.NewNop())
	tx := sqlite.NewDB(db.DB, zap.NewNop())
	ctx := context.Background()

	seedSupplier(t, suppliers, "Acme", "Pune")
	seedLedger(t, repo, "Acme", 2)

	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := repo.RejectAbove(ctx, "Acme", 0, "boom"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	ledger, err := repo.ListBySupplier(ctx, "Acme")
	require.NoError(t, err)
	for _, rec := range ledger {
		assert.Equal(t, entity.StatusPending, rec.Status)
	}
}

func TestAttachmentRepository(t *testing.T) {
	db := openDB(t)
	suppliers := NewSupplierRepository(db.DB, zap.NewNop())
	repo := NewAttachmentRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	seedSupplier(t, suppliers, "Acme", "Pune")

	first := &entity.Attachment{SupplierName: "Acme", FileName: "gst.pdf", MimeType: "application/pdf", Size: 10, StoragePath: "acme/gst.pdf"}
	require.NoError(t, repo.Create(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &entity.Attachment{SupplierName: "Acme", FileName: "pan.png", MimeType: "image/png", Size: 5, StoragePath: "acme/pan.png"}
	require.NoError(t, repo.Create(ctx, second))

	list, err := repo.ListBySupplier(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "gst.pdf", list[0].FileName)

	got, err := repo.GetByID(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acme/pan.png", got.StoragePath)

	got, err = repo.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHistoryRepository(t *testing.T) {
	db := openDB(t)
	repo := NewHistoryRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &entity.ApprovalHistory{SupplierName: "Acme", Level: 1, Action: entity.ActionSeeded, NewStatus: entity.StatusPending, Actor: entity.SystemActor}))
	require.NoError(t, repo.Create(ctx, &entity.ApprovalHistory{SupplierName: "Acme", Level: 1, Action: entity.ActionApproved, PreviousStatus: entity.StatusPending, NewStatus: entity.StatusApproved, Actor: "a@example.com"}))
	require.NoError(t, repo.Create(ctx, &entity.ApprovalHistory{SupplierName: "Other", Level: 1, Action: entity.ActionSeeded}))

	list, err := repo.ListBySupplier(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, entity.ActionSeeded, list[0].Action)
	assert.Equal(t, entity.ActionApproved, list[1].Action)
}

func TestOutboxRepository_EnqueueIsIdempotent(t *testing.T) {
	db := openDB(t)
	repo := NewOutboxRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	key := entity.EscalationKey("Acme", 2)
	inserted, err := repo.Enqueue(ctx, &entity.OutboxIntent{Kind: entity.IntentKindEscalate, Key: key, SupplierName: "Acme", Level: 2})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Enqueue(ctx, &entity.OutboxIntent{Kind: entity.IntentKindEscalate, Key: key, SupplierName: "Acme", Level: 2})
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := repo.GetByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.IntentStatusPending, got.Status)
	assert.Equal(t, 2, got.Level)
}

func TestOutboxRepository_DebounceMovesPendingOnly(t *testing.T) {
	db := openDB(t)
	repo := NewOutboxRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	key := entity.EscalationKey("Acme", 1)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Debounce(ctx, &entity.OutboxIntent{Kind: entity.IntentKindEscalate, Key: key, SupplierName: "Acme", Level: 1, DueAt: t0}))
	require.NoError(t, repo.Debounce(ctx, &entity.OutboxIntent{Kind: entity.IntentKindEscalate, Key: key, SupplierName: "Acme", Level: 1, DueAt: t0.Add(time.Minute)}))

	got, err := repo.GetByKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, t0.Add(time.Minute).Equal(got.DueAt))

	ok, err := repo.Claim(ctx, got.ID, t0.Add(2*time.Minute), t0.Add(3*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.MarkDone(ctx, got.ID))

	require.NoError(t, repo.Debounce(ctx, &entity.OutboxIntent{Kind: entity.IntentKindEscalate, Key: key, SupplierName: "Acme", Level: 1, DueAt: t0.Add(time.Hour)}))

	got, err = repo.GetByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, entity.IntentStatusDone, got.Status)
	assert.True(t, t0.Add(time.Minute).Equal(got.DueAt))
}

func TestOutboxRepository_ClaimLeaseAndRetry(t *testing.T) {
	db := openDB(t)
	repo := NewOutboxRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	intent := &entity.OutboxIntent{Kind: entity.IntentKindEscalate, Key: entity.EscalationKey("Acme", 1), SupplierName: "Acme", Level: 1, DueAt: t0}
	_, err := repo.Enqueue(ctx, intent)
	require.NoError(t, err)

	due, err := repo.ListDue(ctx, t0.Add(-time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.ListDue(ctx, t0, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	ok, err := repo.Claim(ctx, intent.ID, t0, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, intent.ID, t0, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	n, err := repo.ReleaseExpired(ctx, t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.ReleaseExpired(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err = repo.Claim(ctx, intent.ID, t0, t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.MarkRetry(ctx, intent.ID, "engine down", t0.Add(time.Hour)))
	got, err := repo.GetByKey(ctx, intent.Key)
	require.NoError(t, err)
	assert.Equal(t, entity.IntentStatusPending, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "engine down", got.LastError)
	assert.Nil(t, got.LockedUntil)
	assert.True(t, t0.Add(time.Hour).Equal(got.DueAt))

	require.NoError(t, repo.MarkFailed(ctx, intent.ID, "gave up"))
	got, err = repo.GetByKey(ctx, intent.Key)
	require.NoError(t, err)
	assert.True(t, got.IsFinished())
}

func TestGSTRepository_Replace(t *testing.T) {
	db := openDB(t)
	repo := NewGSTRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.ReplaceForSupplier(ctx, "Acme", []*entity.GSTCheck{
		{FileName: "a.pdf", GSTIN: "27AAPFU0939F1ZV", Valid: true},
		{FileName: "b.pdf", Message: "no GSTIN found"},
	}))
	require.NoError(t, repo.ReplaceForSupplier(ctx, "Acme", []*entity.GSTCheck{
		{FileName: "c.pdf", GSTIN: "27AAPFU0939F1ZV", Valid: true},
	}))

	checks, err := repo.ListBySupplier(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, "c.pdf", checks[0].FileName)
	assert.True(t, checks[0].Valid)
	assert.Equal(t, "Acme", checks[0].SupplierName)
}
