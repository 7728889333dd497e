package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approveAll(t *testing.T, h *harness, supplier string) {
	t.Helper()
	for _, rec := range h.ledger(t, supplier) {
		rec.Status = entity.StatusApproved
		ok, err := h.approvals.UpdateDecision(context.Background(), rec, rec.Version)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestFinalize_RequiresEveryLevelApproved(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "Acme", "US", 2)

	_, err := h.engine.Finalizer.Finalize(context.Background(), "Acme")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Zero(t, h.bp.callCount())
	assert.Equal(t, entity.StatusPending, h.supplier(t, "Acme").Status)
}

func TestFinalize_IsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "Acme", "US", 2)
	approveAll(t, h, "Acme")
	ctx := context.Background()

	id, err := h.engine.Finalizer.Finalize(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, "BP-0001", id)

	again, err := h.engine.Finalizer.Finalize(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, h.bp.callCount())
}

func TestFinalize_RejectedSupplierConflicts(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "Acme", "US", 1)

	_, err := h.callback(t, "Acme", 1, "Rejected", "")
	require.NoError(t, err)

	_, err = h.engine.Finalizer.Finalize(context.Background(), "Acme")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Zero(t, h.bp.callCount())
}

func TestFinalize_Failure(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "Acme", "US", 1)
	approveAll(t, h, "Acme")

	h.bp.err = errors.New("connection refused")
	_, err := h.engine.Finalizer.Finalize(context.Background(), "Acme")
	assert.ErrorIs(t, err, apperr.ErrIntegration)

	s := h.supplier(t, "Acme")
	assert.Equal(t, entity.StatusPending, s.Status)
	assert.Empty(t, s.BusinessPartnerID)

	_, err = h.engine.Finalizer.Finalize(context.Background(), "Ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBusinessPartnerKey(t *testing.T) {
	assert.Equal(t, "bp:Acme", BusinessPartnerKey("Acme"))
}
