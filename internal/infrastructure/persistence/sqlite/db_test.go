package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/vendor-portal/pkg/database"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	raw, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "tx.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	_, err = raw.Exec("CREATE TABLE notes (body TEXT NOT NULL)")
	require.NoError(t, err)
	return NewDB(raw.DB, zap.NewNop())
}

func countNotes(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM notes").Scan(&n))
	return n
}

func TestWithTransaction_NestedCallsJoinOuter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		outer := extractTx(txCtx)
		require.NotNil(t, outer)

		_, err := Executor(txCtx, db.DB).ExecContext(txCtx, "INSERT INTO notes (body) VALUES ('outer')")
		require.NoError(t, err)

		require.NoError(t, db.WithTransaction(txCtx, func(inner context.Context) error {
			assert.Same(t, outer, extractTx(inner))
			_, err := Executor(inner, db.DB).ExecContext(inner, "INSERT INTO notes (body) VALUES ('inner')")
			return err
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, countNotes(t, db), "inner write rolls back with the outer transaction")
}

func TestWithTransaction_Commits(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.WithTransaction(ctx, func(txCtx context.Context) error {
		_, err := Executor(txCtx, db.DB).ExecContext(txCtx, "INSERT INTO notes (body) VALUES ('kept')")
		return err
	}))
	assert.Equal(t, 1, countNotes(t, db))
	assert.Nil(t, extractTx(ctx))
}

func TestWithTransaction_PanicRollsBack(t *testing.T) {
	db := newTestDB(t)

	assert.Panics(t, func() {
		_ = db.WithTransaction(context.Background(), func(txCtx context.Context) error {
			_, _ = Executor(txCtx, db.DB).ExecContext(txCtx, "INSERT INTO notes (body) VALUES ('lost')")
			panic("handler bug")
		})
	})
	assert.Zero(t, countNotes(t, db))
}
