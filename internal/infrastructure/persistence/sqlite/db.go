// Package sqlite carries the ledger's unit of work through context.
//
// SQLite admits one writer at a time, and the connection string opens
// every transaction with BEGIN IMMEDIATE, so a WithTransaction block
// holds the write lock from its first statement. Engine operations take
// the per-supplier lock before they open a transaction, which keeps the
// SQLite lock short and uncontended for a single supplier. Repositories
// never begin transactions themselves; they run on whatever Executor
// finds in ctx.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"go.uber.org/zap"
)

type contextKey string

// txKey is the single key under which the active *sql.Tx travels. The
// repositories resolve it through Executor so every write inside
// WithTransaction joins the same transaction.
const txKey contextKey = "tx"

// DB is the port.TransactionManager over the shared *sql.DB.
type DB struct {
	*sql.DB
	logger *zap.Logger
}

func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		logger: logger,
	}
}

// WithTransaction runs fn inside a transaction. A transaction already
// present in ctx is joined, so nested calls commit or roll back with the
// outermost one.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := extractTx(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func extractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// Execer covers both *sql.DB and *sql.Tx
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Executor returns the transaction carried by ctx, or db when there is none.
func Executor(ctx context.Context, db *sql.DB) Execer {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db
}

var _ port.TransactionManager = (*DB)(nil)
