package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxRepository implements port.OutboxRepository
type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sql.DB, logger *zap.Logger) port.OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

const outboxColumns = `
	id, kind, key, supplier_name, level, status, attempts, last_error,
	due_at, locked_until, created_at, updated_at`

func (r *OutboxRepository) prepare(intent *entity.OutboxIntent) time.Time {
	ts := now()
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	if intent.Status == "" {
		intent.Status = entity.IntentStatusPending
	}
	if intent.DueAt.IsZero() {
		intent.DueAt = ts
	}
	intent.DueAt = intent.DueAt.UTC()
	intent.CreatedAt = ts
	intent.UpdatedAt = ts
	return ts
}

// Enqueue inserts the intent unless its key is already taken
func (r *OutboxRepository) Enqueue(ctx context.Context, intent *entity.OutboxIntent) (bool, error) {
	query := `
		INSERT INTO outbox_intents (
			id, kind, key, supplier_name, level, status, attempts, last_error,
			due_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, '', ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`

	ts := r.prepare(intent)
	res, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		intent.ID, intent.Kind, intent.Key, intent.SupplierName, intent.Level,
		intent.Status, intent.DueAt, ts, ts)
	if err != nil {
		r.logger.Error("Failed to enqueue intent", zap.String("key", intent.Key), zap.Error(err))
		return false, fmt.Errorf("failed to enqueue intent: %w", err)
	}

	n, err := affected(res)
	return n > 0, err
}

// Debounce inserts the intent or moves a still pending one to the new due time
func (r *OutboxRepository) Debounce(ctx context.Context, intent *entity.OutboxIntent) error {
	query := `
		INSERT INTO outbox_intents (
			id, kind, key, supplier_name, level, status, attempts, last_error,
			due_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, '', ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			due_at = excluded.due_at,
			updated_at = excluded.updated_at
		WHERE outbox_intents.status = 'PENDING'
	`

	ts := r.prepare(intent)
	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		intent.ID, intent.Kind, intent.Key, intent.SupplierName, intent.Level,
		intent.Status, intent.DueAt, ts, ts)
	if err != nil {
		r.logger.Error("Failed to debounce intent", zap.String("key", intent.Key), zap.Error(err))
		return fmt.Errorf("failed to debounce intent: %w", err)
	}
	return nil
}

// GetByKey retrieves an intent by its idempotency key
func (r *OutboxRepository) GetByKey(ctx context.Context, key string) (*entity.OutboxIntent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_intents WHERE key = ?`

	intent, err := scanIntent(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get intent", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}
	return intent, nil
}

// ListDue returns PENDING intents whose due time has passed
func (r *OutboxRepository) ListDue(ctx context.Context, at time.Time, limit int) ([]*entity.OutboxIntent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_intents
		WHERE status = ? AND due_at <= ?
		ORDER BY due_at ASC
		LIMIT ?
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, entity.IntentStatusPending, at.UTC(), limit)
	if err != nil {
		r.logger.Error("Failed to list due intents", zap.Error(err))
		return nil, fmt.Errorf("failed to list due intents: %w", err)
	}
	defer rows.Close()

	var intents []*entity.OutboxIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}

// Claim leases the intent to the caller
func (r *OutboxRepository) Claim(ctx context.Context, id string, at, lockedUntil time.Time) (bool, error) {
	query := `
		UPDATE outbox_intents
		SET status = ?, attempts = attempts + 1, locked_until = ?, updated_at = ?
		WHERE id = ? AND status = ? AND due_at <= ?
	`

	res, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		entity.IntentStatusProcessing, lockedUntil.UTC(), now(),
		id, entity.IntentStatusPending, at.UTC())
	if err != nil {
		r.logger.Error("Failed to claim intent", zap.String("intent_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to claim intent: %w", err)
	}
	n, err := affected(res)
	return n > 0, err
}

// MarkDone finishes the intent
func (r *OutboxRepository) MarkDone(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, entity.IntentStatusDone, "", nil)
}

// MarkRetry returns the intent to PENDING, due at nextDue
func (r *OutboxRepository) MarkRetry(ctx context.Context, id string, lastErr string, nextDue time.Time) error {
	return r.setStatus(ctx, id, entity.IntentStatusPending, lastErr, &nextDue)
}

// MarkFailed parks the intent for good
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, lastErr string) error {
	return r.setStatus(ctx, id, entity.IntentStatusFailed, lastErr, nil)
}

func (r *OutboxRepository) setStatus(ctx context.Context, id, status, lastErr string, nextDue *time.Time) error {
	query := `
		UPDATE outbox_intents
		SET status = ?, last_error = ?, locked_until = NULL, updated_at = ?,
			due_at = COALESCE(?, due_at)
		WHERE id = ?
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		status, lastErr, now(), nullTime(nextDue), id)
	if err != nil {
		r.logger.Error("Failed to update intent",
			zap.String("intent_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update intent: %w", err)
	}
	return nil
}

// ReleaseExpired hands abandoned leases back to the queue
func (r *OutboxRepository) ReleaseExpired(ctx context.Context, at time.Time) (int64, error) {
	query := `
		UPDATE outbox_intents
		SET status = ?, locked_until = NULL, updated_at = ?
		WHERE status = ? AND locked_until IS NOT NULL AND locked_until < ?
	`

	res, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		entity.IntentStatusPending, now(), entity.IntentStatusProcessing, at.UTC())
	if err != nil {
		r.logger.Error("Failed to release expired leases", zap.Error(err))
		return 0, fmt.Errorf("failed to release expired leases: %w", err)
	}
	return affected(res)
}

func scanIntent(row rowScanner) (*entity.OutboxIntent, error) {
	var (
		intent      entity.OutboxIntent
		lockedUntil sql.NullTime
	)
	err := row.Scan(
		&intent.ID,
		&intent.Kind,
		&intent.Key,
		&intent.SupplierName,
		&intent.Level,
		&intent.Status,
		&intent.Attempts,
		&intent.LastError,
		&intent.DueAt,
		&lockedUntil,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	intent.LockedUntil = timePtr(lockedUntil)
	return &intent, nil
}
