package entity

import (
	"fmt"
	"time"
)

// OutboxIntent is a durable request to perform one deferred action.
// Key is unique, so enqueueing the same intent twice is a no-op.
type OutboxIntent struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	Key          string     `json:"key"`
	SupplierName string     `json:"supplierName"`
	Level        int        `json:"level"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"lastError,omitempty"`
	DueAt        time.Time  `json:"dueAt"`
	LockedUntil  *time.Time `json:"lockedUntil,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// EscalationKey is the idempotency key of the escalation for one level.
func EscalationKey(supplierName string, level int) string {
	return fmt.Sprintf("escalate:%s:%d", supplierName, level)
}

// IsFinished reports whether the intent will not run again.
func (i *OutboxIntent) IsFinished() bool {
	return i.Status == IntentStatusDone || i.Status == IntentStatusFailed
}
