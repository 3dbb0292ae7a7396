// Package admission bounds the number of in-flight processing jobs per
// tenant. Acquire is the system's one hard linearizability requirement: the
// counter must never exceed the limit or drop below zero under arbitrary
// concurrent callers.
package admission

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DefaultLimit applies when a tenant acquires a slot for the first time
// without an explicit limit.
const DefaultLimit = 10

// SlotStatus reports a tenant's concurrency budget after an operation.
type SlotStatus struct {
	CurrentCount int `json:"current_count"`
	Limit        int `json:"limit"`
	Available    int `json:"available"`
}

// DeniedError signals that a tenant's budget is exhausted. It is control
// flow, not a failure: the caller re-queues the work and retries later.
type DeniedError struct {
	CurrentCount int
	Limit        int
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("concurrency limit reached: %d of %d slots in use", e.CurrentCount, e.Limit)
}

// Controller tracks and atomically bounds per-tenant concurrency.
// Implementations must be safe for concurrent use.
type Controller interface {
	// Acquire claims one slot via a linearizable increment-if-below-limit.
	// limitOverride <= 0 keeps the tenant's sticky limit (or DefaultLimit
	// on first use). A full budget returns a *DeniedError and leaves the
	// counter unchanged.
	Acquire(ctx context.Context, tenantID uuid.UUID, limitOverride int) (SlotStatus, error)
	// Release frees one slot, flooring at zero. Releasing with no slot held
	// is a harmless no-op that reports the current state.
	Release(ctx context.Context, tenantID uuid.UUID) (SlotStatus, error)
}

func slotKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("admission:slot:%s", tenantID)
}

func available(count, limit int) int {
	if limit-count < 0 {
		return 0
	}
	return limit - count
}
