package admission

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryController is a mutex-guarded Controller for tests and
// single-process deployments.
type MemoryController struct {
	mu           sync.Mutex
	slots        map[uuid.UUID]*memorySlot
	defaultLimit int
}

type memorySlot struct {
	count int
	limit int
}

func NewMemoryController(defaultLimit int) *MemoryController {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &MemoryController{
		slots:        make(map[uuid.UUID]*memorySlot),
		defaultLimit: defaultLimit,
	}
}

func (c *MemoryController) Acquire(_ context.Context, tenantID uuid.UUID, limitOverride int) (SlotStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := c.slots[tenantID]
	if slot == nil {
		slot = &memorySlot{limit: c.defaultLimit}
		c.slots[tenantID] = slot
	}
	if limitOverride > 0 {
		slot.limit = limitOverride
	}

	if slot.count >= slot.limit {
		return c.status(slot), &DeniedError{CurrentCount: slot.count, Limit: slot.limit}
	}
	slot.count++
	return c.status(slot), nil
}

func (c *MemoryController) Release(_ context.Context, tenantID uuid.UUID) (SlotStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := c.slots[tenantID]
	if slot == nil {
		slot = &memorySlot{limit: c.defaultLimit}
		c.slots[tenantID] = slot
	}
	if slot.count > 0 {
		slot.count--
	}
	return c.status(slot), nil
}

func (c *MemoryController) status(slot *memorySlot) SlotStatus {
	return SlotStatus{
		CurrentCount: slot.count,
		Limit:        slot.limit,
		Available:    available(slot.count, slot.limit),
	}
}
