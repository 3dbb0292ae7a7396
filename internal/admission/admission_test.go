package admission_test

import (
	"context"
	"sync"
	"testing"

	"github.com/docvault/docvault/internal/admission"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_FirstUseAppliesDefaultLimit(t *testing.T) {
	c := admission.NewMemoryController(10)
	tenant := uuid.New()

	status, err := c.Acquire(context.Background(), tenant, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CurrentCount)
	assert.Equal(t, 10, status.Limit)
	assert.Equal(t, 9, status.Available)
}

func TestAcquire_DeniedAtLimit(t *testing.T) {
	c := admission.NewMemoryController(2)
	tenant := uuid.New()
	ctx := context.Background()

	_, err := c.Acquire(ctx, tenant, 0)
	require.NoError(t, err)
	_, err = c.Acquire(ctx, tenant, 0)
	require.NoError(t, err)

	status, err := c.Acquire(ctx, tenant, 0)
	var denied *admission.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, 2, denied.CurrentCount)
	assert.Equal(t, 2, denied.Limit)
	assert.Equal(t, 2, status.CurrentCount)
	assert.Equal(t, 0, status.Available)
}

func TestAcquire_LimitOverrideIsSticky(t *testing.T) {
	c := admission.NewMemoryController(10)
	tenant := uuid.New()
	ctx := context.Background()

	status, err := c.Acquire(ctx, tenant, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Limit)

	// Subsequent acquires without an override keep the tenant's limit.
	status, err = c.Acquire(ctx, tenant, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Limit)
	assert.Equal(t, 2, status.CurrentCount)
}

func TestRelease_NeverGoesNegative(t *testing.T) {
	c := admission.NewMemoryController(5)
	tenant := uuid.New()
	ctx := context.Background()

	status, err := c.Release(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, status.CurrentCount)

	// Redundant releases after a single acquire stay at zero.
	_, err = c.Acquire(ctx, tenant, 0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		status, err = c.Release(ctx, tenant)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, status.CurrentCount)
	assert.Equal(t, 5, status.Available)
}

func TestRelease_FreesSlotForNextAcquire(t *testing.T) {
	c := admission.NewMemoryController(1)
	tenant := uuid.New()
	ctx := context.Background()

	_, err := c.Acquire(ctx, tenant, 0)
	require.NoError(t, err)

	_, err = c.Acquire(ctx, tenant, 0)
	var denied *admission.DeniedError
	require.ErrorAs(t, err, &denied)

	_, err = c.Release(ctx, tenant)
	require.NoError(t, err)

	status, err := c.Acquire(ctx, tenant, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CurrentCount)
}

func TestAcquire_TenantsAreIsolated(t *testing.T) {
	c := admission.NewMemoryController(1)
	ctx := context.Background()
	tenantA := uuid.New()
	tenantB := uuid.New()

	_, err := c.Acquire(ctx, tenantA, 0)
	require.NoError(t, err)

	// Tenant A being full does not affect tenant B.
	status, err := c.Acquire(ctx, tenantB, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CurrentCount)
}

// TestAcquire_ConcurrentCallersNeverExceedLimit hammers one tenant from many
// goroutines and checks the invariant: successful acquires never exceed the
// limit, and the final count drains back to zero.
func TestAcquire_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	const limit = 7
	const callers = 100

	c := admission.NewMemoryController(limit)
	tenant := uuid.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	granted := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := c.Acquire(ctx, tenant, 0)
			if err != nil {
				var denied *admission.DeniedError
				assert.ErrorAs(t, err, &denied)
				return
			}
			assert.LessOrEqual(t, status.CurrentCount, limit)
			assert.GreaterOrEqual(t, status.CurrentCount, 1)
			granted <- struct{}{}
		}()
	}
	wg.Wait()
	close(granted)

	held := len(granted)
	assert.LessOrEqual(t, held, limit)

	for i := 0; i < held; i++ {
		_, err := c.Release(ctx, tenant)
		require.NoError(t, err)
	}
	status, err := c.Release(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, status.CurrentCount)
}
