package retention

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docvault/docvault/internal/objectstore"
	"github.com/docvault/docvault/internal/queue"
	"github.com/docvault/docvault/internal/store"
	"github.com/docvault/docvault/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore implements the handful of Store methods retention touches; the
// embedded interface panics on anything unexpected.
type mockStore struct {
	store.Store
	mu        sync.Mutex
	docs      map[uuid.UUID]*models.Document
	audits    []*models.AuditLog
	purged    []uuid.UUID
	conflicts map[uuid.UUID]bool
}

func newMockStore() *mockStore {
	return &mockStore{
		docs:      make(map[uuid.UUID]*models.Document),
		conflicts: make(map[uuid.UUID]bool),
	}
}

func (m *mockStore) addDoc(doc *models.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *doc
	m.docs[doc.ID] = &copied
}

func (m *mockStore) ListExpiredSoftDeleted(_ context.Context, now time.Time, limit int) ([]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Document
	for _, d := range m.docs {
		if d.Status != models.DocumentStatusDeleted || d.LegalHold || d.DeletedAt == nil {
			continue
		}
		days := d.RetentionDays
		if days <= 0 {
			days = models.DefaultRetentionDays
		}
		if d.DeletedAt.Add(time.Duration(days) * 24 * time.Hour).Before(now) {
			copied := *d
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockStore) UpdateDocumentStatus(_ context.Context, id uuid.UUID, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts[id] {
		return store.ErrConflict
	}
	d, ok := m.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	if d.Status != from {
		return store.ErrConflict
	}
	d.Status = to
	return nil
}

func (m *mockStore) GetDocument(_ context.Context, id, tenantID uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (m *mockStore) HardDeleteDocument(_ context.Context, id uuid.UUID) (store.PurgeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return store.PurgeResult{}, store.ErrNotFound
	}
	delete(m.docs, id)
	m.purged = append(m.purged, id)
	return store.PurgeResult{Jobs: 2, Versions: 1}, nil
}

func (m *mockStore) AppendAuditLog(_ context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *entry
	m.audits = append(m.audits, &copied)
	return nil
}

func (m *mockStore) status(t *testing.T, id uuid.UUID) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	require.True(t, ok)
	return d.Status
}

func softDeletedDoc(tenantID uuid.UUID, deletedDaysAgo, retentionDays int) *models.Document {
	deletedAt := time.Now().UTC().Add(-time.Duration(deletedDaysAgo) * 24 * time.Hour)
	return &models.Document{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Name:          "old.pdf",
		Status:        models.DocumentStatusDeleted,
		RetentionDays: retentionDays,
		DeletedAt:     &deletedAt,
	}
}

func TestSweepPromotesExpiredOnly(t *testing.T) {
	ms := newMockStore()
	q := queue.NewMemory()
	tenantID := uuid.New()

	expired := softDeletedDoc(tenantID, 31, 30)
	fresh := softDeletedDoc(tenantID, 15, 30)
	ms.addDoc(expired)
	ms.addDoc(fresh)

	sweeper := NewSweeper(SweeperDeps{Store: ms, Queue: q})
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Promoted)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, models.DocumentStatusDeleting, ms.status(t, expired.ID))
	assert.Equal(t, models.DocumentStatusDeleted, ms.status(t, fresh.ID),
		"documents inside the retention window stay soft deleted")
	assert.Equal(t, 1, q.Pending(queue.RouteDeletion))
}

func TestSweepSkipsLegalHold(t *testing.T) {
	ms := newMockStore()
	q := queue.NewMemory()

	held := softDeletedDoc(uuid.New(), 60, 30)
	held.LegalHold = true
	ms.addDoc(held)

	sweeper := NewSweeper(SweeperDeps{Store: ms, Queue: q})
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Zero(t, result.Promoted)
	assert.Equal(t, models.DocumentStatusDeleted, ms.status(t, held.ID))
	assert.Zero(t, q.Pending(queue.RouteDeletion))
}

func TestSweepRespectsPerDocumentRetention(t *testing.T) {
	ms := newMockStore()
	q := queue.NewMemory()
	tenantID := uuid.New()

	shortWindow := softDeletedDoc(tenantID, 8, 7)
	longWindow := softDeletedDoc(tenantID, 8, 90)
	ms.addDoc(shortWindow)
	ms.addDoc(longWindow)

	sweeper := NewSweeper(SweeperDeps{Store: ms, Queue: q})
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Promoted)
	assert.Equal(t, models.DocumentStatusDeleting, ms.status(t, shortWindow.ID))
	assert.Equal(t, models.DocumentStatusDeleted, ms.status(t, longWindow.ID))
}

func TestSweepContinuesPastFailures(t *testing.T) {
	ms := newMockStore()
	tenantID := uuid.New()

	first := softDeletedDoc(tenantID, 40, 30)
	second := softDeletedDoc(tenantID, 40, 30)
	ms.addDoc(first)
	ms.addDoc(second)

	// Every publish fails; both documents are attempted anyway.
	failing := &failingQueue{err: errors.New("broker unavailable")}
	sweeper := NewSweeper(SweeperDeps{Store: ms, Queue: failing})

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 2, failing.publishes)
}

func TestSweepCountsRacedPromotionsAsSkipped(t *testing.T) {
	ms := newMockStore()
	q := queue.NewMemory()
	tenantID := uuid.New()

	won := softDeletedDoc(tenantID, 40, 30)
	raced := softDeletedDoc(tenantID, 40, 30)
	ms.addDoc(won)
	ms.addDoc(raced)
	// Another sweeper claims this document between listing and promotion.
	ms.conflicts[raced.ID] = true

	sweeper := NewSweeper(SweeperDeps{Store: ms, Queue: q})
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Promoted)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 1, q.Pending(queue.RouteDeletion), "the raced document is not enqueued twice")
}

type failingQueue struct {
	err       error
	publishes int
}

func (q *failingQueue) Publish(context.Context, string, any) error {
	q.publishes++
	return q.err
}

func (q *failingQueue) Consume(context.Context, string, queue.Handler) error { return nil }

func purgeFixture(t *testing.T) (*mockStore, *objectstore.MemoryStore, *Purger, *models.Document) {
	t.Helper()
	ms := newMockStore()
	objects := objectstore.NewMemoryStore()
	purger := NewPurger(PurgerDeps{Store: ms, Objects: objects})

	doc := softDeletedDoc(uuid.New(), 40, 30)
	doc.Status = models.DocumentStatusDeleting
	ms.addDoc(doc)
	return ms, objects, purger, doc
}

func seedObjects(t *testing.T, objects *objectstore.MemoryStore, doc *models.Document) {
	t.Helper()
	ctx := context.Background()
	versionID := uuid.New()
	keys := []string{
		objectstore.OriginalKey(doc.TenantID, doc.ID, versionID),
		objectstore.OCRTextKey(doc.TenantID, doc.ID, versionID),
		objectstore.ThumbnailKey(doc.TenantID, doc.ID, versionID, 128),
		objectstore.ThumbnailKey(doc.TenantID, doc.ID, versionID, 512),
		objectstore.ScanResultKey(doc.TenantID, doc.ID, versionID),
	}
	for _, key := range keys {
		require.NoError(t, objects.Put(ctx, key, strings.NewReader("x"), 1, "application/octet-stream"))
	}
}

func TestPurgeRemovesObjectsAndRows(t *testing.T) {
	ms, objects, purger, doc := purgeFixture(t)
	seedObjects(t, objects, doc)

	// An unrelated document's objects must survive.
	otherKey := objectstore.OriginalKey(doc.TenantID, uuid.New(), uuid.New())
	require.NoError(t, objects.Put(context.Background(), otherKey, strings.NewReader("x"), 1, "application/octet-stream"))

	require.NoError(t, purger.Purge(context.Background(), doc.ID, doc.TenantID))

	assert.Equal(t, []string{otherKey}, objects.Keys())
	assert.Equal(t, []uuid.UUID{doc.ID}, ms.purged)
}

func TestPurgeSkipsLegalHold(t *testing.T) {
	ms, objects, purger, doc := purgeFixture(t)
	seedObjects(t, objects, doc)

	ms.mu.Lock()
	ms.docs[doc.ID].LegalHold = true
	ms.mu.Unlock()

	require.NoError(t, purger.Purge(context.Background(), doc.ID, doc.TenantID))

	assert.Empty(t, ms.purged, "held documents must never be destroyed")
	assert.Equal(t, 5, objects.Len())
}

func TestPurgeSkipsUnpromotedDocument(t *testing.T) {
	ms, _, purger, doc := purgeFixture(t)

	ms.mu.Lock()
	ms.docs[doc.ID].Status = models.DocumentStatusDeleted
	ms.mu.Unlock()

	require.NoError(t, purger.Purge(context.Background(), doc.ID, doc.TenantID))
	assert.Empty(t, ms.purged)
}

func TestPurgeMissingDocumentIsNoop(t *testing.T) {
	ms, _, purger, doc := purgeFixture(t)

	// First purge wins, the redelivered task finds nothing.
	require.NoError(t, purger.Purge(context.Background(), doc.ID, doc.TenantID))
	require.NoError(t, purger.Purge(context.Background(), doc.ID, doc.TenantID))
	assert.Equal(t, []uuid.UUID{doc.ID}, ms.purged)
}

func TestPurgeRetriesAfterStorageFailure(t *testing.T) {
	ms, objects, purger, doc := purgeFixture(t)
	seedObjects(t, objects, doc)

	objects.FailDeletes = true
	err := purger.Purge(context.Background(), doc.ID, doc.TenantID)
	require.Error(t, err, "storage failure must redeliver the task")
	assert.Empty(t, ms.purged, "rows stay until objects are gone")

	objects.FailDeletes = false
	require.NoError(t, purger.Purge(context.Background(), doc.ID, doc.TenantID))
	assert.Zero(t, objects.Len())
	assert.Equal(t, []uuid.UUID{doc.ID}, ms.purged)
}

func TestSweepToPurgeEndToEnd(t *testing.T) {
	ms := newMockStore()
	q := queue.NewMemory()
	objects := objectstore.NewMemoryStore()

	doc := softDeletedDoc(uuid.New(), 45, 30)
	ms.addDoc(doc)
	seedObjects(t, objects, doc)

	sweeper := NewSweeper(SweeperDeps{Store: ms, Queue: q})
	purger := NewPurger(PurgerDeps{Store: ms, Objects: objects})

	_, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Drain(context.Background(), queue.RouteDeletion, purger.HandleHardDelete))

	assert.Zero(t, objects.Len())
	assert.Equal(t, []uuid.UUID{doc.ID}, ms.purged)
}
