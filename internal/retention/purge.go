package retention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docvault/docvault/internal/audit"
	"github.com/docvault/docvault/internal/index"
	"github.com/docvault/docvault/internal/lifecycle"
	"github.com/docvault/docvault/internal/metrics"
	"github.com/docvault/docvault/internal/objectstore"
	"github.com/docvault/docvault/internal/queue"
	"github.com/docvault/docvault/internal/store"
	"github.com/docvault/docvault/pkg/models"
	"github.com/google/uuid"
)

// Purger consumes hard-delete tasks and destroys a document completely:
// every stored object under both key prefixes, then all rows in one
// transaction. Audit log entries are the only thing that survives.
type Purger struct {
	store   store.Store
	objects objectstore.ObjectStore
	indexer index.Indexer
	audit   audit.Writer
	metrics metrics.Recorder
}

type PurgerDeps struct {
	Store   store.Store
	Objects objectstore.ObjectStore
	Indexer index.Indexer
	Audit   audit.Writer
	Metrics metrics.Recorder
}

func NewPurger(d PurgerDeps) *Purger {
	if d.Indexer == nil {
		d.Indexer = index.LogIndexer{}
	}
	if d.Audit == nil {
		d.Audit = audit.Noop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Noop{}
	}
	return &Purger{
		store:   d.Store,
		objects: d.Objects,
		indexer: d.Indexer,
		audit:   d.Audit,
		metrics: d.Metrics,
	}
}

// Purge removes one document. Object deletion runs before the row
// transaction: if storage deletion fails partway, the rows still exist and
// the redelivered task resumes where it stopped. The reverse order would
// leak orphaned objects with no record pointing at them.
func (p *Purger) Purge(ctx context.Context, documentID, tenantID uuid.UUID) error {
	doc, err := p.store.GetDocument(ctx, documentID, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("hard delete already done", "document_id", documentID)
		return nil
	}
	if err != nil {
		return err
	}

	if !lifecycle.CanHardDelete(doc) {
		// Legal hold applied after promotion, or a task published out of
		// band. Either way the document must not be destroyed.
		slog.Warn("skipping hard delete",
			"document_id", documentID, "status", doc.Status, "legal_hold", doc.LegalHold)
		return nil
	}

	objectsDeleted := 0
	for _, prefix := range []string{
		objectstore.DocumentPrefix(tenantID, documentID),
		objectstore.DerivedPrefix(tenantID, documentID),
	} {
		n, err := objectstore.DeletePrefix(ctx, p.objects, prefix)
		objectsDeleted += n
		if err != nil {
			return fmt.Errorf("delete objects under %s: %w", prefix, err)
		}
	}

	result, err := p.store.HardDeleteDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	// Index removal is best effort; a stale search entry for a purged
	// document is tolerable, a blocked purge is not.
	if err := p.indexer.Remove(ctx, documentID); err != nil {
		slog.Error("index removal failed", "document_id", documentID, "error", err)
	}

	p.audit.Record(ctx, tenantID, documentID, models.AuditActionHardDeleted,
		fmt.Sprintf("purged %d objects, %d versions, %d jobs", objectsDeleted, result.Versions, result.Jobs))
	p.metrics.DocumentPurged(tenantID.String(), objectsDeleted)
	slog.Info("document purged",
		"document_id", documentID, "tenant_id", tenantID,
		"objects", objectsDeleted, "versions", result.Versions, "jobs", result.Jobs)
	return nil
}

// HandleHardDelete is the queue adapter for deletion tasks.
func (p *Purger) HandleHardDelete(ctx context.Context, body []byte) error {
	var task queue.HardDeleteTask
	if err := json.Unmarshal(body, &task); err != nil {
		slog.Error("dropping malformed hard delete task", "error", err)
		return nil
	}
	return p.Purge(ctx, task.DocumentID, task.TenantID)
}
