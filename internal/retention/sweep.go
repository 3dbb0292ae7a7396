// Package retention enforces the deletion lifecycle: a periodic sweep
// promotes expired soft-deleted documents to DELETING and enqueues purge
// work, and the purger destroys storage and rows. Promotion and purge are
// split so a crashed purge redelivers without re-scanning the table.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/docvault/docvault/internal/audit"
	"github.com/docvault/docvault/internal/lifecycle"
	"github.com/docvault/docvault/internal/metrics"
	"github.com/docvault/docvault/internal/queue"
	"github.com/docvault/docvault/internal/store"
	"github.com/docvault/docvault/pkg/models"
)

const defaultBatchSize = 100

// SweepResult summarizes one sweep pass. Skipped counts documents another
// sweeper claimed first; they need no further work here.
type SweepResult struct {
	Scanned  int
	Promoted int
	Skipped  int
	Failed   int
}

// Sweeper finds soft-deleted documents whose retention window elapsed and
// hands them to the deletion queue.
type Sweeper struct {
	store     store.Store
	queue     queue.Queue
	audit     audit.Writer
	metrics   metrics.Recorder
	batchSize int
	now       func() time.Time
}

type SweeperDeps struct {
	Store     store.Store
	Queue     queue.Queue
	Audit     audit.Writer
	Metrics   metrics.Recorder
	BatchSize int
	Now       func() time.Time
}

func NewSweeper(d SweeperDeps) *Sweeper {
	if d.Audit == nil {
		d.Audit = audit.Noop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Noop{}
	}
	if d.BatchSize <= 0 {
		d.BatchSize = defaultBatchSize
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{
		store:     d.Store,
		queue:     d.Queue,
		audit:     d.Audit,
		metrics:   d.Metrics,
		batchSize: d.BatchSize,
		now:       d.Now,
	}
}

// Sweep promotes expired documents in batches until the table is drained.
// One document failing to promote or enqueue never aborts the pass; it is
// logged, counted, and picked up again on the next run.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	for {
		docs, err := s.store.ListExpiredSoftDeleted(ctx, now, s.batchSize)
		if err != nil {
			s.metrics.SweepCompleted(result.Promoted, result.Failed)
			return result, err
		}
		if len(docs) == 0 {
			break
		}
		result.Scanned += len(docs)

		// Promoted and skipped documents both leave the DELETED listing, so
		// either counts as batch progress; a batch where nothing moved would
		// return the same rows forever.
		advancedInBatch := 0
		for _, doc := range docs {
			promoted, err := s.promote(ctx, doc)
			if err != nil {
				result.Failed++
				slog.Error("retention promote failed",
					"document_id", doc.ID, "tenant_id", doc.TenantID, "error", err)
				continue
			}
			if promoted {
				result.Promoted++
			} else {
				result.Skipped++
			}
			advancedInBatch++
		}

		if advancedInBatch == 0 || len(docs) < s.batchSize {
			break
		}
	}

	s.metrics.SweepCompleted(result.Promoted, result.Failed)
	slog.Info("retention sweep finished",
		"scanned", result.Scanned, "promoted", result.Promoted,
		"skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

// promote moves one document DELETED -> DELETING and enqueues its purge.
// The conditional status update is the mutual exclusion between concurrent
// sweepers: the loser sees ErrConflict, reports promoted=false, and walks
// away.
func (s *Sweeper) promote(ctx context.Context, doc *models.Document) (bool, error) {
	if err := lifecycle.Validate(doc, models.DocumentStatusDeleting); err != nil {
		return false, err
	}

	err := s.store.UpdateDocumentStatus(ctx, doc.ID,
		models.DocumentStatusDeleted, models.DocumentStatusDeleting)
	if errors.Is(err, store.ErrConflict) {
		slog.Info("document already claimed by another sweeper", "document_id", doc.ID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	task := queue.HardDeleteTask{DocumentID: doc.ID, TenantID: doc.TenantID}
	if err := s.queue.Publish(ctx, queue.RouteDeletion, task); err != nil {
		// The document stays DELETING; the next sweep cannot see it, but a
		// redelivered or manually replayed deletion task remains valid.
		return false, err
	}

	s.audit.Record(ctx, doc.TenantID, doc.ID, models.AuditActionPurgeScheduled, "")
	return true, nil
}

// Run executes Sweep on a fixed interval until ctx is cancelled. An
// immediate first pass runs on startup so a restarted worker never waits a
// full interval with an overdue backlog.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if _, err := s.Sweep(ctx); err != nil {
		slog.Error("retention sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("retention sweep failed", "error", err)
			}
		}
	}
}
