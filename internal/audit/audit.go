// Package audit records immutable history for documents. Writes are
// fire-and-forget from the core's perspective: a failed audit write is
// logged, never propagated into the pipeline.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/docvault/docvault/internal/store"
	"github.com/docvault/docvault/pkg/models"
	"github.com/google/uuid"
)

// Writer appends one audit entry.
type Writer interface {
	Record(ctx context.Context, tenantID, documentID uuid.UUID, action, detail string)
}

// StoreWriter persists audit entries through the row store.
type StoreWriter struct {
	store store.Store
	actor string
}

func NewStoreWriter(s store.Store) *StoreWriter {
	return &StoreWriter{store: s, actor: "system"}
}

func (w *StoreWriter) Record(ctx context.Context, tenantID, documentID uuid.UUID, action, detail string) {
	entry := &models.AuditLog{
		ID:         uuid.New(),
		TenantID:   tenantID,
		DocumentID: documentID,
		Action:     action,
		Actor:      w.actor,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
	if err := w.store.AppendAuditLog(ctx, entry); err != nil {
		slog.Error("audit write failed",
			"document_id", documentID, "action", action, "error", err)
	}
}

// Noop discards audit entries; useful in tests that do not assert on them.
type Noop struct{}

func (Noop) Record(context.Context, uuid.UUID, uuid.UUID, string, string) {}
