// Package index is the contract with the external search indexer. A
// document must be discoverable once READY, so Index failures block the
// READY transition; Remove failures during deletion are logged only.
package index

import (
	"context"
	"log/slog"

	"github.com/docvault/docvault/pkg/models"
	"github.com/google/uuid"
)

type Indexer interface {
	Index(ctx context.Context, doc *models.Document, version *models.DocumentVersion) error
	Remove(ctx context.Context, documentID uuid.UUID) error
}

// LogIndexer stands in where no search backend is configured.
type LogIndexer struct{}

func (LogIndexer) Index(_ context.Context, doc *models.Document, version *models.DocumentVersion) error {
	slog.Info("index document", "document_id", doc.ID, "version_id", version.ID)
	return nil
}

func (LogIndexer) Remove(_ context.Context, documentID uuid.UUID) error {
	slog.Info("remove document from index", "document_id", documentID)
	return nil
}
