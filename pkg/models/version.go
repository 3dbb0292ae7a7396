package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentVersion identifies one uploaded binary. Immutable once created;
// removed only by hard delete.
type DocumentVersion struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	DocumentID uuid.UUID `db:"document_id" json:"document_id"`
	TenantID   uuid.UUID `db:"tenant_id"   json:"tenant_id"`
	Version    int       `db:"version"     json:"version"`
	StorageKey string    `db:"storage_key" json:"storage_key"`
	Checksum   string    `db:"checksum"    json:"checksum"`
	SizeBytes  int64     `db:"size_bytes"  json:"size_bytes"`
	MimeType   string    `db:"mime_type"   json:"mime_type"`
	PageCount  *int      `db:"page_count"  json:"page_count,omitempty"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}
