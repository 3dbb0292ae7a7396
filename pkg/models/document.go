package models

import (
	"time"

	"github.com/google/uuid"
)

// Document status vocabulary. DELETED is the reversible soft-delete state;
// DELETING means a hard delete is in flight and the row is about to go away.
const (
	DocumentStatusUploading  = "UPLOADING"
	DocumentStatusUploaded   = "UPLOADED"
	DocumentStatusProcessing = "PROCESSING"
	DocumentStatusReady      = "READY"
	DocumentStatusFailed     = "FAILED"
	DocumentStatusDeleted    = "DELETED"
	DocumentStatusDeleting   = "DELETING"
)

// DefaultRetentionDays is the retention window applied to soft-deleted
// documents when the tenant has no explicit policy.
const DefaultRetentionDays = 30

// Document is the core entity. Status transitions are validated by the
// lifecycle package; nothing writes status directly.
type Document struct {
	ID            uuid.UUID  `db:"id"             json:"id"`
	TenantID      uuid.UUID  `db:"tenant_id"      json:"tenant_id"`
	Name          string     `db:"name"           json:"name"`
	Status        string     `db:"status"         json:"status"`
	LegalHold     bool       `db:"legal_hold"     json:"legal_hold"`
	RetentionDays int        `db:"retention_days" json:"retention_days"`
	DeletedAt     *time.Time `db:"deleted_at"     json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"     json:"updated_at"`
}

// SoftDeleted reports whether the document sits in the reversible
// pending-purge state.
func (d *Document) SoftDeleted() bool {
	return d.Status == DocumentStatusDeleted && d.DeletedAt != nil
}
