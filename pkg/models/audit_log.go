package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the core.
const (
	AuditActionUploadCompleted  = "upload_completed"
	AuditActionProcessingDone   = "processing_completed"
	AuditActionProcessingFailed = "processing_failed"
	AuditActionSoftDeleted      = "soft_deleted"
	AuditActionPurgeScheduled   = "purge_scheduled"
	AuditActionHardDeleted      = "hard_deleted"
	AuditActionLegalHoldSet     = "legal_hold_set"
	AuditActionLegalHoldCleared = "legal_hold_cleared"
)

// AuditLog is an immutable historical record. Rows survive hard delete of
// the document they describe, so DocumentID is a plain value, not a foreign
// key.
type AuditLog struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	TenantID   uuid.UUID `db:"tenant_id"   json:"tenant_id"`
	DocumentID uuid.UUID `db:"document_id" json:"document_id"`
	Action     string    `db:"action"      json:"action"`
	Actor      string    `db:"actor"       json:"actor"`
	Detail     string    `db:"detail"      json:"detail"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}
