package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// Derivative job types. One ProcessingJob row exists per
// (document, version, type).
const (
	JobTypeOCR         = "OCR"
	JobTypeThumbnail   = "THUMBNAIL"
	JobTypePDFSplit    = "PDF_SPLIT"
	JobTypeMalwareScan = "MALWARE_SCAN"
)

// ProcessingJob tracks one derivative-generation stage for a document
// version. Attempts counts admissions, including denied ones that were
// re-queued.
type ProcessingJob struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	DocumentID   uuid.UUID  `db:"document_id"   json:"document_id"`
	VersionID    uuid.UUID  `db:"version_id"    json:"version_id"`
	TenantID     uuid.UUID  `db:"tenant_id"     json:"tenant_id"`
	Type         string     `db:"type"          json:"type"`
	Status       string     `db:"status"        json:"status"`
	Attempts     int        `db:"attempts"      json:"attempts"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}
