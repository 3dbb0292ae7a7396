package store

import (
	"context"
	"errors"
	"time"

	"github.com/docvault/docvault/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrConflict is returned by conditional updates whose guard did not match,
// e.g. a status transition raced with another writer or a soft delete hit a
// document under legal hold.
var ErrConflict = errors.New("conflicting document state")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Document, error)
	// UpdateDocumentStatus performs a conditional transition: the row is
	// updated only when its current status equals from. A non-matching
	// guard returns ErrConflict so racing writers never clobber each other.
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, from, to string) error
	SetLegalHold(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, hold bool) error
	// SoftDeleteDocument moves a READY or FAILED document to DELETED and
	// stamps deleted_at. Legal hold or any other status yields ErrConflict.
	SoftDeleteDocument(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, at time.Time) error
	// ListExpiredSoftDeleted returns soft-deleted documents whose retention
	// window has elapsed as of now, oldest first, without legal holds.
	ListExpiredSoftDeleted(ctx context.Context, now time.Time, limit int) ([]*models.Document, error)

	CreateVersion(ctx context.Context, version *models.DocumentVersion) error
	GetVersion(ctx context.Context, id uuid.UUID) (*models.DocumentVersion, error)
	ListVersions(ctx context.Context, documentID uuid.UUID) ([]*models.DocumentVersion, error)

	// UpsertProcessingJob creates the job row for (version, type) or returns
	// the existing one untouched, making pipeline entry idempotent under
	// message redelivery.
	UpsertProcessingJob(ctx context.Context, job *models.ProcessingJob) (*models.ProcessingJob, error)
	GetProcessingJob(ctx context.Context, versionID uuid.UUID, jobType string) (*models.ProcessingJob, error)
	ListJobsByVersion(ctx context.Context, versionID uuid.UUID) ([]*models.ProcessingJob, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error

	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, documentID uuid.UUID) ([]*models.AuditLog, error)

	// HardDeleteDocument removes all processing jobs, versions, and the
	// document row in one transaction. Audit log rows are never touched.
	HardDeleteDocument(ctx context.Context, id uuid.UUID) (PurgeResult, error)
}

// PurgeResult reports what a hard delete removed.
type PurgeResult struct {
	Jobs     int64
	Versions int64
}

type jobUpdateParams struct {
	ErrorMessage     *string
	IncrementAttempt bool
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithAttemptIncrement() JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.IncrementAttempt = true
	}
}
