package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docvault/docvault/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.scanTenant(ctx,
		`SELECT id, name, concurrency_limit, retention_days, processing_rules, created_at, updated_at
		 FROM tenants WHERE id = $1`, id)
}

func (s *PostgresStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	return s.scanTenant(ctx,
		`SELECT id, name, concurrency_limit, retention_days, processing_rules, created_at, updated_at
		 FROM tenants WHERE name = 'default' LIMIT 1`)
}

func (s *PostgresStore) scanTenant(ctx context.Context, query string, args ...any) (*models.Tenant, error) {
	var t models.Tenant
	var rules []byte
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&t.ID, &t.Name, &t.ConcurrencyLimit, &t.RetentionDays, &rules, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &t.ProcessingRules); err != nil {
			return nil, fmt.Errorf("decode processing rules: %w", err)
		}
	}
	return &t, nil
}

func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	rules, err := json.Marshal(tenant.ProcessingRules)
	if err != nil {
		return fmt.Errorf("encode processing rules: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tenants (id, name, concurrency_limit, retention_days, processing_rules, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tenant.ID, tenant.Name, tenant.ConcurrencyLimit, tenant.RetentionDays, rules,
		tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// --- Documents ---

const documentColumns = `id, tenant_id, name, status, legal_hold, retention_days, deleted_at, created_at, updated_at`

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, tenant_id, name, status, legal_hold, retention_days, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.TenantID, doc.Name, doc.Status, doc.LegalHold, doc.RetentionDays,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Document, error) {
	var d models.Document
	err := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&d.ID, &d.TenantID, &d.Name, &d.Status, &d.LegalHold, &d.RetentionDays,
		&d.DeletedAt, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a status race.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check document exists: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) SetLegalHold(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, hold bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET legal_hold = $3, updated_at = NOW() WHERE id = $1 AND tenant_id = $2`,
		id, tenantID, hold)
	if err != nil {
		return fmt.Errorf("set legal hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SoftDeleteDocument(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $3, deleted_at = $4, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND legal_hold = FALSE AND status IN ($5, $6)`,
		id, tenantID, models.DocumentStatusDeleted, at,
		models.DocumentStatusReady, models.DocumentStatusFailed)
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1 AND tenant_id = $2)`,
			id, tenantID).Scan(&exists); err != nil {
			return fmt.Errorf("check document exists: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) ListExpiredSoftDeleted(ctx context.Context, now time.Time, limit int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE status = $1 AND legal_hold = FALSE
		   AND deleted_at IS NOT NULL
		   AND deleted_at + retention_days * INTERVAL '1 day' < $2
		 ORDER BY deleted_at ASC
		 LIMIT $3`,
		models.DocumentStatusDeleted, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired soft-deleted documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.Status, &d.LegalHold,
			&d.RetentionDays, &d.DeletedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// --- Document Versions ---

const versionColumns = `id, document_id, tenant_id, version, storage_key, checksum, size_bytes, mime_type, page_count, created_at`

func (s *PostgresStore) CreateVersion(ctx context.Context, version *models.DocumentVersion) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO document_versions (id, document_id, tenant_id, version, storage_key, checksum, size_bytes, mime_type, page_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		version.ID, version.DocumentID, version.TenantID, version.Version, version.StorageKey,
		version.Checksum, version.SizeBytes, version.MimeType, version.PageCount, version.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create document version: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, id uuid.UUID) (*models.DocumentVersion, error) {
	var v models.DocumentVersion
	err := s.pool.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM document_versions WHERE id = $1`, id,
	).Scan(&v.ID, &v.DocumentID, &v.TenantID, &v.Version, &v.StorageKey, &v.Checksum,
		&v.SizeBytes, &v.MimeType, &v.PageCount, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document version: %w", err)
	}
	return &v, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID uuid.UUID) ([]*models.DocumentVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM document_versions WHERE document_id = $1 ORDER BY version ASC`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.DocumentVersion
	for rows.Next() {
		var v models.DocumentVersion
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.TenantID, &v.Version, &v.StorageKey,
			&v.Checksum, &v.SizeBytes, &v.MimeType, &v.PageCount, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document version: %w", err)
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

// --- Processing Jobs ---

const jobColumns = `id, document_id, version_id, tenant_id, type, status, attempts, error_message, started_at, completed_at, created_at, updated_at`

func (s *PostgresStore) UpsertProcessingJob(ctx context.Context, job *models.ProcessingJob) (*models.ProcessingJob, error) {
	var result models.ProcessingJob
	err := s.pool.QueryRow(ctx,
		`INSERT INTO processing_jobs (id, document_id, version_id, tenant_id, type, status, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (version_id, type) DO UPDATE SET updated_at = processing_jobs.updated_at
		 RETURNING `+jobColumns,
		job.ID, job.DocumentID, job.VersionID, job.TenantID, job.Type, job.Status,
		job.Attempts, job.CreatedAt, job.UpdatedAt,
	).Scan(&result.ID, &result.DocumentID, &result.VersionID, &result.TenantID, &result.Type,
		&result.Status, &result.Attempts, &result.ErrorMessage, &result.StartedAt,
		&result.CompletedAt, &result.CreatedAt, &result.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert processing job: %w", err)
	}
	return &result, nil
}

func (s *PostgresStore) GetProcessingJob(ctx context.Context, versionID uuid.UUID, jobType string) (*models.ProcessingJob, error) {
	var j models.ProcessingJob
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE version_id = $1 AND type = $2`,
		versionID, jobType,
	).Scan(&j.ID, &j.DocumentID, &j.VersionID, &j.TenantID, &j.Type, &j.Status, &j.Attempts,
		&j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get processing job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) ListJobsByVersion(ctx context.Context, versionID uuid.UUID) ([]*models.ProcessingJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE version_id = $1 ORDER BY created_at ASC`,
		versionID)
	if err != nil {
		return nil, fmt.Errorf("list processing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ProcessingJob
	for rows.Next() {
		var j models.ProcessingJob
		if err := rows.Scan(&j.ID, &j.DocumentID, &j.VersionID, &j.TenantID, &j.Type, &j.Status,
			&j.Attempts, &j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan processing job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// validJobTransitions allows re-entry transitions that at-least-once message
// delivery produces: a denied admission keeps a job PENDING, a failed job
// may run again on redelivery, and a guard-detected skip completes a job
// straight from PENDING. COMPLETED accepts only itself so recording
// completion twice is harmless.
var validJobTransitions = map[string][]string{
	models.JobStatusPending:   {models.JobStatusPending, models.JobStatusRunning, models.JobStatusCompleted},
	models.JobStatusRunning:   {models.JobStatusRunning, models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusPending},
	models.JobStatusFailed:    {models.JobStatusPending, models.JobStatusRunning},
	models.JobStatusCompleted: {models.JobStatusCompleted},
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM processing_jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get processing job status: %w", err)
	}

	valid := false
	for _, a := range validJobTransitions[currentStatus] {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: processing job %s -> %s", ErrConflict, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE processing_jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.JobStatusRunning {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.IncrementAttempt {
		query += ", attempts = attempts + 1"
	}

	// Condition on the status the transition was validated against, so two
	// racing writers cannot both pass the check above.
	query += fmt.Sprintf(" WHERE id = $1 AND status = $%d", argIdx)
	args = append(args, currentStatus)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update processing job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: processing job %s changed concurrently", ErrConflict, id)
	}
	return nil
}

// --- Audit Logs ---

func (s *PostgresStore) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, tenant_id, document_id, action, actor, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.TenantID, entry.DocumentID, entry.Action, entry.Actor, entry.Detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditLogs(ctx context.Context, documentID uuid.UUID) ([]*models.AuditLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, document_id, action, actor, detail, created_at
		 FROM audit_logs WHERE document_id = $1 ORDER BY created_at ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(&e.ID, &e.TenantID, &e.DocumentID, &e.Action, &e.Actor,
			&e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- Hard Delete ---

// HardDeleteDocument removes rows in dependency order inside a single
// transaction. Audit log rows are an immutable historical record and are
// deliberately excluded.
func (s *PostgresStore) HardDeleteDocument(ctx context.Context, id uuid.UUID) (PurgeResult, error) {
	var result PurgeResult

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin hard delete: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM processing_jobs WHERE document_id = $1`, id)
	if err != nil {
		return result, fmt.Errorf("delete processing jobs: %w", err)
	}
	result.Jobs = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM document_versions WHERE document_id = $1`, id)
	if err != nil {
		return result, fmt.Errorf("delete document versions: %w", err)
	}
	result.Versions = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return result, fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return result, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit hard delete: %w", err)
	}
	return result, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
