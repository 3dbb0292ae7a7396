package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docvault/docvault/internal/admission"
	"github.com/docvault/docvault/internal/audit"
	"github.com/docvault/docvault/internal/index"
	"github.com/docvault/docvault/internal/lifecycle"
	"github.com/docvault/docvault/internal/metrics"
	"github.com/docvault/docvault/internal/queue"
	"github.com/docvault/docvault/internal/store"
	"github.com/docvault/docvault/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Stage dispositions returned by RunStage.
const (
	DispositionAccepted = "ACCEPTED"
	DispositionQueued   = "QUEUED"
)

// Executor invokes the external worker that performs the actual stage work
// (OCR, thumbnailing, scanning, splitting). The core schedules and
// reconciles; it never touches document bytes itself.
type Executor interface {
	Execute(ctx context.Context, task queue.ProcessingTask) error
}

// StageRequest identifies one stage admission attempt.
type StageRequest struct {
	DocumentID       uuid.UUID
	VersionID        uuid.UUID
	TenantID         uuid.UUID
	JobType          string
	ConcurrencyLimit int
}

// StageResult is the caller-visible outcome of RunStage. QUEUED is not a
// failure: the queue consumer nacks and the message comes back later.
type StageResult struct {
	Disposition string
	SlotStatus  admission.SlotStatus
	Reason      string
}

// Deps collects the orchestrator's collaborators; everything is injected so
// tests run with fakes and a fixed clock.
type Deps struct {
	Store    store.Store
	Slots    admission.Controller
	Guard    *Guard
	Router   *Router
	Executor Executor
	Queue    queue.Queue
	Indexer  index.Indexer
	Audit    audit.Writer
	Metrics  metrics.Recorder
	Retry    RetryConfig
	Bucket   string
	Now      func() time.Time
}

// Orchestrator sequences the per-version processing workflow and drives
// document lifecycle transitions on completion or failure.
type Orchestrator struct {
	store    store.Store
	slots    admission.Controller
	guard    *Guard
	router   *Router
	executor Executor
	queue    queue.Queue
	indexer  index.Indexer
	audit    audit.Writer
	metrics  metrics.Recorder
	retry    RetryConfig
	bucket   string
	now      func() time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Indexer == nil {
		d.Indexer = index.LogIndexer{}
	}
	if d.Audit == nil {
		d.Audit = audit.Noop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Noop{}
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		store:    d.Store,
		slots:    d.Slots,
		guard:    d.Guard,
		router:   d.Router,
		executor: d.Executor,
		queue:    d.Queue,
		indexer:  d.Indexer,
		audit:    d.Audit,
		metrics:  d.Metrics,
		retry:    d.Retry,
		bucket:   d.Bucket,
		now:      d.Now,
	}
}

// ensureJob creates or fetches the job row for (version, type). The upsert
// makes pipeline entry idempotent under redelivery.
func (o *Orchestrator) ensureJob(ctx context.Context, documentID, versionID, tenantID uuid.UUID, jobType string) (*models.ProcessingJob, error) {
	now := o.now()
	return o.store.UpsertProcessingJob(ctx, &models.ProcessingJob{
		ID:         uuid.New(),
		DocumentID: documentID,
		VersionID:  versionID,
		TenantID:   tenantID,
		Type:       jobType,
		Status:     models.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// RunStage attempts admission for one stage. Denied admission marks the job
// PENDING with an incremented attempt counter and reports QUEUED; granted
// admission marks it RUNNING and reports ACCEPTED, after which the caller
// executes the stage and must call Complete.
func (o *Orchestrator) RunStage(ctx context.Context, req StageRequest) (StageResult, error) {
	job, err := o.ensureJob(ctx, req.DocumentID, req.VersionID, req.TenantID, req.JobType)
	if err != nil {
		return StageResult{}, err
	}

	status, err := o.slots.Acquire(ctx, req.TenantID, req.ConcurrencyLimit)
	if err != nil {
		var denied *admission.DeniedError
		if errors.As(err, &denied) {
			o.metrics.AdmissionDenied(req.TenantID.String())
			if uerr := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusPending,
				store.WithAttemptIncrement()); uerr != nil {
				return StageResult{}, uerr
			}
			return StageResult{
				Disposition: DispositionQueued,
				SlotStatus:  status,
				Reason:      denied.Error(),
			}, nil
		}
		return StageResult{}, err
	}

	if err := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		if _, rerr := o.slots.Release(ctx, req.TenantID); rerr != nil {
			slog.Error("slot release failed after job update error",
				"tenant_id", req.TenantID, "error", rerr)
		}
		return StageResult{}, err
	}

	return StageResult{Disposition: DispositionAccepted, SlotStatus: status}, nil
}

// Complete records the terminal job status and releases the stage's slot.
// It is the callback half of RunStage. Only a RUNNING job holds a slot, so
// any other state means the event is redelivered or spurious and must not
// release: the slot it would free belongs to some other in-flight stage.
func (o *Orchestrator) Complete(ctx context.Context, versionID, tenantID uuid.UUID, jobType string, success bool, errMsg string) error {
	job, err := o.store.GetProcessingJob(ctx, versionID, jobType)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("completion for unknown job", "version_id", versionID, "job_type", jobType)
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusRunning {
		slog.Info("completion already recorded",
			"job_id", job.ID, "job_type", jobType, "status", job.Status)
		return nil
	}

	// Record the outcome before freeing the slot. A failed write redelivers
	// the event against a still-RUNNING row; the reverse order would release
	// twice.
	if success {
		err = o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted)
	} else {
		err = o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, store.WithErrorMessage(errMsg))
	}
	if errors.Is(err, store.ErrConflict) {
		// A concurrent delivery won the transition and released the slot.
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := o.slots.Release(ctx, tenantID); err != nil {
		slog.Error("slot release failed", "tenant_id", tenantID, "error", err)
	}
	return nil
}

// RunWithEnforcement composes acquire, guard, route, retry, and complete
// for one branch, releasing the slot on every exit path. A *DeniedError
// return means "re-queue and try again later"; any other error is the
// branch's terminal failure.
func (o *Orchestrator) RunWithEnforcement(ctx context.Context, version *models.DocumentVersion, branch Branch, rule *models.ProcessingRule, limitOverride int) error {
	job, err := o.ensureJob(ctx, version.DocumentID, version.ID, version.TenantID, branch.JobType)
	if err != nil {
		return err
	}

	// Redelivery fast path: everything this stage would produce already
	// exists, so record completion without charging concurrency. A partial
	// hit narrows the work to the missing outputs.
	keys := branch.OutputKeys(version, rule)
	missing, err := o.guard.MissingKeys(ctx, keys)
	if err != nil {
		return err
	}
	if len(keys) > 0 && len(missing) == 0 {
		return o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted)
	}

	if _, err := o.slots.Acquire(ctx, version.TenantID, limitOverride); err != nil {
		var denied *admission.DeniedError
		if errors.As(err, &denied) {
			o.metrics.AdmissionDenied(version.TenantID.String())
			if uerr := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusPending,
				store.WithAttemptIncrement()); uerr != nil {
				return uerr
			}
		}
		return err
	}
	defer func() {
		if _, rerr := o.slots.Release(ctx, version.TenantID); rerr != nil {
			slog.Error("slot release failed", "tenant_id", version.TenantID, "error", rerr)
		}
	}()

	if err := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		return err
	}

	pageCount := 0
	if version.PageCount != nil {
		pageCount = *version.PageCount
	}
	route := o.router.Route(branch.JobType, version.SizeBytes, pageCount)
	window := o.router.Timeout(route.Environment)

	runCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	task := queue.ProcessingTask{
		DocumentID:  version.DocumentID,
		VersionID:   version.ID,
		TenantID:    version.TenantID,
		Bucket:      o.bucket,
		Key:         version.StorageKey,
		JobType:     branch.JobType,
		MissingKeys: missing,
	}

	retryCfg := o.retry
	retryCfg.OnRetryScheduled = func(attempt int, _ time.Duration) {
		o.metrics.RetryScheduled(branch.JobType, attempt)
	}

	start := o.now()
	err = Retry(runCtx, retryCfg, func(ctx context.Context) error {
		return o.executor.Execute(ctx, task)
	})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = &TimeoutError{JobType: branch.JobType, Window: window}
		}
		o.metrics.StageCompleted(branch.JobType, o.now().Sub(start), false)
		if uerr := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
			store.WithErrorMessage(err.Error())); uerr != nil {
			slog.Error("failed to record job failure", "job_id", job.ID, "error", uerr)
		}
		return err
	}

	o.metrics.StageCompleted(branch.JobType, o.now().Sub(start), true)
	return o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted)
}

// loadProcessable fetches the entities behind a processing task and moves
// the document into PROCESSING. proceed is false for deliveries that need no
// work: the document vanished, or it already settled.
func (o *Orchestrator) loadProcessable(ctx context.Context, documentID, tenantID, versionID uuid.UUID) (*models.Document, *models.DocumentVersion, *models.Tenant, bool, error) {
	doc, err := o.store.GetDocument(ctx, documentID, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("processing task for missing document", "document_id", documentID)
		return nil, nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, nil, false, err
	}

	version, err := o.store.GetVersion(ctx, versionID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("processing task for missing version", "version_id", versionID)
		return nil, nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, nil, false, err
	}

	tenant, err := o.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, nil, false, err
	}

	switch doc.Status {
	case models.DocumentStatusUploaded:
		if err := lifecycle.Validate(doc, models.DocumentStatusProcessing); err != nil {
			return nil, nil, nil, false, err
		}
		err := o.store.UpdateDocumentStatus(ctx, doc.ID,
			models.DocumentStatusUploaded, models.DocumentStatusProcessing)
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return nil, nil, nil, false, err
		}
	case models.DocumentStatusProcessing:
		// Redelivery while in flight: continue, branches are idempotent.
	case models.DocumentStatusReady, models.DocumentStatusFailed:
		return nil, nil, nil, false, nil
	default:
		return nil, nil, nil, false, &lifecycle.ConflictError{
			From:   doc.Status,
			To:     models.DocumentStatusProcessing,
			Reason: "document is not processable",
		}
	}

	return doc, version, tenant, true, nil
}

// ProcessVersion runs every selected branch for a document version in
// parallel and settles the document's lifecycle when all branches reach a
// terminal state. Branch completion order is deliberately unordered.
//
// The returned error drives queue semantics: nil acks the message (the
// document settled, including the settled-as-FAILED case), a *DeniedError
// or infrastructure error nacks it for redelivery.
func (o *Orchestrator) ProcessVersion(ctx context.Context, documentID, tenantID, versionID uuid.UUID) error {
	doc, version, tenant, proceed, err := o.loadProcessable(ctx, documentID, tenantID, versionID)
	if err != nil || !proceed {
		return err
	}

	rule := MatchedRule(tenant, version)
	branches := SelectBranches(tenant, version)
	limit := tenant.ConcurrencyLimit

	// Branches run independently; one failing must not cancel its
	// siblings, so errors are collected per slot instead of through the
	// group's first-error shortcut.
	branchErrs := make([]error, len(branches))
	var g errgroup.Group
	for i, b := range branches {
		g.Go(func() error {
			branchErrs[i] = o.RunWithEnforcement(ctx, version, b, rule, limit)
			return nil
		})
	}
	_ = g.Wait()

	var deniedErr error
	var fatalErr error
	for _, berr := range branchErrs {
		if berr == nil {
			continue
		}
		var denied *admission.DeniedError
		if errors.As(berr, &denied) {
			if deniedErr == nil {
				deniedErr = berr
			}
			continue
		}
		if fatalErr == nil {
			fatalErr = berr
		}
	}

	// A denied branch has not settled yet; redeliver before judging the
	// version so every branch gets its chance to run.
	if deniedErr != nil {
		return deniedErr
	}

	if fatalErr != nil {
		err := o.store.UpdateDocumentStatus(ctx, documentID,
			models.DocumentStatusProcessing, models.DocumentStatusFailed)
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return err
		}
		o.audit.Record(ctx, tenantID, documentID, models.AuditActionProcessingFailed, fatalErr.Error())
		return nil
	}

	// Indexing failure blocks READY: a document must be discoverable the
	// moment it is ready, so the message redelivers until indexing works.
	if err := o.indexer.Index(ctx, doc, version); err != nil {
		return fmt.Errorf("index document: %w", err)
	}

	err = o.store.UpdateDocumentStatus(ctx, documentID,
		models.DocumentStatusProcessing, models.DocumentStatusReady)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}
	o.audit.Record(ctx, tenantID, documentID, models.AuditActionProcessingDone, "")
	return nil
}

// SettleVersion checks whether every job for a version reached a terminal
// state and, if so, drives the document to READY or FAILED. It backs the
// completion-event consumer used when stages run on external workers.
func (o *Orchestrator) SettleVersion(ctx context.Context, documentID, tenantID, versionID uuid.UUID) error {
	doc, err := o.store.GetDocument(ctx, documentID, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if doc.Status != models.DocumentStatusProcessing {
		return nil
	}

	jobs, err := o.store.ListJobsByVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	var firstFailure *models.ProcessingJob
	for _, job := range jobs {
		switch job.Status {
		case models.JobStatusPending, models.JobStatusRunning:
			return nil
		case models.JobStatusFailed:
			if firstFailure == nil {
				firstFailure = job
			}
		}
	}

	if firstFailure != nil {
		err := o.store.UpdateDocumentStatus(ctx, documentID,
			models.DocumentStatusProcessing, models.DocumentStatusFailed)
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return err
		}
		detail := firstFailure.Type
		if firstFailure.ErrorMessage != nil {
			detail = fmt.Sprintf("%s: %s", firstFailure.Type, *firstFailure.ErrorMessage)
		}
		o.audit.Record(ctx, tenantID, documentID, models.AuditActionProcessingFailed, detail)
		return nil
	}

	version, err := o.store.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if err := o.indexer.Index(ctx, doc, version); err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	err = o.store.UpdateDocumentStatus(ctx, documentID,
		models.DocumentStatusProcessing, models.DocumentStatusReady)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}
	o.audit.Record(ctx, tenantID, documentID, models.AuditActionProcessingDone, "")
	return nil
}

// executeRoute maps an execution environment to its worker routing key.
func executeRoute(environment string) string {
	if environment == EnvUnbounded {
		return queue.RouteExecuteUnbounded
	}
	return queue.RouteExecuteBounded
}

// DispatchVersion is the callback-mode counterpart of ProcessVersion: each
// admitted branch is routed and handed to the external stage workers over
// the queue, and the version settles later when their completion events
// arrive. A branch denied admission leaves the message to be redelivered.
func (o *Orchestrator) DispatchVersion(ctx context.Context, documentID, tenantID, versionID uuid.UUID) error {
	_, version, tenant, proceed, err := o.loadProcessable(ctx, documentID, tenantID, versionID)
	if err != nil || !proceed {
		return err
	}

	rule := MatchedRule(tenant, version)
	queued := 0

	for _, branch := range SelectBranches(tenant, version) {
		job, err := o.ensureJob(ctx, documentID, versionID, tenantID, branch.JobType)
		if err != nil {
			return err
		}
		switch job.Status {
		case models.JobStatusCompleted:
			continue
		case models.JobStatusRunning:
			// Already dispatched; its completion event settles it.
			continue
		}

		keys := branch.OutputKeys(version, rule)
		missing, err := o.guard.MissingKeys(ctx, keys)
		if err != nil {
			return err
		}
		if len(keys) > 0 && len(missing) == 0 {
			if err := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted); err != nil {
				return err
			}
			continue
		}

		result, err := o.RunStage(ctx, StageRequest{
			DocumentID:       documentID,
			VersionID:        versionID,
			TenantID:         tenantID,
			JobType:          branch.JobType,
			ConcurrencyLimit: tenant.ConcurrencyLimit,
		})
		if err != nil {
			return err
		}
		if result.Disposition == DispositionQueued {
			queued++
			continue
		}

		pageCount := 0
		if version.PageCount != nil {
			pageCount = *version.PageCount
		}
		route := o.router.Route(branch.JobType, version.SizeBytes, pageCount)
		task := queue.ProcessingTask{
			DocumentID:  documentID,
			VersionID:   versionID,
			TenantID:    tenantID,
			Bucket:      o.bucket,
			Key:         version.StorageKey,
			JobType:     branch.JobType,
			Environment: route.Environment,
			MissingKeys: missing,
		}
		if err := o.queue.Publish(ctx, executeRoute(route.Environment), task); err != nil {
			// Undo the admission so the slot is not leaked; the job drops
			// back to PENDING for the redelivered message.
			if _, rerr := o.slots.Release(ctx, tenantID); rerr != nil {
				slog.Error("slot release failed after publish error",
					"tenant_id", tenantID, "error", rerr)
			}
			if uerr := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusPending); uerr != nil {
				slog.Error("failed to reset job after publish error",
					"job_id", job.ID, "error", uerr)
			}
			return err
		}
		slog.Info("stage dispatched",
			"document_id", documentID, "version_id", versionID,
			"job_type", branch.JobType, "environment", route.Environment,
			"estimated_duration", route.EstimatedDuration, "reason", route.Reason)
	}

	if queued > 0 {
		return fmt.Errorf("%d stages awaiting capacity for tenant %s", queued, tenantID)
	}

	// Covers the case where every branch guard-skipped: nothing will emit a
	// completion event, so settle now.
	return o.SettleVersion(ctx, documentID, tenantID, versionID)
}

// HandleDispatch is the queue adapter for processing work items in callback
// mode.
func (o *Orchestrator) HandleDispatch(ctx context.Context, body []byte) error {
	var task queue.ProcessingTask
	if err := json.Unmarshal(body, &task); err != nil {
		slog.Error("dropping malformed processing task", "error", err)
		return nil
	}
	return o.DispatchVersion(ctx, task.DocumentID, task.TenantID, task.VersionID)
}

// HandleProcessingTask is the queue adapter for processing work items.
func (o *Orchestrator) HandleProcessingTask(ctx context.Context, body []byte) error {
	var task queue.ProcessingTask
	if err := json.Unmarshal(body, &task); err != nil {
		// Unparseable messages would redeliver forever; drop them loudly.
		slog.Error("dropping malformed processing task", "error", err)
		return nil
	}
	return o.ProcessVersion(ctx, task.DocumentID, task.TenantID, task.VersionID)
}

// HandleCompletion is the queue adapter for completion events emitted by
// external workers running in callback mode.
func (o *Orchestrator) HandleCompletion(ctx context.Context, body []byte) error {
	var event queue.CompletionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		slog.Error("dropping malformed completion event", "error", err)
		return nil
	}

	if event.Error == nil && len(event.ProcessingResults) == 0 {
		// A success event must name the stages it finished; without them no
		// job can be settled and no slot released. Drop it loudly instead of
		// redelivering the same bad payload forever.
		slog.Error("dropping completion event with no results",
			"document_id", event.DocumentID, "version_id", event.VersionID)
		return nil
	}

	if event.Error != nil {
		jobType := event.Error.JobType
		if err := o.Complete(ctx, event.VersionID, event.TenantID, jobType, false, event.Error.Message); err != nil {
			return err
		}
	} else {
		for jobType := range event.ProcessingResults {
			if err := o.Complete(ctx, event.VersionID, event.TenantID, jobType, true, ""); err != nil {
				return err
			}
		}
	}

	return o.SettleVersion(ctx, event.DocumentID, event.TenantID, event.VersionID)
}
