// Package metrics is the fire-and-forget recording contract. The default
// implementation emits structured log lines; a real metrics backend can be
// swapped in without touching callers.
package metrics

import (
	"log/slog"
	"time"
)

type Recorder interface {
	AdmissionDenied(tenantID string)
	StageCompleted(jobType string, duration time.Duration, success bool)
	RetryScheduled(jobType string, attempt int)
	SweepCompleted(promoted, failed int)
	DocumentPurged(tenantID string, objectsDeleted int)
}

// LogRecorder writes metrics as structured logs.
type LogRecorder struct{}

func (LogRecorder) AdmissionDenied(tenantID string) {
	slog.Info("metric admission_denied", "tenant_id", tenantID)
}

func (LogRecorder) StageCompleted(jobType string, duration time.Duration, success bool) {
	slog.Info("metric stage_completed",
		"job_type", jobType, "duration_ms", duration.Milliseconds(), "success", success)
}

func (LogRecorder) RetryScheduled(jobType string, attempt int) {
	slog.Info("metric retry_scheduled", "job_type", jobType, "attempt", attempt)
}

func (LogRecorder) SweepCompleted(promoted, failed int) {
	slog.Info("metric sweep_completed", "promoted", promoted, "failed", failed)
}

func (LogRecorder) DocumentPurged(tenantID string, objectsDeleted int) {
	slog.Info("metric document_purged", "tenant_id", tenantID, "objects_deleted", objectsDeleted)
}

// Noop discards all metrics.
type Noop struct{}

func (Noop) AdmissionDenied(string)                      {}
func (Noop) StageCompleted(string, time.Duration, bool)  {}
func (Noop) RetryScheduled(string, int)                  {}
func (Noop) SweepCompleted(int, int)                     {}
func (Noop) DocumentPurged(string, int)                  {}
