// Package queue defines the messaging contract between the core and its
// external workers. Delivery is at-least-once; every consumer must be safe
// to re-enter.
package queue

import (
	"context"

	"github.com/google/uuid"
)

// Routing keys for the core's message kinds. The execute.* routes are
// consumed by the external stage workers, one queue per execution
// environment.
const (
	RouteProcessing       = "processing.task"
	RouteCompletion       = "processing.completion"
	RouteDeletion         = "deletion.task"
	RouteExecuteBounded   = "execute.bounded"
	RouteExecuteUnbounded = "execute.unbounded"
)

// ProcessingTask asks an external worker to run one derivative stage.
// Environment is set when the task is dispatched to an execute.* route.
// MissingKeys lists the stage outputs not yet in storage; a worker picking
// up a partially completed stage regenerates only those.
type ProcessingTask struct {
	DocumentID    uuid.UUID `json:"document_id"`
	VersionID     uuid.UUID `json:"version_id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	Bucket        string    `json:"s3_bucket"`
	Key           string    `json:"s3_key"`
	JobType       string    `json:"job_type,omitempty"`
	Environment   string    `json:"environment,omitempty"`
	MissingKeys   []string  `json:"missing_keys,omitempty"`
	CallbackToken string    `json:"callback_token,omitempty"`
}

// CompletionEvent reports the terminal outcome of a stage run by an
// external worker. Error is nil on success.
type CompletionEvent struct {
	DocumentID        uuid.UUID         `json:"document_id"`
	VersionID         uuid.UUID         `json:"version_id"`
	TenantID          uuid.UUID         `json:"tenant_id"`
	ProcessingResults map[string]string `json:"processing_results,omitempty"`
	Error             *CompletionError  `json:"error,omitempty"`
}

type CompletionError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	JobType string `json:"job_type,omitempty"`
}

// HardDeleteTask tells the deletion worker to purge one document.
type HardDeleteTask struct {
	DocumentID uuid.UUID `json:"document_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
}

// Handler processes one delivered message. A returned error triggers
// redelivery.
type Handler func(ctx context.Context, body []byte) error

// Queue is the transport abstraction. Publish routes a message by key;
// Consume blocks delivering messages from queueName until ctx is done.
type Queue interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Consume(ctx context.Context, queueName string, handler Handler) error
}
