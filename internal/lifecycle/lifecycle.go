// Package lifecycle owns the document status vocabulary and validates every
// transition before the store persists it.
package lifecycle

import (
	"fmt"

	"github.com/docvault/docvault/pkg/models"
)

// ConflictError reports an illegal transition. Callers must not retry: the
// document is in a state that makes the request permanently invalid (legal
// hold, already deleting, unknown status).
type ConflictError struct {
	From   string
	To     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// transitions maps each status to its allowed successors. DELETING is
// terminal here: the row leaves the table entirely via hard delete.
var transitions = map[string][]string{
	models.DocumentStatusUploading: {models.DocumentStatusUploaded, models.DocumentStatusFailed},
	models.DocumentStatusUploaded:  {models.DocumentStatusProcessing},
	models.DocumentStatusProcessing: {
		models.DocumentStatusReady,
		models.DocumentStatusFailed,
	},
	models.DocumentStatusReady:    {models.DocumentStatusDeleted},
	models.DocumentStatusFailed:   {models.DocumentStatusDeleted},
	models.DocumentStatusDeleted:  {models.DocumentStatusDeleting},
	models.DocumentStatusDeleting: {},
}

// deletionTargets are transitions that move a document toward removal and
// are therefore blocked by legal hold.
var deletionTargets = map[string]bool{
	models.DocumentStatusDeleted:  true,
	models.DocumentStatusDeleting: true,
}

// Validate checks whether doc may move to target status. It returns a
// *ConflictError when the transition is illegal.
func Validate(doc *models.Document, target string) error {
	if doc.LegalHold && deletionTargets[target] {
		return &ConflictError{From: doc.Status, To: target, Reason: "document is under legal hold"}
	}

	allowed, known := transitions[doc.Status]
	if !known {
		return &ConflictError{From: doc.Status, To: target, Reason: "unknown current status"}
	}
	if doc.Status == models.DocumentStatusDeleting {
		return &ConflictError{From: doc.Status, To: target, Reason: "hard delete already in flight"}
	}

	for _, a := range allowed {
		if a == target {
			return nil
		}
	}
	return &ConflictError{From: doc.Status, To: target, Reason: "transition not permitted"}
}

// CanHardDelete reports whether the deletion worker may purge the document.
// Only DELETING documents are purged; anything else means the sweep has not
// promoted it (or a redelivered message already ran).
func CanHardDelete(doc *models.Document) bool {
	return doc.Status == models.DocumentStatusDeleting && !doc.LegalHold
}
