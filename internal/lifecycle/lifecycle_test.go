package lifecycle_test

import (
	"testing"

	"github.com/docvault/docvault/internal/lifecycle"
	"github.com/docvault/docvault/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(status string, legalHold bool) *models.Document {
	return &models.Document{Status: status, LegalHold: legalHold}
}

func TestValidate_AllowedTransitions(t *testing.T) {
	tests := []struct {
		from string
		to   string
	}{
		{models.DocumentStatusUploading, models.DocumentStatusUploaded},
		{models.DocumentStatusUploading, models.DocumentStatusFailed},
		{models.DocumentStatusUploaded, models.DocumentStatusProcessing},
		{models.DocumentStatusProcessing, models.DocumentStatusReady},
		{models.DocumentStatusProcessing, models.DocumentStatusFailed},
		{models.DocumentStatusReady, models.DocumentStatusDeleted},
		{models.DocumentStatusFailed, models.DocumentStatusDeleted},
		{models.DocumentStatusDeleted, models.DocumentStatusDeleting},
	}
	for _, tt := range tests {
		t.Run(tt.from+"_to_"+tt.to, func(t *testing.T) {
			assert.NoError(t, lifecycle.Validate(doc(tt.from, false), tt.to))
		})
	}
}

func TestValidate_RejectedTransitions(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
	}{
		{"skip processing", models.DocumentStatusUploaded, models.DocumentStatusReady},
		{"ready cannot fail", models.DocumentStatusReady, models.DocumentStatusFailed},
		{"soft delete skips DELETED", models.DocumentStatusReady, models.DocumentStatusDeleting},
		{"uploading cannot process", models.DocumentStatusUploading, models.DocumentStatusProcessing},
		{"deleted cannot revive", models.DocumentStatusDeleted, models.DocumentStatusReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := lifecycle.Validate(doc(tt.from, false), tt.to)
			var conflict *lifecycle.ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, tt.from, conflict.From)
			assert.Equal(t, tt.to, conflict.To)
		})
	}
}

// Legal hold blocks every move toward deletion regardless of current status.
func TestValidate_LegalHoldBlocksDeletion(t *testing.T) {
	statuses := []string{
		models.DocumentStatusUploading,
		models.DocumentStatusUploaded,
		models.DocumentStatusProcessing,
		models.DocumentStatusReady,
		models.DocumentStatusFailed,
		models.DocumentStatusDeleted,
	}
	for _, status := range statuses {
		for _, target := range []string{models.DocumentStatusDeleted, models.DocumentStatusDeleting} {
			err := lifecycle.Validate(doc(status, true), target)
			var conflict *lifecycle.ConflictError
			require.ErrorAs(t, err, &conflict, "%s -> %s under hold", status, target)
			assert.Contains(t, conflict.Reason, "legal hold")
		}
	}
}

func TestValidate_LegalHoldAllowsNonDeletionMoves(t *testing.T) {
	assert.NoError(t, lifecycle.Validate(doc(models.DocumentStatusProcessing, true), models.DocumentStatusReady))
}

func TestValidate_DeletingIsTerminal(t *testing.T) {
	for _, target := range []string{
		models.DocumentStatusReady,
		models.DocumentStatusDeleted,
		models.DocumentStatusDeleting,
	} {
		err := lifecycle.Validate(doc(models.DocumentStatusDeleting, false), target)
		var conflict *lifecycle.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Contains(t, conflict.Reason, "hard delete")
	}
}

func TestValidate_UnknownStatus(t *testing.T) {
	err := lifecycle.Validate(doc("ARCHIVED", false), models.DocumentStatusReady)
	var conflict *lifecycle.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestCanHardDelete(t *testing.T) {
	assert.True(t, lifecycle.CanHardDelete(doc(models.DocumentStatusDeleting, false)))
	assert.False(t, lifecycle.CanHardDelete(doc(models.DocumentStatusDeleted, false)))
	assert.False(t, lifecycle.CanHardDelete(doc(models.DocumentStatusReady, false)))
	assert.False(t, lifecycle.CanHardDelete(doc(models.DocumentStatusDeleting, true)))
}
