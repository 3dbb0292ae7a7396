package models

import (
	"path"
	"time"

	"github.com/google/uuid"
)

// Tenant represents an organization. Every document, concurrency budget,
// and audit record belongs to exactly one tenant.
type Tenant struct {
	ID               uuid.UUID        `db:"id"                json:"id"`
	Name             string           `db:"name"              json:"name"`
	ConcurrencyLimit int              `db:"concurrency_limit" json:"concurrency_limit"`
	RetentionDays    int              `db:"retention_days"    json:"retention_days"`
	ProcessingRules  []ProcessingRule `db:"processing_rules"  json:"processing_rules"`
	CreatedAt        time.Time        `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at"        json:"updated_at"`
}

// ProcessingRule decides which optional pipeline branches run for an
// uploaded version. MimePattern uses path.Match syntax ("application/pdf",
// "image/*"). Absence of any matching rule means malware scan only.
type ProcessingRule struct {
	MimePattern    string `json:"mime_pattern"`
	RunOCR         bool   `json:"run_ocr"`
	RunThumbnails  bool   `json:"run_thumbnails"`
	RunPDFSplit    bool   `json:"run_pdf_split"`
	ThumbnailSizes []int  `json:"thumbnail_sizes,omitempty"`
}

// MatchRule returns the first processing rule whose MIME pattern matches, or
// nil when none does.
func (t *Tenant) MatchRule(mimeType string) *ProcessingRule {
	for i := range t.ProcessingRules {
		ok, err := path.Match(t.ProcessingRules[i].MimePattern, mimeType)
		if err == nil && ok {
			return &t.ProcessingRules[i]
		}
	}
	return nil
}
