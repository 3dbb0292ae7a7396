package pipeline

import (
	"github.com/docvault/docvault/internal/objectstore"
	"github.com/docvault/docvault/pkg/models"
)

// DefaultThumbnailSizes applies when a tenant rule enables thumbnails but
// does not list sizes.
var DefaultThumbnailSizes = []int{128, 512}

// Branch describes one stage of the processing workflow as data, so new
// stages can be added without touching the orchestrator loop. Condition
// receives the tenant rule matched for the version's MIME type (nil when no
// rule matched); OutputKeys enumerates the stage's expected artifacts for
// the idempotency guard.
type Branch struct {
	JobType    string
	Condition  func(rule *models.ProcessingRule) bool
	OutputKeys func(version *models.DocumentVersion, rule *models.ProcessingRule) []string
}

// DefaultBranches is the standard workflow: malware scan always runs, the
// rest are opt-in per tenant rule.
func DefaultBranches() []Branch {
	return []Branch{
		{
			JobType:   models.JobTypeMalwareScan,
			Condition: func(*models.ProcessingRule) bool { return true },
			OutputKeys: func(v *models.DocumentVersion, _ *models.ProcessingRule) []string {
				return []string{objectstore.ScanResultKey(v.TenantID, v.DocumentID, v.ID)}
			},
		},
		{
			JobType:   models.JobTypeOCR,
			Condition: func(rule *models.ProcessingRule) bool { return rule != nil && rule.RunOCR },
			OutputKeys: func(v *models.DocumentVersion, _ *models.ProcessingRule) []string {
				return []string{objectstore.OCRTextKey(v.TenantID, v.DocumentID, v.ID)}
			},
		},
		{
			JobType:   models.JobTypeThumbnail,
			Condition: func(rule *models.ProcessingRule) bool { return rule != nil && rule.RunThumbnails },
			OutputKeys: func(v *models.DocumentVersion, rule *models.ProcessingRule) []string {
				sizes := DefaultThumbnailSizes
				if rule != nil && len(rule.ThumbnailSizes) > 0 {
					sizes = rule.ThumbnailSizes
				}
				keys := make([]string, 0, len(sizes))
				for _, size := range sizes {
					keys = append(keys, objectstore.ThumbnailKey(v.TenantID, v.DocumentID, v.ID, size))
				}
				return keys
			},
		},
		{
			JobType:   models.JobTypePDFSplit,
			Condition: func(rule *models.ProcessingRule) bool { return rule != nil && rule.RunPDFSplit },
			OutputKeys: func(v *models.DocumentVersion, _ *models.ProcessingRule) []string {
				// The page count is unknown until the split runs. A completed
				// split always writes page 1, so it serves as the skip probe;
				// when the count is known every page is checked.
				if v.PageCount != nil && *v.PageCount > 0 {
					keys := make([]string, 0, *v.PageCount)
					for p := 1; p <= *v.PageCount; p++ {
						keys = append(keys, objectstore.SplitPageKey(v.TenantID, v.DocumentID, v.ID, p))
					}
					return keys
				}
				return []string{objectstore.SplitPageKey(v.TenantID, v.DocumentID, v.ID, 1)}
			},
		},
	}
}

// SelectBranches resolves the tenant's rule for the version's MIME type and
// returns the branches whose conditions hold. No matching rule means
// malware scan only.
func SelectBranches(tenant *models.Tenant, version *models.DocumentVersion) []Branch {
	rule := tenant.MatchRule(version.MimeType)

	var selected []Branch
	for _, b := range DefaultBranches() {
		if b.Condition(rule) {
			selected = append(selected, b)
		}
	}
	return selected
}

// MatchedRule exposes the rule SelectBranches used, for callers that need
// the same rule when computing output keys.
func MatchedRule(tenant *models.Tenant, version *models.DocumentVersion) *models.ProcessingRule {
	return tenant.MatchRule(version.MimeType)
}
