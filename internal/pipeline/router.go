package pipeline

import (
	"fmt"
	"time"

	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/pkg/models"
)

// Execution environments. BOUNDED is the cheap short-timeout runtime;
// UNBOUNDED is the long-running one for heavy jobs.
const (
	EnvBounded   = "BOUNDED"
	EnvUnbounded = "UNBOUNDED"
)

// Routing overrides, applied after the duration estimate.
const (
	maxBoundedSizeBytes = 50 * 1024 * 1024
	maxBoundedPages     = 100
)

// Route is a routing decision. Reason names the rule that fired, for
// operational triage.
type Route struct {
	Environment       string
	EstimatedDuration time.Duration
	Reason            string
}

// costModel is a linear duration estimate for one job type.
type costModel struct {
	perMB   time.Duration
	perPage time.Duration
	floor   time.Duration
}

var costModels = map[string]costModel{
	models.JobTypeMalwareScan: {perMB: 800 * time.Millisecond, floor: 10 * time.Second},
	models.JobTypeOCR:         {perPage: 2 * time.Second, perMB: time.Second, floor: 5 * time.Second},
	models.JobTypeThumbnail:   {perMB: 200 * time.Millisecond, floor: time.Second},
	models.JobTypePDFSplit:    {perPage: 500 * time.Millisecond, perMB: 300 * time.Millisecond, floor: 2 * time.Second},
}

// Router picks an execution environment per stage from job metadata.
type Router struct {
	boundedTimeout   time.Duration
	unboundedTimeout time.Duration
}

func NewRouter(cfg config.ProcessingConfig) *Router {
	bounded := cfg.BoundedTimeout
	if bounded <= 0 {
		bounded = 15 * time.Minute
	}
	unbounded := cfg.UnboundedTimeout
	if unbounded <= 0 {
		unbounded = 60 * time.Minute
	}
	return &Router{boundedTimeout: bounded, unboundedTimeout: unbounded}
}

// Route estimates the job's duration and applies the override rules in
// order; later rules win.
func (r *Router) Route(jobType string, sizeBytes int64, pageCount int) Route {
	estimate := r.estimate(jobType, sizeBytes, pageCount)

	route := Route{
		Environment:       EnvBounded,
		EstimatedDuration: estimate,
		Reason:            fmt.Sprintf("estimate %s under bounded timeout %s", estimate, r.boundedTimeout),
	}
	if estimate >= r.boundedTimeout {
		route.Environment = EnvUnbounded
		route.Reason = fmt.Sprintf("estimate %s exceeds bounded timeout %s", estimate, r.boundedTimeout)
	}

	if sizeBytes > maxBoundedSizeBytes {
		route.Environment = EnvUnbounded
		route.Reason = fmt.Sprintf("input size %d bytes exceeds %d byte bounded limit", sizeBytes, int64(maxBoundedSizeBytes))
	}
	if pageCount > maxBoundedPages {
		route.Environment = EnvUnbounded
		route.Reason = fmt.Sprintf("page count %d exceeds %d page bounded limit", pageCount, maxBoundedPages)
	}
	if jobType == models.JobTypeMalwareScan {
		route.Environment = EnvUnbounded
		route.Reason = "malware scans always run in the isolated long-running environment"
	}

	return route
}

// Timeout returns the execution window for an environment.
func (r *Router) Timeout(environment string) time.Duration {
	if environment == EnvUnbounded {
		return r.unboundedTimeout
	}
	return r.boundedTimeout
}

func (r *Router) estimate(jobType string, sizeBytes int64, pageCount int) time.Duration {
	model, ok := costModels[jobType]
	if !ok {
		// Unknown types get a conservative flat estimate.
		return 5 * time.Minute
	}

	estimate := time.Duration(0)
	if model.perMB > 0 && sizeBytes > 0 {
		mb := float64(sizeBytes) / (1024 * 1024)
		estimate += time.Duration(mb * float64(model.perMB))
	}
	if model.perPage > 0 && pageCount > 0 {
		estimate += time.Duration(pageCount) * model.perPage
	}
	if estimate < model.floor {
		estimate = model.floor
	}
	return estimate
}
