package pipeline

import (
	"testing"
	"time"

	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/pkg/models"
	"github.com/stretchr/testify/assert"
)

func defaultRouter() *Router {
	return NewRouter(config.ProcessingConfig{
		BoundedTimeout:   15 * time.Minute,
		UnboundedTimeout: 60 * time.Minute,
	})
}

func TestRouteMalwareScanAlwaysUnbounded(t *testing.T) {
	r := defaultRouter()

	// Even a tiny input goes to the isolated environment.
	route := r.Route(models.JobTypeMalwareScan, 10*1024, 0)

	assert.Equal(t, EnvUnbounded, route.Environment)
	assert.Contains(t, route.Reason, "malware")
}

func TestRouteSmallThumbnailBounded(t *testing.T) {
	r := defaultRouter()

	route := r.Route(models.JobTypeThumbnail, 3*1024*1024, 0)

	assert.Equal(t, EnvBounded, route.Environment)
	assert.Contains(t, route.Reason, "under bounded timeout")
}

func TestRoutePageCountOverride(t *testing.T) {
	r := defaultRouter()

	route := r.Route(models.JobTypeOCR, 1024*1024, 150)

	assert.Equal(t, EnvUnbounded, route.Environment)
	assert.Contains(t, route.Reason, "page count 150")
}

func TestRouteSizeOverride(t *testing.T) {
	r := defaultRouter()

	route := r.Route(models.JobTypeThumbnail, 60*1024*1024, 0)

	assert.Equal(t, EnvUnbounded, route.Environment)
	assert.Contains(t, route.Reason, "exceeds")
}

func TestRouteEstimateExceedingWindow(t *testing.T) {
	r := NewRouter(config.ProcessingConfig{
		BoundedTimeout:   time.Second,
		UnboundedTimeout: time.Hour,
	})

	// 10 MB at 200ms/MB estimates 2s, past the 1s bounded window.
	route := r.Route(models.JobTypeThumbnail, 10*1024*1024, 0)

	assert.Equal(t, EnvUnbounded, route.Environment)
	assert.Contains(t, route.Reason, "exceeds bounded timeout")
}

func TestRouteUnknownJobTypeGetsFlatEstimate(t *testing.T) {
	r := defaultRouter()

	route := r.Route("TRANSCODE", 1024, 0)

	assert.Equal(t, 5*time.Minute, route.EstimatedDuration)
	assert.Equal(t, EnvBounded, route.Environment)
}

func TestTimeoutPerEnvironment(t *testing.T) {
	r := defaultRouter()

	assert.Equal(t, 15*time.Minute, r.Timeout(EnvBounded))
	assert.Equal(t, 60*time.Minute, r.Timeout(EnvUnbounded))
}

func TestEstimateFloors(t *testing.T) {
	r := defaultRouter()

	// A near-empty file still pays the per-job floor.
	route := r.Route(models.JobTypeOCR, 1, 0)
	assert.Equal(t, 5*time.Second, route.EstimatedDuration)
}
