package repository

import (
	"context"
	"net/http"
	"time"

	"github.com/user/seo-audit-service/internal/entity"
)

// FetchResult is the outcome of one page fetch.
type FetchResult struct {
	RequestedURL string
	FinalURL     string
	StatusCode   int
	Header       http.Header
	ContentType  string
	Body         []byte
	SizeBytes    int64
	TooLarge     bool // body exceeded the byte ceiling and was discarded
	RedirectHops int
	ResponseTime time.Duration
}

// IsHTML reports whether the response carries an HTML document.
func (r *FetchResult) IsHTML() bool {
	return containsFold(r.ContentType, "text/html") || containsFold(r.ContentType, "application/xhtml")
}

// PageFetcher retrieves a page with a bounded timeout and a capped redirect count.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// ProbeResult is the outcome of a lightweight existence probe.
type ProbeResult struct {
	StatusCode   int
	FinalURL     string
	RedirectHops int
}

// LinkProber checks that a link target exists without downloading it.
type LinkProber interface {
	Probe(ctx context.Context, url string) (*ProbeResult, error)
}

// DeviceProfile selects the emulated device of a performance probe.
type DeviceProfile string

const (
	DeviceMobile  DeviceProfile = "mobile"
	DeviceDesktop DeviceProfile = "desktop"
)

// PerformanceProbe measures lab performance for one URL and device profile.
type PerformanceProbe interface {
	Measure(ctx context.Context, url string, device DeviceProfile) (*entity.PerformanceMetrics, error)
}
