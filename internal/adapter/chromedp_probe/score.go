package chromedp_probe

import (
	"math"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
)

// threshold maps a timing to 100 at or below good and to 0 at or above poor.
type threshold struct {
	good, poor float64
	weight     float64
}

var mobileThresholds = struct{ ttfb, fcp, dcl, load threshold }{
	ttfb: threshold{good: 800, poor: 1800, weight: 0.2},
	fcp:  threshold{good: 1800, poor: 3000, weight: 0.4},
	dcl:  threshold{good: 2000, poor: 4000, weight: 0.15},
	load: threshold{good: 2500, poor: 6000, weight: 0.25},
}

// Desktop pages are held to half the mobile budgets.
var desktopThresholds = struct{ ttfb, fcp, dcl, load threshold }{
	ttfb: threshold{good: 400, poor: 900, weight: 0.2},
	fcp:  threshold{good: 900, poor: 1500, weight: 0.4},
	dcl:  threshold{good: 1000, poor: 2000, weight: 0.15},
	load: threshold{good: 1250, poor: 3000, weight: 0.25},
}

// Score converts navigation timings into a 0-100 lab score for the device profile.
func Score(m *entity.PerformanceMetrics, device repository.DeviceProfile) float64 {
	t := desktopThresholds
	if device == repository.DeviceMobile {
		t = mobileThresholds
	}
	total := t.ttfb.score(m.TTFBMS)*t.ttfb.weight +
		t.fcp.score(m.FCPMS)*t.fcp.weight +
		t.dcl.score(m.DOMContentLoaded)*t.dcl.weight +
		t.load.score(m.LoadMS)*t.load.weight
	return math.Round(total*10) / 10
}

func (t threshold) score(ms float64) float64 {
	switch {
	case ms <= t.good:
		return 100
	case ms >= t.poor:
		return 0
	}
	return 100 * (t.poor - ms) / (t.poor - t.good)
}
