// ratings.go - Web Vitals good / needs-improvement / poor ratings.
package vitals

// Rating is a Web Vitals bucket.
type Rating string

const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs-improvement"
	RatingPoor             Rating = "poor"
)

// metricThreshold defines Web Vitals thresholds for a metric.
type metricThreshold struct {
	good float64 // values at or below this are "good"
	ni   float64 // values at or below this are "needs-improvement"; above is "poor"
}

// webVitalsThresholds maps metric names to their Web Vitals thresholds.
var webVitalsThresholds = map[string]metricThreshold{
	"lcp":  {good: 2500, ni: 4000},
	"fcp":  {good: 1800, ni: 3000},
	"fid":  {good: 100, ni: 300},
	"ttfb": {good: 800, ni: 1800},
	"cls":  {good: 0.1, ni: 0.25},
}

// Rate returns the Web Vitals rating for a metric value. Returns "" for
// metrics without standard thresholds.
func Rate(name string, value float64) Rating {
	t, ok := webVitalsThresholds[name]
	if !ok {
		return ""
	}
	if value <= t.good {
		return RatingGood
	}
	if value <= t.ni {
		return RatingNeedsImprovement
	}
	return RatingPoor
}

// Ratings rates every vital present in s.
func Ratings(s Snapshot) map[string]Rating {
	out := make(map[string]Rating, 5)
	add := func(name string, v *float64) {
		if v != nil {
			out[name] = Rate(name, *v)
		}
	}
	add("lcp", s.LCP)
	add("fid", s.FID)
	add("cls", s.CLS)
	add("fcp", s.FCP)
	add("ttfb", s.TTFB)
	return out
}
