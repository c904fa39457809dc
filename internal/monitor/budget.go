// budget.go - Performance budgets checked on every diagnostic pass.
package monitor

import (
	"fmt"

	"github.com/brennhill/gasoline-perfkit/internal/bundle"
	"github.com/brennhill/gasoline-perfkit/internal/vitals"
)

// Budget caps. Zero values disable a check.
type Budget struct {
	MaxLCPMs       float64 `json:"max_lcp_ms" yaml:"max_lcp_ms"`
	MaxFIDMs       float64 `json:"max_fid_ms" yaml:"max_fid_ms"`
	MaxCLS         float64 `json:"max_cls" yaml:"max_cls"`
	MaxBundleBytes int64   `json:"max_bundle_bytes" yaml:"max_bundle_bytes"`
	MinScore       int     `json:"min_score" yaml:"min_score"`
}

// DefaultBudget follows the Web Vitals "good" thresholds.
var DefaultBudget = Budget{
	MaxLCPMs:       2500,
	MaxFIDMs:       100,
	MaxCLS:         0.1,
	MaxBundleBytes: 1 << 20,
	MinScore:       75,
}

// Violation is one exceeded budget.
type Violation struct {
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
	Limit   float64 `json:"limit"`
	Message string  `json:"message"`
}

// Check compares reports against the budget. Absent metrics never violate.
func (b Budget) Check(perf vitals.Report, bun bundle.Report) []Violation {
	var out []Violation
	over := func(metric string, v *float64, limit float64, unit string) {
		if v == nil || limit <= 0 || *v <= limit {
			return
		}
		out = append(out, Violation{
			Metric:  metric,
			Value:   *v,
			Limit:   limit,
			Message: fmt.Sprintf("%s %.4g%s exceeds budget %.4g%s", metric, *v, unit, limit, unit),
		})
	}
	m := perf.Metrics
	over("lcp", m.LCP, b.MaxLCPMs, "ms")
	over("fid", m.FID, b.MaxFIDMs, "ms")
	over("cls", m.CLS, b.MaxCLS, "")

	bundleBytes := bun.Metrics.TotalSizeBytes
	if m.BundleSizeBytes != nil && *m.BundleSizeBytes > bundleBytes {
		bundleBytes = *m.BundleSizeBytes
	}
	if b.MaxBundleBytes > 0 && bundleBytes > b.MaxBundleBytes {
		out = append(out, Violation{
			Metric:  "bundle_bytes",
			Value:   float64(bundleBytes),
			Limit:   float64(b.MaxBundleBytes),
			Message: fmt.Sprintf("bundle %d bytes exceeds budget %d bytes", bundleBytes, b.MaxBundleBytes),
		})
	}
	if b.MinScore > 0 && perf.Score < b.MinScore {
		out = append(out, Violation{
			Metric:  "score",
			Value:   float64(perf.Score),
			Limit:   float64(b.MinScore),
			Message: fmt.Sprintf("score %d is below budget %d", perf.Score, b.MinScore),
		})
	}
	return out
}
