// diff.go - Before/after comparison of two snapshots.
// Used by the diagnostic loop to flag regressions between runs and by the
// CLI to compare a snapshot against a saved baseline.
package vitals

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// MetricDiff holds the before/after comparison for a single metric.
type MetricDiff struct {
	Before   float64 `json:"before"`
	After    float64 `json:"after"`
	Delta    float64 `json:"delta"`
	Pct      string  `json:"pct"`
	Unit     string  `json:"unit,omitempty"` // "ms", "KB"; empty for unitless (CLS)
	Improved bool    `json:"improved"`
	Rating   Rating  `json:"rating,omitempty"`
}

// SnapshotDiff is the complete comparison.
type SnapshotDiff struct {
	Verdict     string                `json:"verdict"` // "improved", "regressed", "mixed", "unchanged"
	Metrics     map[string]MetricDiff `json:"metrics"`
	ScoreBefore int                   `json:"score_before"`
	ScoreAfter  int                   `json:"score_after"`
	Summary     string                `json:"summary"`
}

// Regressed reports whether any metric got worse.
func (d SnapshotDiff) Regressed() bool {
	return d.Verdict == "regressed" || d.Verdict == "mixed"
}

// Compare diffs two snapshots. Metrics absent on either side are omitted.
func Compare(before, after Snapshot) SnapshotDiff {
	diff := SnapshotDiff{
		Metrics:     make(map[string]MetricDiff),
		ScoreBefore: Score(before),
		ScoreAfter:  Score(after),
	}
	pairs := []struct {
		name string
		b, a *float64
	}{
		{"ttfb", before.TTFB, after.TTFB},
		{"fcp", before.FCP, after.FCP},
		{"lcp", before.LCP, after.LCP},
		{"fid", before.FID, after.FID},
		{"cls", before.CLS, after.CLS},
		{"dom_content_loaded", before.DOMContentLoaded, after.DOMContentLoaded},
		{"load", before.LoadComplete, after.LoadComplete},
	}
	for _, p := range pairs {
		if p.b == nil || p.a == nil {
			continue
		}
		addMetricIfValid(diff.Metrics, p.name, *p.b, *p.a)
	}
	if before.BundleSizeBytes != nil && after.BundleSizeBytes != nil {
		addMetricIfValid(diff.Metrics, "bundle_kb", float64(*before.BundleSizeBytes)/1024, float64(*after.BundleSizeBytes)/1024)
	}

	diff.Verdict = computeVerdict(diff.Metrics)
	diff.Summary = summarize(diff)
	return diff
}

// buildMetricDiff computes a single metric diff if at least one value is non-zero.
func buildMetricDiff(name string, beforeVal, afterVal float64) (MetricDiff, bool) {
	if beforeVal == 0 && afterVal == 0 {
		return MetricDiff{}, false
	}
	var d float64
	var pctStr string
	if beforeVal == 0 {
		d = round(afterVal, name)
		pctStr = "n/a"
	} else {
		d = round(afterVal-beforeVal, name)
		pctStr = formatPct((afterVal - beforeVal) / beforeVal * 100)
	}
	return MetricDiff{
		Before:   round(beforeVal, name),
		After:    round(afterVal, name),
		Delta:    d,
		Pct:      pctStr,
		Unit:     unitForMetric(name),
		Improved: d < 0,
		Rating:   Rate(name, afterVal),
	}, true
}

func addMetricIfValid(metrics map[string]MetricDiff, name string, beforeVal, afterVal float64) {
	if md, ok := buildMetricDiff(name, beforeVal, afterVal); ok {
		metrics[name] = md
	}
}

// computeVerdict derives the overall verdict from metric deltas.
func computeVerdict(metrics map[string]MetricDiff) string {
	improved, regressed := 0, 0
	for _, md := range metrics {
		if md.Delta < 0 {
			improved++
		} else if md.Delta > 0 {
			regressed++
		}
	}
	switch {
	case improved > 0 && regressed == 0:
		return "improved"
	case regressed > 0 && improved == 0:
		return "regressed"
	case improved > 0 && regressed > 0:
		return "mixed"
	default:
		return "unchanged"
	}
}

type metricEntry struct {
	name string
	md   MetricDiff
}

// sortedMetrics orders metrics by absolute percentage change, biggest first.
func sortedMetrics(metrics map[string]MetricDiff) []metricEntry {
	sorted := make([]metricEntry, 0, len(metrics))
	for name, md := range metrics {
		sorted = append(sorted, metricEntry{name, md})
	}
	sort.Slice(sorted, func(i, j int) bool {
		pi, pj := pctAbs(sorted[i].md), pctAbs(sorted[j].md)
		if pi != pj {
			return pi > pj
		}
		return sorted[i].name < sorted[j].name
	})
	return sorted
}

func direction(md MetricDiff) string {
	if md.Delta == 0 {
		return "unchanged"
	}
	if md.Improved {
		return "improved"
	}
	return "regressed"
}

// summarize leads with the biggest change and flags the first regression.
func summarize(diff SnapshotDiff) string {
	if len(diff.Metrics) == 0 {
		return "No performance changes detected."
	}
	sorted := sortedMetrics(diff.Metrics)
	top := sorted[0]
	lead := fmt.Sprintf("%s %s %.0f%%", strings.ToUpper(top.name), direction(top.md), pctAbs(top.md))
	if top.md.Rating != "" {
		lead += fmt.Sprintf(" (%s)", top.md.Rating)
	}
	parts := []string{lead}
	if top.md.Improved || top.md.Delta == 0 {
		for _, e := range sorted[1:] {
			if !e.md.Improved && e.md.Delta != 0 {
				parts = append(parts, fmt.Sprintf("warning: %s regressed %.0f%%", strings.ToUpper(e.name), pctAbs(e.md)))
				break
			}
		}
	}
	if diff.ScoreBefore != diff.ScoreAfter {
		parts = append(parts, fmt.Sprintf("score %d -> %d", diff.ScoreBefore, diff.ScoreAfter))
	}
	out := strings.Join(parts, "; ")
	if len(out) > 200 {
		out = out[:197] + "..."
	}
	return out
}

// ============================================
// Helpers
// ============================================

func pctAbs(md MetricDiff) float64 {
	if md.Before == 0 {
		return 0
	}
	return math.Abs(md.Delta / md.Before * 100)
}

// round keeps one decimal for timings and four for CLS.
func round(v float64, name string) float64 {
	if name == "cls" {
		return math.Round(v*10000) / 10000
	}
	return math.Round(v*10) / 10
}

func formatPct(pct float64) string {
	rounded := math.Round(pct)
	if rounded >= 0 {
		return fmt.Sprintf("+%.0f%%", rounded)
	}
	return fmt.Sprintf("%.0f%%", rounded)
}

func unitForMetric(name string) string {
	switch name {
	case "ttfb", "fcp", "lcp", "fid", "dom_content_loaded", "load":
		return "ms"
	case "bundle_kb":
		return "KB"
	default:
		return ""
	}
}
