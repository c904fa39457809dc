// scoring.go - Heuristic 0-100 page score and issue derivation.
// The weights are a local heuristic, not a standardized benchmark.
package vitals

import (
	"fmt"
	"sort"
)

// tier is one step of a tiered penalty: values strictly above limit lose
// penalty points. Tiers are ordered worst first; only the first match applies.
type tier struct {
	limit    float64
	penalty  int
	severity Severity
	impact   int
	priority Priority
}

var (
	lcpTiers = []tier{
		{4000, 25, SeverityCritical, 9, PriorityHigh},
		{2500, 15, SeverityWarning, 6, PriorityMedium},
		{1500, 5, SeverityInfo, 3, PriorityLow},
	}
	fidTiers = []tier{
		{300, 25, SeverityCritical, 9, PriorityHigh},
		{100, 15, SeverityWarning, 6, PriorityMedium},
		{50, 5, SeverityInfo, 3, PriorityLow},
	}
	clsTiers = []tier{
		{0.25, 25, SeverityCritical, 8, PriorityHigh},
		{0.1, 15, SeverityWarning, 5, PriorityMedium},
		{0.05, 5, SeverityInfo, 2, PriorityLow},
	}
)

const (
	memoryRatioLimit   = 0.8
	memoryPenalty      = 10
	bundleBytesLimit   = 1 << 20
	bundlePenalty      = 10
	ttfbLimitMs        = 600
	ttfbPenalty        = 5
	rerenderIssueLimit = 10
)

// remedies holds the fixed remedy text per category.
var remedies = map[Category]string{
	CategoryLoading:   "Optimize the critical rendering path: preload the hero resource, compress images and defer non-critical scripts.",
	CategoryRendering: "Reduce main-thread work: split long tasks, memoize expensive components and reserve space for late content.",
	CategoryMemory:    "Release unused references: remove stale listeners, disconnect observers and clear timers on unmount.",
	CategoryNetwork:   "Improve server response: cache at the edge, reduce backend latency and enable HTTP/2 or HTTP/3.",
	CategoryBundle:    "Shrink the JavaScript bundle: code-split routes, tree-shake dependencies and lazy-load heavy modules.",
}

// Remedy returns the fixed remedy text for a category.
func Remedy(c Category) string { return remedies[c] }

func matchTier(v float64, tiers []tier) (tier, bool) {
	for _, t := range tiers {
		if v > t.limit {
			return t, true
		}
	}
	return tier{}, false
}

// Score computes the 0-100 score of s. Absent metrics contribute nothing.
// Deterministic for a given snapshot.
func Score(s Snapshot) int {
	score := 100
	for _, m := range []struct {
		v     *float64
		tiers []tier
	}{{s.LCP, lcpTiers}, {s.FID, fidTiers}, {s.CLS, clsTiers}} {
		if m.v == nil {
			continue
		}
		if t, ok := matchTier(*m.v, m.tiers); ok {
			score -= t.penalty
		}
	}
	if s.MemoryUsageRatio != nil && *s.MemoryUsageRatio > memoryRatioLimit {
		score -= memoryPenalty
	}
	if s.BundleSizeBytes != nil && *s.BundleSizeBytes > bundleBytesLimit {
		score -= bundlePenalty
	}
	if s.TTFB != nil && *s.TTFB > ttfbLimitMs {
		score -= ttfbPenalty
	}
	return max(0, min(100, score))
}

// DeriveIssues emits one issue per threshold breach plus one low-priority
// rendering issue per component re-rendered more than ten times.
func DeriveIssues(s Snapshot) []Issue {
	var issues []Issue

	tiered := func(v *float64, tiers []tier, cat Category, label, unit string) {
		if v == nil {
			return
		}
		t, ok := matchTier(*v, tiers)
		if !ok {
			return
		}
		issues = append(issues, Issue{
			Severity:    t.severity,
			Category:    cat,
			Message:     fmt.Sprintf("%s is %s (threshold %s)", label, formatValue(*v, unit), formatValue(t.limit, unit)),
			ImpactScore: t.impact,
			Remedy:      remedies[cat],
			Priority:    t.priority,
		})
	}
	tiered(s.LCP, lcpTiers, CategoryLoading, "Largest Contentful Paint", "ms")
	tiered(s.FID, fidTiers, CategoryRendering, "First Input Delay", "ms")
	tiered(s.CLS, clsTiers, CategoryRendering, "Cumulative Layout Shift", "")

	if s.MemoryUsageRatio != nil && *s.MemoryUsageRatio > memoryRatioLimit {
		issues = append(issues, Issue{
			Severity:    SeverityWarning,
			Category:    CategoryMemory,
			Message:     fmt.Sprintf("Memory usage is %.0f%% of the heap limit", *s.MemoryUsageRatio*100),
			ImpactScore: 7,
			Remedy:      remedies[CategoryMemory],
			Priority:    PriorityHigh,
		})
	}
	if s.BundleSizeBytes != nil && *s.BundleSizeBytes > bundleBytesLimit {
		issues = append(issues, Issue{
			Severity:    SeverityWarning,
			Category:    CategoryBundle,
			Message:     fmt.Sprintf("JavaScript bundle is %.1f MB", float64(*s.BundleSizeBytes)/(1<<20)),
			ImpactScore: 6,
			Remedy:      remedies[CategoryBundle],
			Priority:    PriorityMedium,
		})
	}
	if s.TTFB != nil && *s.TTFB > ttfbLimitMs {
		issues = append(issues, Issue{
			Severity:    SeverityWarning,
			Category:    CategoryNetwork,
			Message:     fmt.Sprintf("Time to First Byte is %s", formatValue(*s.TTFB, "ms")),
			ImpactScore: 5,
			Remedy:      remedies[CategoryNetwork],
			Priority:    PriorityMedium,
		})
	}

	names := make([]string, 0, len(s.RerenderCount))
	for name, n := range s.RerenderCount {
		if n > rerenderIssueLimit {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		issues = append(issues, Issue{
			Severity:    SeverityInfo,
			Category:    CategoryRendering,
			Message:     fmt.Sprintf("Component %s re-rendered %d times", name, s.RerenderCount[name]),
			ImpactScore: 2,
			Remedy:      remedies[CategoryRendering],
			Priority:    PriorityLow,
		})
	}
	return issues
}

var priorityRank = map[Priority]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

// Recommendations returns the distinct remedies of issues, most urgent first.
func Recommendations(issues []Issue) []string {
	sorted := append([]Issue(nil), issues...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return priorityRank[sorted[i].Priority] < priorityRank[sorted[j].Priority]
	})
	seen := make(map[string]bool)
	out := []string{}
	for _, is := range sorted {
		if !seen[is.Remedy] {
			seen[is.Remedy] = true
			out = append(out, is.Remedy)
		}
	}
	return out
}

func formatValue(v float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%.3g", v)
	}
	return fmt.Sprintf("%.0f%s", v, unit)
}
