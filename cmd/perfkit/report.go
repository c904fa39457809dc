// report.go - Report → output.Result conversion shared by the commands.
package main

import (
	"fmt"

	"github.com/brennhill/gasoline-perfkit/cmd/perfkit/output"
	"github.com/brennhill/gasoline-perfkit/internal/bundle"
	"github.com/brennhill/gasoline-perfkit/internal/memory"
	"github.com/brennhill/gasoline-perfkit/internal/monitor"
	"github.com/brennhill/gasoline-perfkit/internal/vitals"
)

func addVitalFields(res *output.Result, r vitals.Report) {
	s := r.Metrics
	metrics := []struct {
		name string
		v    *float64
	}{
		{"lcp", s.LCP}, {"fcp", s.FCP}, {"fid", s.FID}, {"cls", s.CLS}, {"ttfb", s.TTFB},
	}
	for _, m := range metrics {
		if m.v == nil {
			continue
		}
		value := formatMs(*m.v)
		if m.name == "cls" {
			value = fmt.Sprintf("%.3f", *m.v)
		}
		res.AddField(m.name, fmt.Sprintf("%s (%s)", value, r.Ratings[m.name]))
	}
	res.AddField("device", string(s.DeviceClass))
	if s.NetworkClass != "" {
		res.AddField("network", s.NetworkClass)
	}
}

func perfResult(r vitals.Report) *output.Result {
	res := &output.Result{
		Success: true,
		Command: "score",
		Summary: fmt.Sprintf("Performance score %d/100", r.Score),
		Data:    r,
	}
	addVitalFields(res, r)
	for _, is := range r.Issues {
		res.AddFinding(string(is.Severity), is.Message)
	}
	for _, rec := range r.Recommendations {
		res.AddFinding("info", rec)
	}
	return res
}

func addBundleFields(res *output.Result, r bundle.Report) {
	m := r.Metrics
	res.AddField("size", fmt.Sprintf("%s (%s gzip)", formatBytes(m.TotalSizeBytes), formatBytes(m.GzippedSizeBytes)))
	res.AddField("modules", fmt.Sprint(len(m.Modules)))
	res.AddField("duplicates", fmt.Sprint(len(m.Duplicates)))
	if m.LoadTimeMs > 0 {
		res.AddField("load time", formatMs(m.LoadTimeMs))
	}
}

func bundleResult(r bundle.Report) *output.Result {
	res := &output.Result{
		Success: true,
		Command: "bundle",
		Summary: fmt.Sprintf("Bundle score %d/100", r.Score),
		Data:    r,
	}
	addBundleFields(res, r)
	for _, o := range r.Optimizations {
		text := o.Description
		if o.Savings > 0 {
			text += fmt.Sprintf(" (saves %.0f %s)", o.Savings, o.Unit)
		}
		res.AddFinding(string(o.Impact), text)
	}
	return res
}

func addMemoryFields(res *output.Result, r memory.Report) {
	if r.Metrics == nil {
		res.AddField("heap", "unavailable")
		return
	}
	res.AddField("heap", fmt.Sprintf("%s of %s (%.1f%%, %s)",
		formatBytes(int64(r.Metrics.UsedBytes)), formatBytes(int64(r.Metrics.LimitBytes)),
		r.Metrics.UsagePercentage, r.Metrics.Trend))
}

// fullResult renders a diagnostic pass. Budget violations fail the command.
func fullResult(command string, r monitor.FullReport) *output.Result {
	res := &output.Result{
		Success: len(r.Violations) == 0,
		Command: command,
		Summary: fmt.Sprintf("Performance %d, bundle %d, %d budget violation(s)",
			r.Performance.Score, r.Bundle.Score, len(r.Violations)),
		Data: r,
	}
	addVitalFields(res, r.Performance)
	addBundleFields(res, r.Bundle)
	addMemoryFields(res, r.Memory)
	for _, v := range r.Violations {
		res.AddFinding("critical", v.Message)
	}
	for _, is := range r.Performance.Issues {
		res.AddFinding(string(is.Severity), is.Message)
	}
	for _, l := range r.Memory.Leaks {
		res.AddFinding(string(l.Severity), l.Description)
	}
	return res
}
