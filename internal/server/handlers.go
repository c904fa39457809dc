// handlers.go - Ingest, report and virtualization endpoints.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/bundle"
	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/util"
	"github.com/brennhill/gasoline-perfkit/internal/virtual"
)

// decodeBody reads a bounded JSON body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxPostBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		util.JSONError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

// requirePush answers 501 when the monitor's host does not accept pushes.
func (s *Server) requirePush(w http.ResponseWriter) bool {
	if s.push == nil {
		util.JSONError(w, http.StatusNotImplemented, "host does not accept pushed data")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"running": s.mon.Running(),
	}
	if s.push != nil {
		resp["delivered"] = s.push.Delivered()
		resp["observers"] = s.push.ObserverCount()
	}
	util.JSONResponse(w, http.StatusOK, resp)
}

// ============================================
// Ingest
// ============================================

type entriesRequest struct {
	Entries       []host.Entry        `json:"entries"`
	Memory        *host.MemoryReadout `json:"memory,omitempty"`
	NetworkClass  string              `json:"network_class,omitempty"`
	ViewportWidth float64             `json:"viewport_width,omitempty"`
}

var knownEntryTypes = func() map[host.EntryType]bool {
	m := make(map[host.EntryType]bool, len(host.AllEntryTypes))
	for _, t := range host.AllEntryTypes {
		m[t] = true
	}
	return m
}()

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	if !s.requirePush(w) {
		return
	}
	var body entriesRequest
	if !decodeBody(w, r, &body) {
		return
	}

	// Environment first so collectors that start afterwards see it.
	if body.NetworkClass != "" {
		s.push.SetNetworkClass(body.NetworkClass)
	}
	if body.ViewportWidth > 0 {
		s.push.SetViewport(body.ViewportWidth)
	}
	if body.Memory != nil {
		s.push.SetMemory(*body.Memory)
	}

	valid := body.Entries[:0]
	rejected := 0
	for _, e := range body.Entries {
		if !knownEntryTypes[e.Type] {
			rejected++
			continue
		}
		valid = append(valid, e)
	}
	delivered := s.push.Deliver(valid...)
	if rejected > 0 {
		s.logger.Debug("rejected unknown entry types", zap.Int("count", rejected))
	}
	util.JSONResponse(w, http.StatusAccepted, map[string]int{
		"accepted": len(valid),
		"rejected": rejected,
		"observed": delivered,
	})
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	if !s.requirePush(w) {
		return
	}
	var readout host.MemoryReadout
	if !decodeBody(w, r, &readout) {
		return
	}
	if readout.LimitBytes == 0 {
		util.JSONError(w, http.StatusBadRequest, "limit_bytes is required")
		return
	}
	s.push.SetMemory(readout)
	m, _ := s.mon.Memory().Sample()
	util.JSONResponse(w, http.StatusOK, m)
}

type renderRequest struct {
	Component  string  `json:"component"`
	DurationMs float64 `json:"duration_ms"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var body renderRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Component == "" {
		util.JSONError(w, http.StatusBadRequest, "component is required")
		return
	}
	s.mon.Vitals().TrackComponentRender(body.Component, body.DurationMs)
	w.WriteHeader(http.StatusNoContent)
}

type componentRequest struct {
	Name   string `json:"name"`
	Action string `json:"action"` // mount | unmount
}

func (s *Server) handleComponent(w http.ResponseWriter, r *http.Request) {
	var body componentRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" {
		util.JSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	mem := s.mon.Memory()
	switch body.Action {
	case "mount":
		mem.RegisterComponent(body.Name)
	case "unmount":
		mem.UnregisterComponent(body.Name)
	default:
		util.JSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", body.Action))
		return
	}
	util.JSONResponse(w, http.StatusOK, map[string]any{
		"name":           body.Name,
		"live_instances": mem.LiveInstances(body.Name),
	})
}

// ============================================
// Bundle
// ============================================

func (s *Server) handleBundleGraph(w http.ResponseWriter, r *http.Request) {
	var g bundle.Graph
	if !decodeBody(w, r, &g) {
		return
	}
	s.mon.Bundle().SetGraph(g)
	util.JSONResponse(w, http.StatusOK, map[string]int{"modules": len(g.Modules)})
}

type chunkRequest struct {
	Name       string  `json:"name"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

func (s *Server) handleChunkLoad(w http.ResponseWriter, r *http.Request) {
	var body chunkRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" {
		util.JSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	var err error
	if body.Error != "" {
		err = errors.New(body.Error)
	}
	d := time.Duration(body.DurationMs * float64(time.Millisecond))
	s.mon.Bundle().RecordChunkLoad(body.Name, d, err)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleParseTime(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ParseTimeMs float64 `json:"parse_time_ms"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	s.mon.Bundle().RecordParseTime(body.ParseTimeMs)
	w.WriteHeader(http.StatusNoContent)
}

// ============================================
// Reports
// ============================================

func (s *Server) handlePerformanceReport(w http.ResponseWriter, _ *http.Request) {
	util.JSONResponse(w, http.StatusOK, s.mon.Vitals().GenerateReport())
}

func (s *Server) handleBundleReport(w http.ResponseWriter, _ *http.Request) {
	util.JSONResponse(w, http.StatusOK, s.mon.Bundle().GenerateReport())
}

func (s *Server) handleMemoryReport(w http.ResponseWriter, _ *http.Request) {
	util.JSONResponse(w, http.StatusOK, s.mon.Memory().GenerateReport())
}

func (s *Server) handleFullReport(w http.ResponseWriter, _ *http.Request) {
	util.JSONResponse(w, http.StatusOK, s.mon.FullReport())
}

func (s *Server) handleLastReport(w http.ResponseWriter, _ *http.Request) {
	last, ok := s.mon.LastReport()
	if !ok {
		util.JSONError(w, http.StatusNotFound, "no diagnostic pass has run yet")
		return
	}
	util.JSONResponse(w, http.StatusOK, last)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	util.JSONResponse(w, http.StatusOK, s.mon.RunDiagnostics(r.Context()))
}

// ============================================
// Virtualization
// ============================================

type rangeResponse struct {
	Range        virtual.Range         `json:"range"`
	Items        []virtual.VirtualItem `json:"items"`
	TotalSize    float64               `json:"total_size"`
	ScrollOffset *float64              `json:"scroll_offset,omitempty"`
}

// Range request limits. Items are materialized per request, so both the
// list length and the window are bounded.
const (
	maxRangeItemCount = 1_000_000
	maxRangeWindow    = 10_000
)

// handleVirtualRange computes the fixed-height window for query params
// scroll_top, item_height, container_height, item_count, overscan and,
// when index is given, the aligned scroll offset for it.
func (s *Server) handleVirtualRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var parseErr error
	num := func(key string) float64 {
		v := q.Get(key)
		if v == "" || parseErr != nil {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
			err = errors.New("must be finite")
		}
		if err != nil {
			parseErr = fmt.Errorf("%s: %w", key, err)
		}
		return f
	}
	integer := func(key string) int {
		v := q.Get(key)
		if v == "" || parseErr != nil {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErr = fmt.Errorf("%s: %w", key, err)
		}
		return n
	}
	scrollTop := num("scroll_top")
	itemHeight := num("item_height")
	containerHeight := num("container_height")
	itemCount := integer("item_count")
	overscan := integer("overscan")
	if parseErr != nil {
		util.JSONError(w, http.StatusBadRequest, parseErr.Error())
		return
	}
	if itemCount > maxRangeItemCount {
		util.JSONError(w, http.StatusBadRequest, fmt.Sprintf("item_count: exceeds %d", maxRangeItemCount))
		return
	}

	rng := virtual.ComputeVisibleRange(scrollTop, itemHeight, containerHeight, itemCount, overscan)
	if rng.Len() > maxRangeWindow {
		util.JSONError(w, http.StatusBadRequest, fmt.Sprintf("window of %d items exceeds %d", rng.Len(), maxRangeWindow))
		return
	}
	items := virtual.Materialize(rng, itemHeight)
	if items == nil {
		items = []virtual.VirtualItem{}
	}
	resp := rangeResponse{Range: rng, Items: items}
	if itemCount > 0 && itemHeight > 0 {
		resp.TotalSize = float64(itemCount) * itemHeight
	}
	if idx := q.Get("index"); idx != "" {
		i, err := strconv.Atoi(idx)
		if err != nil {
			util.JSONError(w, http.StatusBadRequest, "index: "+err.Error())
			return
		}
		off := virtual.ScrollOffsetForIndex(i, itemCount, itemHeight, containerHeight, virtual.ParseAlign(q.Get("align")))
		resp.ScrollOffset = &off
	}
	util.JSONResponse(w, http.StatusOK, resp)
}
