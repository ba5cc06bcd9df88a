// Package objectsurface is the HTTP+JSON adapter standing in for the
// D-Bus Object Surface of spec §6: it exposes the report manager, the
// trigger manager, and their per-object properties and methods as
// named HTTP routes, and replaces the ReadingsUpdate signal with a
// webhook callback list.
package objectsurface

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/obslog"
	"github.com/thisdougb/telemetryd/internal/reading"
	"github.com/thisdougb/telemetryd/internal/report"
	"github.com/thisdougb/telemetryd/internal/threshold"
	"go.uber.org/zap"
)

// Server adapts a report.Manager and threshold.Manager onto an HTTP
// mux. buildMetrics and resolveSensor bridge the stored JSON schema to
// live sensor.Handle references, since this package has no dependency
// on the sensor cache or bus transport.
type Server struct {
	reportMgr  *report.Manager
	triggerMgr *threshold.Manager

	buildMetrics  report.Builder
	resolveSensor threshold.SensorResolver

	client *http.Client

	mu                   sync.Mutex
	webhooks             map[string][]string // report ID -> subscriber URLs
	maxTriggers          int
	pollRateResolutionMs int64
	minIntervalMs        int64
	maxReports           int
}

// Config carries the manager-level properties §6 exposes on the
// report/trigger manager objects (MaxReports, PollRateResolution,
// MinInterval).
type Config struct {
	MaxReports           int
	MaxTriggers          int
	PollRateResolutionMs int64
	MinIntervalMs        int64
}

// NewServer builds an adapter over the given managers.
func NewServer(reportMgr *report.Manager, triggerMgr *threshold.Manager, buildMetrics report.Builder, resolveSensor threshold.SensorResolver, cfg Config) *Server {
	return &Server{
		reportMgr:            reportMgr,
		triggerMgr:           triggerMgr,
		buildMetrics:         buildMetrics,
		resolveSensor:        resolveSensor,
		client:               &http.Client{Timeout: 5 * time.Second},
		webhooks:             make(map[string][]string),
		maxTriggers:          cfg.MaxTriggers,
		pollRateResolutionMs: cfg.PollRateResolutionMs,
		minIntervalMs:        cfg.MinIntervalMs,
		maxReports:           cfg.MaxReports,
	}
}

// OnReadingsUpdate is the report.Manager's readings-update callback:
// it fans snap out to every webhook URL registered against reportID,
// standing in for the D-Bus ReadingsUpdate signal.
func (s *Server) OnReadingsUpdate(reportID string, snap reading.Snapshot) {
	s.mu.Lock()
	urls := append([]string(nil), s.webhooks[reportID]...)
	s.mu.Unlock()
	if len(urls) == 0 {
		return
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return
	}
	for _, url := range urls {
		go s.postWebhook(url, body)
	}
}

func (s *Server) postWebhook(url string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		obslog.Warn(ctx, "readings update webhook failed", zap.String("url", url), zap.Error(err))
		return
	}
	resp.Body.Close()
}

// Handler returns the adapter's full route set.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /manager", s.handleManagerInfo)

	mux.HandleFunc("GET /reports", s.handleListReports)
	mux.HandleFunc("POST /reports", s.handleAddReport)
	mux.HandleFunc("GET /reports/{id}", s.handleGetReport)
	mux.HandleFunc("DELETE /reports/{id}", s.handleDeleteReport)
	mux.HandleFunc("POST /reports/{id}/update", s.handleUpdateReport)
	mux.HandleFunc("POST /reports/{id}/subscribers", s.handleAddSubscriber)
	mux.HandleFunc("DELETE /reports/{id}/subscribers", s.handleRemoveSubscriber)

	mux.HandleFunc("GET /triggers", s.handleListTriggers)
	mux.HandleFunc("POST /triggers", s.handleAddTrigger)
	mux.HandleFunc("GET /triggers/{id}", s.handleGetTrigger)
	mux.HandleFunc("DELETE /triggers/{id}", s.handleDeleteTrigger)

	return mux
}

func (s *Server) handleManagerInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"maxReports":         s.maxReports,
		"maxTriggers":        s.maxTriggers,
		"pollRateResolution": s.pollRateResolutionMs,
		"minInterval":        s.minIntervalMs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.InvalidArgument, errs.VersionMismatch:
		status = http.StatusBadRequest
	case errs.NotFound:
		status = http.StatusNotFound
	case errs.AlreadyExists:
		status = http.StatusConflict
	case errs.ResourceLimit:
		status = http.StatusTooManyRequests
	case errs.TransportIO, errs.PersistenceIO:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
