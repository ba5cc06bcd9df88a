package objectsurface

import (
	"encoding/json"
	"net/http"

	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/report"
)

// AddReportRequest is the HTTP request body for POST /reports,
// mirroring the report configuration JSON schema of spec §6.
type AddReportRequest struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Domain        string               `json:"domain"`
	ReportingType string               `json:"reportingType"`
	ReportUpdates string               `json:"reportUpdates"`
	ScanPeriod    int64                `json:"scanPeriod"`
	AppendLimit   int                  `json:"appendLimit"`
	ReportAction  []string             `json:"reportAction"`
	Persistency   bool                 `json:"persistency"`
	MetricParams  []report.MetricParam `json:"metricParams"`
}

// ReportView is the GET /reports/{id} response: the per-report
// properties of spec §6 plus the current readings snapshot.
type ReportView struct {
	report.StoredConfig
	Readings any `json:"readings"`
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"reports": s.reportMgr.List()})
}

func (s *Server) handleAddReport(w http.ResponseWriter, r *http.Request) {
	var req AddReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.InvalidArgument, "objectsurface.AddReport", err))
		return
	}

	reportingType, ok := report.ParseReportingType(req.ReportingType)
	if !ok {
		writeError(w, errs.Newf(errs.InvalidArgument, "objectsurface.AddReport", "unknown reportingType %q", req.ReportingType))
		return
	}
	updatePolicy, ok := report.ParseUpdatePolicy(req.ReportUpdates)
	if !ok {
		writeError(w, errs.Newf(errs.InvalidArgument, "objectsurface.AddReport", "unknown reportUpdates %q", req.ReportUpdates))
		return
	}

	metrics, err := s.buildMetrics(req.MetricParams)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.reportMgr.AddReport(r.Context(), report.Params{
		ID:            req.ID,
		Name:          req.Name,
		Domain:        req.Domain,
		ReportingType: reportingType,
		UpdatePolicy:  updatePolicy,
		IntervalMs:    req.ScanPeriod,
		AppendLimit:   req.AppendLimit,
		Actions:       report.ActionsFromNames(req.ReportAction),
		Persistent:    req.Persistency,
		Metrics:       metrics,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.reportMgr.Get(r.PathValue("id"))
	if !ok {
		writeError(w, errs.New(errs.NotFound, "objectsurface.GetReport", nil))
		return
	}
	writeJSON(w, http.StatusOK, ReportView{
		StoredConfig: rep.DumpConfiguration(),
		Readings:     rep.Readings(),
	})
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.reportMgr.RemoveReport(id); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	delete(s.webhooks, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	if err := s.reportMgr.UpdateReport(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// subscriberRequest names the webhook URL a caller wants to
// register/unregister against a report's ReadingsUpdate signal.
type subscriberRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleAddSubscriber(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.reportMgr.Get(id); !ok {
		writeError(w, errs.New(errs.NotFound, "objectsurface.AddSubscriber", nil))
		return
	}
	var req subscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, errs.New(errs.InvalidArgument, "objectsurface.AddSubscriber", err))
		return
	}

	s.mu.Lock()
	s.webhooks[id] = append(s.webhooks[id], req.URL)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveSubscriber(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req subscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, errs.New(errs.InvalidArgument, "objectsurface.RemoveSubscriber", err))
		return
	}

	s.mu.Lock()
	urls := s.webhooks[id]
	for i, u := range urls {
		if u == req.URL {
			s.webhooks[id] = append(urls[:i], urls[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}
