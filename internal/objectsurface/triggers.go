package objectsurface

import (
	"encoding/json"
	"net/http"

	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/threshold"
)

// AddTriggerRequest is the HTTP request body for POST /triggers,
// mirroring the trigger configuration JSON schema of spec §6.
type AddTriggerRequest struct {
	ID             string                    `json:"id"`
	Name           string                    `json:"name"`
	TriggerActions []string                  `json:"triggerActions"`
	ReportIDs      []string                  `json:"reportIds"`
	Sensors        []threshold.SensorParam   `json:"sensors"`
	NumericParams  []threshold.NumericParam  `json:"numericThresholdParams"`
	DiscreteParams []threshold.DiscreteParam `json:"discreteThresholdParams"`
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"triggers": s.triggerMgr.List()})
}

func (s *Server) handleAddTrigger(w http.ResponseWriter, r *http.Request) {
	var req AddTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.InvalidArgument, "objectsurface.AddTrigger", err))
		return
	}

	var sensors []threshold.SensorSpec
	for _, sp := range req.Sensors {
		spec, err := s.resolveSensor(sp.Service, sp.Path)
		if err != nil {
			writeError(w, err)
			return
		}
		spec.Metadata = sp.Metadata
		sensors = append(sensors, spec)
	}

	var numeric []threshold.NumericKind
	for _, np := range req.NumericParams {
		kind, err := np.ToKind()
		if err != nil {
			writeError(w, err)
			return
		}
		numeric = append(numeric, kind)
	}
	var discrete []threshold.DiscreteKind
	for _, dp := range req.DiscreteParams {
		kind, err := dp.ToKind()
		if err != nil {
			writeError(w, err)
			return
		}
		discrete = append(discrete, kind)
	}

	id, err := s.triggerMgr.AddTrigger(threshold.Params{
		ID:        req.ID,
		Name:      req.Name,
		Numeric:   numeric,
		Discrete:  discrete,
		Sensors:   sensors,
		ReportIDs: req.ReportIDs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	trig, ok := s.triggerMgr.Get(r.PathValue("id"))
	if !ok {
		writeError(w, errs.New(errs.NotFound, "objectsurface.GetTrigger", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        trig.ID(),
		"name":      trig.Name(),
		"reportIds": trig.ReportIDs(),
		"sensors":   trig.Sensors(),
	})
}

func (s *Server) handleDeleteTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.triggerMgr.RemoveTrigger(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
