package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chordialapp/metronome/pkg/domain"
)

// Router builds the admin HTTP API: threshold management, alert
// inspection and acknowledgement, rule control, the execution log, a
// summary roll-up, and the prometheus scrape endpoint.
func (m *Manager) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/thresholds", m.handleListThresholds).Methods(http.MethodGet)
	api.HandleFunc("/thresholds", m.handlePutThreshold).Methods(http.MethodPut)
	api.HandleFunc("/thresholds/{metric}", m.handleDeleteThreshold).Methods(http.MethodDelete)

	api.HandleFunc("/alerts", m.handleListAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}/ack", m.handleAckAlert).Methods(http.MethodPost)

	api.HandleFunc("/rules", m.handleListRules).Methods(http.MethodGet)
	api.HandleFunc("/rules/{id}", m.handlePatchRule).Methods(http.MethodPatch)
	api.HandleFunc("/results", m.handleListResults).Methods(http.MethodGet)

	api.HandleFunc("/summary", m.handleSummary).Methods(http.MethodGet)

	if m.bridge != nil {
		r.Handle("/metrics", m.bridge.Handler()).Methods(http.MethodGet)
	}
	return r
}

func (m *Manager) handleListThresholds(w http.ResponseWriter, r *http.Request) {
	m.writeJSON(w, http.StatusOK, m.evaluator.List())
}

func (m *Manager) handlePutThreshold(w http.ResponseWriter, r *http.Request) {
	var t domain.Threshold
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := m.evaluator.Set(t); err != nil {
		m.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	m.writeJSON(w, http.StatusOK, t)
}

func (m *Manager) handleDeleteThreshold(w http.ResponseWriter, r *http.Request) {
	metric := mux.Vars(r)["metric"]
	if !m.evaluator.Delete(metric) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	unackedOnly := r.URL.Query().Get("unacknowledged") == "true"
	m.writeJSON(w, http.StatusOK, m.Alerts(unackedOnly))
}

func (m *Manager) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !m.Acknowledge(id) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) handleListRules(w http.ResponseWriter, r *http.Request) {
	m.writeJSON(w, http.StatusOK, m.engine.Rules())
}

func (m *Manager) handlePatchRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !m.engine.SetEnabled(mux.Vars(r)["id"], body.Enabled) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) handleListResults(w http.ResponseWriter, r *http.Request) {
	m.writeJSON(w, http.StatusOK, m.engine.Results())
}

func (m *Manager) handleSummary(w http.ResponseWriter, r *http.Request) {
	m.writeJSON(w, http.StatusOK, m.Summarize())
}

func (m *Manager) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.logger.Warn("encoding admin response", zap.Error(err))
	}
}

func (m *Manager) writeError(w http.ResponseWriter, status int, err error) {
	m.writeJSON(w, status, map[string]string{"error": err.Error()})
}
