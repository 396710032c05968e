package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cwbudde/adaptivexp/internal/opt"
	"github.com/cwbudde/adaptivexp/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// CreateResponse is returned by POST /api/experiments.
type CreateResponse struct {
	ExperimentID string `json:"experiment_id"`
	Status       string `json:"status"`
}

// TrialResponse is returned by GET /api/experiments/{id}/next_trial.
type TrialResponse struct {
	TrialID    int            `json:"trial_id"`
	Parameters opt.Assignment `json:"parameters"`
}

// ExperimentDetail is returned by GET /api/experiments/{id}.
type ExperimentDetail struct {
	store.Summary
	Parameters []store.ParameterSpec `json:"parameters"`
	TrialList  []store.Trial         `json:"trial_list"`
}

// handleCreateExperiment handles POST /api/experiments
func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var spec store.ExperimentSpec
	if !decodeJSON(w, r, &spec) {
		return
	}

	exp, err := s.store.Create("", spec)
	if err != nil {
		s.fail(w, "create", err)
		return
	}
	s.metrics.experiments.Inc()

	writeJSON(w, http.StatusCreated, CreateResponse{ExperimentID: exp.ID, Status: "created"})
}

// handleListExperiments handles GET /api/experiments
func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

// handleGetExperiment handles GET /api/experiments/{id}
func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, "get", err)
		return
	}

	writeJSON(w, http.StatusOK, ExperimentDetail{
		Summary:    exp.Summary(),
		Parameters: exp.Spec.Parameters,
		TrialList:  exp.Trials(),
	})
}

// handleDeleteExperiment handles DELETE /api/experiments/{id}
func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(id); err != nil {
		s.fail(w, "delete", err)
		return
	}
	s.metrics.experiments.Dec()
	s.broadcaster.CleanupExperiment(id)

	w.WriteHeader(http.StatusNoContent)
}

// handleNextTrial handles GET /api/experiments/{id}/next_trial
func (s *Server) handleNextTrial(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	trial, err := s.store.NextTrial(r.Context(), id)
	if err != nil {
		s.fail(w, "next_trial", err)
		return
	}
	s.metrics.trialsProposed.Inc()
	s.broadcaster.Broadcast(TrialEvent{ExperimentID: id, Type: EventProposed, Trial: &trial, Timestamp: time.Now()})

	writeJSON(w, http.StatusOK, TrialResponse{TrialID: trial.ID, Parameters: trial.Parameters})
}

// handleCompleteTrial handles POST /api/experiments/{id}/complete_trial
func (s *Server) handleCompleteTrial(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var completion store.Completion
	if !decodeJSON(w, r, &completion) {
		return
	}

	trial, err := s.store.CompleteTrial(r.Context(), id, completion)
	if err != nil {
		s.fail(w, "complete_trial", err)
		return
	}
	s.metrics.trialsCompleted.Inc()
	s.broadcaster.Broadcast(TrialEvent{ExperimentID: id, Type: EventCompleted, Trial: &trial, Timestamp: time.Now()})

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleParetoFront handles GET /api/experiments/{id}/pareto_front
func (s *Server) handleParetoFront(w http.ResponseWriter, r *http.Request) {
	front, err := s.pareto.Front(r.PathValue("id"))
	if err != nil {
		s.fail(w, "pareto_front", err)
		return
	}

	writeJSON(w, http.StatusOK, front)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "experiments": len(s.store.List())})
}

// fail counts the failure and writes the error response.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.metrics.failures.WithLabelValues(op, store.KindOf(err).String()).Inc()
	writeError(w, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  store.KindInvalidConfiguration.String(),
			Detail: fmt.Sprintf("invalid JSON: %v", err),
		})
		return false
	}
	return true
}
