package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/glycorisk/internal/couchbase"
	"stealthcompany.com/glycorisk/internal/metrics"
	"stealthcompany.com/glycorisk/internal/patients"
	"stealthcompany.com/glycorisk/internal/risk"
)

// AssessmentRequest is the body of POST /assessments
type AssessmentRequest struct {
	Now      *time.Time     `json:"now,omitempty"`
	Patients []risk.Patient `json:"patients"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeSourceError maps patient source errors onto status codes
func writeSourceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, patients.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, couchbase.ErrLocked):
		writeError(w, http.StatusServiceUnavailable, "patient store is being refreshed, retry later")
	default:
		log.Error().Err(err).Msg("Patient source failed")
		writeError(w, http.StatusInternalServerError, "failed to read patients")
	}
}

// evaluationTime returns ?now= when present, else the server clock.
func (s *Server) evaluationTime(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("now")
	if raw == "" {
		return s.clock().UTC(), nil
	}
	now, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("now must be RFC3339: %w", err)
	}
	return now.UTC(), nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.readiness == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true})
		return
	}

	status, err := s.readiness.GetIngestionStatus(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ingestion status")
		writeError(w, http.StatusServiceUnavailable, "ingestion status unavailable")
		return
	}

	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) thresholdsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Thresholds().View())
}

func (s *Server) rankedHandler(w http.ResponseWriter, r *http.Request) {
	now, err := s.evaluationTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.source.ListPatients(r.Context())
	if err != nil {
		writeSourceError(w, err)
		return
	}

	start := time.Now()
	result := s.engine.EvaluateAll(r.Context(), list, now)
	metrics.RecordBatch(result, start)

	if len(result.Failures) > 0 {
		log.Warn().
			Int("failures", len(result.Failures)).
			Int("evaluated", len(result.Ranked)).
			Msg("Some patients could not be evaluated")
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) assessmentHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	now, err := s.evaluationTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.source.GetPatient(r.Context(), id)
	if err != nil {
		writeSourceError(w, err)
		return
	}

	assessment, err := s.engine.Evaluate(p, now)
	if err != nil {
		metrics.RecordEvaluationFailure(err)
		if errors.Is(err, risk.ErrInvalidInput) {
			log.Warn().Err(err).Str("patient_id", id).Msg("Patient record failed validation")
			writeJSON(w, http.StatusUnprocessableEntity, risk.Failure{PatientID: id, Err: err, Message: err.Error()})
			return
		}
		log.Error().Err(err).Str("patient_id", id).Msg("Evaluation failed")
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}
	metrics.RecordAssessment(assessment)

	writeJSON(w, http.StatusOK, assessment)
}

func (s *Server) evaluatePostedHandler(w http.ResponseWriter, r *http.Request) {
	var req AssessmentRequest
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Int64("limit", tooLarge.Limit).Msg("Assessment request body too large")
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		log.Warn().Err(err).Msg("Failed to decode assessment request")
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	now, err := s.evaluationTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Now != nil {
		now = req.Now.UTC()
	}

	list := make([]risk.Patient, len(req.Patients))
	for i, p := range req.Patients {
		list[i] = patients.Normalize(p)
	}

	start := time.Now()
	result := s.engine.EvaluateAll(r.Context(), list, now)
	metrics.RecordBatch(result, start)

	writeJSON(w, http.StatusOK, result)
}
