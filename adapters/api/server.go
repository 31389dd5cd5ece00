// Package api exposes the scoring core over HTTP. Handlers translate
// requests into scorer calls and map AppError codes onto status codes; no
// scoring logic lives here.
package api

import (
	"context"
	"encoding/json"
	randv2 "math/rand/v2"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"riskiq/adapters/report"
	"riskiq/app/scorer"
	"riskiq/domain/patient"
	"riskiq/domain/risk"
	"riskiq/internal/errors"
	"riskiq/internal/log"
)

// AssessmentStore persists completed assessments. Optional: a nil store
// means assessments are returned but not recorded.
type AssessmentStore interface {
	Save(ctx context.Context, a *risk.Assessment) error
	Get(ctx context.Context, assessmentID string) (*risk.Assessment, error)
}

// Server wires the HTTP boundary.
type Server struct {
	router      *chi.Mux
	scorer      *scorer.Scorer
	assessments AssessmentStore
	report      *report.Renderer
	logger      *log.Logger
}

func NewServer(sc *scorer.Scorer, assessments AssessmentStore, logger *log.Logger) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		scorer:      sc,
		assessments: assessments,
		report:      report.NewRenderer(),
		logger:      logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Post("/api/assess/{id}", s.handleAssess)
	s.router.Post("/api/train", s.handleTrain)
	s.router.Get("/api/patients", s.handlePatients)
	s.router.Get("/api/dashboard", s.handleDashboard)
	s.router.Get("/api/dashboard/distribution", s.handleDistribution)
	s.router.Get("/api/survival", s.handleSurvival)
	s.router.Post("/api/drift", s.handleDrift)
	s.router.Get("/api/report/{id}", s.handleReport)
}

// Handler returns the root handler for serving or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP on the given port.
func (s *Server) Start(port string) error {
	s.logger.Info("risk API listening on :%s", port)
	return http.ListenAndServe(":"+port, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"ready":  s.scorer.Ready(),
	})
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")

	assessment, err := s.scorer.AssessPatient(patientID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.assessments != nil {
		if err := s.assessments.Save(r.Context(), assessment); err != nil {
			// Persistence is best effort; the caller still gets the report.
			s.logger.Warn("assessment persistence failed: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.scorer.Retrain()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.scorer.SaveModels(); err != nil {
		s.logger.Warn("model persistence failed: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "trained",
		"metrics": metrics,
	})
}

func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.scorer.ListPatients(scorer.ListQuery{
		RiskFilter: q.Get("risk"),
		WardFilter: q.Get("ward"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sort_by"),
		Limit:      intParam(q.Get("limit"), 50),
		Offset:     intParam(q.Get("offset"), 0),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.scorer.DashboardStats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.scorer.RiskDistribution()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"distribution": buckets})
}

func (s *Server) handleSurvival(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := intParam(q.Get("days"), 30)
	if days < 1 || days > 365 {
		s.writeError(w, errors.InvalidInput("days must be between 1 and 365"))
		return
	}
	seed := uint64(intParam(q.Get("seed"), 42))
	rng := randv2.New(randv2.NewPCG(seed, seed))

	curve, err := s.scorer.CohortSurvival(days, rng)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	var batch []patient.RawPatientRecord
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		s.writeError(w, errors.InvalidInput("drift batch must be a JSON array of patient records"))
		return
	}
	drift, err := s.scorer.DetectDrift(batch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drift)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")

	assessment, err := s.scorer.AssessPatient(patientID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(s.report.HTML(assessment))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeInvalidInput, errors.CodeValidationError:
		status = http.StatusBadRequest
	case errors.CodeNotReady:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
