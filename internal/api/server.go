package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fmuoria/shortlist-agent/internal/capacity"
	"github.com/fmuoria/shortlist-agent/internal/export"
	"github.com/fmuoria/shortlist-agent/internal/lifecycle"
	"github.com/fmuoria/shortlist-agent/internal/logging"
	"github.com/fmuoria/shortlist-agent/internal/metrics"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/pipeline"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

const maxBodyBytes = 1 << 20

// Services are the pipeline entry points the API exposes
type Services struct {
	Host         *pipeline.Host
	Intake       *pipeline.Intake
	Interviews   *pipeline.Interviews
	Orchestrator *pipeline.Orchestrator
	Retrier      *pipeline.Retrier
	Metrics      *metrics.Collector
}

// Server handles HTTP requests
type Server struct {
	svc    Services
	logger *slog.Logger
}

// NewServer creates a new API server
func NewServer(svc Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.svc.Metrics != nil {
		mux.Handle("GET /metrics", s.svc.Metrics.Handler())
	}

	mux.HandleFunc("POST /jobs", s.handleCreateJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("PATCH /jobs/{id}/capacity", s.handleUpdateCapacity)
	mux.HandleFunc("POST /jobs/{id}/publish", s.jobAction(s.svc.Host.Publish))
	mux.HandleFunc("POST /jobs/{id}/close", s.jobAction(s.svc.Host.CloseApplications))
	mux.HandleFunc("POST /jobs/{id}/cancel", s.jobAction(s.svc.Host.Cancel))
	mux.HandleFunc("POST /jobs/{id}/complete", s.jobAction(s.svc.Host.Complete))
	mux.HandleFunc("POST /jobs/{id}/shortlist", s.handleShortlist)
	mux.HandleFunc("POST /jobs/{id}/finalize", s.handleFinalize)
	mux.HandleFunc("POST /jobs/{id}/offers", s.handleSendOffers)
	mux.HandleFunc("GET /jobs/{id}/export", s.handleExport)

	mux.HandleFunc("GET /jobs/{id}/applications", s.handleListApplications)
	mux.HandleFunc("POST /jobs/{id}/applications", s.handleSubmitApplication)
	mux.HandleFunc("POST /applications/{id}/interview/schedule", s.handleScheduleInterview)
	mux.HandleFunc("POST /applications/{id}/interview", s.handleCompleteInterview)
	mux.HandleFunc("PUT /applications/{id}/status", s.handleSetStatus)

	mux.HandleFunc("POST /notifications/retry", s.handleRetryNotifications)

	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.loggingMiddleware(mux)
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "Shortlist Agent",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"POST /jobs":                        "Create a job",
			"POST /jobs/{id}/applications":      "Submit an application",
			"POST /jobs/{id}/shortlist":         "Run shortlisting for a closed job",
			"POST /applications/{id}/interview": "Score a completed voice interview",
			"POST /jobs/{id}/finalize":          "Select the final candidates",
			"POST /jobs/{id}/offers":            "Send offers to selected candidates",
			"GET /jobs/{id}/export":             "Download the shortlist report",
			"GET /health":                       "Health check",
		},
	})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req pipeline.JobRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.svc.Host.CreateJob(r.Context(), req)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.svc.Host.ListJobs(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Host.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Host.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.respondFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateCapacity(w http.ResponseWriter, r *http.Request) {
	var req pipeline.CapacityRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.svc.Host.UpdateCapacity(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

// jobAction adapts a Host status change to a handler
func (s *Server) jobAction(action func(ctx context.Context, jobID string) (models.Job, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := action(r.Context(), r.PathValue("id"))
		if err != nil {
			s.respondFailure(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, job)
	}
}

// handleShortlist runs shortlisting in the request and returns its outcome
func (s *Server) handleShortlist(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.svc.Orchestrator.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"outcome": outcome,
		"summary": outcome.Summary(),
	})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.svc.Host.Finalize(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleSendOffers(w http.ResponseWriter, r *http.Request) {
	var offer models.OfferDetails
	if r.ContentLength != 0 && !s.decode(w, r, &offer) {
		return
	}
	outcome, err := s.svc.Host.SendOffers(r.Context(), r.PathValue("id"), offer)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, err := s.svc.Host.GetJob(r.Context(), jobID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	apps, err := s.svc.Host.ListApplications(r.Context(), jobID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="shortlist-%s.xlsx"`, jobID))
	if err := export.WriteShortlist(w, job, apps); err != nil {
		// headers are gone; all that is left is to log
		s.logger.Error("failed to write export", slog.String("job_id", jobID), logging.Err(err))
	}
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.svc.Host.ListApplications(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, apps)
}

func (s *Server) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ApplicationRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.JobID = r.PathValue("id")

	app, err := s.svc.Intake.Submit(r.Context(), req)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, app)
}

func (s *Server) handleScheduleInterview(w http.ResponseWriter, r *http.Request) {
	app, err := s.svc.Interviews.Schedule(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleCompleteInterview(w http.ResponseWriter, r *http.Request) {
	var req pipeline.InterviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.ApplicationID = r.PathValue("id")

	app, err := s.svc.Interviews.Complete(r.Context(), req)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	status, err := lifecycle.ParseApplicationStatus(req.Status)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	app, err := s.svc.Host.SetStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleRetryNotifications(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.svc.Retrier.Sweep(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, outcome)
}

// decode reads a JSON body into v, answering 400 itself when it cannot
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse request body: %v", err))
		return false
	}
	return true
}

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	var (
		cfgErr     *capacity.ConfigError
		invalidErr *lifecycle.InvalidTransitionError
	)
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, pipeline.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrJobNotFound), errors.Is(err, pipeline.ErrApplicationNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalidErr),
		errors.Is(err, capacity.ErrApplicationsClosed),
		errors.Is(err, store.ErrDuplicateApplication),
		errors.Is(err, store.ErrJobHasApplications),
		errors.Is(err, pipeline.ErrWrongJobState),
		errors.Is(err, pipeline.ErrNotClosed),
		errors.Is(err, pipeline.ErrInterviewAlreadyScored),
		errors.Is(err, pipeline.ErrSelectionFull):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure sends err with the status it maps to
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", logging.Err(err))
	}
	s.respondError(w, status, err.Error())
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", logging.Err(err))
	}
}

// respondError sends an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusRecorder remembers the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}
