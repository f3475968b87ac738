// Package server is the HTTP intake for build requests.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "pages-deployer/internal/common/errors"
	"pages-deployer/internal/common/logger"
	"pages-deployer/internal/common/metrics"
	"pages-deployer/internal/common/validation"
	"pages-deployer/internal/models"
	"pages-deployer/internal/pipeline"
	"pages-deployer/internal/store"
)

const maxBodyBytes = 20 << 20

// Builder is the part of the pipeline the server drives.
type Builder interface {
	Admit(ctx context.Context, req *models.BuildRequest) error
	RunWithID(ctx context.Context, req *models.BuildRequest, buildID string) (*pipeline.Result, error)
}

// StatusStore answers task status queries.
type StatusStore interface {
	LatestSubmission(ctx context.Context, task string, round int) (*models.RepoSubmission, error)
}

type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	config  Config
	builder Builder
	store   StatusStore
	pool    *Pool
	logger  logger.Logger
	http    *http.Server
}

func New(cfg Config, builder Builder, st StatusStore, pool *Pool, log logger.Logger) *Server {
	s := &Server{
		config:  cfg,
		builder: builder,
		store:   st,
		pool:    pool,
		logger:  log.WithFields(map[string]interface{}{"component": "server"}),
	}
	s.http = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /build-task", s.handleBuildTask)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /tasks/{task}", s.handleTaskStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	return RequestID(AccessLog(s.logger)(mux))
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", map[string]interface{}{"address": s.config.Address})
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then drains queued builds.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	return s.pool.Shutdown(ctx)
}

type acceptedResponse struct {
	Status  string `json:"status"`
	Task    string `json:"task"`
	Round   int    `json:"round"`
	BuildID string `json:"build_id"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (s *Server) handleBuildTask(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", err.Error(), nil)
		return
	}

	result, err := validation.ValidateBuildRequestJSON(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "request body is not valid JSON", nil)
		return
	}
	if !result.Valid {
		writeError(w, http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "request failed validation", result.GetErrorMessages())
		return
	}

	var req models.BuildRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), err.Error(), nil)
		return
	}

	ctx := r.Context()
	if err := s.builder.Admit(ctx, &req); err != nil {
		s.writeAppError(w, err)
		return
	}

	buildID := uuid.NewString()
	log := s.logger.WithFields(map[string]interface{}{
		"buildId":   buildID,
		"requestId": RequestIDFrom(ctx),
		"task":      req.Task,
		"round":     req.Round,
	})
	err = s.pool.Submit(func(jobCtx context.Context) {
		if _, err := s.builder.RunWithID(jobCtx, &req, buildID); err != nil {
			log.Warn("queued build rejected", map[string]interface{}{"error": err.Error()})
		}
	})
	if err != nil {
		metrics.QueueRejections.Inc()
		log.Warn("build not queued", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusServiceUnavailable, "QUEUE_FULL", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Status:  "accepted",
		Task:    req.Task,
		Round:   req.Round,
		BuildID: buildID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")
	rounds := []int{models.RoundUpdate, models.RoundCreate}
	if q := r.URL.Query().Get("round"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || (n != models.RoundCreate && n != models.RoundUpdate) {
			writeError(w, http.StatusBadRequest, string(apperrors.ErrCodeValidationFailed), "round must be 1 or 2", nil)
			return
		}
		rounds = []int{n}
	}

	for _, round := range rounds {
		sub, err := s.store.LatestSubmission(r.Context(), task, round)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error("task status lookup failed", map[string]interface{}{"task": task, "error": err.Error()})
			writeError(w, http.StatusInternalServerError, string(apperrors.CodeOf(err)), "lookup failed", nil)
			return
		}
		writeJSON(w, http.StatusOK, models.StatusFromSubmission(sub))
		return
	}
	writeError(w, http.StatusNotFound, string(apperrors.ErrCodeTaskNotFound), "no submission for task", nil)
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	std := apperrors.Normalize(err)
	status := http.StatusServiceUnavailable
	switch std.Code {
	case apperrors.ErrCodeAuthFailed:
		status = http.StatusForbidden
	case apperrors.ErrCodeValidationFailed:
		status = http.StatusBadRequest
	case apperrors.ErrCodeTaskNotFound:
		status = http.StatusNotFound
	default:
		s.logger.Error("admission failed", map[string]interface{}{"error": err.Error()})
	}
	// Secret mismatches get no details.
	var details []string
	if std.Details != "" && status != http.StatusForbidden {
		details = []string{std.Details}
	}
	writeError(w, status, string(std.Code), std.Message, details)
}

func writeError(w http.ResponseWriter, status int, code, message string, details []string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
