// Package serve provides the REST API for running consensus sessions.
package serve

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Dicklesworthstone/quorum/internal/consensus"
	"github.com/Dicklesworthstone/quorum/internal/output"
)

// API error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
)

// SessionRunner runs one consensus session per call. Each request gets a
// fresh session so budgets never leak across requests.
type SessionRunner interface {
	Run(ctx context.Context, req ConsensusRequest) (*consensus.FinalResult, error)
}

// ConsensusRequest is the request body for POST /api/v1/consensus
type ConsensusRequest struct {
	Query string `json:"query"`
	// Models overrides the configured ensemble when non-empty.
	Models []string `json:"models,omitempty"`
	// CallBudget overrides the configured budget when positive.
	CallBudget int `json:"call_budget,omitempty"`
	// Schema overrides the verdict shape when non-empty. A field without
	// a kind defaults to any.
	Schema []consensus.Field `json:"schema,omitempty"`
}

// Server hosts the consensus API.
type Server struct {
	runner  SessionRunner
	timeout time.Duration
	logger  *slog.Logger
	router  chi.Router
}

// NewServer builds the API server around a session runner.
func NewServer(runner SessionRunner, timeout time.Duration, logger *slog.Logger) *Server {
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{runner: runner, timeout: timeout, logger: logger}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/consensus", s.handleConsensus)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// handleHealth handles GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, output.NewSuccess("ok"))
}

// handleConsensus handles POST /api/v1/consensus
func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	var req ConsensusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		e := output.NewErrorWithDetails("invalid JSON body", err.Error())
		e.Code = ErrCodeInvalidRequest
		writeJSON(w, http.StatusBadRequest, e)
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "query is required")
		return
	}
	for i, f := range req.Schema {
		if f.Kind == "" {
			req.Schema[i].Kind = consensus.KindAny
		}
	}
	if schema := (consensus.Schema{Fields: req.Schema}); len(schema.Fields) > 0 {
		if err := schema.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
	}

	s.logger.Info("consensus request", "request_id", reqID, "query_len", len(req.Query))

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	result, err := s.runner.Run(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "consensus session timed out")
			return
		}
		s.logger.Error("consensus session failed", "request_id", reqID, "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	s.logger.Info("consensus request complete",
		"request_id", reqID,
		"state", string(result.State),
		"runs_used", result.RunsUsed)
	writeJSON(w, http.StatusOK, output.NewConsensusResponse(result))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, output.NewErrorWithCode(code, msg))
}
