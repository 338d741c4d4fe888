// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
)

// Dependencies required by the roll-call handlers.
type Dependencies interface {
	Students(ctx context.Context) ([]model.Student, error)
	CallOnce(ctx context.Context, key string) (model.CallResult, bool, error)
	History(ctx context.Context) ([]model.CallRecord, error)
	Stats(ctx context.Context) (model.Stats, error)
	Import(ctx context.Context, filename string, r io.Reader) (int, error)
	Clear(ctx context.Context) error
}

// Server wires HTTP routes for the roll-call API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	rollCall       *RollCallHandler
	live           http.Handler
	allowedOrigins []string
	logger         logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLiveHandler mounts the websocket feed at /api/live.
func WithLiveHandler(h http.Handler) Option {
	return func(s *Server) {
		s.live = h
	}
}

// WithAllowedOrigins sets the CORS origins. "*" allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithLogger sets the access logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		rollCall:       NewRollCallHandler(deps),
		allowedOrigins: []string{"*"},
		logger:         logger.Get().Named("http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("/api/students", MetricsMiddleware(s.rollCall.HandleStudents, "students"))
	mux.HandleFunc("/api/call", MetricsMiddleware(s.rollCall.HandleCall, "call"))
	mux.HandleFunc("/api/history", MetricsMiddleware(s.rollCall.HandleHistory, "history"))
	mux.HandleFunc("/api/stats", MetricsMiddleware(s.rollCall.HandleStats, "api_stats"))
	mux.HandleFunc("/api/import", MetricsMiddleware(s.rollCall.HandleImport, "import"))
	mux.HandleFunc("/api/clear", MetricsMiddleware(s.rollCall.HandleClear, "clear"))
	if s.live != nil {
		mux.Handle("/api/live", s.live)
	}
}

// Handler wraps mux with the request id, access log and CORS middleware.
func (s *Server) Handler(mux http.Handler) http.Handler {
	return CORSMiddleware(s.allowedOrigins)(RequestIDMiddleware(AccessLogMiddleware(s.logger)(mux)))
}

// errorResponse is the error shape of the operational endpoints.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// rollCallError is the error shape of the /api endpoints.
type rollCallError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func writeRollCallError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), rollCallError{Error: publicMessage(err)})
}
