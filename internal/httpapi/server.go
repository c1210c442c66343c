package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/permission"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server holds the handler dependencies.
type Server struct {
	engine  *authcore.Engine
	cookie  authcore.CookieConfig
	logger  *zap.Logger
	metrics http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New returns a Server for engine.
func New(engine *authcore.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		cookie: engine.Config().Cookie,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	// Routes sit on the root router so a method mismatch answers 405, not 404.
	prefix := strings.TrimSuffix(s.cookie.Path, "/")
	router.HandleFunc(prefix+"/login", s.login).Methods(http.MethodPost)
	router.HandleFunc(prefix+"/refresh", s.refresh).Methods(http.MethodPost)
	router.HandleFunc(prefix+"/logout", s.logout).Methods(http.MethodPost)
	router.HandleFunc(prefix+"/logout-all", s.logoutAll).Methods(http.MethodPost)

	authenticated := middleware.Require(s.engine, permission.Requirement{})
	router.Handle(prefix+"/sessions", authenticated(http.HandlerFunc(s.listSessions))).Methods(http.MethodGet)
	router.Handle(prefix+"/devices", authenticated(http.HandlerFunc(s.registerDevice))).Methods(http.MethodPost)
	router.Handle("/me", authenticated(http.HandlerFunc(s.me))).Methods(http.MethodGet)

	return router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeEngineError maps err through middleware.StatusFor and hides internals
// behind the status text.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := middleware.StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, http.StatusText(status))
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
