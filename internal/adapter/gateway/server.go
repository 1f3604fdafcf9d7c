package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"uplevel-orchestrator/internal/domain"
	"uplevel-orchestrator/internal/infra/config"
	"uplevel-orchestrator/internal/usecase"
)

// Server is the HTTP boundary of the orchestrator.
type Server struct {
	httpServer *http.Server
	orch       *usecase.Orchestrator
	engine     *usecase.WorkflowEngine
	registry   *usecase.Registry
	sessions   *usecase.SessionManager
	store      domain.StateStore
	bus        domain.EventBus
	cfg        config.ServerConfig
	logger     *slog.Logger
	limiter    *rate.Limiter
	started    time.Time
}

// NewServer builds the gateway with all routes registered.
func NewServer(
	cfg config.ServerConfig,
	orch *usecase.Orchestrator,
	engine *usecase.WorkflowEngine,
	registry *usecase.Registry,
	sessions *usecase.SessionManager,
	store domain.StateStore,
	bus domain.EventBus,
	logger *slog.Logger,
) *Server {
	s := &Server{
		orch:     orch,
		engine:   engine,
		registry: registry,
		sessions: sessions,
		store:    store,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
		started:  time.Now(),
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", s.auth(s.rateLimited(s.handleQuery)))
	mux.HandleFunc("GET /workflow/{id}", s.auth(s.handleWorkflowGet))
	mux.HandleFunc("POST /workflow/{id}/resume", s.auth(s.handleWorkflowResume))
	mux.HandleFunc("GET /agents/status", s.auth(s.handleAgentsStatus))
	mux.HandleFunc("GET /session/{id}/context", s.auth(s.handleSessionContext))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.auth(s.handleWS))

	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 2 * time.Minute
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.logging(mux),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			"method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, domain.NewDomainError("gateway", domain.ErrRateLimit, "query rate exceeded"))
			return
		}
		next(w, r)
	}
}

// auth enforces static bearer tokens when configured; a server without auth
// config passes everything through.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.Auth.Type != "static" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !s.validToken(token) {
			s.writeError(w, domain.NewDomainError("gateway", domain.ErrAuthInvalid, "invalid bearer token"))
			return
		}
		next(w, r)
	}
}

func (s *Server) validToken(token string) bool {
	for _, t := range s.cfg.Auth.Tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(t.Token)) == 1 {
			return true
		}
	}
	return false
}

type errorBody struct {
	Error string           `json:"error"`
	Code  domain.ErrorCode `json:"code"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCodeOf(err)
	s.writeJSON(w, httpStatus(code), errorBody{Error: err.Error(), Code: code})
}

func httpStatus(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeAuthInvalid:
		return http.StatusUnauthorized
	case domain.CodeNotFound, domain.CodeAgentNotFound, domain.CodeSessionNotFound, domain.CodeWorkflowNotFound:
		return http.StatusNotFound
	case domain.CodeDuplicate, domain.CodeAgentDuplicate:
		return http.StatusConflict
	case domain.CodeUnclassified:
		return http.StatusUnprocessableEntity
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	case domain.CodeTimeout, domain.CodeDispatchTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeAgentUnreachable, domain.CodeCircuitOpen, domain.CodeDispatchFailed:
		return http.StatusBadGateway
	case domain.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
