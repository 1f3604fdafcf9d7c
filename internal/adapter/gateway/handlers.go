package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"uplevel-orchestrator/internal/domain"
	"uplevel-orchestrator/internal/usecase"
)

// version is reported by GET /health.
const version = "1.0.0"

type queryRequest struct {
	Query     string         `json:"query"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.NewDomainError("gateway.handleQuery", domain.ErrInvalidInput, "malformed JSON body"))
		return
	}

	result, err := s.orch.HandleQuery(r.Context(), usecase.QueryRequest{
		Query:     req.Query,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Context:   req.Context,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWorkflowGet(w http.ResponseWriter, r *http.Request) {
	wf, err := s.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleWorkflowResume(w http.ResponseWriter, r *http.Request) {
	wf, err := s.engine.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleAgentsStatus(w http.ResponseWriter, r *http.Request) {
	agents := make(map[string]any)
	degraded := false
	for _, a := range s.registry.List() {
		if a.Health != domain.AgentHealthy {
			degraded = true
		}
		agents[a.ID] = map[string]any{
			"status":       a.Health,
			"latency_ms":   a.LatencyMS,
			"endpoint":     a.Endpoint,
			"capabilities": a.Capabilities,
			"last_probe":   a.LastProbe,
		}
	}

	status := "healthy"
	if degraded {
		status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agents":              agents,
		"orchestrator_status": status,
	})
}

func (s *Server) handleSessionContext(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	agents := s.registry.List()
	healthy := 0
	for _, a := range agents {
		if a.Health == domain.AgentHealthy {
			healthy++
		}
	}
	if healthy < len(agents) {
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"timestamp":      time.Now().UTC(),
		"version":        version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"store":          s.store.Name(),
		"agents_healthy": healthy,
		"agents_total":   len(agents),
	})
}
