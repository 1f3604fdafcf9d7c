package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"uplevel-orchestrator/internal/domain"
	"uplevel-orchestrator/internal/infra/config"
)

// HTTPCaller reaches downstream agents over their HTTP JSON boundary:
// POST {endpoint}/query for work, GET {endpoint}/health for liveness.
type HTTPCaller struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewHTTPCaller builds a caller with a pooled transport tuned by cfg.
func NewHTTPCaller(cfg config.DispatchConfig, logger *slog.Logger) *HTTPCaller {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Pool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Pool.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.Pool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Pool.IdleConnTimeout,
	}
	if transport.MaxIdleConns == 0 {
		transport.MaxIdleConns = 100
	}
	if transport.MaxIdleConnsPerHost == 0 {
		transport.MaxIdleConnsPerHost = 10
	}
	if transport.IdleConnTimeout == 0 {
		transport.IdleConnTimeout = 90 * time.Second
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPCaller{
		client:  &http.Client{Transport: transport},
		timeout: timeout,
		logger:  logger,
	}
}

// agentReply accepts the field spellings downstream agents actually use.
// The answer text may arrive as "answer", "response" or "content".
type agentReply struct {
	Answer          string         `json:"answer"`
	Response        string         `json:"response"`
	Content         string         `json:"content"`
	Status          string         `json:"status"`
	Data            map[string]any `json:"data"`
	Recommendations []string       `json:"recommendations"`
	Error           string         `json:"error"`
}

func (r *agentReply) text() string {
	switch {
	case r.Answer != "":
		return r.Answer
	case r.Response != "":
		return r.Response
	default:
		return r.Content
	}
}

// Query posts the message envelope to the agent and normalizes the reply.
func (c *HTTPCaller) Query(ctx context.Context, agent domain.Agent, msg domain.Message) (*domain.AgentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("agentclient.Query: encode message: %w", err)
	}

	url := strings.TrimRight(agent.Endpoint, "/") + "/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agentclient.Query: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if agent.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+agent.AuthToken)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, domain.NewDomainError("agentclient.Query", domain.ErrDispatchTimeout, agent.ID)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, domain.NewDomainError("agentclient.Query", domain.ErrAgentUnreachable,
			fmt.Sprintf("%s: %v", agent.ID, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("agentclient.Query: read body from %s: %w", agent.ID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewDomainError("agentclient.Query", domain.ErrDispatchFailed,
			fmt.Sprintf("%s returned %d", agent.ID, resp.StatusCode))
	}

	var reply agentReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, domain.NewDomainError("agentclient.Query", domain.ErrDispatchFailed,
			fmt.Sprintf("%s returned unparseable body: %v", agent.ID, err))
	}

	out := &domain.AgentResponse{
		AgentID:         agent.ID,
		Status:          domain.ResponseOK,
		Content:         reply.text(),
		Data:            reply.Data,
		Recommendations: reply.Recommendations,
		LatencyMS:       latency.Milliseconds(),
	}
	if reply.Error != "" || strings.EqualFold(reply.Status, "error") || strings.EqualFold(reply.Status, "failed") {
		out.Status = domain.ResponseFailed
		out.Err = reply.Error
		if out.Err == "" {
			out.Err = "agent reported status " + reply.Status
		}
	}

	c.logger.Debug("agent replied",
		"agent", agent.ID,
		"status", out.Status,
		"latency_ms", out.LatencyMS)
	return out, nil
}

// Probe issues GET /health and reports the round trip.
func (c *HTTPCaller) Probe(ctx context.Context, agent domain.Agent) (time.Duration, error) {
	url := strings.TrimRight(agent.Endpoint, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("agentclient.Probe: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, domain.NewDomainError("agentclient.Probe", domain.ErrAgentUnreachable,
			fmt.Sprintf("%s: %v", agent.ID, err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK {
		return elapsed, domain.NewDomainError("agentclient.Probe", domain.ErrAgentUnreachable,
			fmt.Sprintf("%s health returned %d", agent.ID, resp.StatusCode))
	}
	return elapsed, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
