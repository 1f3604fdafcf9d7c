package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for contradictions that would surface
// only later at runtime.
func Validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("store.backend %q: must be redis, sqlite or memory", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "redis" && cfg.Store.RedisURL == "" {
		return fmt.Errorf("store.redis_url required for redis backend")
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlite_path required for sqlite backend")
	}

	if cfg.Health.FailureThreshold < 1 {
		return fmt.Errorf("health.failure_threshold must be >= 1, got %d", cfg.Health.FailureThreshold)
	}
	if cfg.Health.ProbeTimeout >= cfg.Health.Interval {
		return fmt.Errorf("health.probe_timeout (%s) must be shorter than health.interval (%s)",
			cfg.Health.ProbeTimeout, cfg.Health.Interval)
	}

	if cfg.Classifier.MinScore < 0 || cfg.Classifier.MinScore > 1 {
		return fmt.Errorf("classifier.min_score must be in [0, 1], got %g", cfg.Classifier.MinScore)
	}

	seen := make(map[string]bool, len(cfg.Agents))
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agents: duplicate id %q", a.ID)
		}
		seen[a.ID] = true
		if len(a.Capabilities) == 0 {
			return fmt.Errorf("agent %s: at least one capability is required", a.ID)
		}
		u, err := url.Parse(a.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("agent %s: endpoint %q is not a valid URL", a.ID, a.Endpoint)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("agent %s: endpoint scheme %q must be http or https", a.ID, u.Scheme)
		}
	}

	if cfg.Server.Auth.Type != "" && cfg.Server.Auth.Type != "static" {
		return fmt.Errorf("server.auth.type %q: must be empty or static", cfg.Server.Auth.Type)
	}
	if cfg.Server.Auth.Type == "static" && len(cfg.Server.Auth.Tokens) == 0 {
		return fmt.Errorf("server.auth: static auth requires at least one token")
	}

	return nil
}
