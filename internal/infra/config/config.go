package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level orchestrator configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Agents     []AgentConfig    `yaml:"agents"`
	Store      StoreConfig      `yaml:"store"`
	Health     HealthConfig     `yaml:"health"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
}

// ServerConfig holds HTTP boundary settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// RateLimitRPS bounds POST /query throughput; 0 disables limiting.
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	Auth           AuthConfig    `yaml:"auth"`
}

// AuthConfig holds optional static bearer-token authentication.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// AgentConfig declares one downstream agent at startup.
type AgentConfig struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Endpoint     string   `yaml:"endpoint"`
	Capabilities []string `yaml:"capabilities"`
	Keywords     []string `yaml:"keywords,omitempty"`
	// AuthToken may be stored encrypted as "enc:..." and decrypted at load
	// time with the UPLEVEL_CONFIG_KEY passphrase.
	AuthToken string `yaml:"auth_token,omitempty"`
}

// StoreConfig selects and tunes the session/workflow store.
type StoreConfig struct {
	// Backend is "redis", "sqlite" or "memory". Durable backends are
	// wrapped with an in-memory failover automatically.
	Backend           string        `yaml:"backend"`
	RedisURL          string        `yaml:"redis_url"`
	SQLitePath        string        `yaml:"sqlite_path"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// HealthConfig tunes the agent health monitor.
type HealthConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// FailureThreshold is the number of consecutive probe failures before
	// an agent is demoted to unreachable.
	FailureThreshold int `yaml:"failure_threshold"`
}

// DispatchConfig tunes outbound agent calls.
type DispatchConfig struct {
	Timeout time.Duration        `yaml:"timeout"`
	Breaker CircuitBreakerConfig `yaml:"breaker"`
	Pool    PoolConfig           `yaml:"pool"`
}

// CircuitBreakerConfig configures the per-agent circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig configures HTTP connection pooling for agent calls.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ClassifierConfig tunes intent classification.
type ClassifierConfig struct {
	// MinScore is the minimum relevance score an agent must reach to be
	// considered a target. Queries where no agent clears it come back
	// unclassified.
	MinScore float64 `yaml:"min_score"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// Defaults returns a Config populated with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			WriteTimeout:   2 * time.Minute,
		},
		Store: StoreConfig{
			Backend:           "memory",
			RedisURL:          "redis://localhost:6379",
			SQLitePath:        "orchestrator.db",
			ReconcileInterval: 30 * time.Second,
		},
		Health: HealthConfig{
			Interval:         30 * time.Second,
			ProbeTimeout:     5 * time.Second,
			FailureThreshold: 3,
		},
		Dispatch: DispatchConfig{
			Timeout: 30 * time.Second,
		},
		Classifier: ClassifierConfig{
			MinScore: 0.25,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads and validates the configuration at path. A missing file is not
// an error; defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("UPLEVEL_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps UPLEVEL_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UPLEVEL_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("UPLEVEL_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("UPLEVEL_REDIS_URL"); v != "" {
		cfg.Store.RedisURL = v
	}
	if v := os.Getenv("UPLEVEL_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("UPLEVEL_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("UPLEVEL_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("UPLEVEL_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("UPLEVEL_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("UPLEVEL_DISPATCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dispatch.Timeout = d
		}
	}
	if v := os.Getenv("UPLEVEL_HEALTH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Health.Interval = d
		}
	}
	if v := os.Getenv("UPLEVEL_CLASSIFIER_MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Classifier.MinScore = f
		}
	}
}

// decryptSecrets finds "enc:..." agent auth tokens and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.Agents {
		token := cfg.Agents[i].AuthToken
		if encrypted, ok := encryptedValue(token); ok {
			decrypted, err := DecryptValue(encrypted, passphrase)
			if err != nil {
				return fmt.Errorf("agent %s auth_token: %w", cfg.Agents[i].ID, err)
			}
			cfg.Agents[i].AuthToken = decrypted
		}
	}
	for i := range cfg.Server.Auth.Tokens {
		token := cfg.Server.Auth.Tokens[i].Token
		if encrypted, ok := encryptedValue(token); ok {
			decrypted, err := DecryptValue(encrypted, passphrase)
			if err != nil {
				return fmt.Errorf("server auth token %s: %w", cfg.Server.Auth.Tokens[i].Name, err)
			}
			cfg.Server.Auth.Tokens[i].Token = decrypted
		}
	}
	return nil
}
