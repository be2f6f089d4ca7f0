package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "helmsman.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "HELMSMAN_PORT")
	setString(&cfg.Server.CORSOrigin, "HELMSMAN_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "HELMSMAN_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "HELMSMAN_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "HELMSMAN_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "HELMSMAN_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "HELMSMAN_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "HELMSMAN_LOG_LEVEL")
	setString(&cfg.Logging.Service, "HELMSMAN_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "HELMSMAN_LOG_ASYNC")
	setInt64(&cfg.Cache.MaxSizeMB, "HELMSMAN_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.PromptTTL, "HELMSMAN_CACHE_PROMPT_TTL")
	setInt(&cfg.Agent.GlobalMax, "HELMSMAN_AGENT_GLOBAL_MAX")
	setInt(&cfg.Agent.PerProjectMax, "HELMSMAN_AGENT_PER_PROJECT_MAX")
	setInt(&cfg.Agent.QueueDepth, "HELMSMAN_AGENT_QUEUE_DEPTH")
	setInt(&cfg.Agent.MaxTurns, "HELMSMAN_AGENT_MAX_TURNS")
	setInt(&cfg.Agent.HistoryWindow, "HELMSMAN_AGENT_HISTORY_WINDOW")
	setInt(&cfg.Breaker.MaxFailures, "HELMSMAN_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "HELMSMAN_BREAKER_TIMEOUT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Agent.GlobalMax < 1 {
		return errors.New("agent.global_max must be >= 1")
	}
	if cfg.Agent.PerProjectMax < 1 {
		return errors.New("agent.per_project_max must be >= 1")
	}
	if cfg.Agent.QueueDepth < 0 {
		return errors.New("agent.queue_depth must be >= 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
