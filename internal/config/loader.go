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
const DefaultConfigFile = "harmonium.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
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
	setString(&cfg.Server.Port, "HARMONIUM_PORT")
	setString(&cfg.Server.CORSOrigin, "HARMONIUM_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "HARMONIUM_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "HARMONIUM_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "HARMONIUM_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "HARMONIUM_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "HARMONIUM_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "HARMONIUM_LOG_LEVEL")
	setString(&cfg.Logging.Service, "HARMONIUM_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "HARMONIUM_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "HARMONIUM_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "HARMONIUM_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.L1MaxSizeMB, "HARMONIUM_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1Expire, "HARMONIUM_CACHE_L1_EXPIRE")
	setString(&cfg.Cache.L2Bucket, "HARMONIUM_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "HARMONIUM_CACHE_L2_TTL")
	setDuration(&cfg.Bridge.UIResultTimeout, "HARMONIUM_BRIDGE_UI_TIMEOUT")
	setDuration(&cfg.Bridge.ServerCallTimeout, "HARMONIUM_BRIDGE_SERVER_TIMEOUT")
	setInt(&cfg.Remote.MaxAttempts, "HARMONIUM_REMOTE_MAX_ATTEMPTS")
	setDuration(&cfg.Remote.InitialBackoff, "HARMONIUM_REMOTE_INITIAL_BACKOFF")
	setDuration(&cfg.Remote.MaxBackoff, "HARMONIUM_REMOTE_MAX_BACKOFF")
	setDuration(&cfg.Remote.TaskDeadline, "HARMONIUM_REMOTE_TASK_DEADLINE")
	setDuration(&cfg.Remote.DiscoveryTTL, "HARMONIUM_REMOTE_DISCOVERY_TTL")
	setString(&cfg.ToolServer.Transport, "HARMONIUM_TOOLSERVER_TRANSPORT")
	setString(&cfg.ToolServer.URL, "HARMONIUM_TOOLSERVER_URL")
	setString(&cfg.ToolServer.Command, "HARMONIUM_TOOLSERVER_COMMAND")
	setInt(&cfg.Stream.BufferSize, "HARMONIUM_STREAM_BUFFER")
	setString(&cfg.Runs.Namespace, "HARMONIUM_NAMESPACE")
	setInt(&cfg.Runs.ConflictRetries, "HARMONIUM_RUNS_CONFLICT_RETRIES")
	setDuration(&cfg.Runs.TurnTimeout, "HARMONIUM_RUNS_TURN_TIMEOUT")
	setBool(&cfg.MCP.Enabled, "HARMONIUM_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "HARMONIUM_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "HARMONIUM_MCP_API_KEY")
	setString(&cfg.A2A.BaseURL, "HARMONIUM_A2A_BASE_URL")
	setBool(&cfg.Telemetry.Enabled, "HARMONIUM_OTEL_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "HARMONIUM_OTLP_ENDPOINT")
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
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}
	if cfg.Remote.MaxAttempts < 1 {
		return errors.New("remote.max_attempts must be >= 1")
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
