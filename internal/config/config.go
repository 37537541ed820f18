package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Snapshot backends.
const (
	BackendFile    = "file"
	BackendSurreal = "surreal"
)

// Provider exposes configuration to components that should not depend on the
// concrete Config layout.
type Provider interface {
	GetServerAddr() string
	GetAllowedOrigins() []string
	GetRateLimit() int
	GetSnapshotBackend() string
	GetSnapshotDir() string

	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration

	GetCountdown() time.Duration
	GetEpochInterval() time.Duration
	GetDecisionTimeout() time.Duration
	GetRetryDelay() time.Duration
	GetDecisionScript() string
	GetMarketAssets() []string

	GetTracingEnabled() bool
	GetTracingServiceName() string
	GetTracingZipkinURL() string
}

// Config holds all configuration for the application.
type Config struct {
	ServerAddr      string
	AllowedOrigins  []string
	RateLimit       int
	SnapshotBackend string
	SnapshotDir     string

	DBUrl            string
	DBNs             string
	DBDb             string
	DBUser           string
	DBPass           string
	DBQueryTimeout   time.Duration
	DBExecuteTimeout time.Duration

	Countdown       time.Duration
	EpochInterval   time.Duration
	DecisionTimeout time.Duration
	RetryDelay      time.Duration
	DecisionScript  string
	MarketAssets    []string

	TracingEnabled     bool
	TracingServiceName string
	TracingZipkinURL   string
}

var _ Provider = (*Config)(nil)

// New loads configuration from a .env file, if present, and the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Unset keys take defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}
	cfg := &Config{
		ServerAddr:      p.str("SERVER_ADDR", ":8080"),
		AllowedOrigins:  p.fields("ALLOWED_ORIGINS"),
		RateLimit:       p.number("RATE_LIMIT_PER_MINUTE", 30),
		SnapshotBackend: p.str("SNAPSHOT_BACKEND", BackendFile),
		SnapshotDir:     p.str("SNAPSHOT_DIR", "data/snapshots"),

		DBUrl:            p.str("SURREAL_URL", ""),
		DBNs:             p.str("SURREAL_NS", "hexarena"),
		DBDb:             p.str("SURREAL_DB", "battles"),
		DBUser:           p.str("SURREAL_USER", "root"),
		DBPass:           p.str("SURREAL_PASS", ""),
		DBQueryTimeout:   p.duration("SURREAL_QUERY_TIMEOUT", 5*time.Second),
		DBExecuteTimeout: p.duration("SURREAL_EXECUTE_TIMEOUT", 10*time.Second),

		Countdown:       p.duration("BATTLE_COUNTDOWN", 30*time.Second),
		EpochInterval:   p.duration("BATTLE_EPOCH_INTERVAL", 10*time.Second),
		DecisionTimeout: p.duration("BATTLE_DECISION_TIMEOUT", 3*time.Second),
		RetryDelay:      p.duration("BATTLE_RETRY_DELAY", 2*time.Second),
		DecisionScript:  p.str("DECISION_SCRIPT", ""),
		MarketAssets:    p.list("MARKET_ASSETS", []string{"BTC", "ETH", "SOL"}),

		TracingEnabled:     p.boolean("TRACING_ENABLED", false),
		TracingServiceName: p.str("TRACING_SERVICE_NAME", "hexarena"),
		TracingZipkinURL:   p.str("TRACING_ZIPKIN_URL", "http://localhost:9411/api/v2/spans"),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.SnapshotBackend {
	case BackendFile:
		if c.SnapshotDir == "" {
			return fmt.Errorf("SNAPSHOT_DIR is required for the file backend")
		}
	case BackendSurreal:
		if c.DBUrl == "" || c.DBNs == "" || c.DBDb == "" {
			return fmt.Errorf("SURREAL_URL, SURREAL_NS and SURREAL_DB are required for the surreal backend")
		}
	default:
		return fmt.Errorf("unknown SNAPSHOT_BACKEND %q", c.SnapshotBackend)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.EpochInterval <= 0 || c.DecisionTimeout <= 0 || c.RetryDelay <= 0 {
		return fmt.Errorf("battle intervals must be positive")
	}
	return nil
}

func (c *Config) GetServerAddr() string              { return c.ServerAddr }
func (c *Config) GetAllowedOrigins() []string        { return c.AllowedOrigins }
func (c *Config) GetRateLimit() int                  { return c.RateLimit }
func (c *Config) GetSnapshotBackend() string         { return c.SnapshotBackend }
func (c *Config) GetSnapshotDir() string             { return c.SnapshotDir }
func (c *Config) GetDBURL() string                   { return c.DBUrl }
func (c *Config) GetDBNs() string                    { return c.DBNs }
func (c *Config) GetDBDb() string                    { return c.DBDb }
func (c *Config) GetDBUser() string                  { return c.DBUser }
func (c *Config) GetDBPass() string                  { return c.DBPass }
func (c *Config) GetDBQueryTimeout() time.Duration   { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration { return c.DBExecuteTimeout }
func (c *Config) GetCountdown() time.Duration        { return c.Countdown }
func (c *Config) GetEpochInterval() time.Duration    { return c.EpochInterval }
func (c *Config) GetDecisionTimeout() time.Duration  { return c.DecisionTimeout }
func (c *Config) GetRetryDelay() time.Duration       { return c.RetryDelay }
func (c *Config) GetDecisionScript() string          { return c.DecisionScript }
func (c *Config) GetMarketAssets() []string          { return c.MarketAssets }
func (c *Config) GetTracingEnabled() bool            { return c.TracingEnabled }
func (c *Config) GetTracingServiceName() string      { return c.TracingServiceName }
func (c *Config) GetTracingZipkinURL() string        { return c.TracingZipkinURL }

// parser records the first malformed value.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return d
}

func (p *parser) number(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return b
}

// list reads a comma separated list of asset symbols.
func (p *parser) list(key string, def []string) []string {
	out := p.fields(key)
	if len(out) == 0 {
		return def
	}
	for i := range out {
		out[i] = strings.ToUpper(out[i])
	}
	return out
}

func (p *parser) fields(key string) []string {
	var out []string
	for _, part := range strings.Split(p.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
