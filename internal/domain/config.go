package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete riskview configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backing services are used
	Tier Tier `json:"tier"`

	// Backend is the statistics/transaction service the views fetch from
	Backend BackendConfig `json:"backend"`

	// Policy holds every classification threshold in one place
	Policy Policy `json:"policy"`

	// Views controls windowing and caching of derived views
	Views ViewsConfig `json:"views"`

	// Session controls how the analyst session is persisted
	Session SessionConfig `json:"session"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// DevBackend configures cmd/statsd
	DevBackend DevBackendConfig `json:"devBackend"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// BackendConfig points at the statistics/transaction service.
type BackendConfig struct {
	BaseURL  string        `json:"baseUrl"`
	Timeout  time.Duration `json:"timeout"`
	PageSize int           `json:"pageSize"` // records requested for the timeline snapshot
}

// Policy centralizes the classification thresholds.
type Policy struct {
	// Decision thresholds on fraud probability (0-1)
	BlockAt  float64 `json:"blockAt"`
	ReviewAt float64 `json:"reviewAt"`

	// Risk level thresholds on fraud rate (percent)
	HighRateAt     float64 `json:"highRateAt"`
	CriticalRateAt float64 `json:"criticalRateAt"`

	// Behavioral anomaly thresholds (strictly greater than)
	DeviceChangesAbove int     `json:"deviceChangesAbove"`
	OSChangesAbove     int     `json:"osChangesAbove"`
	WeeklyLoginsAbove  int     `json:"weeklyLoginsAbove"`
	LoginShiftAbove    float64 `json:"loginShiftAbove"`

	// FBeta is the beta weighting of the F-beta score
	FBeta float64 `json:"fBeta"`
}

// ViewsConfig controls derived-view presentation limits.
type ViewsConfig struct {
	Timezone         string `json:"timezone"`     // IANA name, empty = local
	TrendWindow      int    `json:"trendWindow"`  // last N buckets shown
	TableLimit       int    `json:"tableLimit"`   // rows shown in the timeline table
	HistoryLimit     int    `json:"historyLimit"` // rows shown in customer history
	DerivedCacheSize int    `json:"derivedCacheSize"`
	CustomerViews    int    `json:"customerViews"` // customer snapshots kept, least recently used dropped
}

// Location resolves the configured time zone.
func (v ViewsConfig) Location() (*time.Location, error) {
	if v.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(v.Timezone)
}

// SessionConfig controls persistence of the analyst session.
type SessionConfig struct {
	Scope string        `json:"scope"`
	TTL   time.Duration `json:"ttl"`
}

// DevBackendConfig configures the development statistics backend.
type DevBackendConfig struct {
	Email          string        `json:"email"`
	Password       string        `json:"password"`
	TokenTTL       time.Duration `json:"tokenTtl"`
	MaxFailedLogin int           `json:"maxFailedLogin"`
	LockoutWindow  time.Duration `json:"lockoutWindow"`
	Scoring        ScoringConfig `json:"scoring"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs everything in process: LRU cache, channel bus, SQLite
	TierCommunity Tier = "community"

	// TierPro uses Redis, NATS and PostgreSQL
	TierPro Tier = "pro"
)

// DefaultPolicy returns the thresholds used by the analyst views.
func DefaultPolicy() Policy {
	return Policy{
		BlockAt:            0.85,
		ReviewAt:           0.50,
		HighRateAt:         5,
		CriticalRateAt:     20,
		DeviceChangesAbove: 3,
		OSChangesAbove:     2,
		WeeklyLoginsAbove:  20,
		LoginShiftAbove:    0.5,
		FBeta:              2,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8090,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Backend: BackendConfig{
			BaseURL:  "http://localhost:8080/api",
			Timeout:  15 * time.Second,
			PageSize: 1000,
		},
		Policy: DefaultPolicy(),
		Views: ViewsConfig{
			TrendWindow:      30,
			TableLimit:       100,
			HistoryLimit:     20,
			DerivedCacheSize: 256,
			CustomerViews:    128,
		},
		Session: SessionConfig{
			Scope: "analyst",
			TTL:   12 * time.Hour,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./riskview-dev.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		DevBackend: DevBackendConfig{
			Email:          "analyst@bank.local",
			Password:       "analyst",
			TokenTTL:       12 * time.Hour,
			MaxFailedLogin: 5,
			LockoutWindow:  15 * time.Minute,
			Scoring: ScoringConfig{
				VelocityWindowSecs: 3600,
				MaxWorkers:         10,
				WeightedScoring:    true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "riskview",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "riskview",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// ApplyEnv overrides configuration from RISKVIEW_* variables.
// Unset variables leave the current value untouched.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []string
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	str("RISKVIEW_HOST", &c.Server.Host)
	integer("RISKVIEW_PORT", &c.Server.Port)

	str("RISKVIEW_BACKEND_URL", &c.Backend.BaseURL)
	duration("RISKVIEW_BACKEND_TIMEOUT", &c.Backend.Timeout)
	integer("RISKVIEW_PAGE_SIZE", &c.Backend.PageSize)

	float("RISKVIEW_BLOCK_AT", &c.Policy.BlockAt)
	float("RISKVIEW_REVIEW_AT", &c.Policy.ReviewAt)
	float("RISKVIEW_HIGH_RATE_AT", &c.Policy.HighRateAt)
	float("RISKVIEW_CRITICAL_RATE_AT", &c.Policy.CriticalRateAt)

	str("RISKVIEW_TIMEZONE", &c.Views.Timezone)
	integer("RISKVIEW_TREND_WINDOW", &c.Views.TrendWindow)
	integer("RISKVIEW_TABLE_LIMIT", &c.Views.TableLimit)
	integer("RISKVIEW_CUSTOMER_VIEWS", &c.Views.CustomerViews)

	str("RISKVIEW_SESSION_SCOPE", &c.Session.Scope)
	duration("RISKVIEW_SESSION_TTL", &c.Session.TTL)

	str("RISKVIEW_REDIS_ADDR", &c.Cache.RedisAddr)
	str("RISKVIEW_REDIS_PASSWORD", &c.Cache.RedisPassword)
	str("RISKVIEW_NATS_URL", &c.EventBus.NATSUrl)
	str("RISKVIEW_NATS_TOKEN", &c.EventBus.NATSToken)

	str("RISKVIEW_DB_DRIVER", &c.Repository.Driver)
	str("RISKVIEW_SQLITE_PATH", &c.Repository.SQLitePath)
	str("RISKVIEW_PG_HOST", &c.Repository.PostgresHost)
	integer("RISKVIEW_PG_PORT", &c.Repository.PostgresPort)
	str("RISKVIEW_PG_USER", &c.Repository.PostgresUser)
	str("RISKVIEW_PG_PASSWORD", &c.Repository.PostgresPassword)
	str("RISKVIEW_PG_DB", &c.Repository.PostgresDB)

	str("RISKVIEW_DEV_EMAIL", &c.DevBackend.Email)
	str("RISKVIEW_DEV_PASSWORD", &c.DevBackend.Password)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}
