package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults for every tunable. They can be overridden from .env or the environment.
const (
	DefaultViewportDebounce     = 350 * time.Millisecond
	DefaultViewportMoveDegrees  = 0.01
	DefaultVenueCacheTTL        = 30 * time.Minute
	DefaultVenueCacheMaxEntries = 200
	DefaultRouteLabelTTL        = 7 * 24 * time.Hour
	DefaultRouteLabelMaxEntries = 220
	DefaultRouteLabelPruneTo    = 200
	DefaultScoreLatencyBudget   = 600 * time.Millisecond
	DefaultScoreCrossfade       = 120 * time.Millisecond
	DefaultScoreMediumAt        = 0.33
	DefaultScoreHighAt          = 0.66
	DefaultScoreTimeOfDay       = "night"
	DefaultScoreLookahead       = 60
	DefaultDisruptionRadius     = 200
	DefaultHazardTick           = time.Second
	DefaultHazardFinalWindow    = 60 * time.Second
	DefaultHazardTTL            = 30 * time.Minute
	DefaultHazardSyncInterval   = 30 * time.Second
	DefaultBackendTimeout       = 10 * time.Second
)

// Persistent tier choices for CACHE_BACKEND.
const (
	CacheBackendMemory   = "memory"
	CacheBackendRedis    = "redis"
	CacheBackendValkey   = "valkey"
	CacheBackendPostgres = "postgres"
)

var (
	DefaultVenueLimits    = []int{120, 250, 500}
	DefaultVenueZoomTiers = []float64{14, 16}
)

type Config struct {
	Server     ServerConfig
	Backend    BackendConfig
	Cache      CacheConfig
	Redis      RedisConfig
	Valkey     ValkeyConfig
	Database   DatabaseConfig
	Log        LogConfig
	Viewport   ViewportConfig
	RouteScore RouteScoreConfig
	Disruption DisruptionConfig
	Hazard     HazardConfig
	Lighting   LightingConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
	// AllowOrigins is a comma-separated CORS origin list, or "*".
	AllowOrigins string
}

type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CacheConfig selects the persistent tier behind every windowed cache.
// Backend is one of "memory", "redis", "valkey", "postgres".
type CacheConfig struct {
	Backend              string
	VenueTTL             time.Duration
	VenueMaxEntries      int
	RouteLabelTTL        time.Duration
	RouteLabelMaxEntries int
	RouteLabelPruneTo    int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type ValkeyConfig struct {
	Addr string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type LogConfig struct {
	Level string
}

type ViewportConfig struct {
	Debounce      time.Duration
	MoveThreshold float64
	// Limits[i] applies below ZoomTiers[i]; the last limit applies above every tier.
	Limits    []int
	ZoomTiers []float64
}

type RouteScoreConfig struct {
	LatencyBudget time.Duration
	Crossfade     time.Duration
	MediumAt      float64
	HighAt        float64
	TimeOfDay     string
	Lookahead     int
}

type DisruptionConfig struct {
	RadiusMeters int
}

// LightingConfig points at a GeoJSON file of lit street segments.
type LightingConfig struct {
	GeoJSONPath string
}

type HazardConfig struct {
	Tick         time.Duration
	FinalWindow  time.Duration
	DefaultTTL   time.Duration
	SyncInterval time.Duration
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// .env is optional; the environment and defaults are enough to run
	if err := v.ReadInConfig(); err != nil && !isMissingFile(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_HOST", "0.0.0.0")
	v.SetDefault("API_PORT", 8080)
	v.SetDefault("API_ENV", "development")
	v.SetDefault("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("BACKEND_BASE_URL", "http://localhost:8000")
	v.SetDefault("BACKEND_TIMEOUT", int(DefaultBackendTimeout/time.Second))

	v.SetDefault("CACHE_BACKEND", CacheBackendMemory)
	v.SetDefault("VENUE_CACHE_TTL", int(DefaultVenueCacheTTL/time.Second))
	v.SetDefault("VENUE_CACHE_MAX_ENTRIES", DefaultVenueCacheMaxEntries)
	v.SetDefault("ROUTE_LABEL_TTL", int(DefaultRouteLabelTTL/time.Second))
	v.SetDefault("ROUTE_LABEL_MAX_ENTRIES", DefaultRouteLabelMaxEntries)
	v.SetDefault("ROUTE_LABEL_PRUNE_TO", DefaultRouteLabelPruneTo)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("VALKEY_ADDR", "localhost:6379")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 300)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", 60)

	v.SetDefault("VIEWPORT_DEBOUNCE_MS", int(DefaultViewportDebounce/time.Millisecond))
	v.SetDefault("VIEWPORT_MOVE_THRESHOLD", DefaultViewportMoveDegrees)

	v.SetDefault("SCORE_LATENCY_BUDGET_MS", int(DefaultScoreLatencyBudget/time.Millisecond))
	v.SetDefault("SCORE_CROSSFADE_MS", int(DefaultScoreCrossfade/time.Millisecond))
	v.SetDefault("SCORE_MEDIUM_AT", DefaultScoreMediumAt)
	v.SetDefault("SCORE_HIGH_AT", DefaultScoreHighAt)
	v.SetDefault("SCORE_TIME_OF_DAY", DefaultScoreTimeOfDay)
	v.SetDefault("SCORE_LOOKAHEAD_MINUTES", DefaultScoreLookahead)

	v.SetDefault("DISRUPTION_RADIUS_M", DefaultDisruptionRadius)

	v.SetDefault("HAZARD_TICK_MS", int(DefaultHazardTick/time.Millisecond))
	v.SetDefault("HAZARD_FINAL_SECONDS", int(DefaultHazardFinalWindow/time.Second))
	v.SetDefault("HAZARD_DEFAULT_TTL", int(DefaultHazardTTL/time.Second))
	v.SetDefault("HAZARD_SYNC_INTERVAL", int(DefaultHazardSyncInterval/time.Second))

	v.SetDefault("LIGHTING_GEOJSON", "data/lighting.geojson")
}

func fromViper(v *viper.Viper) (*Config, error) {
	limits, err := parseInts(v.GetString("VENUE_LIMITS"))
	if err != nil {
		return nil, fmt.Errorf("invalid VENUE_LIMITS: %w", err)
	}
	tiers, err := parseFloats(v.GetString("VENUE_ZOOM_TIERS"))
	if err != nil {
		return nil, fmt.Errorf("invalid VENUE_ZOOM_TIERS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("API_HOST"),
			Port:         v.GetInt("API_PORT"),
			Env:          v.GetString("API_ENV"),
			AllowOrigins: v.GetString("CORS_ALLOW_ORIGINS"),
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(v.GetString("BACKEND_BASE_URL"), "/"),
			Timeout: time.Duration(v.GetInt("BACKEND_TIMEOUT")) * time.Second,
		},
		Cache: CacheConfig{
			Backend:              strings.ToLower(v.GetString("CACHE_BACKEND")),
			VenueTTL:             time.Duration(v.GetInt("VENUE_CACHE_TTL")) * time.Second,
			VenueMaxEntries:      v.GetInt("VENUE_CACHE_MAX_ENTRIES"),
			RouteLabelTTL:        time.Duration(v.GetInt("ROUTE_LABEL_TTL")) * time.Second,
			RouteLabelMaxEntries: v.GetInt("ROUTE_LABEL_MAX_ENTRIES"),
			RouteLabelPruneTo:    v.GetInt("ROUTE_LABEL_PRUNE_TO"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Valkey: ValkeyConfig{
			Addr: v.GetString("VALKEY_ADDR"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			DBName:          v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxConns:        v.GetInt("DB_MAX_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME")) * time.Second,
			ConnMaxIdleTime: time.Duration(v.GetInt("DB_CONN_MAX_IDLE_TIME")) * time.Second,
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Viewport: ViewportConfig{
			Debounce:      time.Duration(v.GetInt("VIEWPORT_DEBOUNCE_MS")) * time.Millisecond,
			MoveThreshold: v.GetFloat64("VIEWPORT_MOVE_THRESHOLD"),
			Limits:        limits,
			ZoomTiers:     tiers,
		},
		RouteScore: RouteScoreConfig{
			LatencyBudget: time.Duration(v.GetInt("SCORE_LATENCY_BUDGET_MS")) * time.Millisecond,
			Crossfade:     time.Duration(v.GetInt("SCORE_CROSSFADE_MS")) * time.Millisecond,
			MediumAt:      v.GetFloat64("SCORE_MEDIUM_AT"),
			HighAt:        v.GetFloat64("SCORE_HIGH_AT"),
			TimeOfDay:     v.GetString("SCORE_TIME_OF_DAY"),
			Lookahead:     v.GetInt("SCORE_LOOKAHEAD_MINUTES"),
		},
		Disruption: DisruptionConfig{
			RadiusMeters: v.GetInt("DISRUPTION_RADIUS_M"),
		},
		Hazard: HazardConfig{
			Tick:         time.Duration(v.GetInt("HAZARD_TICK_MS")) * time.Millisecond,
			FinalWindow:  time.Duration(v.GetInt("HAZARD_FINAL_SECONDS")) * time.Second,
			DefaultTTL:   time.Duration(v.GetInt("HAZARD_DEFAULT_TTL")) * time.Second,
			SyncInterval: time.Duration(v.GetInt("HAZARD_SYNC_INTERVAL")) * time.Second,
		},
		Lighting: LightingConfig{
			GeoJSONPath: v.GetString("LIGHTING_GEOJSON"),
		},
	}

	if len(cfg.Viewport.Limits) == 0 {
		cfg.Viewport.Limits = append([]int(nil), DefaultVenueLimits...)
	}
	if len(cfg.Viewport.ZoomTiers) == 0 {
		cfg.Viewport.ZoomTiers = append([]float64(nil), DefaultVenueZoomTiers...)
	}
	if len(cfg.Viewport.Limits) != len(cfg.Viewport.ZoomTiers)+1 {
		return nil, fmt.Errorf("VENUE_LIMITS needs exactly one more entry than VENUE_ZOOM_TIERS (%d vs %d)",
			len(cfg.Viewport.Limits), len(cfg.Viewport.ZoomTiers))
	}
	if cfg.RouteScore.MediumAt <= 0 || cfg.RouteScore.HighAt <= cfg.RouteScore.MediumAt || cfg.RouteScore.HighAt > 1 {
		return nil, fmt.Errorf("score thresholds must satisfy 0 < SCORE_MEDIUM_AT < SCORE_HIGH_AT <= 1")
	}
	switch cfg.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis, CacheBackendValkey, CacheBackendPostgres:
	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.Cache.Backend)
	}
	if cfg.Cache.RouteLabelPruneTo > cfg.Cache.RouteLabelMaxEntries {
		cfg.Cache.RouteLabelPruneTo = cfg.Cache.RouteLabelMaxEntries
	}

	return cfg, nil
}

// Default returns the configuration built only from defaults; handy for tests and tools.
func Default() *Config {
	cfg, err := fromViper(withDefaults())
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

func withDefaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func isMissingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

func parseInts(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	result := make([]int, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, nil
}

func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	result := make([]float64, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, nil
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetDatabaseDSN() string {
	return c.Database.DSN()
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
