// Package config loads service configuration from LUNAR_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aekmcb/Lunar-Stations/internal/auth"
	"github.com/aekmcb/Lunar-Stations/internal/ephemeris"
	"github.com/aekmcb/Lunar-Stations/internal/lunar"
)

// Config is the full service configuration.
type Config struct {
	HTTPAddr           string
	Auth               auth.Config
	TrustProxy         bool
	MaxConcurrentPerIP int
	Engine             lunar.Config
	CatalogFile        string
	Store              StoreConfig
}

// StoreConfig configures result persistence. Empty paths and addresses
// disable the corresponding tier.
type StoreConfig struct {
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	Retention     time.Duration // SQLite rows older than this are pruned
}

// LoadDotEnv loads variables from path (".env" when empty) without overriding
// ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// LogLevel returns the level named by LUNAR_LOG_LEVEL, defaulting to info.
func LogLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LUNAR_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads the configuration. Invalid optional values are logged and
// replaced by defaults; an inconsistent auth setup is an error.
func Load(logger *slog.Logger) (Config, error) {
	cfg := Config{
		HTTPAddr:           ":8080",
		MaxConcurrentPerIP: 2,
		Engine:             LoadEngine(logger),
		CatalogFile:        os.Getenv("LUNAR_CATALOG_FILE"),
		Store:              loadStoreConfig(logger),
	}

	if v := os.Getenv("LUNAR_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		return cfg, err
	}
	cfg.Auth = authCfg

	cfg.TrustProxy = envBool(logger, "LUNAR_TRUST_PROXY", false)
	cfg.MaxConcurrentPerIP = envInt(logger, "LUNAR_MAX_CONCURRENT_PER_IP", cfg.MaxConcurrentPerIP, 1)

	logger.Info("server config",
		"addr", cfg.HTTPAddr,
		"trust_proxy", cfg.TrustProxy,
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"catalog_file", cfg.CatalogFile,
	)
	return cfg, nil
}

// LoadEngine reads the calculation settings.
func LoadEngine(logger *slog.Logger) lunar.Config {
	cfg := lunar.DefaultConfig()

	days := envInt(logger, "LUNAR_MAX_RANGE_DAYS", int(cfg.MaxRange/(24*time.Hour)), 1)
	cfg.MaxRange = time.Duration(days) * 24 * time.Hour

	hours := envInt(logger, "LUNAR_CHUNK_HOURS", int(cfg.ChunkSize/time.Hour), 1)
	cfg.ChunkSize = time.Duration(hours) * time.Hour

	if v := os.Getenv("LUNAR_FRAME"); v != "" {
		frame, err := ephemeris.ParseFrame(v)
		if err != nil {
			logger.Warn("invalid LUNAR_FRAME value, using default", "value", v, "default", cfg.Frame.String())
		} else {
			cfg.Frame = frame
		}
	}

	cfg.Refine = envBool(logger, "LUNAR_REFINE", cfg.Refine)
	cfg.Workers = envInt(logger, "LUNAR_WORKERS", runtime.NumCPU(), 1)

	logger.Info("engine config",
		"max_range_days", days,
		"chunk_hours", hours,
		"frame", cfg.Frame.String(),
		"refine", cfg.Refine,
		"workers", cfg.Workers,
	)
	return cfg
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("LUNAR_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("LUNAR_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("LUNAR_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("LUNAR_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadStoreConfig(logger *slog.Logger) StoreConfig {
	cfg := StoreConfig{
		SQLitePath:    os.Getenv("LUNAR_SQLITE_PATH"),
		RedisAddr:     os.Getenv("LUNAR_REDIS_ADDR"),
		RedisPassword: os.Getenv("LUNAR_REDIS_PASSWORD"),
		RedisDB:       envInt(logger, "LUNAR_REDIS_DB", 0, 0),
		CacheTTL:      time.Duration(envInt(logger, "LUNAR_CACHE_TTL", 86400, 1)) * time.Second,
		Retention:     time.Duration(envInt(logger, "LUNAR_RESULT_RETENTION_DAYS", 30, 1)) * 24 * time.Hour,
	}

	logger.Info("store config",
		"sqlite_path", cfg.SQLitePath,
		"redis_addr", cfg.RedisAddr,
		"redis_db", cfg.RedisDB,
		"cache_ttl_seconds", cfg.CacheTTL.Seconds(),
		"retention_days", int(cfg.Retention.Hours()/24),
	)
	return cfg
}

func envInt(logger *slog.Logger, key string, def, floor int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

func envBool(logger *slog.Logger, key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return b
}
