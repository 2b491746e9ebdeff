package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the central typed configuration struct.
type Config struct {
	App  AppConfig
	Log  LogConfig
	Scan ScanConfig
	DI   DIConfig
}

type AppConfig struct {
	Name  string
	Env   string // local | production | testing
	Debug bool
	Port  string
}

type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // console | json
}

// ScanConfig drives unit discovery and dependency resolution of one
// application. Applications may override it with a boot.hcl file, see
// LoadScanFile.
type ScanConfig struct {
	Enabled              bool
	TimeoutSeconds       float64
	Exclude              []string
	Include              []string
	MaxWorkers           int
	PollIntervalMS       int
	GlobalTimeoutSeconds float64
}

type DIConfig struct {
	Duplicates string // warn | fail
}

const (
	DefaultScanTimeoutSeconds   = 10
	DefaultPollIntervalMS       = 100
	DefaultGlobalTimeoutSeconds = 10
)

// DefaultMaxWorkers is min(32, NumCPU+4).
func DefaultMaxWorkers() int { return min(32, runtime.NumCPU()+4) }

// Timeout is the resolution timeout of the application scope. Zero or
// negative means wait forever.
func (s ScanConfig) Timeout() time.Duration { return seconds(s.TimeoutSeconds) }

// GlobalTimeout is the resolution timeout of the ownerless scope.
func (s ScanConfig) GlobalTimeout() time.Duration { return seconds(s.GlobalTimeoutSeconds) }

// PollInterval is the fixed wait between resolution attempts.
func (s ScanConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

// Workers is MaxWorkers clamped to [1, 100].
func (s ScanConfig) Workers() int { return min(max(s.MaxWorkers, 1), 100) }

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// Load reads .env (if present) and populates a Config from environment variables.
// Call once at bootstrap: cfg := config.Load()
func Load(envFiles ...string) *Config {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	return &Config{
		App: AppConfig{
			Name:  env("APP_NAME", "GoBoot"),
			Env:   env("APP_ENV", "local"),
			Debug: envBool("APP_DEBUG", false),
			Port:  env("APP_PORT", "8000"),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "console"),
		},
		Scan: ScanConfig{
			Enabled:              envBool("SCAN_ENABLED", true),
			TimeoutSeconds:       GetFloat("SCAN_TIMEOUT_SECONDS", DefaultScanTimeoutSeconds),
			Exclude:              GetList("SCAN_EXCLUDE_PATHS"),
			Include:              GetList("SCAN_INCLUDE_PATHS"),
			MaxWorkers:           min(max(GetInt("SCAN_MAX_WORKERS", DefaultMaxWorkers()), 1), 100),
			PollIntervalMS:       GetInt("SCAN_POLL_INTERVAL_MS", DefaultPollIntervalMS),
			GlobalTimeoutSeconds: GetFloat("SCAN_GLOBAL_TIMEOUT_SECONDS", DefaultGlobalTimeoutSeconds),
		},
		DI: DIConfig{
			Duplicates: env("DI_DUPLICATES", "warn"),
		},
	}
}

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// GetInt returns an int env value.
func GetInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetFloat returns a float env value.
func GetFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// GetBool returns a bool env value.
func GetBool(key string, defaultVal bool) bool {
	return envBool(key, defaultVal)
}

// GetList returns a comma-separated env value as a list, empty items dropped.
func GetList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
