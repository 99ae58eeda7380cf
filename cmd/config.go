package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	// Embedded zone data keeps CALENDAR_TIMEZONE working in minimal images.
	_ "time/tzdata"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"

	"github.com/teemow/milestonesync/internal/credentials"
	"github.com/teemow/milestonesync/internal/lock"
)

// Record store, lock and notification backends.
const (
	storeMemory   = "memory"
	storeSQLite   = "sqlite"
	storePostgres = "postgres"

	lockMemory = "memory"
	lockRedis  = "redis"

	notifyLog     = "log"
	notifySignal  = "signal"
	notifyWebhook = "webhook"
)

const (
	defaultTimeZone     = "Asia/Jakarta"
	defaultSyncInterval = 15 * time.Minute
	defaultHTTPAddr     = ":8080"
	defaultMetricsAddr  = ":9090"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// Config is the process configuration, read from the environment and
// overridden by flags.
type Config struct {
	Credentials     credentials.Config
	CredentialsFile string
	CalendarID      string
	TimeZone        string
	SyncInterval    time.Duration

	ReminderHour int

	RecordStore string
	SQLitePath  string
	DatabaseURL string

	LockBackend string
	Redis       lock.RedisOptions

	NotifyBackend     string
	SignalUserID      string
	WebhookURL        string
	OperatorRecipient string

	HTTPAddr string
	Metrics  MetricsConfig

	LogLevel  string
	LogFormat string

	// parseErrors collects malformed environment values for Validate.
	parseErrors []error
}

// loadDotEnv loads path into the environment. Variables already set win and a
// missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// configFromEnv reads the configuration from environment variables.
func configFromEnv() Config {
	var cfg Config
	env := envReader{errs: &cfg.parseErrors}

	cfg.Credentials = credentials.Config{
		Enabled:         env.flag("GOOGLE_CALENDAR_ENABLED", false),
		ClientID:        os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret:    os.Getenv("GOOGLE_CLIENT_SECRET"),
		RefreshToken:    os.Getenv("GOOGLE_REFRESH_TOKEN"),
		AccessToken:     os.Getenv("GOOGLE_ACCESS_TOKEN"),
		RefreshInterval: env.minutes("CALENDAR_REFRESH_INTERVAL_MINUTES", credentials.DefaultRefreshInterval),
	}
	cfg.CredentialsFile = env.str("CREDENTIALS_FILE", credentials.DefaultTokenPath())
	cfg.CalendarID = env.str("GOOGLE_CALENDAR_ID", "primary")
	cfg.TimeZone = env.str("CALENDAR_TIMEZONE", defaultTimeZone)
	cfg.SyncInterval = env.minutes("CALENDAR_SYNC_INTERVAL_MINUTES", defaultSyncInterval)

	cfg.ReminderHour = env.number("REMINDER_HOUR", 9)

	cfg.RecordStore = strings.ToLower(env.str("RECORD_STORE", storeSQLite))
	cfg.SQLitePath = env.str("SQLITE_PATH", filepath.Join(xdg.DataHome, "milestonesync", "records.db"))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.LockBackend = strings.ToLower(env.str("LOCK_BACKEND", lockMemory))
	cfg.Redis = lock.RedisOptions{
		Addr:     os.Getenv("REDIS_ADDR"),
		Username: os.Getenv("REDIS_USERNAME"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       env.number("REDIS_DB", 0),
	}

	cfg.NotifyBackend = strings.ToLower(env.str("NOTIFY_BACKEND", notifyLog))
	cfg.SignalUserID = os.Getenv("SIGNAL_USER_ID")
	cfg.WebhookURL = os.Getenv("NOTIFY_WEBHOOK_URL")
	cfg.OperatorRecipient = os.Getenv("OPERATOR_RECIPIENT")

	cfg.HTTPAddr = env.str("HTTP_ADDR", defaultHTTPAddr)
	cfg.Metrics = MetricsConfig{
		Enabled: env.flag("METRICS_ENABLED", true),
		Addr:    env.str("METRICS_ADDR", defaultMetricsAddr),
	}

	cfg.LogLevel = env.str("LOG_LEVEL", "info")
	cfg.LogFormat = env.str("LOG_FORMAT", "text")
	return cfg
}

// Location resolves the configured zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid CALENDAR_TIMEZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Validate reports every invalid value at once. Missing Google credentials are
// not checked here; they disable the integration at startup instead.
func (c Config) Validate() error {
	errs := append([]error(nil), c.parseErrors...)

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync interval must be positive"))
	}
	if c.ReminderHour < 0 || c.ReminderHour > 23 {
		errs = append(errs, fmt.Errorf("REMINDER_HOUR %d out of range 0-23", c.ReminderHour))
	}

	switch c.RecordStore {
	case storeMemory:
	case storeSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("SQLITE_PATH is required for the sqlite record store"))
		}
	case storePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for the postgres record store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported RECORD_STORE %q (supported: memory, sqlite, postgres)", c.RecordStore))
	}

	switch c.LockBackend {
	case lockMemory:
	case lockRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR is required for the redis lock backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LOCK_BACKEND %q (supported: memory, redis)", c.LockBackend))
	}

	switch c.NotifyBackend {
	case notifyLog:
	case notifySignal:
		if c.SignalUserID == "" {
			errs = append(errs, fmt.Errorf("SIGNAL_USER_ID is required for the signal notify backend"))
		}
	case notifyWebhook:
		if c.WebhookURL == "" {
			errs = append(errs, fmt.Errorf("NOTIFY_WEBHOOK_URL is required for the webhook notify backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported NOTIFY_BACKEND %q (supported: log, signal, webhook)", c.NotifyBackend))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported LOG_FORMAT %q (supported: text, json)", c.LogFormat))
	}

	return errors.Join(errs...)
}

type envReader struct {
	errs *[]error
}

func (r envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r envReader) flag(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("invalid %s %q (expected true/false)", key, v))
		return def
	}
	return b
}

func (r envReader) number(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("invalid %s %q (expected an integer)", key, v))
		return def
	}
	return n
}

func (r envReader) minutes(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*r.errs = append(*r.errs, fmt.Errorf("invalid %s %q (expected a positive number of minutes)", key, v))
		return def
	}
	return time.Duration(n) * time.Minute
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
