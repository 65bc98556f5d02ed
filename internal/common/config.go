package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Jobs        JobsConfig      `toml:"jobs"`
	Sessions    SessionsConfig  `toml:"sessions"`
	Storage     StorageConfig   `toml:"storage"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Content     ContentConfig   `toml:"content"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"` // "debug", "info", "warn", "error"
	Output []string `toml:"output" validate:"dive,oneof=stdout console file"`
}

// JobsConfig controls background job behaviour
type JobsConfig struct {
	SinkCeilingBytes int    `toml:"sink_ceiling_bytes" validate:"min=1024"` // Max retained progress bytes per job before oldest chunks are evicted
	MaxIdle          string `toml:"max_idle"`                               // Finished jobs not polled within this window are dropped, e.g. "30m"
	ReaperSchedule   string `toml:"reaper_schedule"`                        // Cron schedule (with seconds) for idle reclamation
	MaxPerSession    int    `toml:"max_per_session" validate:"min=0"`       // Max concurrently running jobs per session (0 = unbounded)
}

// SessionsConfig controls the in-memory session store that owns job registries
type SessionsConfig struct {
	CookieName  string `toml:"cookie_name" validate:"required"`
	IdleTimeout string `toml:"idle_timeout"` // Sessions idle longer than this are torn down, e.g. "2h"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Enabled        bool   `toml:"enabled"`          // Persist finished job summaries
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
	RetentionDays  int    `toml:"retention_days"`   // History older than this is purged by the reaper (0 = keep forever)
}

// WebSocketConfig contains configuration for job event streaming
type WebSocketConfig struct {
	ProgressThrottle string `toml:"progress_throttle"` // Max rate of job_progress pushes per client, e.g. "250ms" ("" disables throttling)
}

// ContentConfig points the bundled filesystem content repository at a directory
type ContentConfig struct {
	Root string `toml:"root" validate:"required"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8086,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Jobs: JobsConfig{
			SinkCeilingBytes: 1024 * 1024, // 1 MB of report text per job
			MaxIdle:          "30m",
			ReaperSchedule:   "0 */1 * * * *", // Every minute
			MaxPerSession:    0,
		},
		Sessions: SessionsConfig{
			CookieName:  "vigil_session",
			IdleTimeout: "2h",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Enabled:       true,
				Path:          "./data",
				RetentionDays: 30,
			},
		},
		WebSocket: WebSocketConfig{
			ProgressThrottle: "250ms",
		},
		Content: ContentConfig{
			Root: "./content",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier files. CLI flags are applied afterwards with ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIGIL_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("VIGIL_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VIGIL_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("VIGIL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VIGIL_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Jobs configuration
	if ceiling := os.Getenv("VIGIL_JOBS_SINK_CEILING_BYTES"); ceiling != "" {
		if c, err := strconv.Atoi(ceiling); err == nil {
			config.Jobs.SinkCeilingBytes = c
		}
	}
	if maxIdle := os.Getenv("VIGIL_JOBS_MAX_IDLE"); maxIdle != "" {
		config.Jobs.MaxIdle = maxIdle
	}
	if schedule := os.Getenv("VIGIL_JOBS_REAPER_SCHEDULE"); schedule != "" {
		config.Jobs.ReaperSchedule = schedule
	}
	if maxPer := os.Getenv("VIGIL_JOBS_MAX_PER_SESSION"); maxPer != "" {
		if m, err := strconv.Atoi(maxPer); err == nil {
			config.Jobs.MaxPerSession = m
		}
	}

	// Sessions configuration
	if idle := os.Getenv("VIGIL_SESSIONS_IDLE_TIMEOUT"); idle != "" {
		config.Sessions.IdleTimeout = idle
	}

	// Storage configuration
	if badgerPath := os.Getenv("VIGIL_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if enabled := os.Getenv("VIGIL_BADGER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Storage.Badger.Enabled = e
		}
	}

	// Content configuration
	if root := os.Getenv("VIGIL_CONTENT_ROOT"); root != "" {
		config.Content.Root = root
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct tags and the duration/schedule strings
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"jobs.max_idle":               c.Jobs.MaxIdle,
		"sessions.idle_timeout":       c.Sessions.IdleTimeout,
		"websocket.progress_throttle": c.WebSocket.ProgressThrottle,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
	}

	if c.Jobs.ReaperSchedule != "" {
		if err := ValidateSchedule(c.Jobs.ReaperSchedule); err != nil {
			return fmt.Errorf("invalid configuration: jobs.reaper_schedule: %w", err)
		}
	}

	return nil
}

// ValidateSchedule checks a six-field (seconds-first) cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// MaxIdleDuration returns the parsed jobs.max_idle, or 0 when disabled
func (c *Config) MaxIdleDuration() time.Duration {
	return parseDurationOr(c.Jobs.MaxIdle, 0)
}

// SessionIdleTimeout returns the parsed sessions.idle_timeout, or 0 when disabled
func (c *Config) SessionIdleTimeout() time.Duration {
	return parseDurationOr(c.Sessions.IdleTimeout, 0)
}

// ProgressThrottle returns the parsed websocket.progress_throttle, or 0 when disabled
func (c *Config) ProgressThrottle() time.Duration {
	return parseDurationOr(c.WebSocket.ProgressThrottle, 0)
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
