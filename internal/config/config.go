package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Backup sink kinds.
const (
	SinkScript = "script"
	SinkGCS    = "gcs"
	SinkDrive  = "drive"
)

// DefaultRunTime is used when BACKUP_RUN_TIME is unset or malformed.
const DefaultRunTime = "03:00"

var runTimePattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

type Config struct {
	// HTTP Server
	Port               string `toml:"port"`
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"`

	// Files
	DBPath           string `toml:"db_path"`
	SettingsPath     string `toml:"settings_path"`
	BackupConfigPath string `toml:"backup_config_path"`

	// Time zone used to derive dateLocal and to evaluate the backup run time
	Timezone string `toml:"timezone"`

	// Backup sink
	BackupSink      string        `toml:"backup_sink"`
	BackupScriptURL string        `toml:"backup_script_url"`
	BackupRunTime   string        `toml:"backup_run_time"`
	BackupRetention int           `toml:"backup_retention"`
	BackupTimeout   time.Duration `toml:"backup_timeout"`

	// Google sinks
	GCSBucket             string `toml:"gcs_bucket"`
	GCSPrefix             string `toml:"gcs_prefix"`
	DriveFolderID         string `toml:"drive_folder_id"`
	GoogleCredentialsFile string `toml:"google_credentials_file"`
	GoogleCredentialsJSON string `toml:"-"`

	// AMQP (optional)
	AMQPURL      string `toml:"amqp_url"`
	AMQPExchange string `toml:"amqp_exchange"`

	// Caches
	WhoCacheTTL time.Duration `toml:"who_cache_ttl"`

	// Logging
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// Source is the TOML file the config was read from, if any.
	Source string `toml:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:               "8080",
		RateLimitPerMinute: 10,
		DBPath:             "./data/finance.db",
		SettingsPath:       "./data/user-settings.json",
		BackupConfigPath:   "./data/backup-config.json",
		Timezone:           "Local",
		BackupSink:         SinkScript,
		BackupRunTime:      DefaultRunTime,
		BackupRetention:    14,
		BackupTimeout:      60 * time.Second,
		GCSPrefix:          "backups/",
		AMQPExchange:       "findash",
		WhoCacheTTL:        5 * time.Minute,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load builds the configuration from defaults, the optional TOML file named
// by FINDASH_CONFIG, and environment variables, in that order.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("FINDASH_CONFIG")); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
		cfg.Source = path
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)

	cfg.DBPath = getEnv("SQLITE_DB_PATH", cfg.DBPath)
	cfg.SettingsPath = getEnv("USER_SETTINGS_PATH", cfg.SettingsPath)
	cfg.BackupConfigPath = getEnv("BACKUP_CONFIG_PATH", cfg.BackupConfigPath)
	cfg.Timezone = getEnv("TZ_NAME", cfg.Timezone)

	cfg.BackupSink = strings.ToLower(getEnv("BACKUP_SINK", cfg.BackupSink))
	cfg.BackupScriptURL = strings.TrimSpace(getEnv("BACKUP_SCRIPT_URL", cfg.BackupScriptURL))
	cfg.BackupRunTime = NormalizeRunTime(getEnv("BACKUP_RUN_TIME", cfg.BackupRunTime), DefaultRunTime)
	cfg.BackupRetention = getEnvInt("BACKUP_RETENTION", cfg.BackupRetention)
	cfg.BackupTimeout = getEnvDuration("BACKUP_TIMEOUT", cfg.BackupTimeout)

	cfg.GCSBucket = getEnv("GCS_BUCKET", cfg.GCSBucket)
	cfg.GCSPrefix = getEnv("GCS_PREFIX", cfg.GCSPrefix)
	cfg.DriveFolderID = getEnv("DRIVE_FOLDER_ID", cfg.DriveFolderID)
	cfg.GoogleCredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", cfg.GoogleCredentialsFile)
	cfg.GoogleCredentialsJSON = getEnv("GOOGLE_CREDENTIALS_JSON", cfg.GoogleCredentialsJSON)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)

	cfg.WhoCacheTTL = getEnvDuration("WHO_CACHE_TTL", cfg.WhoCacheTTL)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	return cfg, nil
}

// SinkConfigured reports whether backups have somewhere to go.
func (c *Config) SinkConfigured() bool {
	switch c.BackupSink {
	case SinkGCS:
		return c.GCSBucket != ""
	case SinkDrive:
		return c.DriveFolderID != ""
	default:
		return c.BackupScriptURL != ""
	}
}

// SinkAddress is the operator-facing address of the configured sink.
func (c *Config) SinkAddress() string {
	switch c.BackupSink {
	case SinkGCS:
		if c.GCSBucket == "" {
			return ""
		}
		return "gs://" + c.GCSBucket + "/" + strings.TrimPrefix(c.GCSPrefix, "/")
	case SinkDrive:
		if c.DriveFolderID == "" {
			return ""
		}
		return "drive://" + c.DriveFolderID
	default:
		return c.BackupScriptURL
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}
	if c.SettingsPath == "" {
		errors = append(errors, "settings path cannot be empty")
	}
	if c.BackupConfigPath == "" {
		errors = append(errors, "backup config path cannot be empty")
	}

	if c.Timezone != "" && !strings.EqualFold(c.Timezone, "local") {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
		}
	}

	validSinks := []string{SinkScript, SinkGCS, SinkDrive}
	isValidSink := false
	for _, s := range validSinks {
		if c.BackupSink == s {
			isValidSink = true
			break
		}
	}
	if !isValidSink {
		errors = append(errors, fmt.Sprintf("invalid backup sink '%s': must be one of %v", c.BackupSink, validSinks))
	}

	if c.BackupScriptURL != "" {
		if u, err := url.Parse(c.BackupScriptURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid backup script URL '%s': %v", c.BackupScriptURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid backup script URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
	}
	if c.BackupSink == SinkDrive && c.DriveFolderID != "" &&
		c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" {
		errors = append(errors, "either GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS_JSON must be provided for the drive sink")
	}

	if !runTimePattern.MatchString(c.BackupRunTime) {
		errors = append(errors, fmt.Sprintf("invalid backup run time '%s': must be HH:MM", c.BackupRunTime))
	}
	if c.BackupRetention < 1 {
		errors = append(errors, fmt.Sprintf("invalid backup retention %d: must be at least 1", c.BackupRetention))
	}
	if c.BackupTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid backup timeout %v: must be at least 1 second", c.BackupTimeout))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.WhoCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid who cache TTL %v: must not be negative", c.WhoCacheTTL))
	}
	if c.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitPerMinute))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// NormalizeRunTime zero-pads a valid H:MM or HH:MM value and returns
// fallback for anything else.
func NormalizeRunTime(value, fallback string) string {
	m := runTimePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return fallback
	}
	h, _ := strconv.Atoi(m[1])
	return fmt.Sprintf("%02d:%s", h, m[2])
}

// Redacted returns a copy with secrets masked, for printing.
func (c *Config) Redacted() Config {
	out := *c
	if out.GoogleCredentialsJSON != "" {
		out.GoogleCredentialsJSON = "***"
	}
	if u, err := url.Parse(out.AMQPURL); err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "***")
			out.AMQPURL = u.String()
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
