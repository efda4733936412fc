package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := *Defaults()
	cfg.DBPath = filepath.Join(dir, "finance.db")
	cfg.SettingsPath = filepath.Join(dir, "user-settings.json")
	cfg.BackupConfigPath = filepath.Join(dir, "backup-config.json")
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		wantErr     bool
		errorString string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid script sink",
			mutate: func(c *Config) {
				c.BackupScriptURL = "https://script.google.com/macros/s/abc/exec"
			},
			wantErr: false,
		},
		{
			name:        "invalid port - non-numeric",
			mutate:      func(c *Config) { c.Port = "abc" },
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range high",
			mutate:      func(c *Config) { c.Port = "70000" },
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name:        "missing database path",
			mutate:      func(c *Config) { c.DBPath = "" },
			wantErr:     true,
			errorString: "SQLite database path cannot be empty",
		},
		{
			name:        "unknown sink",
			mutate:      func(c *Config) { c.BackupSink = "ftp" },
			wantErr:     true,
			errorString: "invalid backup sink 'ftp': must be one of [script gcs drive]",
		},
		{
			name:        "script URL with bad scheme",
			mutate:      func(c *Config) { c.BackupScriptURL = "ftp://example.com/backup" },
			wantErr:     true,
			errorString: "invalid backup script URL scheme 'ftp'",
		},
		{
			name: "drive sink without credentials",
			mutate: func(c *Config) {
				c.BackupSink = SinkDrive
				c.DriveFolderID = "folder"
			},
			wantErr:     true,
			errorString: "GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS_JSON",
		},
		{
			name:        "malformed run time",
			mutate:      func(c *Config) { c.BackupRunTime = "25:00" },
			wantErr:     true,
			errorString: "invalid backup run time '25:00': must be HH:MM",
		},
		{
			name:        "zero retention",
			mutate:      func(c *Config) { c.BackupRetention = 0 },
			wantErr:     true,
			errorString: "invalid backup retention 0: must be at least 1",
		},
		{
			name:        "backup timeout too short",
			mutate:      func(c *Config) { c.BackupTimeout = 500 * time.Millisecond },
			wantErr:     true,
			errorString: "invalid backup timeout 500ms: must be at least 1 second",
		},
		{
			name:        "invalid AMQP URL scheme",
			mutate:      func(c *Config) { c.AMQPURL = "http://localhost:5672/" },
			wantErr:     true,
			errorString: "invalid AMQP URL scheme 'http': must be 'amqp' or 'amqps'",
		},
		{
			name: "AMQP URL without exchange",
			mutate: func(c *Config) {
				c.AMQPURL = "amqp://localhost:5672/"
				c.AMQPExchange = ""
			},
			wantErr:     true,
			errorString: "AMQP exchange name cannot be empty when AMQP URL is provided",
		},
		{
			name:        "unknown timezone",
			mutate:      func(c *Config) { c.Timezone = "Mars/Olympus" },
			wantErr:     true,
			errorString: "invalid timezone 'Mars/Olympus'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Config.Validate() error = nil, wantErr %v", tt.wantErr)
					return
				}
				if tt.errorString != "" && !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("Config.Validate() error = %v, want error containing %v", err.Error(), tt.errorString)
				}
			} else if err != nil {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeRunTime(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"03:00", "03:00"},
		{"3:05", "03:05"},
		{" 23:59 ", "23:59"},
		{"24:00", DefaultRunTime},
		{"7", DefaultRunTime},
		{"", DefaultRunTime},
	}
	for _, tc := range cases {
		if got := NormalizeRunTime(tc.in, DefaultRunTime); got != tc.want {
			t.Errorf("NormalizeRunTime(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSinkConfigured(t *testing.T) {
	cfg := Defaults()
	if cfg.SinkConfigured() {
		t.Fatalf("expected no sink by default")
	}
	cfg.BackupScriptURL = "https://example.com/exec"
	if !cfg.SinkConfigured() || cfg.SinkAddress() != "https://example.com/exec" {
		t.Fatalf("expected script sink to be configured")
	}
	cfg.BackupSink = SinkGCS
	if cfg.SinkConfigured() {
		t.Fatalf("gcs sink without bucket must not count as configured")
	}
	cfg.GCSBucket = "bucket"
	if got := cfg.SinkAddress(); got != "gs://bucket/backups/" {
		t.Fatalf("unexpected gcs address %q", got)
	}
}

func TestLoad(t *testing.T) {
	for _, key := range []string{"FINDASH_CONFIG", "PORT", "SQLITE_DB_PATH", "BACKUP_RUN_TIME", "BACKUP_SCRIPT_URL", "WHO_CACHE_TTL", "BACKUP_SINK"} {
		t.Setenv(key, "")
	}

	t.Run("default values", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Port != "8080" {
			t.Errorf("Load() Port = %v, want 8080", cfg.Port)
		}
		if cfg.DBPath != "./data/finance.db" {
			t.Errorf("Load() DBPath = %v, want ./data/finance.db", cfg.DBPath)
		}
		if cfg.BackupRunTime != "03:00" {
			t.Errorf("Load() BackupRunTime = %v, want 03:00", cfg.BackupRunTime)
		}
		if cfg.WhoCacheTTL != 5*time.Minute {
			t.Errorf("Load() WhoCacheTTL = %v, want 5m", cfg.WhoCacheTTL)
		}
	})

	t.Run("file then environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "findash.toml")
		content := "port = \"9000\"\nbackup_run_time = \"04:30\"\nwho_cache_ttl = \"1m\"\nbackup_script_url = \"https://example.com/exec\"\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write config file: %v", err)
		}
		t.Setenv("FINDASH_CONFIG", path)
		t.Setenv("PORT", "9090")
		t.Setenv("BACKUP_RUN_TIME", "5:15")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Port != "9090" {
			t.Errorf("Load() Port = %v, want 9090 from env", cfg.Port)
		}
		if cfg.BackupRunTime != "05:15" {
			t.Errorf("Load() BackupRunTime = %v, want 05:15", cfg.BackupRunTime)
		}
		if cfg.WhoCacheTTL != time.Minute {
			t.Errorf("Load() WhoCacheTTL = %v, want 1m from file", cfg.WhoCacheTTL)
		}
		if cfg.BackupScriptURL != "https://example.com/exec" {
			t.Errorf("Load() BackupScriptURL = %v", cfg.BackupScriptURL)
		}
		if cfg.Source != path {
			t.Errorf("Load() Source = %v, want %v", cfg.Source, path)
		}
	})

	t.Run("broken file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.toml")
		if err := os.WriteFile(path, []byte("port = "), 0644); err != nil {
			t.Fatalf("write config file: %v", err)
		}
		t.Setenv("FINDASH_CONFIG", path)
		if _, err := Load(); err == nil {
			t.Fatalf("expected decode error")
		}
	})
}
