package backup

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"findash/internal/config"
	"findash/internal/core"
	"findash/internal/jsonfile"
	applog "findash/internal/log"
)

// Config is the persisted automatic-backup configuration. The sink address
// is deliberately absent: it only ever comes from process configuration.
type Config struct {
	AutoEnabled bool       `json:"autoEnabled"`
	RunTime     string     `json:"runTime"`
	LastRunAt   *time.Time `json:"lastRunAt"`
}

// ConfigUpdate changes the non-nil fields.
type ConfigUpdate struct {
	AutoEnabled *bool   `json:"autoEnabled"`
	RunTime     *string `json:"runTime"`
}

// ConfigStore keeps Config in memory and mirrors every change to disk.
type ConfigStore struct {
	path           string
	defaultRunTime string
	sinkConfigured bool
	logger         *slog.Logger

	mu  sync.RWMutex
	cfg Config
}

// NewConfigStore loads path, falling back to defaults when the file is
// missing or unreadable.
func NewConfigStore(path, defaultRunTime string, sinkConfigured bool, logger *slog.Logger) *ConfigStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ConfigStore{
		path:           path,
		defaultRunTime: config.NormalizeRunTime(defaultRunTime, config.DefaultRunTime),
		sinkConfigured: sinkConfigured,
		logger:         logger,
	}

	var stored Config
	if _, err := jsonfile.Read(path, &stored); err != nil {
		logger.Error("Backup config unreadable, using defaults", applog.FieldPath, path, applog.FieldError, err)
		stored = Config{}
	}
	s.cfg = s.merge(stored)
	return s
}

func (s *ConfigStore) merge(c Config) Config {
	if !s.sinkConfigured {
		c.AutoEnabled = false
	}
	c.RunTime = config.NormalizeRunTime(c.RunTime, s.defaultRunTime)
	return c
}

// Get returns a copy of the current configuration.
func (s *ConfigStore) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *ConfigStore) copyLocked() Config {
	c := s.cfg
	if c.LastRunAt != nil {
		t := *c.LastRunAt
		c.LastRunAt = &t
	}
	return c
}

func (s *ConfigStore) DefaultRunTime() string { return s.defaultRunTime }
func (s *ConfigStore) SinkConfigured() bool { return s.sinkConfigured }

// Update validates u, persists the merged result and returns it.
func (s *ConfigStore) Update(u ConfigUpdate) (Config, error) {
	if u.AutoEnabled != nil && *u.AutoEnabled && !s.sinkConfigured {
		return Config{}, core.Validation(core.CodeBackupScriptMissing, "automatic backups need a configured sink")
	}
	if u.RunTime != nil {
		rt := strings.TrimSpace(*u.RunTime)
		if rt != "" && config.NormalizeRunTime(rt, "") == "" {
			return Config{}, core.Validation(core.CodeBackupRunTimeInvalid, fmt.Sprintf("run time %q is not HH:MM", rt))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg
	if u.AutoEnabled != nil {
		next.AutoEnabled = *u.AutoEnabled
	}
	if u.RunTime != nil {
		next.RunTime = *u.RunTime
	}
	next = s.merge(next)
	if err := jsonfile.Write(s.path, next); err != nil {
		return Config{}, fmt.Errorf("save backup config: %w", err)
	}
	s.cfg = next
	return s.copyLocked(), nil
}

// MarkRun records a successful backup at t. The in-memory value changes
// even if the write fails so the scheduler guard still sees the run.
func (s *ConfigStore) MarkRun(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t = t.UTC()
	s.cfg.LastRunAt = &t
	if err := jsonfile.Write(s.path, s.cfg); err != nil {
		return fmt.Errorf("save backup config: %w", err)
	}
	return nil
}
