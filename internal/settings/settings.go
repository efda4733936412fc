// Package settings persists per-user dashboard preferences in one JSON file.
package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"findash/internal/core"
	"findash/internal/jsonfile"
	applog "findash/internal/log"
)

const (
	ChartPie = "pie"
	ChartBar = "bar"

	DefaultLanguage = "en"
	DefaultUser     = "default"
)

// Settings are the normalised preferences of one user.
type Settings struct {
	DefaultWho string `json:"defaultWho"`
	ChartType  string `json:"chartType"`
	Language   string `json:"language"`
}

// Patch replaces the non-nil fields.
type Patch struct {
	DefaultWho *string `json:"defaultWho"`
	ChartType  *string `json:"chartType"`
	Language   *string `json:"language"`
}

// Store owns the settings file. Entries are kept as raw JSON so fields this
// version does not know about survive a rewrite.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

func (s *Store) Path() string { return s.path }

// load returns the whole file. An unreadable file is logged and treated
// as empty, matching a fresh install.
func (s *Store) load() (map[string]json.RawMessage, error) {
	all := map[string]json.RawMessage{}
	if _, err := jsonfile.Read(s.path, &all); err != nil {
		s.logger.Error("Settings file unreadable, starting empty", applog.FieldPath, s.path, applog.FieldError, err)
		return map[string]json.RawMessage{}, nil
	}
	if all == nil {
		all = map[string]json.RawMessage{}
	}
	return all, nil
}

// Get returns the settings of user with defaults applied.
func (s *Store) Get(user string) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return Settings{}, err
	}
	return decode(all[normalizeUser(user)]), nil
}

// Update merges patch into the stored settings of user.
func (s *Store) Update(user string, patch Patch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return Settings{}, err
	}
	user = normalizeUser(user)

	fields := map[string]any{}
	if raw, ok := all[user]; ok {
		_ = json.Unmarshal(raw, &fields)
	}
	if patch.DefaultWho != nil {
		fields["defaultWho"] = strings.TrimSpace(*patch.DefaultWho)
	}
	if patch.ChartType != nil {
		fields["chartType"] = normalizeChart(*patch.ChartType)
	}
	if patch.Language != nil {
		lang := strings.TrimSpace(*patch.Language)
		if lang == "" {
			lang = DefaultLanguage
		}
		fields["language"] = lang
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	all[user] = raw
	if err := jsonfile.Write(s.path, all); err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return decode(raw), nil
}

// Export returns the whole file for inclusion in a backup.
func (s *Store) Export() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(all)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return raw, nil
}

// Import replaces the whole file with a snapshot taken by Export.
func (s *Store) Import(raw json.RawMessage) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil || all == nil {
		return core.Integrity(core.CodeBackupResponseInvalid, "settings snapshot is not an object")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := jsonfile.Write(s.path, all); err != nil {
		return fmt.Errorf("restore settings: %w", err)
	}
	return nil
}

func decode(raw json.RawMessage) Settings {
	var loose struct {
		DefaultWho any `json:"defaultWho"`
		ChartType  any `json:"chartType"`
		Language   any `json:"language"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &loose)
	}
	out := Settings{ChartType: ChartPie, Language: DefaultLanguage}
	if v, ok := loose.DefaultWho.(string); ok {
		out.DefaultWho = v
	}
	if v, ok := loose.ChartType.(string); ok {
		out.ChartType = normalizeChart(v)
	}
	if v, ok := loose.Language.(string); ok && v != "" {
		out.Language = v
	}
	return out
}

func normalizeChart(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), ChartBar) {
		return ChartBar
	}
	return ChartPie
}

func normalizeUser(user string) string {
	user = strings.TrimSpace(user)
	if user == "" {
		return DefaultUser
	}
	return user
}
