package http

import (
	"net/http"
	"strings"
	"time"

	"findash/internal/backup"
)

// backupConfigView is the operator view of automatic backups.
type backupConfigView struct {
	ScriptURL      string       `json:"scriptUrl"`
	AutoEnabled    bool         `json:"autoEnabled"`
	RunTime        string       `json:"runTime"`
	LastRunAt      *time.Time   `json:"lastRunAt"`
	DefaultRunTime string       `json:"defaultRunTime"`
	Sink           string       `json:"sink"`
	State          backup.State `json:"state"`
	NextRunAt      *time.Time   `json:"nextRunAt"`
}

func (s *Server) backupConfigView(cfg backup.Config) backupConfigView {
	status := s.deps.Scheduler.Status()
	return backupConfigView{
		ScriptURL:      s.deps.SinkAddress,
		AutoEnabled:    cfg.AutoEnabled,
		RunTime:        cfg.RunTime,
		LastRunAt:      cfg.LastRunAt,
		DefaultRunTime: s.deps.Configs.DefaultRunTime(),
		Sink:           s.deps.Backups.SinkKind(),
		State:          status.State,
		NextRunAt:      status.NextRunAt,
	}
}

func (s *Server) handleGetBackupConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backupConfigView(s.deps.Configs.Get()))
}

func (s *Server) handleUpdateBackupConfig(w http.ResponseWriter, r *http.Request) {
	var update backup.ConfigUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := s.deps.Scheduler.Reconfigure(update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": s.backupConfigView(cfg)})
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	files, err := s.deps.Backups.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleRunBackup(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Scheduler.RunNow(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "file": out})
}

func (s *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.deps.Scheduler.Restore(r.Context(), strings.TrimSpace(body.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
