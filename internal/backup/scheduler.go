package backup

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"findash/internal/config"
	"findash/internal/core"
	applog "findash/internal/log"
	"findash/internal/metrics"
)

type State string

const (
	StateIdle    State = "idle"
	StateWaiting State = "waiting"
	StateRunning State = "running"
)

// minDelay keeps a timer computed for "now" from spinning.
const minDelay = time.Second

// Runner is what the scheduler drives. *Service satisfies it.
type Runner interface {
	Create(ctx context.Context, reason core.BackupReason) (CreateOutcome, error)
	Restore(ctx context.Context, name string) (RestoreOutcome, error)
}

type stopper interface {
	Stop() bool
}

// Status is the scheduler as shown to operators.
type Status struct {
	State     State      `json:"state"`
	NextRunAt *time.Time `json:"nextRunAt"`
}

// Scheduler owns the single automatic-backup timer and the rule that only
// one backup or restore runs at a time.
//
// idle: no timer (auto disabled or stopped). waiting: timer armed for the
// next run time. running: a backup or restore is in flight; the timer, if
// any, stays armed underneath.
type Scheduler struct {
	runner  Runner
	configs *ConfigStore
	loc     *time.Location
	now     func() time.Time
	after   func(time.Duration, func()) stopper
	logger  *slog.Logger

	mu      sync.Mutex
	timer   stopper
	gen     uint64
	next    time.Time
	running bool
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func NewScheduler(runner Runner, configs *ConfigStore, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		runner:  runner,
		configs: configs,
		loc:     loc,
		now:     time.Now,
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		logger: logger,
	}
	metrics.SetSchedulerState(string(StateIdle))
	return s
}

// Start arms the timer from the stored config and checks once whether a
// run was missed while the process was down.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.armLocked()
	s.mu.Unlock()

	s.checkAsync()
	s.logger.Info("Backup scheduler started", applog.FieldState, s.Status().State)
}

// Stop cancels the timer and waits for an automatic run in flight.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.disarmLocked()
	s.mu.Unlock()

	s.wg.Wait()
	metrics.SetSchedulerState(string(StateIdle))
	s.logger.Info("Backup scheduler stopped")
}

// Reconfigure persists u and re-arms from the new rule. A missed run under
// the new rule is picked up immediately.
func (s *Scheduler) Reconfigure(u ConfigUpdate) (Config, error) {
	cfg, err := s.configs.Update(u)
	if err != nil {
		return Config{}, err
	}
	s.mu.Lock()
	active := s.started && !s.stopped
	if active {
		s.armLocked()
	}
	s.mu.Unlock()

	if active {
		s.checkAsync()
	}
	s.logger.Info("Backup schedule updated", "auto_enabled", cfg.AutoEnabled, applog.FieldRunTime, cfg.RunTime)
	return cfg, nil
}

// Status reports the current state and the armed run time.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.stateLocked()}
	if s.timer != nil {
		next := s.next
		st.NextRunAt = &next
	}
	return st
}

func (s *Scheduler) stateLocked() State {
	switch {
	case s.running:
		return StateRunning
	case s.timer != nil:
		return StateWaiting
	}
	return StateIdle
}

// RunNow performs a manual backup. It bypasses the once-a-day guard but is
// rejected while another backup or restore runs.
func (s *Scheduler) RunNow(ctx context.Context) (CreateOutcome, error) {
	if err := s.begin(); err != nil {
		return CreateOutcome{}, err
	}
	defer s.end()
	return s.runner.Create(ctx, core.ReasonManual)
}

// Restore runs a restore under the same exclusion as backups.
func (s *Scheduler) Restore(ctx context.Context, name string) (RestoreOutcome, error) {
	if err := s.begin(); err != nil {
		return RestoreOutcome{}, err
	}
	defer s.end()
	return s.runner.Restore(ctx, name)
}

func (s *Scheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return core.Busy(core.CodeBackupInProgress, "a backup or restore is already running")
	}
	s.running = true
	metrics.SetSchedulerState(string(StateRunning))
	return nil
}

func (s *Scheduler) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	metrics.SetSchedulerState(string(s.stateLocked()))
}

// armLocked replaces any armed timer according to the current config.
func (s *Scheduler) armLocked() {
	s.disarmLocked()

	cfg := s.configs.Get()
	if !cfg.AutoEnabled {
		metrics.SetSchedulerState(string(s.stateLocked()))
		return
	}

	now := s.now()
	next := NextScheduled(now, cfg.RunTime, s.loc)
	delay := next.Sub(now)
	if delay < minDelay {
		delay = minDelay
	}

	s.gen++
	gen := s.gen
	s.next = next
	s.timer = s.after(delay, func() { s.fire(gen) })
	metrics.SetSchedulerState(string(s.stateLocked()))
	s.logger.Debug("Backup timer armed", applog.FieldNextRun, next.Format(time.RFC3339), "delay", delay.String())
}

func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.next = time.Time{}
}

// fire runs when a timer expires. Stale timers, replaced by a re-arm after
// they already fired, are ignored by generation.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.autoRun()

	s.mu.Lock()
	if !s.stopped && gen == s.gen {
		s.armLocked()
	}
	s.mu.Unlock()
}

func (s *Scheduler) checkAsync() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.autoRun()
	}()
}

// autoRun performs an automatic backup if one is due. Failures are logged
// only; the next run is scheduled regardless.
func (s *Scheduler) autoRun() {
	cfg := s.configs.Get()
	if !cfg.AutoEnabled {
		return
	}
	now := s.now()
	if !ShouldAutoRun(now, cfg.RunTime, cfg.LastRunAt, s.loc) {
		s.logger.Debug("Automatic backup already done for this slot", applog.FieldLastRun, cfg.LastRunAt)
		return
	}
	if err := s.begin(); err != nil {
		metrics.BackupRuns.WithLabelValues(string(core.ReasonAuto), "skipped").Inc()
		s.logger.Warn("Automatic backup skipped, another operation is running")
		return
	}
	defer s.end()

	if _, err := s.runner.Create(context.Background(), core.ReasonAuto); err != nil {
		s.logger.Error("Automatic backup failed", applog.FieldError, err, applog.FieldErrorCode, core.CodeOf(err))
	}
}

// NextScheduled is the first occurrence of runTime strictly after now.
func NextScheduled(now time.Time, runTime string, loc *time.Location) time.Time {
	t := slotOn(now, runTime, loc)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// LastScheduled is the latest occurrence of runTime at or before now.
func LastScheduled(now time.Time, runTime string, loc *time.Location) time.Time {
	t := slotOn(now, runTime, loc)
	if t.After(now) {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

// ShouldAutoRun reports whether no run happened since the last scheduled
// slot.
func ShouldAutoRun(now time.Time, runTime string, lastRunAt *time.Time, loc *time.Location) bool {
	if lastRunAt == nil {
		return true
	}
	return lastRunAt.Before(LastScheduled(now, runTime, loc))
}

func slotOn(now time.Time, runTime string, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	hh, mm, _ := strings.Cut(config.NormalizeRunTime(runTime, config.DefaultRunTime), ":")
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
}
