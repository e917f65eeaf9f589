// Package daemon implements the background sampling loop.
package daemon

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/timerapps/timerd/internal/domain"
	"github.com/timerapps/timerd/internal/usecase"
)

// Config holds sampling-loop configuration.
type Config struct {
	Interval    time.Duration // how often to sample the foreground app
	StopTimeout time.Duration // how long Stop waits for the loop to exit
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Second,
		StopTimeout: 10 * time.Second,
	}
}

// Monitor is the sampling loop: the only owner of wall-clock progression
// for the usage-accounting subsystem. One background goroutine samples
// the foreground app at a fixed cadence and drives the timekeeper; the
// control surface (start/stop/status/reset) shares one mutex with the
// loop so a reset never interleaves with a tick's read-modify-write.
type Monitor struct {
	config     Config
	apps       domain.AppStore
	ledger     domain.UsageLedger
	probe      domain.ForegroundProbe
	dispatcher *usecase.Dispatcher
	timekeeper *usecase.Timekeeper
	archive    domain.HistoryArchive // optional, may be nil
	logger     *zap.Logger
	nowFn      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMonitor creates a new sampling loop.
func NewMonitor(
	config Config,
	apps domain.AppStore,
	ledger domain.UsageLedger,
	probe domain.ForegroundProbe,
	dispatcher *usecase.Dispatcher,
	timekeeper *usecase.Timekeeper,
	archive domain.HistoryArchive,
	logger *zap.Logger,
) *Monitor {
	return newMonitor(config, apps, ledger, probe, dispatcher, timekeeper, archive, time.Now, logger)
}

// NewMonitorWithClock creates a monitor with a custom clock (for testing).
func NewMonitorWithClock(
	config Config,
	apps domain.AppStore,
	ledger domain.UsageLedger,
	probe domain.ForegroundProbe,
	dispatcher *usecase.Dispatcher,
	timekeeper *usecase.Timekeeper,
	archive domain.HistoryArchive,
	nowFn func() time.Time,
	logger *zap.Logger,
) *Monitor {
	return newMonitor(config, apps, ledger, probe, dispatcher, timekeeper, archive, nowFn, logger)
}

func newMonitor(
	config Config,
	apps domain.AppStore,
	ledger domain.UsageLedger,
	probe domain.ForegroundProbe,
	dispatcher *usecase.Dispatcher,
	timekeeper *usecase.Timekeeper,
	archive domain.HistoryArchive,
	nowFn func() time.Time,
	logger *zap.Logger,
) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultConfig().StopTimeout
	}
	return &Monitor{
		config:     config,
		apps:       apps,
		ledger:     ledger,
		probe:      probe,
		dispatcher: dispatcher,
		timekeeper: timekeeper,
		archive:    archive,
		nowFn:      nowFn,
		logger:     logger,
	}
}

// Start launches the sampling loop. Starting an already-running monitor
// is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.loop(m.stopCh, m.doneCh)
	m.logger.Info("monitor started",
		zap.Duration("interval", m.config.Interval))
}

// Stop asks the loop to finish its current tick, persist pending totals,
// and exit. It blocks up to the configured timeout; on timeout the
// lifecycle is reported failed but the goroutine is not killed.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	select {
	case <-done:
		m.logger.Info("monitor stopped")
		return nil
	case <-time.After(m.config.StopTimeout):
		return fmt.Errorf("monitor did not stop within %s", m.config.StopTimeout)
	}
}

// IsRunning reports whether the loop is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// loop runs until the stop channel closes. Cancellation is cooperative:
// the stop signal is checked between ticks, never mid-tick.
func (m *Monitor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	// Sample immediately so the first tick doesn't wait a full interval.
	m.safeTick()

	for {
		select {
		case <-stop:
			m.mu.Lock()
			m.flushTotals()
			m.mu.Unlock()
			return
		case <-ticker.C:
			m.safeTick()
		}
	}
}

// safeTick isolates one tick's failures: a single bad sample must not
// disable monitoring.
func (m *Monitor) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("tick failed", zap.Any("panic", r))
		}
	}()
	m.tick()
}

// tick runs one sampling cycle: rollover check, one probe snapshot, lazy
// timer init, per-app state advancement, then an unconditional flush to
// the ledger so a crash loses at most one tick of usage.
func (m *Monitor) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	m.checkDailyReset(now)

	// One snapshot for the whole tick: every app is evaluated against the
	// same foreground state.
	active := m.probe.ActiveApp()

	apps := m.apps.All()
	today := now.Format(domain.DateLayout)

	for _, app := range apps {
		if !app.Enabled || m.timekeeper.Tracked(app.Package) {
			continue
		}
		seed := m.ledger.TotalMinutes(app.Package, today) * 60
		m.timekeeper.Track(app.Package, seed)
	}

	for _, app := range apps {
		if !app.Enabled {
			continue
		}
		m.advance(app, active == app.Package, now)
	}

	m.flushTotals()
}

// advance drives one app's timer and reacts to its outcome.
func (m *Monitor) advance(app domain.MonitoredApp, isActive bool, now time.Time) {
	out := m.timekeeper.Advance(app, isActive, now)

	if out.EndedSession != nil {
		if err := m.ledger.RecordSession(app.Package, *out.EndedSession); err != nil {
			m.logger.Warn("failed to record session",
				zap.String("package", app.Package), zap.Error(err))
		}
	}

	if out.WarningDue {
		used := m.timekeeper.UsedSeconds(app.Package)
		m.dispatcher.Warn(app, used/60, (app.LimitSeconds()-used)/60)
	}

	if out.LimitHit {
		if m.dispatcher.EnforceLimit(app, now) {
			if ended := m.timekeeper.Block(app.Package, now); ended != nil {
				if err := m.ledger.RecordSession(app.Package, *ended); err != nil {
					m.logger.Warn("failed to record session",
						zap.String("package", app.Package), zap.Error(err))
				}
			}
		}
	}
}

// checkDailyReset performs the daily rollover on the first tick of a new
// calendar day. Caller holds the lock.
func (m *Monitor) checkDailyReset(now time.Time) {
	today := now.Format(domain.DateLayout)
	last := m.apps.LastResetDate()
	if last == today {
		return
	}
	m.performReset(now, last)
}

func (m *Monitor) performReset(now time.Time, prevDate string) {
	today := now.Format(domain.DateLayout)
	m.logger.Info("daily reset", zap.String("date", today))

	// Copy the finished day into the history archive before superseding
	// anything. Best-effort: an archive failure never blocks the reset.
	if m.archive != nil && prevDate != "" {
		if records := m.ledger.Day(prevDate); len(records) > 0 {
			if err := m.archive.ArchiveDay(prevDate, records); err != nil {
				m.logger.Warn("history archive failed",
					zap.String("date", prevDate), zap.Error(err))
			}
		}
	}

	// Frozen apps become usable again on the new day.
	for _, app := range m.apps.All() {
		if !app.Enabled || app.Action != domain.ActionFreeze {
			continue
		}
		if err := m.dispatcher.Release(app); err != nil {
			m.logger.Warn("failed to unfreeze app at reset",
				zap.String("package", app.Package), zap.Error(err))
		}
	}

	m.ledger.ResetAll()
	m.timekeeper.Clear()

	if err := m.apps.SetLastResetDate(today); err != nil {
		m.logger.Warn("failed to record reset date", zap.Error(err))
	}
}

// flushTotals commits every tracked app's whole minutes (truncating) to
// the ledger. Caller holds the lock.
func (m *Monitor) flushTotals() {
	for pkg, seconds := range m.timekeeper.AllUsedSeconds() {
		if err := m.ledger.UpdateUsage(pkg, seconds/60); err != nil {
			m.logger.Warn("usage flush failed, will retry next tick",
				zap.String("package", pkg), zap.Error(err))
		}
	}
}

// State returns the app's current timer state.
func (m *Monitor) State(pkg string) domain.TimerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timekeeper.State(pkg)
}

// UsedMinutes returns whole minutes used by the app today.
func (m *Monitor) UsedMinutes(pkg string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timekeeper.UsedSeconds(pkg) / 60
}

// AllUsedMinutes returns whole minutes used today per tracked app.
func (m *Monitor) AllUsedMinutes() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]int)
	for pkg, seconds := range m.timekeeper.AllUsedSeconds() {
		result[pkg] = seconds / 60
	}
	return result
}

// Reset zeroes one app's usage, both in memory and in the ledger.
// Returns false for unknown or disabled apps.
func (m *Monitor) Reset(pkg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok := m.ledger.Reset(pkg)
	if ok {
		m.timekeeper.Reset(pkg)
	}
	return ok
}

// ResetAll zeroes every enabled app's usage and returns how many were
// reset. Disabled apps are untouched.
func (m *Monitor) ResetAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.ledger.ResetAll()
	for _, app := range m.apps.All() {
		if app.Enabled {
			m.timekeeper.Reset(app.Package)
		}
	}
	return count
}
