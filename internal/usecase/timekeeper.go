// Package usecase contains application business logic.
package usecase

import (
	"time"

	"go.uber.org/zap"

	"github.com/timerapps/timerd/internal/domain"
)

// WarningWindowSeconds is the remaining-time window that triggers the
// one-shot low-time warning while an app is being monitored.
const WarningWindowSeconds = 300

// TickOutcome reports what one Advance call produced for an app.
type TickOutcome struct {
	// WarningDue is set on the single tick where remaining time first
	// drops into the warning window.
	WarningDue bool

	// LimitHit is set on every tick where accumulated time has reached
	// the limit and the app is not yet blocked. The caller decides
	// whether enforcement succeeded and confirms with Block.
	LimitHit bool

	// EndedSession is non-nil when this tick closed a foreground stretch
	// (monitoring -> paused).
	EndedSession *domain.SessionRecord
}

// trackedApp pairs the timer record with the origin of the current
// foreground stretch, which survives the per-tick flush of SessionStart.
type trackedApp struct {
	rec           domain.TimerRecord
	sessionOrigin time.Time
}

// Timekeeper owns the per-app timer state machine. It has no notion of
// wall-clock progression of its own: the sampling loop passes "now" into
// every transition. Not safe for concurrent use; the monitor's lock
// guards all access (single-writer discipline).
type Timekeeper struct {
	apps   map[string]*trackedApp
	logger *zap.Logger
}

// NewTimekeeper creates an empty timekeeper.
func NewTimekeeper(logger *zap.Logger) *Timekeeper {
	return &Timekeeper{
		apps:   make(map[string]*trackedApp),
		logger: logger,
	}
}

// Tracked reports whether the app has a timer record this run.
func (t *Timekeeper) Tracked(pkg string) bool {
	_, ok := t.apps[pkg]
	return ok
}

// Track lazily creates an INACTIVE record seeded with already-used seconds
// from the ledger. No-op if the app is already tracked.
func (t *Timekeeper) Track(pkg string, seedSeconds int) {
	if _, ok := t.apps[pkg]; ok {
		return
	}
	if seedSeconds < 0 {
		seedSeconds = 0
	}
	t.apps[pkg] = &trackedApp{
		rec: domain.TimerRecord{
			State:              domain.StateInactive,
			AccumulatedSeconds: seedSeconds,
		},
	}
}

// Advance runs one tick of the state machine for an app, given whether it
// is currently foregrounded. Disabled apps must be filtered by the caller.
func (t *Timekeeper) Advance(app domain.MonitoredApp, active bool, now time.Time) TickOutcome {
	var out TickOutcome

	ta, ok := t.apps[app.Package]
	if !ok {
		return out
	}
	rec := &ta.rec

	// A blocked app's timer never advances and never resumes, regardless
	// of foreground status, until a reset.
	if rec.State == domain.StateBlocked {
		return out
	}

	limit := app.LimitSeconds()

	if active {
		switch rec.State {
		case domain.StateMonitoring:
			t.flush(rec, now)
		case domain.StatePaused:
			rec.State = domain.StateMonitoring
			rec.SessionStart = now
			ta.sessionOrigin = now
			t.logger.Info("resume monitoring", zap.String("package", app.Package))
		default: // inactive
			rec.State = domain.StateMonitoring
			rec.SessionStart = now
			ta.sessionOrigin = now
			t.logger.Info("start monitoring", zap.String("package", app.Package))
		}

		remaining := limit - rec.AccumulatedSeconds
		if remaining > 0 && remaining <= WarningWindowSeconds && !rec.WarningSent {
			rec.WarningSent = true
			out.WarningDue = true
		}
	} else if rec.State == domain.StateMonitoring {
		t.flush(rec, now)
		rec.SessionStart = time.Time{}
		rec.State = domain.StatePaused

		ended := t.closeSession(ta, now)
		out.EndedSession = ended
		t.logger.Info("pause monitoring",
			zap.String("package", app.Package),
			zap.Int("used_seconds", rec.AccumulatedSeconds))
	}

	if rec.AccumulatedSeconds >= limit {
		out.LimitHit = true
	}

	return out
}

// Block confirms successful enforcement: the app transitions to BLOCKED
// and stays there until reset. Returns the session the block cut short,
// if one was open.
func (t *Timekeeper) Block(pkg string, now time.Time) *domain.SessionRecord {
	ta, ok := t.apps[pkg]
	if !ok {
		return nil
	}
	ta.rec.State = domain.StateBlocked
	ta.rec.SessionStart = time.Time{}
	return t.closeSession(ta, now)
}

// flush commits elapsed whole seconds since SessionStart and restarts the
// stretch at now, so a crash loses at most one tick of time. Partial
// seconds truncate toward zero: the meter only ever undercounts.
func (t *Timekeeper) flush(rec *domain.TimerRecord, now time.Time) {
	if rec.SessionStart.IsZero() {
		rec.SessionStart = now
		return
	}
	elapsed := int(now.Sub(rec.SessionStart).Seconds())
	if elapsed > 0 {
		rec.AccumulatedSeconds += elapsed
	}
	rec.SessionStart = now
}

func (t *Timekeeper) closeSession(ta *trackedApp, now time.Time) *domain.SessionRecord {
	if ta.sessionOrigin.IsZero() {
		return nil
	}
	ended := domain.SessionRecord{
		Start:           ta.sessionOrigin,
		End:             now,
		DurationMinutes: int(now.Sub(ta.sessionOrigin).Minutes()),
	}
	ta.sessionOrigin = time.Time{}
	return &ended
}

// Record returns a copy of the app's timer record.
func (t *Timekeeper) Record(pkg string) (domain.TimerRecord, bool) {
	ta, ok := t.apps[pkg]
	if !ok {
		return domain.TimerRecord{}, false
	}
	return ta.rec, true
}

// State returns the app's current timer state, INACTIVE when untracked.
func (t *Timekeeper) State(pkg string) domain.TimerState {
	ta, ok := t.apps[pkg]
	if !ok {
		return domain.StateInactive
	}
	return ta.rec.State
}

// UsedSeconds returns accumulated seconds for the app today.
func (t *Timekeeper) UsedSeconds(pkg string) int {
	ta, ok := t.apps[pkg]
	if !ok {
		return 0
	}
	return ta.rec.AccumulatedSeconds
}

// AllUsedSeconds returns accumulated seconds for every tracked app.
func (t *Timekeeper) AllUsedSeconds() map[string]int {
	result := make(map[string]int, len(t.apps))
	for pkg, ta := range t.apps {
		result[pkg] = ta.rec.AccumulatedSeconds
	}
	return result
}

// Reset clears one app's record back to a fresh INACTIVE state.
func (t *Timekeeper) Reset(pkg string) bool {
	ta, ok := t.apps[pkg]
	if !ok {
		return false
	}
	ta.rec = domain.TimerRecord{State: domain.StateInactive}
	ta.sessionOrigin = time.Time{}
	return true
}

// Clear drops all records, as the daily rollover requires.
func (t *Timekeeper) Clear() {
	t.apps = make(map[string]*trackedApp)
}
