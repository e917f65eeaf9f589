package usecase

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/timerapps/timerd/internal/domain"
)

// Ledger implements domain.UsageLedger over a JSON document store. Every
// write rewrites the whole document (the store has no partial-update
// primitive), so all writers serialize behind one mutex and a read right
// after a write always observes it.
type Ledger struct {
	mu     sync.Mutex
	store  domain.DocumentStore
	apps   domain.AppStore
	doc    domain.LedgerDocument
	nowFn  func() time.Time
	logger *zap.Logger
}

// NewLedger loads the ledger document, starting empty when it is missing
// or corrupt.
func NewLedger(store domain.DocumentStore, apps domain.AppStore, logger *zap.Logger) *Ledger {
	return NewLedgerWithClock(store, apps, time.Now, logger)
}

// NewLedgerWithClock creates a ledger with a custom clock (for testing).
func NewLedgerWithClock(store domain.DocumentStore, apps domain.AppStore, nowFn func() time.Time, logger *zap.Logger) *Ledger {
	l := &Ledger{
		store:  store,
		apps:   apps,
		doc:    domain.LedgerDocument{},
		nowFn:  nowFn,
		logger: logger,
	}
	if err := store.Load(&l.doc); err != nil {
		logger.Warn("ledger load failed, starting empty", zap.Error(err))
	}
	if l.doc == nil {
		l.doc = domain.LedgerDocument{}
	}
	return l
}

func (l *Ledger) today() string {
	return l.nowFn().Format(domain.DateLayout)
}

// ensureRecord returns today's record for the app, creating a zeroed one
// from the current configuration if needed. Caller holds the lock.
func (l *Ledger) ensureRecord(pkg string) (*domain.DailyUsageRecord, error) {
	app, ok := l.apps.Get(pkg)
	if !ok {
		return nil, fmt.Errorf("app %s is not monitored", pkg)
	}

	date := l.today()
	day, ok := l.doc[date]
	if !ok {
		day = make(map[string]domain.DailyUsageRecord)
		l.doc[date] = day
	}
	rec, ok := day[pkg]
	if !ok {
		rec = domain.NewDailyUsageRecord(app)
		day[pkg] = rec
	}
	return &rec, nil
}

// TotalMinutes returns minutes used by the app on the given date.
func (l *Ledger) TotalMinutes(pkg, date string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if day, ok := l.doc[date]; ok {
		return day[pkg].TotalMinutesUsed
	}
	return 0
}

// UpdateUsage overwrites today's total for the app with the given minutes
// and recomputes remaining time, clamped at zero. Idempotent.
func (l *Ledger) UpdateUsage(pkg string, minutes int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.ensureRecord(pkg)
	if err != nil {
		return err
	}

	rec.TotalMinutesUsed = minutes
	rec.RemainingMinutes = rec.LimitMinutes - minutes
	if rec.RemainingMinutes < 0 {
		rec.RemainingMinutes = 0
	}
	l.doc[l.today()][pkg] = *rec

	return l.save()
}

// MarkLimitReached sets the limit-reached flag and blocked-at timestamp
// on today's record. Returns true only the first time the flag is set for
// the day, which gates the limit notification.
func (l *Ledger) MarkLimitReached(pkg string, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.ensureRecord(pkg)
	if err != nil {
		return false, err
	}
	if rec.LimitReached {
		return false, nil
	}

	rec.LimitReached = true
	rec.BlockedAt = &at
	l.doc[l.today()][pkg] = *rec

	if err := l.save(); err != nil {
		return true, err
	}
	l.logger.Info("limit reached recorded", zap.String("package", pkg))
	return true, nil
}

// RecordSession appends a finished foreground stretch to today's record.
func (l *Ledger) RecordSession(pkg string, session domain.SessionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.ensureRecord(pkg)
	if err != nil {
		return err
	}

	rec.Sessions = append(rec.Sessions, session)
	l.doc[l.today()][pkg] = *rec

	return l.save()
}

// Reset supersedes the app's record for today with a fresh zeroed one.
// Disabled and unknown apps are untouched.
func (l *Ledger) Reset(pkg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resetLocked(pkg)
}

func (l *Ledger) resetLocked(pkg string) bool {
	app, ok := l.apps.Get(pkg)
	if !ok || !app.Enabled {
		return false
	}

	date := l.today()
	day, ok := l.doc[date]
	if !ok {
		day = make(map[string]domain.DailyUsageRecord)
		l.doc[date] = day
	}
	day[pkg] = domain.NewDailyUsageRecord(app)

	if err := l.save(); err != nil {
		l.logger.Warn("ledger save failed during reset",
			zap.String("package", pkg), zap.Error(err))
	}
	l.logger.Info("usage reset", zap.String("package", pkg))
	return true
}

// ResetAll resets every enabled app and returns how many were reset.
func (l *Ledger) ResetAll() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, app := range l.apps.All() {
		if app.Enabled && l.resetLocked(app.Package) {
			count++
		}
	}
	return count
}

// Day returns a copy of all records for a date.
func (l *Ledger) Day(date string) map[string]domain.DailyUsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	day, ok := l.doc[date]
	if !ok {
		return nil
	}
	out := make(map[string]domain.DailyUsageRecord, len(day))
	for pkg, rec := range day {
		out[pkg] = rec
	}
	return out
}

// save persists the whole document. Failures are surfaced to callers and
// recovered by the next flush; at most one tick of data is at risk.
func (l *Ledger) save() error {
	if err := l.store.Save(&l.doc); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// Ensure Ledger implements domain.UsageLedger.
var _ domain.UsageLedger = (*Ledger)(nil)
