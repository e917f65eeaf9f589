package domain

import "time"

// ForegroundProbe reports which app is currently in front on the device.
// Implementation: ADB or on-device root shell parsing window-manager state.
type ForegroundProbe interface {
	// ActiveApp returns the package name of the foregrounded app, or ""
	// when nothing is foregrounded. Fails closed: any transport or parse
	// error also yields "".
	ActiveApp() string
}

// Actuator applies and reverses enforcement actions on the device.
// All methods return an error on failure; callers retry on the next tick.
type Actuator interface {
	// Kill force-stops the app.
	Kill(pkg string) error

	// Freeze disables the app until Unfreeze.
	Freeze(pkg string) error

	// Unfreeze re-enables a frozen app.
	Unfreeze(pkg string) error
}

// Notifier delivers a titled alert to the device owner. Best-effort:
// failures are logged by callers and never affect enforcement.
type Notifier interface {
	Notify(title, body string) error
}

// DocumentStore loads and saves one small JSON document as a whole.
// A missing or corrupt document loads as the zero value, never an error
// the caller must branch on beyond logging.
type DocumentStore interface {
	// Load unmarshals the document into out. Missing/corrupt files leave
	// out untouched and return nil.
	Load(out any) error

	// Save atomically rewrites the whole document.
	Save(in any) error
}

// AppStore is the management surface over monitored-app configuration.
// Validation happens here; invalid apps never reach the monitor.
type AppStore interface {
	// Add registers a new app. Rejects duplicates, non-positive or
	// over-one-day limits, and unknown actions.
	Add(app MonitoredApp) error

	// Remove unregisters an app.
	Remove(pkg string) error

	// SetLimit updates the daily limit in minutes.
	SetLimit(pkg string, minutes int) error

	// SetAction updates the enforcement action.
	SetAction(pkg string, action Action) error

	// SetEnabled toggles monitoring for an app without losing its config.
	SetEnabled(pkg string, enabled bool) error

	// Get returns one app's config.
	Get(pkg string) (MonitoredApp, bool)

	// All returns every configured app, ordered by package name.
	All() []MonitoredApp

	// Settings returns the loop settings.
	Settings() Settings

	// LastResetDate returns the date of the last daily reset ("" if never).
	LastResetDate() string

	// SetLastResetDate records a completed daily reset.
	SetLastResetDate(date string) error
}

// UsageLedger owns the durable per-day, per-app usage totals.
// Writers serialize; a read immediately after a write observes it.
type UsageLedger interface {
	// TotalMinutes returns minutes used by the app on the given date.
	TotalMinutes(pkg, date string) int

	// UpdateUsage overwrites (not increments) today's total for the app.
	UpdateUsage(pkg string, minutes int) error

	// MarkLimitReached sets the limit-reached flag and blocked-at time on
	// today's record. Returns true only on the first marking of the day.
	MarkLimitReached(pkg string, at time.Time) (bool, error)

	// RecordSession appends a finished session to today's record.
	RecordSession(pkg string, rec SessionRecord) error

	// Reset supersedes the app's record for today with a zeroed one.
	// Returns false for unknown or disabled apps.
	Reset(pkg string) bool

	// ResetAll resets every enabled app and returns how many were reset.
	ResetAll() int

	// Day returns all records for a date (today's layout key).
	Day(date string) map[string]DailyUsageRecord
}

// HistoryArchive keeps finished days in long-term storage.
// Implementation: SQLCipher-encrypted SQLite database.
type HistoryArchive interface {
	// ArchiveDay stores a finished day's records.
	ArchiveDay(date string, records map[string]DailyUsageRecord) error

	// TotalsByApp returns lifetime archived minutes per package.
	TotalsByApp() (map[string]int, error)

	// Close releases the database connection.
	Close() error
}

// ProcessManager answers process-liveness questions for the run registry.
type ProcessManager interface {
	// IsRunning reports whether pid exists and looks like our daemon.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// RunRegistry records the running daemon so other processes can query
// status. Single daemon per ledger; no cross-process coordination beyond
// liveness.
type RunRegistry interface {
	// Register saves the daemon's run state.
	Register(state RunState) error

	// Get returns the recorded run state, nil if none.
	Get() (*RunState, error)

	// IsAlive reports whether a registered daemon is still running.
	IsAlive() bool

	// Clear removes the run state file.
	Clear() error
}

// KeyProvider abstracts the source of the archive encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
