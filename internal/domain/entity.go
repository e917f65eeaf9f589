// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// DateLayout is the calendar-day key used throughout the ledger.
const DateLayout = "2006-01-02"

// TimerState is the per-app timer lifecycle state.
type TimerState string

const (
	// StateInactive means the app has not been seen foregrounded today.
	StateInactive TimerState = "inactive"
	// StateMonitoring means the timer is actively counting.
	StateMonitoring TimerState = "monitoring"
	// StatePaused means the app left the foreground; accumulated time is kept.
	StatePaused TimerState = "paused"
	// StateBlocked means the limit was reached and enforcement succeeded.
	StateBlocked TimerState = "blocked"
)

// Action is the enforcement applied when an app's daily limit is reached.
type Action string

const (
	// ActionKill force-stops the app. It can be reopened (and re-blocked).
	ActionKill Action = "kill"
	// ActionFreeze disables the app until the daily reset unfreezes it.
	ActionFreeze Action = "freeze"
)

// MaxLimitMinutes caps a daily limit at one full day.
const MaxLimitMinutes = 24 * 60

// MonitoredApp is the configuration for one app under a daily limit.
// Created and edited by the management commands; read-only to the monitor.
type MonitoredApp struct {
	Package      string `json:"package"`
	Name         string `json:"name"`
	LimitMinutes int    `json:"limit_minutes"`
	Action       Action `json:"action"`
	Enabled      bool   `json:"enabled"`
}

// LimitSeconds returns the configured limit in seconds.
func (a MonitoredApp) LimitSeconds() int {
	return a.LimitMinutes * 60
}

// TimerRecord is the in-memory working state for one monitored app.
// Owned exclusively by the timekeeper; a zero SessionStart means no
// session is open.
type TimerRecord struct {
	State              TimerState
	SessionStart       time.Time
	AccumulatedSeconds int
	WarningSent        bool
}

// SessionRecord is one continuous foreground stretch of an app.
type SessionRecord struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration"`
}

// DailyUsageRecord is the durable minute-granularity projection of one
// app's usage for one calendar day. Superseded, never mutated, on reset.
type DailyUsageRecord struct {
	Name             string          `json:"name"`
	TotalMinutesUsed int             `json:"total_minutes_used"`
	LimitMinutes     int             `json:"limit_minutes"`
	RemainingMinutes int             `json:"remaining_minutes"`
	Sessions         []SessionRecord `json:"sessions"`
	LimitReached     bool            `json:"limit_reached"`
	BlockedAt        *time.Time      `json:"blocked_at"`
}

// NewDailyUsageRecord returns a fresh zeroed record for the app.
func NewDailyUsageRecord(app MonitoredApp) DailyUsageRecord {
	return DailyUsageRecord{
		Name:             app.Name,
		TotalMinutesUsed: 0,
		LimitMinutes:     app.LimitMinutes,
		RemainingMinutes: app.LimitMinutes,
		Sessions:         []SessionRecord{},
		LimitReached:     false,
		BlockedAt:        nil,
	}
}

// Settings holds tunables for the sampling loop.
type Settings struct {
	CheckIntervalSeconds int  `json:"check_interval"`
	NotificationsEnabled bool `json:"notifications_enabled"`
	UseRootShell         bool `json:"use_root_shell"`
}

// DefaultSettings returns the settings used when no config exists yet.
func DefaultSettings() Settings {
	return Settings{
		CheckIntervalSeconds: 5,
		NotificationsEnabled: true,
		UseRootShell:         false,
	}
}

// ConfigDocument is the persisted configuration: monitored apps, loop
// settings, and the last daily-reset date.
type ConfigDocument struct {
	Apps          map[string]MonitoredApp `json:"apps"`
	Settings      Settings                `json:"settings"`
	LastResetDate string                  `json:"last_reset_date"`
}

// LedgerDocument is the persisted usage ledger: date -> package -> record.
type LedgerDocument map[string]map[string]DailyUsageRecord

// RunState records the running daemon for cross-process status queries.
type RunState struct {
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	AppVersion string    `json:"app_version,omitempty"`
}
