package usecase

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/timerapps/timerd/internal/domain"
)

// Dispatcher reacts to limit-reached transitions: it marks the ledger,
// notifies the device owner, and applies the configured kill/freeze
// action. Actuation is at-least-once (retried every tick until it
// succeeds); the limit notification fires exactly once per day, keyed off
// the ledger's limit-reached flag.
type Dispatcher struct {
	ledger   domain.UsageLedger
	actuator domain.Actuator
	notifier domain.Notifier
	logger   *zap.Logger
}

// NewDispatcher creates a new enforcement dispatcher.
func NewDispatcher(
	ledger domain.UsageLedger,
	actuator domain.Actuator,
	notifier domain.Notifier,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		ledger:   ledger,
		actuator: actuator,
		notifier: notifier,
		logger:   logger,
	}
}

// EnforceLimit runs one enforcement attempt for an app whose limit has
// been reached. Returns true when the actuator reported success and the
// caller should transition the app to BLOCKED.
func (d *Dispatcher) EnforceLimit(app domain.MonitoredApp, now time.Time) bool {
	first, err := d.ledger.MarkLimitReached(app.Package, now)
	if err != nil {
		d.logger.Warn("failed to mark limit reached",
			zap.String("package", app.Package),
			zap.Error(err))
	}

	if first {
		body := fmt.Sprintf("%s limit (%dm) exceeded. App is now blocked.",
			app.Name, app.LimitMinutes)
		if err := d.notifier.Notify("timerd - Limit Reached", body); err != nil {
			d.logger.Warn("limit notification failed",
				zap.String("package", app.Package),
				zap.Error(err))
		}
	}

	var actErr error
	switch app.Action {
	case domain.ActionFreeze:
		actErr = d.actuator.Freeze(app.Package)
	default:
		actErr = d.actuator.Kill(app.Package)
	}

	if actErr != nil {
		d.logger.Warn("enforcement action failed, will retry next tick",
			zap.String("package", app.Package),
			zap.String("action", string(app.Action)),
			zap.Error(actErr))
		return false
	}

	d.logger.Info("limit enforced",
		zap.String("package", app.Package),
		zap.String("action", string(app.Action)),
		zap.Int("limit_minutes", app.LimitMinutes))
	return true
}

// Warn sends the one-shot low-time warning. The timekeeper guarantees it
// is requested at most once per app per day.
func (d *Dispatcher) Warn(app domain.MonitoredApp, usedMinutes, remainingMinutes int) {
	title := fmt.Sprintf("%s - 5 Minutes Left", app.Name)
	body := fmt.Sprintf("Used: %dm / %dm - Remaining: %dm",
		usedMinutes, app.LimitMinutes, remainingMinutes)
	if err := d.notifier.Notify(title, body); err != nil {
		d.logger.Warn("warning notification failed",
			zap.String("package", app.Package),
			zap.Error(err))
		return
	}
	d.logger.Info("5-minute warning sent", zap.String("package", app.Package))
}

// Release reverses a freeze at daily reset so the app is usable again.
func (d *Dispatcher) Release(app domain.MonitoredApp) error {
	if err := d.actuator.Unfreeze(app.Package); err != nil {
		return fmt.Errorf("unfreeze %s: %w", app.Package, err)
	}
	body := fmt.Sprintf("%s is now available again.", app.Name)
	if err := d.notifier.Notify("timerd - App Unfrozen", body); err != nil {
		d.logger.Debug("unfreeze notification failed",
			zap.String("package", app.Package),
			zap.Error(err))
	}
	return nil
}
