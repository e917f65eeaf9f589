package usecase

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/timerapps/timerd/internal/domain"
)

// ConfigStore implements domain.AppStore over a JSON document store.
// All validation happens here, at the management boundary: the monitor
// only ever sees well-formed apps.
type ConfigStore struct {
	mu     sync.Mutex
	store  domain.DocumentStore
	doc    domain.ConfigDocument
	logger *zap.Logger
}

// NewConfigStore loads the config document, falling back to defaults when
// it is missing or corrupt.
func NewConfigStore(store domain.DocumentStore, logger *zap.Logger) *ConfigStore {
	cs := &ConfigStore{store: store, logger: logger}

	if err := store.Load(&cs.doc); err != nil {
		logger.Warn("config load failed, using defaults", zap.Error(err))
	}
	if cs.doc.Apps == nil {
		cs.doc.Apps = make(map[string]domain.MonitoredApp)
	}
	if cs.doc.Settings.CheckIntervalSeconds <= 0 {
		cs.doc.Settings = domain.DefaultSettings()
	}
	return cs
}

func validateApp(app domain.MonitoredApp) error {
	if strings.TrimSpace(app.Package) == "" {
		return fmt.Errorf("package name must not be empty")
	}
	if app.LimitMinutes <= 0 || app.LimitMinutes > domain.MaxLimitMinutes {
		return fmt.Errorf("limit must be between 1 and %d minutes, got %d",
			domain.MaxLimitMinutes, app.LimitMinutes)
	}
	switch app.Action {
	case domain.ActionKill, domain.ActionFreeze:
	default:
		return fmt.Errorf("unknown action %q (want kill or freeze)", app.Action)
	}
	return nil
}

// Add registers a new monitored app. Duplicates and invalid limits or
// actions are rejected.
func (c *ConfigStore) Add(app domain.MonitoredApp) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if app.Action == "" {
		app.Action = domain.ActionKill
	}
	if app.Name == "" {
		app.Name = app.Package
	}
	if err := validateApp(app); err != nil {
		return err
	}
	if _, exists := c.doc.Apps[app.Package]; exists {
		return fmt.Errorf("app %s is already monitored", app.Package)
	}

	c.doc.Apps[app.Package] = app
	if err := c.save(); err != nil {
		return err
	}
	c.logger.Info("app added",
		zap.String("package", app.Package),
		zap.Int("limit_minutes", app.LimitMinutes),
		zap.String("action", string(app.Action)))
	return nil
}

// Remove unregisters an app.
func (c *ConfigStore) Remove(pkg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.doc.Apps[pkg]; !exists {
		return fmt.Errorf("app %s is not monitored", pkg)
	}
	delete(c.doc.Apps, pkg)
	if err := c.save(); err != nil {
		return err
	}
	c.logger.Info("app removed", zap.String("package", pkg))
	return nil
}

// SetLimit updates an app's daily limit in minutes.
func (c *ConfigStore) SetLimit(pkg string, minutes int) error {
	return c.update(pkg, func(app *domain.MonitoredApp) {
		app.LimitMinutes = minutes
	})
}

// SetAction updates an app's enforcement action.
func (c *ConfigStore) SetAction(pkg string, action domain.Action) error {
	return c.update(pkg, func(app *domain.MonitoredApp) {
		app.Action = action
	})
}

// SetEnabled toggles monitoring without losing the app's configuration.
func (c *ConfigStore) SetEnabled(pkg string, enabled bool) error {
	return c.update(pkg, func(app *domain.MonitoredApp) {
		app.Enabled = enabled
	})
}

func (c *ConfigStore) update(pkg string, mutate func(*domain.MonitoredApp)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	app, exists := c.doc.Apps[pkg]
	if !exists {
		return fmt.Errorf("app %s is not monitored", pkg)
	}
	mutate(&app)
	if err := validateApp(app); err != nil {
		return err
	}
	c.doc.Apps[pkg] = app
	return c.save()
}

// Get returns one app's configuration.
func (c *ConfigStore) Get(pkg string) (domain.MonitoredApp, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	app, ok := c.doc.Apps[pkg]
	return app, ok
}

// All returns every configured app ordered by package name, so ticks
// process apps in a stable order.
func (c *ConfigStore) All() []domain.MonitoredApp {
	c.mu.Lock()
	defer c.mu.Unlock()

	apps := make([]domain.MonitoredApp, 0, len(c.doc.Apps))
	for _, app := range c.doc.Apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Package < apps[j].Package })
	return apps
}

// Settings returns the sampling-loop settings.
func (c *ConfigStore) Settings() domain.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Settings
}

// LastResetDate returns the date of the last daily reset, "" if never.
func (c *ConfigStore) LastResetDate() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.LastResetDate
}

// SetLastResetDate records a completed daily reset so repeated rollover
// checks within the same day are no-ops.
func (c *ConfigStore) SetLastResetDate(date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc.LastResetDate = date
	return c.save()
}

func (c *ConfigStore) save() error {
	if err := c.store.Save(&c.doc); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// Ensure ConfigStore implements domain.AppStore.
var _ domain.AppStore = (*ConfigStore)(nil)
