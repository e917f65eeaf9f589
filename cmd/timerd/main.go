// Package main is the CLI entry point for timerd.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/timerapps/timerd/internal/daemon"
	"github.com/timerapps/timerd/internal/domain"
	"github.com/timerapps/timerd/internal/infra"
	"github.com/timerapps/timerd/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "timerd",
	Short: "Per-app daily usage limits for an Android device",
	Long: `timerd meters how long each monitored app spends in the foreground
of a connected Android device and blocks it (kill or freeze) once its
daily limit is reached. Usage resets automatically at midnight.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the usage monitor (runs in the foreground)",
	Long: `Starts the sampling loop. Every few seconds the foregrounded app is
sampled and its time attributed; apps over their limit are killed or
frozen per their configured action. Stop with Ctrl-C or SIGTERM.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the monitor is running",
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored apps and their limits",
	RunE:  runList,
}

var addCmd = &cobra.Command{
	Use:   "add <package>",
	Short: "Add an app to monitoring",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var removeCmd = &cobra.Command{
	Use:   "remove <package>",
	Short: "Remove an app from monitoring",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var setCmd = &cobra.Command{
	Use:   "set <package>",
	Short: "Change an app's limit, action, or enabled state",
	Args:  cobra.ExactArgs(1),
	RunE:  runSet,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's usage per app",
	RunE:  runUsage,
}

var resetCmd = &cobra.Command{
	Use:   "reset [package]",
	Short: "Reset today's usage for one app or all enabled apps",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReset,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	addName     string
	addLimit    int
	addAction   string
	addDisabled bool

	setLimit   int
	setAction  string
	setEnable  bool
	setDisable bool

	resetAll     bool
	usageHistory bool
	jsonOutput   bool
)

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "Display name (defaults to package)")
	addCmd.Flags().IntVar(&addLimit, "limit", 0, "Daily limit in minutes (required)")
	addCmd.Flags().StringVar(&addAction, "action", "kill", "Enforcement action: kill or freeze")
	addCmd.Flags().BoolVar(&addDisabled, "disabled", false, "Add without enabling monitoring")
	_ = addCmd.MarkFlagRequired("limit")

	setCmd.Flags().IntVar(&setLimit, "limit", 0, "New daily limit in minutes")
	setCmd.Flags().StringVar(&setAction, "action", "", "New enforcement action: kill or freeze")
	setCmd.Flags().BoolVar(&setEnable, "enable", false, "Enable monitoring")
	setCmd.Flags().BoolVar(&setDisable, "disable", false, "Disable monitoring")

	resetCmd.Flags().BoolVar(&resetAll, "all", false, "Reset every enabled app")
	usageCmd.Flags().BoolVar(&usageHistory, "history", false, "Show lifetime archived totals")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

// mutedNotifier swallows notifications when they are disabled in settings.
type mutedNotifier struct{}

func (mutedNotifier) Notify(title, body string) error { return nil }

// openStores loads the config store and ledger for the default data dir.
func openStores(logger *zap.Logger) (infra.Paths, *usecase.ConfigStore, *usecase.Ledger, error) {
	paths := infra.DefaultPaths()
	if err := paths.Ensure(); err != nil {
		return paths, nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	configStore := usecase.NewConfigStore(infra.NewFileDocumentStore(paths.ConfigPath, logger), logger)
	ledger := usecase.NewLedger(infra.NewFileDocumentStore(paths.LedgerPath, logger), configStore, logger)
	return paths, configStore, ledger, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	paths := infra.DefaultPaths()
	if err := paths.Ensure(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logger := createLogger(paths)
	defer func() { _ = logger.Sync() }()

	// Refuse to start a second monitor against the same ledger.
	runRegistry := infra.NewRunRegistry(paths.RunPath, infra.NewProcessManager())
	if runRegistry.IsAlive() {
		fmt.Println("timerd is already running")
		return nil
	}

	configStore := usecase.NewConfigStore(infra.NewFileDocumentStore(paths.ConfigPath, logger), logger)
	ledger := usecase.NewLedger(infra.NewFileDocumentStore(paths.LedgerPath, logger), configStore, logger)
	settings := configStore.Settings()

	// One device client per run: adb from the host, or su when running
	// on a rooted device.
	var probe domain.ForegroundProbe
	var actuator domain.Actuator
	var notifier domain.Notifier
	if settings.UseRootShell {
		device := infra.NewRootShellDevice(logger)
		probe, actuator, notifier = device, device, device
	} else {
		device := infra.NewADBDevice(logger)
		probe, actuator, notifier = device, device, device
	}
	if !settings.NotificationsEnabled {
		notifier = mutedNotifier{}
	}

	// Encrypted history archive is best-effort: without it the monitor
	// still runs, finished days just aren't kept long-term.
	var archive domain.HistoryArchive
	if key, err := infra.EnsureKey(infra.NewFileKeyProvider(paths.DataDir)); err != nil {
		logger.Warn("archive key unavailable, history disabled", zap.Error(err))
	} else if a, err := infra.NewUsageArchive(paths.DataDir, key); err != nil {
		logger.Warn("history archive unavailable", zap.Error(err))
	} else {
		archive = a
		defer a.Close()
	}

	dispatcher := usecase.NewDispatcher(ledger, actuator, notifier, logger)
	timekeeper := usecase.NewTimekeeper(logger)

	loopConfig := daemon.DefaultConfig()
	if settings.CheckIntervalSeconds > 0 {
		loopConfig.Interval = time.Duration(settings.CheckIntervalSeconds) * time.Second
	}

	monitor := daemon.NewMonitor(loopConfig, configStore, ledger, probe, dispatcher, timekeeper, archive, logger)
	monitor.Start()

	if err := runRegistry.Register(domain.RunState{
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
		AppVersion: Version,
	}); err != nil {
		logger.Warn("failed to register run state", zap.Error(err))
	}

	enabled := 0
	for _, app := range configStore.All() {
		if app.Enabled {
			enabled++
		}
	}
	_ = notifier.Notify("timerd - Monitoring Started",
		fmt.Sprintf("Monitoring %d app(s)", enabled))

	fmt.Printf("timerd started: monitoring %d app(s) every %s\n", enabled, loopConfig.Interval)
	fmt.Println("Press Ctrl-C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nStopping...")
	if err := monitor.Stop(); err != nil {
		logger.Error("monitor shutdown failed", zap.Error(err))
		return err
	}
	_ = notifier.Notify("timerd - Monitoring Stopped", "All timers have been saved.")
	if err := runRegistry.Clear(); err != nil {
		logger.Warn("failed to clear run state", zap.Error(err))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	paths := infra.DefaultPaths()
	runRegistry := infra.NewRunRegistry(paths.RunPath, infra.NewProcessManager())

	state, err := runRegistry.Get()
	if err != nil || state == nil {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'timerd start' to begin monitoring.")
		return nil
	}

	if runRegistry.IsAlive() {
		fmt.Println("Status: RUNNING")
		fmt.Printf("PID: %d\n", state.PID)
		fmt.Printf("Since: %s (%s ago)\n",
			state.StartedAt.Format(time.RFC3339),
			time.Since(state.StartedAt).Round(time.Second))
		if state.AppVersion != "" {
			fmt.Printf("Version: %s\n", state.AppVersion)
		}
	} else {
		fmt.Println("Status: NOT RUNNING (stale run state)")
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	_, configStore, _, err := openStores(logger)
	if err != nil {
		return err
	}

	apps := configStore.All()
	if len(apps) == 0 {
		fmt.Println("No monitored apps. Add one with 'timerd add <package> --limit <minutes>'.")
		return nil
	}

	fmt.Println("\n=== Monitored Apps ===")
	for _, app := range apps {
		status := "enabled"
		if !app.Enabled {
			status = "disabled"
		}
		fmt.Printf("%-40s %4dm  %-6s  %s  (%s)\n",
			app.Package, app.LimitMinutes, app.Action, status, app.Name)
	}
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	_, configStore, _, err := openStores(logger)
	if err != nil {
		return err
	}

	app := domain.MonitoredApp{
		Package:      args[0],
		Name:         addName,
		LimitMinutes: addLimit,
		Action:       domain.Action(addAction),
		Enabled:      !addDisabled,
	}
	if err := configStore.Add(app); err != nil {
		return err
	}
	fmt.Printf("Added %s with a %dm daily limit (action: %s)\n",
		app.Package, app.LimitMinutes, addAction)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	_, configStore, _, err := openStores(logger)
	if err != nil {
		return err
	}

	if err := configStore.Remove(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", args[0])
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	if setEnable && setDisable {
		return fmt.Errorf("--enable and --disable are mutually exclusive")
	}

	logger := zap.NewNop()
	_, configStore, _, err := openStores(logger)
	if err != nil {
		return err
	}

	pkg := args[0]
	changed := false

	if cmd.Flags().Changed("limit") {
		if err := configStore.SetLimit(pkg, setLimit); err != nil {
			return err
		}
		changed = true
	}
	if setAction != "" {
		if err := configStore.SetAction(pkg, domain.Action(setAction)); err != nil {
			return err
		}
		changed = true
	}
	if setEnable || setDisable {
		if err := configStore.SetEnabled(pkg, setEnable); err != nil {
			return err
		}
		changed = true
	}

	if !changed {
		return fmt.Errorf("nothing to change: pass --limit, --action, --enable, or --disable")
	}
	fmt.Printf("Updated %s\n", pkg)
	return nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	paths, _, ledger, err := openStores(logger)
	if err != nil {
		return err
	}

	today := time.Now().Format(domain.DateLayout)
	records := ledger.Day(today)

	fmt.Printf("\n=== Usage for %s ===\n", today)
	if len(records) == 0 {
		fmt.Println("No usage recorded today.")
	}
	for pkg, rec := range records {
		marker := ""
		if rec.LimitReached {
			marker = "  [BLOCKED]"
		}
		fmt.Printf("%-40s %3dm / %3dm  (%dm left)%s\n",
			pkg, rec.TotalMinutesUsed, rec.LimitMinutes, rec.RemainingMinutes, marker)
	}

	if usageHistory {
		key, err := infra.EnsureKey(infra.NewFileKeyProvider(paths.DataDir))
		if err != nil {
			return fmt.Errorf("archive key: %w", err)
		}
		archive, err := infra.NewUsageArchive(paths.DataDir, key)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer archive.Close()

		totals, err := archive.TotalsByApp()
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		fmt.Println("\n=== Lifetime (archived days) ===")
		if len(totals) == 0 {
			fmt.Println("No archived history yet.")
		}
		for pkg, minutes := range totals {
			fmt.Printf("%-40s %dm\n", pkg, minutes)
		}
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	paths, _, ledger, err := openStores(logger)
	if err != nil {
		return err
	}

	runRegistry := infra.NewRunRegistry(paths.RunPath, infra.NewProcessManager())
	if runRegistry.IsAlive() {
		fmt.Println("Note: the monitor is running; its in-memory timers keep counting.")
		fmt.Println("Restart it for the reset to fully take effect.")
	}

	switch {
	case resetAll:
		count := ledger.ResetAll()
		fmt.Printf("Reset %d app(s)\n", count)
	case len(args) == 1:
		if !ledger.Reset(args[0]) {
			return fmt.Errorf("app %s is not monitored (or disabled)", args[0])
		}
		fmt.Printf("Reset %s\n", args[0])
	default:
		return fmt.Errorf("pass a package name or --all")
	}
	return nil
}

func createLogger(paths infra.Paths) *zap.Logger {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{paths.LogPath, "stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr only if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("timerd %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	}
}
