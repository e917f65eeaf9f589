package infra

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/timerapps/timerd/internal/domain"
)

const commandTimeout = 10 * time.Second

// runner executes a host command and returns its trimmed stdout.
// Replaced by a fake in tests.
type runner interface {
	run(name string, args ...string) (string, error)
}

// execRunner runs commands via os/exec with a hard timeout so a wedged
// adb call cannot stall the sampling loop past one tick.
type execRunner struct {
	timeout time.Duration
}

func (r execRunner) run(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// packageRe matches a reverse-DNS package name in dumpsys focus output,
// e.g. "mCurrentFocus=Window{... u0 com.example.game/...}".
var packageRe = regexp.MustCompile(`(com\.[a-zA-Z0-9._]+)`)

// shellDevice is the shared probe/actuator/notifier logic over a device
// shell. The transport (adb vs on-device su) is supplied by the embedding
// type.
type shellDevice struct {
	shell  func(cmd string) (string, error)
	logger *zap.Logger
}

// ActiveApp returns the foregrounded package, "" when none. Fails closed:
// transport and parse errors also yield "".
func (d *shellDevice) ActiveApp() string {
	out, err := d.shell("dumpsys activity activities | grep mCurrentFocus")
	if err != nil || out == "" {
		out, err = d.shell("dumpsys window windows | grep mCurrentFocus")
	}
	if err != nil || out == "" {
		return ""
	}

	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "mCurrentFocus") {
			continue
		}
		if m := packageRe.FindString(line); m != "" {
			return m
		}
		// Fallback for packages outside the com.* namespace:
		// "... u0 <package>/<activity>}"
		if _, rest, found := strings.Cut(line, "u0 "); found {
			pkg, _, _ := strings.Cut(rest, "/")
			pkg, _, _ = strings.Cut(pkg, " ")
			if pkg = strings.TrimSpace(pkg); pkg != "" {
				return pkg
			}
		}
	}
	return ""
}

// Kill force-stops the app.
func (d *shellDevice) Kill(pkg string) error {
	if _, err := d.shell("am force-stop " + pkg); err != nil {
		return fmt.Errorf("kill %s: %w", pkg, err)
	}
	d.logger.Info("killed app", zap.String("package", pkg))
	return nil
}

// Freeze disables the app for the device owner.
func (d *shellDevice) Freeze(pkg string) error {
	if _, err := d.shell("pm disable-user --user 0 " + pkg); err != nil {
		return fmt.Errorf("freeze %s: %w", pkg, err)
	}
	d.logger.Info("froze app", zap.String("package", pkg))
	return nil
}

// Unfreeze re-enables a frozen app.
func (d *shellDevice) Unfreeze(pkg string) error {
	if _, err := d.shell("pm enable --user 0 " + pkg); err != nil {
		return fmt.Errorf("unfreeze %s: %w", pkg, err)
	}
	d.logger.Info("unfroze app", zap.String("package", pkg))
	return nil
}

// Notify posts a notification on the device via the notification service.
func (d *shellDevice) Notify(title, body string) error {
	cmd := fmt.Sprintf("cmd notification post -t %q -S bigtext timerd %q", title, body)
	if _, err := d.shell(cmd); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// ADBDevice drives the device through the host's adb binary.
type ADBDevice struct {
	shellDevice
	deviceID string
	run      runner
}

// NewADBDevice creates an ADB-backed device client, auto-detecting the
// first connected device.
func NewADBDevice(logger *zap.Logger) *ADBDevice {
	return newADBDevice(execRunner{timeout: commandTimeout}, logger)
}

func newADBDevice(run runner, logger *zap.Logger) *ADBDevice {
	d := &ADBDevice{run: run}
	d.shellDevice = shellDevice{shell: d.adbShell, logger: logger}
	d.deviceID = detectDevice(run, logger)
	return d
}

// DeviceID returns the selected adb serial, "" when none was detected.
func (d *ADBDevice) DeviceID() string {
	return d.deviceID
}

func (d *ADBDevice) adbShell(cmd string) (string, error) {
	args := make([]string, 0, 4)
	if d.deviceID != "" {
		args = append(args, "-s", d.deviceID)
	}
	args = append(args, "shell", cmd)
	return d.run.run("adb", args...)
}

// detectDevice parses `adb devices` and selects the first ready device.
func detectDevice(run runner, logger *zap.Logger) string {
	out, err := run.run("adb", "devices")
	if err != nil {
		logger.Warn("adb device detection failed", zap.Error(err))
		return ""
	}

	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "List of devices") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "device" {
			logger.Info("adb device selected", zap.String("device", fields[0]))
			return fields[0]
		}
	}

	logger.Warn("no adb device detected")
	return ""
}

// RootShellDevice drives a rooted device directly through su. Used when
// timerd runs on the device itself.
type RootShellDevice struct {
	shellDevice
	run runner
}

// NewRootShellDevice creates a root-shell-backed device client.
func NewRootShellDevice(logger *zap.Logger) *RootShellDevice {
	return newRootShellDevice(execRunner{timeout: commandTimeout}, logger)
}

func newRootShellDevice(run runner, logger *zap.Logger) *RootShellDevice {
	d := &RootShellDevice{run: run}
	d.shellDevice = shellDevice{shell: d.rootShell, logger: logger}
	return d
}

func (d *RootShellDevice) rootShell(cmd string) (string, error) {
	return d.run.run("su", "-c", cmd)
}

// Ensure both devices provide the full capability set.
var _ domain.ForegroundProbe = (*ADBDevice)(nil)
var _ domain.Actuator = (*ADBDevice)(nil)
var _ domain.Notifier = (*ADBDevice)(nil)
var _ domain.ForegroundProbe = (*RootShellDevice)(nil)
var _ domain.Actuator = (*RootShellDevice)(nil)
var _ domain.Notifier = (*RootShellDevice)(nil)
