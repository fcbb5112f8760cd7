package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SimCtl provides methods to interact with xcrun simctl commands.
type SimCtl struct {
	bin string
}

// NewSimCtl creates a new SimCtl instance. bin is the xcrun binary to
// invoke; empty means "xcrun" from PATH.
func NewSimCtl(bin string) *SimCtl {
	if bin == "" {
		bin = "xcrun"
	}
	return &SimCtl{bin: bin}
}

// ListDevices returns all available iOS simulators, fresh on every call.
// The list can change between calls (devices created or destroyed
// externally), so nothing here is cached. Runtime groups come back in
// sorted runtime order with simctl's own device order within each group.
func (s *SimCtl) ListDevices(ctx context.Context) ([]Device, error) {
	cmd := exec.CommandContext(ctx, s.bin, "simctl", "list", "-j", "devices", "available")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("simctl list devices failed: %w", err)
	}

	var deviceList simctlDeviceList
	if err := json.Unmarshal(out, &deviceList); err != nil {
		return nil, fmt.Errorf("failed to parse devices JSON: %w", err)
	}

	runtimes := make([]string, 0, len(deviceList.Devices))
	for runtime := range deviceList.Devices {
		runtimes = append(runtimes, runtime)
	}
	sort.Strings(runtimes)

	devices := make([]Device, 0)
	for _, runtime := range runtimes {
		osVersion := runtimeName(runtime)
		for _, d := range deviceList.Devices[runtime] {
			if !d.IsAvailable {
				continue
			}
			devices = append(devices, Device{
				Name:       d.Name,
				Identifier: d.UDID,
				State:      normalizeState(d.State),
				OSVersion:  osVersion,
			})
		}
	}

	return devices, nil
}

// Boot boots a simulator by UDID or name. Booting an already-booted device
// is not an error.
func (s *SimCtl) Boot(ctx context.Context, deviceID string) error {
	cmd := exec.CommandContext(ctx, s.bin, "simctl", "boot", deviceID)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "current state: Booted") {
			return nil
		}
		return fmt.Errorf("simctl boot failed: %s", stderrOr(&stderr, err))
	}
	return nil
}

// Shutdown shuts down a simulator.
func (s *SimCtl) Shutdown(ctx context.Context, deviceID string) error {
	cmd := exec.CommandContext(ctx, s.bin, "simctl", "shutdown", deviceID)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "current state: Shutdown") {
			return nil
		}
		return fmt.Errorf("simctl shutdown failed: %s", stderrOr(&stderr, err))
	}
	return nil
}

// Erase resets a simulator to factory state. The device must be shut down.
func (s *SimCtl) Erase(ctx context.Context, deviceID string) error {
	cmd := exec.CommandContext(ctx, s.bin, "simctl", "erase", deviceID)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("simctl erase failed: %s", stderrOr(&stderr, err))
	}
	return nil
}

// Screenshot captures the screen of the given device into outputPath.
// Returns the path written.
func (s *SimCtl) Screenshot(ctx context.Context, deviceID string, outputPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.bin, "simctl", "io", deviceID, "screenshot", outputPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("simctl screenshot failed: %s", stderrOr(&stderr, err))
	}

	return outputPath, nil
}

// QuickScreenshot captures whatever is currently on a booted simulator.
// A booted device matching deviceName by name is used when present,
// otherwise simctl's "booted" alias targets the single running device.
func (s *SimCtl) QuickScreenshot(ctx context.Context, deviceName, outputDir string) (string, error) {
	devices, err := s.ListDevices(ctx)
	if err != nil {
		return "", err
	}

	target := ""
	anyBooted := false
	for _, d := range devices {
		if d.State != StateBooted {
			continue
		}
		anyBooted = true
		if d.Name == deviceName {
			target = d.Identifier
			break
		}
	}
	if !anyBooted {
		return "", fmt.Errorf("no booted device: boot a simulator first")
	}
	if target == "" {
		target = "booted"
	}

	if outputDir == "" {
		outputDir = filepath.Join(os.TempDir(), "ios_screenshots")
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("simulator_%d.png", time.Now().Unix()))

	path, err := s.Screenshot(ctx, target, outputPath)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("screenshot command succeeded but file not found at %s", path)
	}

	return filepath.Abs(path)
}

func normalizeState(state string) string {
	switch state {
	case StateShutdown, StateBooted, StateCreating:
		return state
	}
	return StateUnknown
}

// runtimeName turns a runtime identifier like
// com.apple.CoreSimulator.SimRuntime.iOS-17-2 into "iOS 17.2".
func runtimeName(id string) string {
	parts := strings.Split(id, ".")
	last := parts[len(parts)-1]

	fields := strings.SplitN(last, "-", 2)
	if len(fields) == 2 {
		return fields[0] + " " + strings.ReplaceAll(fields[1], "-", ".")
	}
	return last
}

// stderrOr prefers captured stderr text over the bare exec error.
func stderrOr(stderr *bytes.Buffer, err error) string {
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return msg
	}
	return err.Error()
}
