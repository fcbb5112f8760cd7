// Package preview provides MCP server functionality for building isolated
// SwiftUI views, running their snapshot tests and retrieving the rendered
// images for visual review.
package preview

// Device state values reported to callers. Anything simctl reports outside
// this set (e.g. "Shutting Down") is folded into StateUnknown.
const (
	StateShutdown = "Shutdown"
	StateBooted   = "Booted"
	StateCreating = "Creating"
	StateUnknown  = "Unknown"
)

// Device represents an iOS simulator device.
type Device struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	State      string `json:"state"`
	OSVersion  string `json:"os_version"`
}

// DeviceListResult is the list_simulators payload.
type DeviceListResult struct {
	Devices []Device `json:"devices"`
}

// simctlDevice mirrors one device entry in `simctl list -j devices` output.
type simctlDevice struct {
	UDID        string `json:"udid"`
	Name        string `json:"name"`
	State       string `json:"state"`
	IsAvailable bool   `json:"isAvailable"`
}

// simctlDeviceList mirrors the JSON output of `simctl list -j devices`,
// keyed by runtime identifier.
type simctlDeviceList struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

// BuildRequest describes a single build-and-screenshot invocation. The view
// must have a test method literally named test<ViewName> in the target's
// ViewSnapshotTests class; the match is exact and case-sensitive. This server
// never creates that test, it assumes the caller already added it.
type BuildRequest struct {
	ViewName      string
	WorkspacePath string
	Scheme        string
	TestTarget    string
	Device        string
	SnapshotsDir  string
	Record        bool
}

// BuildResult is the outcome of one build-and-screenshot run. Constructed
// once per invocation and returned, never cached or retried.
type BuildResult struct {
	Success      bool   `json:"success"`
	SnapshotPath string `json:"snapshotPath,omitempty"`
	Error        string `json:"error,omitempty"`
	LogTail      string `json:"logTail,omitempty"`
	ExitCode     int    `json:"exitCode"`
}

// ScreenshotResult is the quick_screenshot payload.
type ScreenshotResult struct {
	Success   bool   `json:"success"`
	ImagePath string `json:"imagePath,omitempty"`
	Error     string `json:"error,omitempty"`
}
