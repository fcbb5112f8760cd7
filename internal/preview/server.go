package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/noahzs/ios-preview-mcp/internal/config"
)

const (
	serverName    = "ios-preview"
	serverVersion = "1.0.0"
)

// Server is the MCP server exposing the preview tools. Each tool call is
// stateless and independent; the only shared values are configuration
// defaults applied at this boundary.
type Server struct {
	mcpServer *server.MCPServer
	cfg       *config.Config
	simctl    *SimCtl
	runner    *Runner
	log       *log.Logger
}

// NewServer creates a new preview MCP server from the given configuration.
func NewServer(cfg *config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	simctl := NewSimCtl(cfg.Tools.Xcrun)
	xcodebuild := NewXcodeBuild(cfg.Tools.Xcodebuild)
	locator := NewLocator(cfg.Locator.FallbackDirs)

	runner := NewRunner(xcodebuild, simctl, locator, RunnerOptions{
		Timeout:   time.Duration(cfg.Build.Timeout) * time.Second,
		BootDelay: time.Duration(cfg.Build.BootDelay) * time.Second,
		TailMax:   cfg.Build.LogTailBytes,
	}, logger)

	s := &Server{
		cfg:    cfg,
		simctl: simctl,
		runner: runner,
		log:    logger,
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)

	s.registerPreviewTools()
	s.registerSimulatorTools()

	return s
}

// MCPServer returns the underlying MCP server for serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// registerPreviewTools registers the build-and-screenshot workflow tools.
func (s *Server) registerPreviewTools() {
	// build_and_screenshot
	s.mcpServer.AddTool(
		mcp.NewTool("build_and_screenshot",
			mcp.WithDescription("Build a SwiftUI view and capture its screenshot by running its snapshot test. "+
				"The test target must contain a ViewSnapshotTests class with a method named test<view_name> "+
				"(exact, case-sensitive match); this server does not create that test."),
			mcp.WithString("view_name", mcp.Required(), mcp.Description("Name of the SwiftUI view (e.g. \"ProfileView\")")),
			mcp.WithString("workspace_path", mcp.Required(), mcp.Description("Path to the .xcworkspace or .xcodeproj file")),
			mcp.WithString("scheme", mcp.Required(), mcp.Description("Xcode scheme name")),
			mcp.WithString("test_target", mcp.Required(), mcp.Description("Name of the test target containing ViewSnapshotTests")),
			mcp.WithString("device", mcp.Description("Simulator device name or UDID (default: iPhone 15 Pro)")),
			mcp.WithString("snapshots_dir", mcp.Description("Directory where snapshots are stored (default: ./__Snapshots__)")),
			mcp.WithBoolean("record", mcp.Description("Run in snapshot record mode to refresh baselines")),
		),
		s.handleBuildAndScreenshot,
	)

	// quick_screenshot
	s.mcpServer.AddTool(
		mcp.NewTool("quick_screenshot",
			mcp.WithDescription("Take a screenshot of the currently running simulator without rebuilding"),
			mcp.WithString("device", mcp.Description("Simulator device name (default: iPhone 15 Pro; falls back to the booted device)")),
		),
		s.handleQuickScreenshot,
	)
}

// registerSimulatorTools registers simulator management tools.
func (s *Server) registerSimulatorTools() {
	// list_simulators
	s.mcpServer.AddTool(
		mcp.NewTool("list_simulators",
			mcp.WithDescription("List all available iOS simulators with their name, identifier, state, and OS version"),
		),
		s.handleListSimulators,
	)

	// boot_simulator
	s.mcpServer.AddTool(
		mcp.NewTool("boot_simulator",
			mcp.WithDescription("Boot an iOS simulator by UDID or name"),
			mcp.WithString("device_id", mcp.Required(), mcp.Description("Simulator UDID or name")),
		),
		s.handleBootSimulator,
	)

	// shutdown_simulator
	s.mcpServer.AddTool(
		mcp.NewTool("shutdown_simulator",
			mcp.WithDescription("Shutdown an iOS simulator"),
			mcp.WithString("device_id", mcp.Required(), mcp.Description("Simulator UDID or name")),
		),
		s.handleShutdownSimulator,
	)

	// erase_simulator
	s.mcpServer.AddTool(
		mcp.NewTool("erase_simulator",
			mcp.WithDescription("Erase an iOS simulator back to factory state (device must be shut down)"),
			mcp.WithString("device_id", mcp.Required(), mcp.Description("Simulator UDID or name")),
		),
		s.handleEraseSimulator,
	)
}

// Tool handlers

func (s *Server) handleBuildAndScreenshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	breq := BuildRequest{
		ViewName:      req.GetString("view_name", ""),
		WorkspacePath: req.GetString("workspace_path", ""),
		Scheme:        req.GetString("scheme", ""),
		TestTarget:    req.GetString("test_target", ""),
		Device:        req.GetString("device", s.cfg.Defaults.Device),
		SnapshotsDir:  req.GetString("snapshots_dir", s.cfg.Defaults.SnapshotsDir),
		Record:        req.GetBool("record", false),
	}

	if breq.ViewName == "" || breq.WorkspacePath == "" || breq.Scheme == "" || breq.TestTarget == "" {
		return mcp.NewToolResultError("view_name, workspace_path, scheme and test_target are required"), nil
	}

	result := s.runner.Run(ctx, breq)

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to format output: %v", err)), nil
	}

	if !result.Success {
		return mcp.NewToolResultError(string(output)), nil
	}
	return mcp.NewToolResultText(string(output)), nil
}

func (s *Server) handleQuickScreenshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	device := req.GetString("device", s.cfg.Defaults.Device)

	path, err := s.simctl.QuickScreenshot(ctx, device, s.cfg.Screenshots.OutputDir)

	result := ScreenshotResult{Success: err == nil, ImagePath: path}
	if err != nil {
		result.Error = err.Error()
	}

	output, jsonErr := json.MarshalIndent(result, "", "  ")
	if jsonErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to format output: %v", jsonErr)), nil
	}

	if err != nil {
		return mcp.NewToolResultError(string(output)), nil
	}
	return mcp.NewToolResultText(string(output)), nil
}

func (s *Server) handleListSimulators(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.simctl.ListDevices(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Zero configured devices is a valid, successful answer.
	output, err := json.MarshalIndent(DeviceListResult{Devices: devices}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to format output: %v", err)), nil
	}

	return mcp.NewToolResultText(string(output)), nil
}

func (s *Server) handleBootSimulator(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID := req.GetString("device_id", "")
	if deviceID == "" {
		return mcp.NewToolResultError("device_id is required"), nil
	}

	if err := s.simctl.Boot(ctx, deviceID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Simulator %s booted successfully", deviceID)), nil
}

func (s *Server) handleShutdownSimulator(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID := req.GetString("device_id", "")
	if deviceID == "" {
		return mcp.NewToolResultError("device_id is required"), nil
	}

	if err := s.simctl.Shutdown(ctx, deviceID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Simulator %s shut down successfully", deviceID)), nil
}

func (s *Server) handleEraseSimulator(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID := req.GetString("device_id", "")
	if deviceID == "" {
		return mcp.NewToolResultError("device_id is required"), nil
	}

	if err := s.simctl.Erase(ctx, deviceID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Simulator %s erased successfully", deviceID)), nil
}
