// Command mcp-preview provides an MCP server for previewing SwiftUI views.
//
// This server provides tools for:
// - Building a single view's snapshot test and returning the rendered PNG
// - Listing, booting, shutting down and erasing iOS simulators
// - Capturing a quick screenshot of the booted simulator
//
// Usage:
//
//	./mcp-preview                  # Start MCP server (stdio)
//	./mcp-preview --check          # Check prerequisites
//	./mcp-preview --config <path>  # Use a specific config file
//	./mcp-preview --help           # Show help
//
// The server communicates via stdio using the MCP protocol; logs go to
// stderr so they never corrupt the transport.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"

	"github.com/noahzs/ios-preview-mcp/internal/config"
	"github.com/noahzs/ios-preview-mcp/internal/preview"
)

func main() {
	configPath := config.GetDefaultConfigPath()

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--check", "-c":
			checkPrerequisites()
			return
		case "--help", "-h":
			printHelp()
			return
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a path argument")
				os.Exit(1)
			}
			i++
			configPath = args[i]
		}
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "ios-preview",
	})

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load config", "err", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", "err", err)
	}

	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}

	s := preview.NewServer(cfg, logger)

	logger.Info("starting MCP server", "config", configPath)
	if err := server.ServeStdio(s.MCPServer()); err != nil {
		logger.Fatal("server error", "err", err)
	}
}

func printHelp() {
	fmt.Println(`MCP iOS Preview Server - build SwiftUI views and review their screenshots

USAGE:
    mcp-preview                  Start MCP server (communicates via stdio)
    mcp-preview --check          Check if prerequisites are installed
    mcp-preview --config <path>  Use a specific config file
    mcp-preview --help           Show this help

PREREQUISITES:
    1. Xcode & Command Line Tools
       xcode-select --install

    2. An iOS Simulator runtime (the server boots devices on demand)

    3. The target project must embed swift-snapshot-testing and contain a
       ViewSnapshotTests class in its test target. Each previewable view X
       needs a test method literally named testX (case-sensitive).

CONFIGURATION:
    ~/.ios-preview/config.yaml (all keys optional), e.g.:

      defaults:
        device: "iPhone 15 Pro"
        snapshots_dir: "./__Snapshots__"
      build:
        timeout: 300
      locator:
        fallback_dirs: ["Tests/__Snapshots__"]

    Environment overrides use the IOS_PREVIEW_ prefix with "__" as the key
    separator, e.g. IOS_PREVIEW_DEFAULTS__DEVICE="iPhone 16".

TOOLS:
    Preview:   build_and_screenshot, quick_screenshot
    Simulator: list_simulators, boot_simulator, shutdown_simulator, erase_simulator`)
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

func checkPrerequisites() {
	fmt.Println("Checking MCP iOS Preview Server prerequisites...")
	fmt.Println()

	allGood := true

	fmt.Print("Xcode Command Line Tools: ")
	if _, err := exec.LookPath("xcodebuild"); err != nil {
		fmt.Println(failStyle.Render("NOT FOUND"))
		fmt.Println(dimStyle.Render("  → Install: xcode-select --install"))
		allGood = false
	} else {
		out, _ := exec.Command("xcodebuild", "-version").Output()
		version := strings.Split(string(out), "\n")[0]
		fmt.Println(okStyle.Render(version))
	}

	fmt.Print("Simulator (simctl): ")
	if _, err := exec.LookPath("xcrun"); err != nil {
		fmt.Println(failStyle.Render("NOT FOUND"))
		allGood = false
	} else {
		fmt.Println(okStyle.Render("OK"))
	}

	fmt.Print("Booted Simulator: ")
	out, _ := exec.Command("xcrun", "simctl", "list", "devices", "-j").Output()
	if strings.Contains(string(out), `"state" : "Booted"`) {
		fmt.Println(okStyle.Render("YES"))
	} else {
		fmt.Println(dimStyle.Render("NONE (the server will boot one on demand)"))
	}

	fmt.Println()
	if allGood {
		fmt.Println(okStyle.Render("All prerequisites met! MCP iOS Preview Server is ready to use."))
	} else {
		fmt.Println(failStyle.Render("Some prerequisites are missing. Install them and run --check again."))
		os.Exit(1)
	}
}
