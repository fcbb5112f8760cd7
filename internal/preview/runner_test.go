package preview

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRunner wires a Runner against a fake xcodebuild binary. The xcrun
// stand-in is intentionally missing; the boot step is best-effort and its
// failure must never affect the run.
func newTestRunner(t *testing.T, xcodebuildBin string, timeout time.Duration, extraDirs []string) *Runner {
	t.Helper()
	return NewRunner(
		NewXcodeBuild(xcodebuildBin),
		NewSimCtl(filepath.Join(t.TempDir(), "missing-xcrun")),
		NewLocator(extraDirs),
		RunnerOptions{Timeout: timeout, BootDelay: 0, TailMax: 2048},
		log.New(io.Discard),
	)
}

// newTestProject creates a project root with an .xcodeproj inside and
// returns both paths.
func newTestProject(t *testing.T) (root, workspace string) {
	t.Helper()
	root = t.TempDir()
	workspace = filepath.Join(root, "MyApp.xcodeproj")
	require.NoError(t, os.MkdirAll(workspace, 0755))
	return root, workspace
}

func baseRequest(workspace string) BuildRequest {
	return BuildRequest{
		ViewName:      "ProfileView",
		WorkspacePath: workspace,
		Scheme:        "MyApp",
		TestTarget:    "MyAppTests",
		Device:        "iPhone 15 Pro",
		SnapshotsDir:  "./__Snapshots__",
	}
}

func TestRunnerSuccess(t *testing.T) {
	root, workspace := newTestProject(t)
	snapshot := filepath.Join(root, "__Snapshots__", "ViewSnapshotTests", "testProfileView.1.png")
	touch(t, snapshot)

	bin := writeScript(t, t.TempDir(), "xcodebuild", `#!/bin/sh
echo "Test Suite 'ViewSnapshotTests' passed"
exit 0
`)
	runner := newTestRunner(t, bin, time.Minute, nil)

	result := runner.Run(context.Background(), baseRequest(workspace))
	require.True(t, result.Success, "unexpected failure: %s", result.Error)
	assert.Equal(t, snapshot, result.SnapshotPath)
	assert.Equal(t, 0, result.ExitCode)
	assert.Empty(t, result.Error)
}

// recordingXcodebuild builds an xcodebuild stand-in that dumps its
// arguments and environment before exiting cleanly.
func recordingXcodebuild(t *testing.T, argsFile, envFile string) string {
	t.Helper()
	return writeScript(t, t.TempDir(), "xcodebuild", fmt.Sprintf(`#!/bin/sh
echo "$@" > %q
env > %q
exit 0
`, argsFile, envFile))
}

func TestRunnerArgumentGrammar(t *testing.T) {
	root, workspace := newTestProject(t)
	touch(t, filepath.Join(root, "__Snapshots__", "ViewSnapshotTests", "testProfileView.1.png"))

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.log")
	envFile := filepath.Join(dir, "env.log")
	runner := newTestRunner(t, recordingXcodebuild(t, argsFile, envFile), time.Minute, nil)

	req := baseRequest(workspace)
	req.Record = true
	result := runner.Run(context.Background(), req)
	require.True(t, result.Success, "unexpected failure: %s", result.Error)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "test -project "+workspace)
	assert.Contains(t, string(args), "-scheme MyApp")
	assert.Contains(t, string(args), "-destination platform=iOS Simulator,name=iPhone 15 Pro")
	assert.Contains(t, string(args), "-only-testing MyAppTests/ViewSnapshotTests/testProfileView")

	env, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.Contains(t, string(env), "SNAPSHOT_RECORD_MODE=1")
}

func TestRunnerOmitsRecordModeByDefault(t *testing.T) {
	root, workspace := newTestProject(t)
	touch(t, filepath.Join(root, "__Snapshots__", "ViewSnapshotTests", "testProfileView.1.png"))

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.log")
	envFile := filepath.Join(dir, "env.log")
	runner := newTestRunner(t, recordingXcodebuild(t, argsFile, envFile), time.Minute, nil)

	result := runner.Run(context.Background(), baseRequest(workspace))
	require.True(t, result.Success, "unexpected failure: %s", result.Error)

	env, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.NotContains(t, string(env), "SNAPSHOT_RECORD_MODE")
}

func TestNewRunnerDefaults(t *testing.T) {
	runner := NewRunner(NewXcodeBuild(""), NewSimCtl(""), NewLocator(nil), RunnerOptions{}, nil)

	assert.Equal(t, 5*time.Minute, runner.timeout)
	assert.Equal(t, 30*time.Second, runner.bootBudget)
	assert.Equal(t, 4096, runner.tailMax)
}

func TestRunnerBuildFailure(t *testing.T) {
	_, workspace := newTestProject(t)

	bin := writeScript(t, t.TempDir(), "xcodebuild", `#!/bin/sh
i=0
while [ $i -lt 500 ]; do
  echo "note: compiling something $i"
  i=$((i+1))
done
echo "/src/ProfileView.swift:3:1: error: cannot find 'Undeclared' in scope"
exit 65
`)
	runner := newTestRunner(t, bin, time.Minute, nil)

	result := runner.Run(context.Background(), baseRequest(workspace))
	assert.False(t, result.Success)
	assert.Equal(t, 65, result.ExitCode)
	assert.Contains(t, result.Error, "cannot find 'Undeclared'")
	assert.NotEmpty(t, result.LogTail)
	// The tail is bounded no matter how large the log is.
	assert.LessOrEqual(t, len(result.LogTail), 2048)
}

func TestRunnerFailureWithoutErrorLines(t *testing.T) {
	_, workspace := newTestProject(t)

	bin := writeScript(t, t.TempDir(), "xcodebuild", `#!/bin/sh
echo "something went sideways"
exit 70
`)
	runner := newTestRunner(t, bin, time.Minute, nil)

	result := runner.Run(context.Background(), baseRequest(workspace))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "exit code 70")
}

func TestRunnerMissingArtifactAnomaly(t *testing.T) {
	_, workspace := newTestProject(t)

	bin := writeScript(t, t.TempDir(), "xcodebuild", `#!/bin/sh
exit 0
`)
	runner := newTestRunner(t, bin, time.Minute, nil)

	result := runner.Run(context.Background(), baseRequest(workspace))
	assert.False(t, result.Success)
	// Distinct from a build failure: the test passed, the artifact is gone.
	assert.Contains(t, result.Error, "test passed but no snapshot found")
	assert.Equal(t, 0, result.ExitCode)
}

func TestRunnerTimeout(t *testing.T) {
	_, workspace := newTestProject(t)

	bin := writeScript(t, t.TempDir(), "xcodebuild", `#!/bin/sh
exec sleep 5
`)
	runner := newTestRunner(t, bin, 100*time.Millisecond, nil)

	result := runner.Run(context.Background(), baseRequest(workspace))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timed out")
}

func TestRunnerToolUnavailable(t *testing.T) {
	_, workspace := newTestProject(t)

	runner := newTestRunner(t, filepath.Join(t.TempDir(), "missing-xcodebuild"), time.Minute, nil)

	result := runner.Run(context.Background(), baseRequest(workspace))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "xcodebuild not available")
	assert.Equal(t, -1, result.ExitCode)
}

func TestRunnerMissingWorkspace(t *testing.T) {
	runner := newTestRunner(t, "xcodebuild", time.Minute, nil)

	req := baseRequest(filepath.Join(t.TempDir(), "Nope.xcodeproj"))
	result := runner.Run(context.Background(), req)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not found at")
}

func TestRunnerRejectsBadExtension(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "MyApp.txt")
	require.NoError(t, os.WriteFile(bad, nil, 0644))

	runner := newTestRunner(t, "xcodebuild", time.Minute, nil)

	req := baseRequest(bad)
	result := runner.Run(context.Background(), req)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, ".xcworkspace or .xcodeproj")
}

func TestRunnerRejectsInvalidViewName(t *testing.T) {
	runner := newTestRunner(t, "xcodebuild", time.Minute, nil)

	req := baseRequest("ignored.xcodeproj")
	req.ViewName = "Profile View"
	result := runner.Run(context.Background(), req)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not a valid identifier")
}

func TestRunnerRerunPicksNewerSnapshot(t *testing.T) {
	root, workspace := newTestProject(t)
	dir := filepath.Join(root, "__Snapshots__", "ViewSnapshotTests")
	old := filepath.Join(dir, "testProfileView.1.png")
	newer := filepath.Join(dir, "testProfileView.2.png")
	touch(t, old)
	touch(t, newer)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	bin := writeScript(t, t.TempDir(), "xcodebuild", `#!/bin/sh
exit 0
`)
	runner := newTestRunner(t, bin, time.Minute, nil)

	result := runner.Run(context.Background(), baseRequest(workspace))
	require.True(t, result.Success)
	assert.Equal(t, newer, result.SnapshotPath)
}
