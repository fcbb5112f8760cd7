package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"
)

// snapshotTestClass is the test class the caller contract requires: the
// snapshot test for view X must be ViewSnapshotTests.testX in the test
// target. The selector match is exact and case-sensitive.
const snapshotTestClass = "ViewSnapshotTests"

// XcodeBuild provides methods to interact with xcodebuild commands.
type XcodeBuild struct {
	bin string
}

// NewXcodeBuild creates a new XcodeBuild instance. bin is the xcodebuild
// binary to invoke; empty means "xcodebuild" from PATH.
func NewXcodeBuild(bin string) *XcodeBuild {
	if bin == "" {
		bin = "xcodebuild"
	}
	return &XcodeBuild{bin: bin}
}

// RunTest compiles and runs exactly one snapshot test for req. It returns
// the combined stdout/stderr, the tool's exit code and the run error.
// Cancellation comes from ctx; callers own the timeout policy.
func (x *XcodeBuild) RunTest(ctx context.Context, modeFlag string, req BuildRequest) (string, int, error) {
	args := []string{
		"test",
		modeFlag, req.WorkspacePath,
		"-scheme", req.Scheme,
		"-destination", destinationFor(req.Device),
		"-only-testing", testSelector(req.TestTarget, req.ViewName),
	}

	cmd := exec.CommandContext(ctx, x.bin, args...)

	// The build log interleaves compile and test output; keep one buffer so
	// error lines stay in context.
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	if req.Record {
		cmd.Env = append(os.Environ(), "SNAPSHOT_RECORD_MODE=1")
	}

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return combined.String(), exitCode, err
}

// testSelector builds the -only-testing identifier. No normalization of
// case or whitespace: what the caller names is what xcodebuild matches.
func testSelector(testTarget, viewName string) string {
	return testTarget + "/" + snapshotTestClass + "/test" + viewName
}

// destinationFor builds the simulator destination descriptor. A dash in
// the device string is treated as a UDID; plain names go through name=.
// Display names that themselves contain a dash (e.g. "iPad Pro
// (12.9-inch)") are misrouted to id= by this heuristic, so such devices
// must be addressed by UDID.
func destinationFor(device string) string {
	if strings.Contains(device, "-") {
		return fmt.Sprintf("platform=iOS Simulator,id=%s", device)
	}
	return fmt.Sprintf("platform=iOS Simulator,name=%s", device)
}

// buildModeFlag maps the workspace path extension to the mutually exclusive
// xcodebuild selector flag. Any other extension is a caller input error.
func buildModeFlag(path string) (string, error) {
	switch filepath.Ext(path) {
	case ".xcworkspace":
		return "-workspace", nil
	case ".xcodeproj":
		return "-project", nil
	}
	return "", fmt.Errorf("workspace_path must end in .xcworkspace or .xcodeproj, got %q", path)
}

// validViewName reports whether name is a plain identifier: letters,
// digits and underscores, not starting with a digit.
func validViewName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if unicode.IsLetter(r) || r == '_' {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// errorSummary extracts up to five compiler/test "error:" lines from a
// build log. Returns empty when none are present.
func errorSummary(output string) string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(strings.ToLower(line), "error:") {
			lines = append(lines, strings.TrimSpace(line))
			if len(lines) == 5 {
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}

// tailOf bounds s to at most max bytes from the end, trimmed to the next
// full line when possible. The full xcodebuild log is typically large; the
// tail is enough for diagnosis.
func tailOf(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	tail := s[len(s)-max:]
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i < len(tail)-1 {
		tail = tail[i+1:]
	}
	return tail
}
