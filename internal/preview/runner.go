package preview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Runner drives the build-and-screenshot workflow: validate the request,
// boot the simulator best-effort, run exactly one snapshot test under a
// bounded timeout and hand the successful run to the Locator.
//
// Runs are never memoized or retried; every call re-executes the build.
// Concurrent calls against the same snapshots directory rely on xcodebuild
// and simctl serializing device access, a documented limitation.
type Runner struct {
	xcodebuild *XcodeBuild
	simctl     *SimCtl
	locator    *Locator
	log        *log.Logger

	timeout    time.Duration
	bootBudget time.Duration
	bootDelay  time.Duration
	tailMax    int
}

// RunnerOptions bound a Runner's external invocations.
type RunnerOptions struct {
	Timeout    time.Duration // xcodebuild budget; a firing timeout yields a distinct "timed out" result
	BootBudget time.Duration // budget for the best-effort simulator boot
	BootDelay  time.Duration // settle time after a successful boot call
	TailMax    int           // max bytes of build log returned on failure
}

// NewRunner creates a Runner.
func NewRunner(xcodebuild *XcodeBuild, simctl *SimCtl, locator *Locator, opts RunnerOptions, logger *log.Logger) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.BootBudget <= 0 {
		opts.BootBudget = 30 * time.Second
	}
	if opts.TailMax <= 0 {
		opts.TailMax = 4096
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		xcodebuild: xcodebuild,
		simctl:     simctl,
		locator:    locator,
		log:        logger,
		timeout:    opts.Timeout,
		bootBudget: opts.BootBudget,
		bootDelay:  opts.BootDelay,
		tailMax:    opts.TailMax,
	}
}

// Run executes one build-and-screenshot request. All failures come back as
// a structured BuildResult; nothing escapes to crash the calling session.
func (r *Runner) Run(ctx context.Context, req BuildRequest) BuildResult {
	if !validViewName(req.ViewName) {
		return callerError(fmt.Sprintf("view_name %q is not a valid identifier", req.ViewName))
	}

	if _, err := os.Stat(req.WorkspacePath); err != nil {
		return callerError(fmt.Sprintf("workspace/project not found at %s", req.WorkspacePath))
	}

	modeFlag, err := buildModeFlag(req.WorkspacePath)
	if err != nil {
		return callerError(err.Error())
	}

	// Boot the target simulator up front so xcodebuild doesn't race a cold
	// device. Failures are ignored: xcodebuild can boot it itself.
	bootCtx, cancelBoot := context.WithTimeout(ctx, r.bootBudget)
	if err := r.simctl.Boot(bootCtx, req.Device); err == nil && r.bootDelay > 0 {
		time.Sleep(r.bootDelay)
	}
	cancelBoot()

	r.log.Info("running snapshot test",
		"view", req.ViewName,
		"scheme", req.Scheme,
		"device", req.Device,
		"selector", testSelector(req.TestTarget, req.ViewName))

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output, exitCode, runErr := r.xcodebuild.RunTest(runCtx, modeFlag, req)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return BuildResult{
			Error:    fmt.Sprintf("build timed out after %s", r.timeout),
			LogTail:  tailOf(output, r.tailMax),
			ExitCode: exitCode,
		}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// Environment error, e.g. xcodebuild missing entirely.
			return BuildResult{
				Error:    fmt.Sprintf("xcodebuild not available: %v", runErr),
				ExitCode: -1,
			}
		}

		msg := errorSummary(output)
		if msg == "" {
			msg = fmt.Sprintf("build/test failed with exit code %d", exitCode)
		}
		r.log.Warn("snapshot test failed", "view", req.ViewName, "exit_code", exitCode)
		return BuildResult{
			Error:    msg,
			LogTail:  tailOf(output, r.tailMax),
			ExitCode: exitCode,
		}
	}

	projectRoot := filepath.Dir(absOr(req.WorkspacePath))
	snapshotPath, ok := r.locator.Locate(projectRoot, req.TestTarget, req.ViewName, req.SnapshotsDir)
	if !ok {
		// A passing test without a discoverable artifact is an actionable
		// anomaly, reported distinctly from a build failure.
		return BuildResult{
			Error: fmt.Sprintf("test passed but no snapshot found for test%s under %s",
				req.ViewName, projectRoot),
			LogTail: tailOf(output, r.tailMax),
		}
	}

	r.log.Info("snapshot captured", "view", req.ViewName, "path", snapshotPath)
	return BuildResult{
		Success:      true,
		SnapshotPath: snapshotPath,
	}
}

func callerError(msg string) BuildResult {
	return BuildResult{Error: msg, ExitCode: -1}
}
