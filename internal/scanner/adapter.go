// Package scanner contains the tool adapters. Each adapter invokes one
// external scanner binary against a repository checkout, parses its native
// JSON report, and emits canonical findings. Adapters are independent and
// individually replaceable; the orchestrator never sees a tool-specific shape.
package scanner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
)

// json is the drop-in jsoniter instance used for all report parsing.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Adapter is the contract shared by all tool adapters.
//
// Scan never returns an error for "tool absent" or "tool found nothing"; both
// yield an empty slice. Hard execution or parse failures are surfaced as an
// error only by adapters whose absence would silently hide a security
// category the user explicitly wants (the primary SAST tool); best-effort
// adapters swallow and log them.
type Adapter interface {
	// Name returns the tool identifier recorded on findings.
	Name() string
	// Category returns the finding category the tool primarily covers.
	Category() schemas.Category
	// Scan runs the tool against the checkout at repoPath.
	Scan(ctx context.Context, repoPath string) ([]schemas.NormalizedFinding, error)
}

// RunState distinguishes the outcomes of a tool invocation explicitly,
// instead of inferring them from error identity.
type RunState int

const (
	// StateNotAvailable means the binary is missing or the checkout has no
	// relevant files. Not an error.
	StateNotAvailable RunState = iota
	// StateNoFindings means the tool ran and reported nothing.
	StateNoFindings
	// StateCompleted means the tool ran and produced a parseable report.
	StateCompleted
	// StateExecutionError means the tool failed without a parseable report.
	StateExecutionError
)

func (s RunState) String() string {
	switch s {
	case StateNotAvailable:
		return "not_available"
	case StateNoFindings:
		return "no_findings"
	case StateCompleted:
		return "completed"
	case StateExecutionError:
		return "execution_error"
	default:
		return fmt.Sprintf("run_state(%d)", int(s))
	}
}

// ExecError carries the detail of a failed tool invocation.
type ExecError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s execution failed: %v: %s", e.Tool, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s execution failed: %v", e.Tool, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// ErrParseFailed wraps a malformed report. Callers treat it like "tool
// unavailable": empty result, warning log.
var ErrParseFailed = errors.New("failed to parse tool report")

// runOutcome is the result of one runner invocation.
type runOutcome struct {
	State  RunState
	Report []byte // Raw report bytes when State == StateCompleted.
	Err    error  // Set when State == StateExecutionError.
}

// runner executes scanner binaries and manages their per-invocation report
// files. It is shared by all adapters.
type runner struct {
	tempDir string
	timeout time.Duration
	logger  *zap.Logger
}

func newRunner(tempDir string, timeout time.Duration, logger *zap.Logger) *runner {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &runner{tempDir: tempDir, timeout: timeout, logger: logger}
}

// reportPath builds an isolated temp output path for one invocation. The
// timestamp plus random suffix avoids collisions when several scans of the
// same repository run concurrently.
func (r *runner) reportPath(tool string) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	name := fmt.Sprintf("scangate-%s-%d-%s.json", tool, time.Now().UnixNano(), hex.EncodeToString(buf[:]))
	return filepath.Join(r.tempDir, name)
}

// execute runs the binary with the given args inside repoPath and returns the
// report written to reportPath. The report file is removed on every path out
// of this function, success or failure.
//
// Many scanners exit non-zero when they find issues, so a non-zero exit with a
// readable report is still a completed run; only a non-zero exit without one
// is an execution error.
func (r *runner) execute(ctx context.Context, tool, binary string, args []string, repoPath, reportPath string) runOutcome {
	defer func() {
		if err := os.Remove(reportPath); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("Failed to remove tool report",
				zap.String("tool", tool), zap.String("path", reportPath), zap.Error(err))
		}
	}()

	if _, err := exec.LookPath(binary); err != nil {
		r.logger.Debug("Tool binary not found, skipping",
			zap.String("tool", tool), zap.String("binary", binary))
		return runOutcome{State: StateNotAvailable}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = repoPath
	stdout, runErr := cmd.Output()

	report, readErr := os.ReadFile(reportPath)
	if readErr != nil {
		// Tools that stream JSON to stdout (npm audit) have no report file;
		// fall back to the captured output.
		report = stdout
	}

	if len(report) == 0 {
		if runErr != nil {
			return runOutcome{State: StateExecutionError, Err: &ExecError{Tool: tool, Stderr: exitStderr(runErr), Err: runErr}}
		}
		return runOutcome{State: StateNoFindings}
	}

	return runOutcome{State: StateCompleted, Report: report}
}

// exitStderr extracts captured stderr from an exec error, if any.
func exitStderr(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(exitErr.Stderr)
	}
	return ""
}

// hasFileWithExt reports whether the checkout contains at least one file with
// one of the given extensions. Used by language-specific adapters to decide
// availability without running the tool.
func hasFileWithExt(root string, exts ...string) bool {
	found := errors.New("found")
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Unreadable entries don't decide availability.
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		for _, ext := range exts {
			if filepath.Ext(path) == ext {
				return found
			}
		}
		return nil
	})
	return errors.Is(err, found)
}

// fileExists reports whether a regular file exists at the given path.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
