package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

// HookRequest is written as JSON to a hook's stdin.
type HookRequest struct {
	Session string    `json:"session"`
	BPM     float64   `json:"bpm"`
	At      time.Time `json:"at"`
}

// ExecReporter runs an executable for every estimate, passing a HookRequest
// on stdin.
type ExecReporter struct {
	executable string
	timeout    time.Duration
	now        func() time.Time
}

// NewExecReporter creates an ExecReporter with the specified timeout.
func NewExecReporter(executable string, timeout time.Duration) *ExecReporter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecReporter{
		executable: executable,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Report implements Reporter. A hook that exits non-zero or outlives the
// timeout is reported as an error along with its stderr.
func (e *ExecReporter) Report(ctx context.Context, token string, bpm float64) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reqJSON, err := json.Marshal(HookRequest{Session: token, BPM: bpm, At: e.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.executable)
	cmd.Dir = filepath.Dir(e.executable)
	cmd.Stdin = bytes.NewReader(reqJSON)
	// Children of the hook may hold stderr open after it is killed.
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("hook %s timed out after %s", filepath.Base(e.executable), e.timeout)
	}

	if err != nil {
		if stderrStr := stderr.String(); stderrStr != "" {
			return fmt.Errorf("hook execution failed: %w, stderr: %s", err, stderrStr)
		}
		return fmt.Errorf("hook execution failed: %w", err)
	}

	return nil
}
