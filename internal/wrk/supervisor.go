package wrk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/taskmesh/taskmesh/internal/types"
)

// ChildRequest is the payload a Supervisor sends a taskrunner child on
// its stdin: the task to run and the lengths of every dataset it
// consumes, since the child's shared-memory registry is its own
// in-memory instance and has no other way to learn them.
type ChildRequest struct {
	JobID        types.JobID    `json:"job_id"`
	Task         types.Task     `json:"task"`
	InputLengths map[string]int `json:"input_lengths"`
}

// ChildResult is the payload a taskrunner child writes to its result
// pipe (fd 3) before exiting: success plus the output length it
// registered, or a failure message.
type ChildResult struct {
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
	OutputLength int    `json:"output_length,omitempty"`
	HasOutput    bool   `json:"has_output,omitempty"`
}

// Supervisor spawns one taskrunner child process per task and collects
// its result: spawn keeps a handle, the caller waits on it, failures are
// reported through a pipe rather than a shared exception object.
type Supervisor struct {
	// BinaryPath is the taskrunner executable to exec. Defaults to
	// looking up "taskrunner" on PATH if empty.
	BinaryPath string
}

// Run spawns a taskrunner child for task, blocks until it exits, and
// returns its ChildResult. A non-zero exit with no parseable result is
// reported as an error: the child died before it could report (e.g.
// killed, panicked, or crashed the runtime itself).
func (s *Supervisor) Run(ctx context.Context, req ChildRequest) (ChildResult, error) {
	bin := s.BinaryPath
	if bin == "" {
		resolved, err := exec.LookPath("taskrunner")
		if err != nil {
			return ChildResult{}, errors.Wrap(err, "locating taskrunner binary")
		}
		bin = resolved
	}

	body, err := json.Marshal(req)
	if err != nil {
		return ChildResult{}, errors.Wrap(err, "marshaling child request")
	}

	resultR, resultW, err := os.Pipe()
	if err != nil {
		return ChildResult{}, errors.Wrap(err, "creating result pipe")
	}

	cmd := exec.CommandContext(ctx, bin)
	cmd.Stdin = bytes.NewReader(body)
	cmd.ExtraFiles = []*os.File{resultW}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		resultR.Close()
		resultW.Close()
		return ChildResult{}, errors.Wrapf(err, "starting task %s", req.Task.Name)
	}
	resultW.Close() // only the child's inherited copy must stay open

	raw, readErr := io.ReadAll(resultR)
	resultR.Close()
	waitErr := cmd.Wait()

	if len(raw) == 0 {
		if waitErr != nil {
			return ChildResult{}, errors.Wrapf(waitErr, "task %s exited without reporting a result", req.Task.Name)
		}
		if readErr != nil {
			return ChildResult{}, errors.Wrapf(readErr, "task %s: reading result pipe", req.Task.Name)
		}
		return ChildResult{}, errors.Errorf("task %s exited without reporting a result", req.Task.Name)
	}

	var result ChildResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ChildResult{}, errors.Wrapf(err, "task %s: parsing result", req.Task.Name)
	}
	if !result.OK {
		return result, errors.Errorf("task %s: %s", req.Task.Name, result.Error)
	}
	return result, nil
}
