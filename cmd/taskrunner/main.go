// Command taskrunner executes exactly one task in its own process and
// reports the outcome back to its parent worker over fd 3. It is never
// invoked directly by a user: internal/wrk.Supervisor spawns it once per
// task, the isolation boundary between the worker's main process and
// task execution.
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/taskmesh/taskmesh/internal/catalog"
	"github.com/taskmesh/taskmesh/internal/codec"
	"github.com/taskmesh/taskmesh/internal/environment"
	"github.com/taskmesh/taskmesh/internal/shm"
	"github.com/taskmesh/taskmesh/internal/taskproc"
	"github.com/taskmesh/taskmesh/internal/wrk"
)

const resultFD = 3

func main() {
	os.Exit(run())
}

func run() int {
	resultFile := os.NewFile(resultFD, "result")
	defer resultFile.Close()

	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		reportFailure(resultFile, "reading request: "+err.Error())
		return 1
	}
	var req wrk.ChildRequest
	if err := json.Unmarshal(body, &req); err != nil {
		reportFailure(resultFile, "parsing request: "+err.Error())
		return 1
	}

	registry := shm.NewRegistry()
	for id, length := range req.InputLengths {
		registry.Register(id, length)
	}

	deps := taskproc.Dependencies{
		Shm:       registry,
		Codecs:    codec.NewRegistry(),
		Catalog:   catalog.NewRegistry(),
		Installer: environment.NewUVInstaller(),
	}

	if err := taskproc.Run(context.Background(), req.JobID, req.Task, deps); err != nil {
		reportFailure(resultFile, err.Error())
		return 1
	}

	result := wrk.ChildResult{OK: true}
	if req.Task.OutputName != nil {
		if length, ok := registry.Length(string(*req.Task.OutputName)); ok {
			result.HasOutput = true
			result.OutputLength = length
		}
	}
	reportResult(resultFile, result)
	return 0
}

func reportFailure(f *os.File, msg string) {
	reportResult(f, wrk.ChildResult{OK: false, Error: msg})
}

func reportResult(f *os.File, result wrk.ChildResult) {
	enc, err := json.Marshal(result)
	if err != nil {
		return
	}
	_, _ = f.Write(enc)
}
