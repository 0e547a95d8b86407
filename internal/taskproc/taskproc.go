// Package taskproc is the body a spawned task child process runs: acquire
// the task's declared environment, decode its dynamic (dataset) inputs
// from shared memory, merge its static parameters, invoke its entrypoint,
// and publish its output. Isolation is per child: one task per process.
package taskproc

import (
	"context"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/taskmesh/taskmesh/internal/catalog"
	"github.com/taskmesh/taskmesh/internal/codec"
	"github.com/taskmesh/taskmesh/internal/environment"
	"github.com/taskmesh/taskmesh/internal/shm"
	"github.com/taskmesh/taskmesh/internal/types"
)

// Dependencies bundles everything a task execution needs from its
// surrounding worker process.
type Dependencies struct {
	Shm       *shm.Registry
	Codecs    *codec.Registry
	Catalog   *catalog.Registry
	Installer environment.Installer

	// VisibilityTimeout bounds how long to wait for an input dataset to
	// appear in the shm registry, absorbing the propagation lag between a
	// producing task's "finished" transition and its segment becoming
	// visible to this process.
	VisibilityTimeout time.Duration
	VisibilityPoll    time.Duration
}

func (d Dependencies) withDefaults() Dependencies {
	if d.VisibilityTimeout == 0 {
		d.VisibilityTimeout = 5 * time.Second
	}
	if d.VisibilityPoll == 0 {
		d.VisibilityPoll = 10 * time.Millisecond
	}
	return d
}

// Run executes one task. It never publishes a partial result: on any
// error, no output segment is created.
func Run(ctx context.Context, jobID types.JobID, task types.Task, deps Dependencies) error {
	deps = deps.withDefaults()

	env, err := environment.Acquire(ctx, deps.Installer, task.Environment)
	if err != nil {
		return errors.Wrapf(err, "task %s: acquiring environment", task.Name)
	}
	defer env.Release()

	dynamic, err := decodeDynamicInputs(task, deps)
	if err != nil {
		return errors.Wrapf(err, "task %s", task.Name)
	}

	static := mergeStatic(task)

	fn, err := resolveEntrypoint(task, deps.Catalog)
	if err != nil {
		return errors.Wrapf(err, "task %s", task.Name)
	}

	result, err := fn(ctx, dynamic, static)
	if err != nil {
		return errors.Wrapf(err, "task %s", task.Name)
	}

	if task.OutputName == nil {
		return nil
	}
	encoded, err := deps.Codecs.Encode(task.OutputClass, result)
	if err != nil {
		return errors.Wrapf(err, "task %s: encoding output", task.Name)
	}
	if err := deps.Shm.Create(string(*task.OutputName), encoded); err != nil {
		return errors.Wrapf(err, "task %s: publishing output", task.Name)
	}
	return nil
}

// resolveEntrypoint prefers the module-path Entrypoint. A task may instead
// carry Func, a base64-encoded catalog key standing in for a serialized
// callable; it is only ever decoded here, inside the child process, so the
// worker's main process never materializes a caller-supplied callable.
func resolveEntrypoint(task types.Task, cat *catalog.Registry) (catalog.Func, error) {
	if task.Entrypoint != "" {
		return cat.Lookup(task.Entrypoint)
	}
	if task.Func == "" {
		return nil, errors.New("no entrypoint or serialized callable set")
	}
	key, err := base64.StdEncoding.DecodeString(task.Func)
	if err != nil {
		return nil, errors.Wrap(err, "decoding serialized callable")
	}
	return cat.Lookup(string(key))
}

func decodeDynamicInputs(task types.Task, deps Dependencies) (map[string]any, error) {
	dynamic := make(map[string]any, len(task.DatasetInputsKw)+len(task.DatasetInputsPs))

	for param, datasetID := range task.DatasetInputsKw {
		v, err := readAndDecode(deps, string(datasetID), task.ClassesInputsKw[param])
		if err != nil {
			return nil, errors.Wrapf(err, "input %s", param)
		}
		dynamic[param] = v
	}
	for idx, datasetID := range task.DatasetInputsPs {
		key := strconv.Itoa(idx)
		v, err := readAndDecode(deps, string(datasetID), task.ClassesInputsPs[idx])
		if err != nil {
			return nil, errors.Wrapf(err, "positional input %d", idx)
		}
		dynamic[key] = v
	}
	return dynamic, nil
}

func readAndDecode(deps Dependencies, datasetID string, class types.ClassTag) (any, error) {
	if err := deps.Shm.WaitFor(datasetID, deps.VisibilityTimeout, deps.VisibilityPoll); err != nil {
		return nil, err
	}
	raw, err := deps.Shm.Read(datasetID)
	if err != nil {
		return nil, err
	}
	return deps.Codecs.Decode(class, raw)
}

func mergeStatic(task types.Task) map[string]any {
	static := make(map[string]any, len(task.StaticParamsKw)+len(task.StaticParamsPs))
	for k, v := range task.StaticParamsKw {
		static[k] = v
	}
	for idx, v := range task.StaticParamsPs {
		static[strconv.Itoa(idx)] = v
	}
	return static
}
