// Package sched turns a parameterized TaskDAGBuilder into a concrete
// TaskDAG and turns a TaskDAG into a per-host execution schedule.
package sched

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/taskmesh/taskmesh/internal/digest"
	"github.com/taskmesh/taskmesh/internal/typeconv"
	"github.com/taskmesh/taskmesh/internal/types"
	"github.com/taskmesh/taskmesh/internal/validate"
)

// Build materializes a TaskDAG from a template and a flat set of
// "task.param" -> literal user parameters: it converts every literal to
// its declared class, wires dynamic inputs to the producing task's
// dataset id, and validates the result against the template before
// returning it. All conversion and lookup errors are accumulated and
// returned alongside whatever validation errors survive; a non-empty
// error list means the returned TaskDAG must not be scheduled.
func Build(builder types.TaskDAGBuilder, jobID types.JobID, params map[string]string) (types.TaskDAG, []string) {
	var errs []string

	defByName := make(map[string]types.TaskDefinition, len(builder.Tasks))
	for _, nt := range builder.Tasks {
		defByName[nt.Name] = nt.Definition
	}

	staticParams := make(map[string]map[string]any, len(builder.Tasks))
	for key, literal := range params {
		taskName, param, ok := strings.Cut(key, ".")
		if !ok {
			errs = append(errs, "malformed param key (want task.param): "+key)
			continue
		}
		def, ok := defByName[taskName]
		if !ok {
			errs = append(errs, "found param "+param+" for task "+taskName+", but no such task was defined")
			continue
		}
		decl, ok := def.UserParams[param]
		if !ok {
			errs = append(errs, "found param "+param+" for task "+taskName+" which declares no such param")
			continue
		}
		v, err := typeconv.Convert(decl.Class, literal)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "value for param %s of task %s", param, taskName).Error())
			continue
		}
		if staticParams[taskName] == nil {
			staticParams[taskName] = make(map[string]any)
		}
		staticParams[taskName][param] = v
	}

	tasks := make([]types.Task, 0, len(builder.Tasks))
	for _, nt := range builder.Tasks {
		def := nt.Definition
		dynInputs := builder.DynamicTaskInputs[nt.Name]

		datasetsKw := make(map[string]types.DatasetID, len(dynInputs))
		classesKw := make(map[string]types.ClassTag, len(dynInputs))
		for param, provider := range dynInputs {
			datasetsKw[param] = types.DatasetID(digest.DatasetID(string(jobID), provider))
			classesKw[param] = def.DynamicParamClasses[param]
		}

		outID := types.DatasetID(digest.DatasetID(string(jobID), nt.Name))
		tasks = append(tasks, types.Task{
			Name:            nt.Name,
			StaticParamsKw:  staticParams[nt.Name],
			DatasetInputsKw: datasetsKw,
			ClassesInputsKw: classesKw,
			Entrypoint:      def.Entrypoint,
			OutputName:      &outID,
			OutputClass:     def.OutputClass,
			Environment:     def.Environment,
			MemoryMB:        def.MemoryMB,
		})
	}

	var outputID *types.DatasetID
	if builder.FinalOutputAt != "" {
		id := types.DatasetID(digest.DatasetID(string(jobID), builder.FinalOutputAt))
		outputID = &id
	}
	dag := types.TaskDAG{Tasks: tasks, OutputID: outputID}

	errs = append(errs, validate.DAG(dag, builder)...)
	return dag, errs
}
