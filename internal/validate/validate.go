// Package validate checks a TaskDAGBuilder template and a materialized
// TaskDAG for internal consistency. Both checks accumulate every defect
// they find rather than stopping at the first one, so a user fixing a
// rejected template or job sees the whole list in one round trip.
package validate

import (
	"fmt"
	"sort"

	"github.com/taskmesh/taskmesh/internal/types"
)

// Template validates a TaskDAGBuilder: every task name is unique, every
// dynamic-input provider is a known task that appears earlier in the
// schedule, the requested parameter is actually declared as a dynamic
// input, the provider's output class matches what the consumer declares,
// and no declared dynamic input is left unwired.
func Template(b types.TaskDAGBuilder) []string {
	var errs []string

	order := make(map[string]int, len(b.Tasks))
	defs := make(map[string]types.TaskDefinition, len(b.Tasks))
	for i, nt := range b.Tasks {
		if prior, ok := order[nt.Name]; ok {
			errs = append(errs, fmt.Sprintf("task %s first seen at position %d but repeated at %d", nt.Name, prior, i))
			continue
		}
		order[nt.Name] = i
		defs[nt.Name] = nt.Definition
	}

	for thisName, dynputs := range b.DynamicTaskInputs {
		thisIdx, known := order[thisName]
		thisDef := defs[thisName]
		wired := make(map[string]struct{}, len(dynputs))

		for param, provider := range dynputs {
			wired[param] = struct{}{}
			providerIdx, providerKnown := order[provider]
			if !providerKnown {
				errs = append(errs, fmt.Sprintf("task %s is supposed to receive param %s from %s but no such task is known", thisName, param, provider))
				continue
			}
			if known && providerIdx >= thisIdx {
				errs = append(errs, fmt.Sprintf("task %s needs param %s from %s which does not come before it in the schedule", thisName, param, provider))
			}
			wantClass, declared := thisDef.DynamicParamClasses[param]
			if !declared {
				errs = append(errs, fmt.Sprintf("task %s does not declare input %s yet the template fills it", thisName, param))
				continue
			}
			if gotClass := defs[provider].OutputClass; wantClass != gotClass {
				errs = append(errs, fmt.Sprintf("task %s needs param %s to be %s but %s outputs %s", thisName, param, wantClass, provider, gotClass))
			}
		}

		var missing []string
		for param := range thisDef.DynamicParamClasses {
			if _, ok := wired[param]; !ok {
				missing = append(missing, param)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			errs = append(errs, fmt.Sprintf("task %s is missing dynamic inputs %s", thisName, joinComma(missing)))
		}
	}

	return errs
}

// DAG validates a materialized TaskDAG: its own structural invariants
// (checked via Structural, independent of any template) plus, when
// builder is non-empty, that every task's static keyword parameters
// cover every user param the template's definition requires. Every
// defect found across both passes is returned; none of them
// short-circuits the rest.
func DAG(dag types.TaskDAG, builder types.TaskDAGBuilder) []string {
	errs := Structural(dag)

	defs := make(map[string]types.TaskDefinition, len(builder.Tasks))
	for _, nt := range builder.Tasks {
		defs[nt.Name] = nt.Definition
	}

	for _, task := range dag.Tasks {
		def, ok := defs[task.Name]
		if !ok {
			continue // no template loaded, or task not declared by it: user-param completeness can't be checked
		}
		var missing []string
		for name := range def.UserParams {
			if _, ok := task.StaticParamsKw[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			errs = append(errs, fmt.Sprintf("task %s is missing user params %s", task.Name, joinComma(missing)))
		}
	}

	return errs
}

// Structural validates a TaskDAG purely against itself, with no template
// needed: (i) every dynamic input's source dataset is produced by a task
// appearing earlier in dag.Tasks; (ii) dataset ids produced within the DAG
// are unique; (iii) every dynamic input's class tag matches its producer's
// declared output class; (v) OutputID, if set, names a task in the DAG.
func Structural(dag types.TaskDAG) []string {
	var errs []string

	producedAt := make(map[types.DatasetID]int, len(dag.Tasks))
	classOf := make(map[types.DatasetID]types.ClassTag, len(dag.Tasks))
	for i, t := range dag.Tasks {
		if t.OutputName == nil {
			continue
		}
		if prior, ok := producedAt[*t.OutputName]; ok {
			errs = append(errs, fmt.Sprintf("dataset %s is produced by both task %s and task %s", *t.OutputName, dag.Tasks[prior].Name, t.Name))
			continue
		}
		producedAt[*t.OutputName] = i
		classOf[*t.OutputName] = t.OutputClass
	}

	for i, t := range dag.Tasks {
		for param, id := range t.DatasetInputsKw {
			errs = append(errs, checkEdge(dag, producedAt, classOf, i, t.Name, fmt.Sprintf("param %s", param), id, t.ClassesInputsKw[param])...)
		}
		for idx, id := range t.DatasetInputsPs {
			errs = append(errs, checkEdge(dag, producedAt, classOf, i, t.Name, fmt.Sprintf("positional input %d", idx), id, t.ClassesInputsPs[idx])...)
		}
	}

	if dag.OutputID != nil {
		if _, ok := producedAt[*dag.OutputID]; !ok {
			errs = append(errs, fmt.Sprintf("output_id %s does not name any task's output in the DAG", *dag.OutputID))
		}
	}

	return errs
}

func checkEdge(dag types.TaskDAG, producedAt map[types.DatasetID]int, classOf map[types.DatasetID]types.ClassTag, consumerIdx int, consumerName, paramDesc string, id types.DatasetID, wantClass types.ClassTag) []string {
	providerIdx, ok := producedAt[id]
	if !ok {
		return []string{fmt.Sprintf("task %s needs %s from dataset %s but no task in the DAG produces it", consumerName, paramDesc, id)}
	}
	var errs []string
	if providerIdx >= consumerIdx {
		errs = append(errs, fmt.Sprintf("task %s needs %s from %s which does not come before it in the DAG", consumerName, paramDesc, dag.Tasks[providerIdx].Name))
	}
	if gotClass := classOf[id]; wantClass != gotClass {
		errs = append(errs, fmt.Sprintf("task %s needs %s to be %s but %s produces %s", consumerName, paramDesc, wantClass, dag.Tasks[providerIdx].Name, gotClass))
	}
	return errs
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
