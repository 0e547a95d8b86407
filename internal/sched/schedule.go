package sched

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/taskmesh/taskmesh/internal/types"
)

// Topological returns the DAG's tasks in dependency order: a task never
// precedes anything whose output it consumes. Ties (multiple tasks ready
// at once) are broken by task name so the output is stable across runs.
// Returns an error if the DAG contains a cycle.
func Topological(dag types.TaskDAG) ([]string, error) {
	indeg, adj, _ := buildGraph(dag)

	var ready []string
	for name, d := range indeg {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(indeg))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		var freed []string
		for _, m := range adj[n] {
			indeg[m]--
			if indeg[m] == 0 {
				freed = append(freed, m)
			}
		}
		sort.Strings(freed)
		ready = mergeSorted(ready, freed)
	}

	if len(order) != len(indeg) {
		return nil, errors.New("cycle detected in task DAG")
	}
	return order, nil
}

func mergeSorted(a, b []string) []string {
	out := append(append([]string{}, a...), b...)
	sort.Strings(out)
	return out
}

// buildGraph derives dependency edges from dataset inputs: task A depends
// on task B whenever A consumes a dataset id equal to B's declared output.
func buildGraph(dag types.TaskDAG) (indeg map[string]int, adj map[string][]string, outputOf map[types.DatasetID]string) {
	indeg = make(map[string]int, len(dag.Tasks))
	adj = make(map[string][]string, len(dag.Tasks))
	outputOf = make(map[types.DatasetID]string, len(dag.Tasks))
	for _, t := range dag.Tasks {
		indeg[t.Name] = 0
		if t.OutputName != nil {
			outputOf[*t.OutputName] = t.Name
		}
	}
	for _, t := range dag.Tasks {
		deps := make(map[string]struct{})
		for _, id := range t.DatasetInputsKw {
			if provider, ok := outputOf[id]; ok {
				deps[provider] = struct{}{}
			}
		}
		for _, id := range t.DatasetInputsPs {
			if provider, ok := outputOf[id]; ok {
				deps[provider] = struct{}{}
			}
		}
		for provider := range deps {
			adj[provider] = append(adj[provider], t.Name)
			indeg[t.Name]++
		}
	}
	return indeg, adj, outputOf
}

// HostEnv describes a candidate host's available memory for the
// multi-host scheduler.
type HostEnv struct {
	Name     string
	MemoryMB int
}

// Partition assigns every task in dag to a host, producing a per-host
// ordered queue (a schedule) that respects both dependency edges (a task
// is never queued before its providers, wherever they landed) and host
// memory capacity. pinned optionally forces a task onto a named host;
// a name not present in hosts is an error. Ties among tasks otherwise
// ready for the same host are broken by task name.
func Partition(dag types.TaskDAG, hosts []HostEnv, pinned map[string]string) (map[string][]string, error) {
	if len(hosts) == 0 {
		return nil, errors.New("no hosts available")
	}
	hostIndex := make(map[string]int, len(hosts))
	for i, h := range hosts {
		hostIndex[h.Name] = i
	}
	for _, h := range pinned {
		if _, ok := hostIndex[h]; !ok {
			return nil, errors.Errorf("unknown host %q", h)
		}
	}

	order, err := Topological(dag)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]types.Task, len(dag.Tasks))
	for _, t := range dag.Tasks {
		byName[t.Name] = t
	}

	remaining := make([]int, len(hosts))
	for i, h := range hosts {
		remaining[i] = h.MemoryMB
	}

	schedule := make(map[string][]string, len(hosts))
	for _, name := range order {
		task := byName[name]
		if pinnedHost, ok := pinned[name]; ok {
			i := hostIndex[pinnedHost]
			if task.MemoryMB > remaining[i] {
				return nil, errors.Errorf("task %s exceeds capacity of pinned host %s", name, pinnedHost)
			}
			remaining[i] -= task.MemoryMB
			schedule[hosts[i].Name] = append(schedule[hosts[i].Name], name)
			continue
		}
		placed := false
		for i, h := range hosts {
			if task.MemoryMB <= remaining[i] {
				remaining[i] -= task.MemoryMB
				schedule[h.Name] = append(schedule[h.Name], name)
				placed = true
				break
			}
		}
		if !placed {
			return nil, errors.Errorf("task %s exceeds every host's capacity", name)
		}
	}
	return schedule, nil
}
