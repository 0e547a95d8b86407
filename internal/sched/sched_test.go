package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/taskmesh/internal/digest"
	"github.com/taskmesh/taskmesh/internal/types"
)

func sampleBuilder() types.TaskDAGBuilder {
	return types.TaskDAGBuilder{
		Tasks: []types.NamedTaskDefinition{
			{Name: "read", Definition: types.TaskDefinition{
				UserParams: map[string]types.TaskParameter{"path": {Class: "str"}},
				OutputClass: "str",
			}},
			{Name: "increment", Definition: types.TaskDefinition{
				UserParams:          map[string]types.TaskParameter{"by": {Class: "int"}},
				DynamicParamClasses: map[string]types.ClassTag{"value": "str"},
				OutputClass:         "str",
			}},
		},
		DynamicTaskInputs: map[string]map[string]string{
			"increment": {"value": "read"},
		},
		FinalOutputAt: "increment",
	}
}

func TestBuildProducesDatasetIDsMatchingDigest(t *testing.T) {
	b := sampleBuilder()
	dag, errs := Build(b, "job-1", map[string]string{
		"read.path":      "/tmp/in.csv",
		"increment.by":   "3",
	})
	require.Empty(t, errs)
	require.Len(t, dag.Tasks, 2)

	readOut := *dag.Tasks[0].OutputName
	assert.Equal(t, digest.DatasetID("job-1", "read"), string(readOut))
	assert.Equal(t, readOut, dag.Tasks[1].DatasetInputsKw["value"])
	assert.Equal(t, digest.DatasetID("job-1", "increment"), string(*dag.OutputID))
}

func TestBuildReportsConversionErrors(t *testing.T) {
	b := sampleBuilder()
	_, errs := Build(b, "job-1", map[string]string{
		"read.path":    "/tmp/in.csv",
		"increment.by": "not-an-int",
	})
	assert.NotEmpty(t, errs)
}

func TestBuildReportsUnknownTaskOrParam(t *testing.T) {
	b := sampleBuilder()
	_, errs := Build(b, "job-1", map[string]string{
		"ghost.path":  "x",
		"read.ghost":  "y",
		"read.path":   "/tmp/in.csv",
		"increment.by": "1",
	})
	assert.Contains(t, fmtJoin(errs), "no such task was defined")
	assert.Contains(t, fmtJoin(errs), "declares no such param")
}

func fmtJoin(errs []string) string {
	out := ""
	for _, e := range errs {
		out += e + "\n"
	}
	return out
}

func TestTopologicalOrdersProducerBeforeConsumer(t *testing.T) {
	b := sampleBuilder()
	dag, errs := Build(b, "job-1", map[string]string{"read.path": "/tmp/in.csv", "increment.by": "1"})
	require.Empty(t, errs)

	order, err := Topological(dag)
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "increment"}, order)
}

func TestTopologicalDetectsCycle(t *testing.T) {
	a := types.DatasetID("a-out")
	c := types.DatasetID("c-out")
	dag := types.TaskDAG{Tasks: []types.Task{
		{Name: "a", OutputName: &a, DatasetInputsKw: map[string]types.DatasetID{"x": "c-out"}},
		{Name: "b", DatasetInputsKw: map[string]types.DatasetID{"x": "a-out"}, OutputName: func() *types.DatasetID { d := types.DatasetID("b-out"); return &d }()},
		{Name: "c", OutputName: &c, DatasetInputsKw: map[string]types.DatasetID{"x": "b-out"}},
	}}
	_, err := Topological(dag)
	assert.Error(t, err)
}

func TestPartitionRespectsCapacity(t *testing.T) {
	b := sampleBuilder()
	dag, errs := Build(b, "job-1", map[string]string{"read.path": "/tmp/in.csv", "increment.by": "1"})
	require.Empty(t, errs)
	dag.Tasks[0].MemoryMB = 100
	dag.Tasks[1].MemoryMB = 100

	hosts := []HostEnv{{Name: "h1", MemoryMB: 100}, {Name: "h2", MemoryMB: 100}}
	schedule, err := Partition(dag, hosts, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, schedule["h1"])
	assert.Equal(t, []string{"increment"}, schedule["h2"])
}

func TestPartitionErrorsWhenNoHostFits(t *testing.T) {
	b := sampleBuilder()
	dag, errs := Build(b, "job-1", map[string]string{"read.path": "/tmp/in.csv", "increment.by": "1"})
	require.Empty(t, errs)
	dag.Tasks[0].MemoryMB = 1000

	hosts := []HostEnv{{Name: "h1", MemoryMB: 10}}
	_, err := Partition(dag, hosts, nil)
	assert.Error(t, err)
}

func TestPartitionErrorsOnUnknownPinnedHost(t *testing.T) {
	b := sampleBuilder()
	dag, errs := Build(b, "job-1", map[string]string{"read.path": "/tmp/in.csv", "increment.by": "1"})
	require.Empty(t, errs)

	hosts := []HostEnv{{Name: "h1", MemoryMB: 10}}
	_, err := Partition(dag, hosts, map[string]string{"read": "ghost-host"})
	assert.Error(t, err)
}
