package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskmesh/taskmesh/internal/types"
)

func TestTemplateAcceptsWellFormedDAG(t *testing.T) {
	b := types.TaskDAGBuilder{
		Tasks: []types.NamedTaskDefinition{
			{Name: "read", Definition: types.TaskDefinition{OutputClass: "str"}},
			{Name: "upper", Definition: types.TaskDefinition{
				DynamicParamClasses: map[string]types.ClassTag{"in": "str"},
				OutputClass:         "str",
			}},
		},
		DynamicTaskInputs: map[string]map[string]string{
			"upper": {"in": "read"},
		},
	}
	assert.Empty(t, Template(b))
}

func TestTemplateReportsAllFourDefectClasses(t *testing.T) {
	// Seeds, in one template, each of the four distinct defect kinds the
	// validator recognizes: a duplicate task name, a reference to an
	// unknown provider, a provider scheduled after its consumer, and a
	// class mismatch between declared and actual output.
	b := types.TaskDAGBuilder{
		Tasks: []types.NamedTaskDefinition{
			{Name: "a", Definition: types.TaskDefinition{OutputClass: "str"}},
			{Name: "a", Definition: types.TaskDefinition{OutputClass: "str"}}, // duplicate name
			{Name: "b", Definition: types.TaskDefinition{
				DynamicParamClasses: map[string]types.ClassTag{
					"x": "int", // class mismatch: wants int, "a" outputs str
					"z": "str", // out of order: provider "c" comes after "b"
				},
				OutputClass: "str",
			}},
			{Name: "c", Definition: types.TaskDefinition{
				DynamicParamClasses: map[string]types.ClassTag{"y": "str"},
				OutputClass:         "str",
			}},
		},
		DynamicTaskInputs: map[string]map[string]string{
			"b": {"x": "a", "z": "c"},
			"c": {"y": "nonexistent"}, // unknown provider
		},
	}
	errs := Template(b)
	assert.GreaterOrEqual(t, len(errs), 4, "expected duplicate-name, unknown-provider, out-of-order, and class-mismatch defects: %v", errs)
}

func TestTemplateDetectsOutOfOrderProvider(t *testing.T) {
	b := types.TaskDAGBuilder{
		Tasks: []types.NamedTaskDefinition{
			{Name: "consumer", Definition: types.TaskDefinition{
				DynamicParamClasses: map[string]types.ClassTag{"in": "str"},
				OutputClass:         "str",
			}},
			{Name: "producer", Definition: types.TaskDefinition{OutputClass: "str"}},
		},
		DynamicTaskInputs: map[string]map[string]string{
			"consumer": {"in": "producer"},
		},
	}
	errs := Template(b)
	assert.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "does not come before it")
}

func TestTemplateDetectsUndeclaredDynamicInput(t *testing.T) {
	b := types.TaskDAGBuilder{
		Tasks: []types.NamedTaskDefinition{
			{Name: "producer", Definition: types.TaskDefinition{OutputClass: "str"}},
			{Name: "consumer", Definition: types.TaskDefinition{OutputClass: "str"}},
		},
		DynamicTaskInputs: map[string]map[string]string{
			"consumer": {"in": "producer"},
		},
	}
	errs := Template(b)
	assert.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "does not declare input")
}

func TestTemplateDetectsMissingDynamicInput(t *testing.T) {
	b := types.TaskDAGBuilder{
		Tasks: []types.NamedTaskDefinition{
			{Name: "producer", Definition: types.TaskDefinition{OutputClass: "str"}},
			{Name: "consumer", Definition: types.TaskDefinition{
				DynamicParamClasses: map[string]types.ClassTag{"in": "str"},
				OutputClass:         "str",
			}},
		},
		DynamicTaskInputs: map[string]map[string]string{
			"consumer": {},
		},
	}
	errs := Template(b)
	assert.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "missing dynamic inputs")
}

func TestDAGDetectsMissingUserParams(t *testing.T) {
	builder := types.TaskDAGBuilder{
		Tasks: []types.NamedTaskDefinition{
			{Name: "greet", Definition: types.TaskDefinition{
				UserParams: map[string]types.TaskParameter{
					"name": {Class: "str"},
				},
			}},
		},
	}
	dag := types.TaskDAG{
		Tasks: []types.Task{{Name: "greet", StaticParamsKw: map[string]any{}}},
	}
	errs := DAG(dag, builder)
	assert.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "missing user params")
}

func TestStructuralDetectsMissingProducer(t *testing.T) {
	dag := types.TaskDAG{
		Tasks: []types.Task{
			{Name: "consumer", DatasetInputsKw: map[string]types.DatasetID{"in": "nonexistent"}, ClassesInputsKw: map[string]types.ClassTag{"in": "str"}},
		},
	}
	errs := Structural(dag)
	assert.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "no task in the DAG produces it")
}

func TestStructuralDetectsMisorderedInput(t *testing.T) {
	dag := types.TaskDAG{
		Tasks: []types.Task{
			{Name: "consumer", DatasetInputsKw: map[string]types.DatasetID{"in": "out-of-producer"}, ClassesInputsKw: map[string]types.ClassTag{"in": "str"}},
			{Name: "producer", OutputName: datasetIDPtr("out-of-producer"), OutputClass: "str"},
		},
	}
	errs := Structural(dag)
	assert.True(t, contains(errs, "does not come before it"), "expected an out-of-order defect: %v", errs)
}

func TestStructuralDetectsClassMismatch(t *testing.T) {
	dag := types.TaskDAG{
		Tasks: []types.Task{
			{Name: "producer", OutputName: datasetIDPtr("val"), OutputClass: "str"},
			{Name: "consumer", DatasetInputsKw: map[string]types.DatasetID{"in": "val"}, ClassesInputsKw: map[string]types.ClassTag{"in": "int"}},
		},
	}
	errs := Structural(dag)
	assert.NotEmpty(t, errs)
	assert.True(t, contains(errs, "but producer produces"))
}

func TestStructuralDetectsDuplicateOutputID(t *testing.T) {
	dag := types.TaskDAG{
		Tasks: []types.Task{
			{Name: "a", OutputName: datasetIDPtr("dup"), OutputClass: "str"},
			{Name: "b", OutputName: datasetIDPtr("dup"), OutputClass: "str"},
		},
	}
	errs := Structural(dag)
	assert.True(t, contains(errs, "produced by both task"))
}

func TestStructuralDetectsDanglingOutputID(t *testing.T) {
	ghost := types.DatasetID("ghost")
	dag := types.TaskDAG{
		Tasks:    []types.Task{{Name: "a", OutputName: datasetIDPtr("a-out"), OutputClass: "str"}},
		OutputID: &ghost,
	}
	errs := Structural(dag)
	assert.True(t, contains(errs, "does not name any task's output"))
}

func TestStructuralAcceptsWellFormedDAG(t *testing.T) {
	out := types.DatasetID("final")
	dag := types.TaskDAG{
		Tasks: []types.Task{
			{Name: "producer", OutputName: datasetIDPtr("final"), OutputClass: "str"},
			{Name: "consumer", DatasetInputsKw: map[string]types.DatasetID{"in": "final"}, ClassesInputsKw: map[string]types.ClassTag{"in": "str"}, OutputName: nil},
		},
		OutputID: &out,
	}
	assert.Empty(t, Structural(dag))
}

func datasetIDPtr(id types.DatasetID) *types.DatasetID { return &id }

func contains(items []string, substr string) bool {
	for _, s := range items {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func TestDAGAcceptsCompleteParams(t *testing.T) {
	builder := types.TaskDAGBuilder{
		Tasks: []types.NamedTaskDefinition{
			{Name: "greet", Definition: types.TaskDefinition{
				UserParams: map[string]types.TaskParameter{
					"name": {Class: "str"},
				},
			}},
		},
	}
	dag := types.TaskDAG{
		Tasks: []types.Task{{Name: "greet", StaticParamsKw: map[string]any{"name": "world"}}},
	}
	assert.Empty(t, DAG(dag, builder))
}
