// Package types holds the shared data model for taskmesh: datasets, typed
// task parameters, task definitions and instances, DAGs, jobs, and worker
// registrations. These are the structures that cross the controller/worker
// HTTP boundary and so are plain, JSON-tagged structs rather than anything
// requiring code generation.
package types

import "time"

// ClassTag names a codec registered in internal/codec. It is a first-class
// string, never a language-level type, so values moving across process
// boundaries are always (class tag, bytes).
type ClassTag = string

// Well-known class tags. User-extensible entries are any other string the
// codec registry has been taught.
const (
	ClassBytes        ClassTag = "bytes"
	ClassStr          ClassTag = "str"
	ClassInt          ClassTag = "int"
	ClassNdarray      ClassTag = "ndarray"
	ClassGribEarthkit ClassTag = "grib.earthkit"
	ClassGribMir      ClassTag = "grib.mir"
)

// DatasetID is a logical dataset name, scoped to a job. Its physical form
// (a shared-memory segment) is addressed by digest.DatasetID(jobID, name).
type DatasetID string

// TaskParameter is a static, user-provided input to a task: a class tag
// plus a default serialized (string) form, since it originates from a form.
type TaskParameter struct {
	Class   ClassTag `json:"class"`
	Default string   `json:"default,omitempty"`
}

// TaskEnvironment is the set of runtime packages ("pip-style" strings) a
// task declares it needs. Installed into a per-task ephemeral location by
// internal/environment and guaranteed to be released on every exit path.
type TaskEnvironment struct {
	Packages []string `json:"packages,omitempty"`
}

// Merge returns a TaskEnvironment whose package list is the union of e and
// other, preserving order and dropping duplicates.
func (e TaskEnvironment) Merge(other TaskEnvironment) TaskEnvironment {
	seen := make(map[string]struct{}, len(e.Packages)+len(other.Packages))
	out := make([]string, 0, len(e.Packages)+len(other.Packages))
	for _, p := range append(append([]string{}, e.Packages...), other.Packages...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return TaskEnvironment{Packages: out}
}

// TaskDefinition describes a registered task type: its entrypoint, ordered
// user-parameter schema, ordered dynamic-parameter schema, output class
// tag, and required runtime packages.
type TaskDefinition struct {
	// Entrypoint is a module-path-style reference (e.g. "catalog.increment"),
	// resolved by internal/catalog.
	Entrypoint string `json:"entrypoint"`
	// UserParams is keyed by parameter name for keyword static params and
	// declares their class tag and default serialized form.
	UserParams map[string]TaskParameter `json:"user_params"`
	// UserParamOrder records the user parameters' declaration order. No
	// code in this module reads it; sched.Build fills every user parameter
	// as a keyword static parameter.
	UserParamOrder []string `json:"user_param_order,omitempty"`
	// DynamicParamClasses maps a dynamic (keyword) input name to the class
	// tag its producer must output.
	DynamicParamClasses map[string]ClassTag `json:"dynamic_param_classes,omitempty"`
	// DynamicParamOrder records the dynamic inputs' declaration order, used
	// by SignatureRepr. sched.Build wires every dynamic input as a keyword
	// input whether or not it is listed here.
	DynamicParamOrder []string        `json:"dynamic_param_order,omitempty"`
	OutputClass       ClassTag        `json:"output_class"`
	Environment       TaskEnvironment `json:"environment"`
	// MemoryMB is an optional hint the multi-host scheduler uses to verify
	// a task fits on a candidate host. Zero means unconstrained.
	MemoryMB int `json:"memory_mb,omitempty"`
}

// SignatureRepr renders a short human-readable signature, e.g.
// "(ndarray,str) -> str", useful for log lines and error messages.
func (d TaskDefinition) SignatureRepr() string {
	repr := "("
	for i, name := range d.DynamicParamOrder {
		if i > 0 {
			repr += ","
		}
		repr += d.DynamicParamClasses[name]
	}
	return repr + ") -> " + d.OutputClass
}

// Task is a concrete DAG node: a unique name, resolved static inputs split
// into keyword/positional, dynamic inputs (source dataset ids) split into
// keyword/positional each paired with its expected class tag, an
// entrypoint reference (module path, or optionally a serialized callable),
// an optional output dataset with its class tag, and the required runtime
// package environment.
type Task struct {
	Name string `json:"name"`

	StaticParamsKw map[string]any `json:"static_params_kw,omitempty"`
	StaticParamsPs map[int]any    `json:"static_params_ps,omitempty"`

	DatasetInputsKw map[string]DatasetID `json:"dataset_inputs_kw,omitempty"`
	DatasetInputsPs map[int]DatasetID    `json:"dataset_inputs_ps,omitempty"`
	ClassesInputsKw map[string]ClassTag  `json:"classes_inputs_kw,omitempty"`
	ClassesInputsPs map[int]ClassTag     `json:"classes_inputs_ps,omitempty"`

	// Entrypoint is a module-path-style reference into internal/catalog.
	// Mutually exclusive with Func in practice; Entrypoint is preferred.
	Entrypoint string `json:"entrypoint,omitempty"`
	// Func, if set, is a base64-encoded registry key for a serialized
	// callable. Decoded only inside the child task process, never by the
	// worker's main process.
	Func string `json:"func,omitempty"`

	OutputName  *DatasetID `json:"output_name,omitempty"`
	OutputClass ClassTag   `json:"output_class,omitempty"`

	Environment TaskEnvironment `json:"environment"`
	MemoryMB    int             `json:"memory_mb,omitempty"`
}

// TaskDAG is an ordered, topologically sorted sequence of tasks plus an
// optional pointer to the task producing the final result.
type TaskDAG struct {
	Tasks    []Task     `json:"tasks"`
	OutputID *DatasetID `json:"output_id,omitempty"`
}

// TaskDAGBuilder is the pre-parameter form: an ordered (task name,
// definition) list, the dynamic-input wiring, and the designated final
// output task. Used to render the user form and, once parameters are
// supplied, to materialize a TaskDAG (internal/sched.Build).
type TaskDAGBuilder struct {
	// Tasks is assumed to already be in (some) topological order.
	Tasks []NamedTaskDefinition `json:"tasks"`
	// DynamicTaskInputs maps task name -> {param name -> source task name}.
	DynamicTaskInputs map[string]map[string]string `json:"dynamic_task_inputs"`
	FinalOutputAt     string                        `json:"final_output_at"`
}

// NamedTaskDefinition pairs a task name with its definition. A builder
// carries an ordered list of these instead of a map, since builder order
// is significant.
type NamedTaskDefinition struct {
	Name       string         `json:"name"`
	Definition TaskDefinition `json:"definition"`
}

// JobID identifies a submitted job.
type JobID string

// JobStatus is the full status record for a job: overall state, optional
// per-task sub-states, optional result URL, and an optional detail string.
type JobStatus struct {
	JobID        JobID                    `json:"job_id"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
	Status       JobStatusEnum            `json:"status"`
	StatusDetail string                   `json:"status_detail,omitempty"`
	Stages       map[string]JobStatusEnum `json:"stages,omitempty"`
	// Result is the URL where the final output can be streamed from, once
	// known. Remains valid until the owning worker exits.
	Result string `json:"result,omitempty"`
}

// JobStatusUpdate is the delta a worker reports to the controller: a new
// state, optionally scoped to one task, an optional result URL, and an
// optional detail string.
type JobStatusUpdate struct {
	JobID        JobID         `json:"job_id"`
	Status       JobStatusEnum `json:"status"`
	TaskName     string        `json:"task_name,omitempty"`
	Result       string        `json:"result,omitempty"`
	StatusDetail string        `json:"status_detail,omitempty"`
}

// Job is a submitted job: its id, DAG, status, optional worker assignment,
// parallelism (set to 1 on submission), and timestamps. No component
// reads Parallelism: every task runs exactly once, with no partition
// fan-out.
type Job struct {
	ID          JobID     `json:"id"`
	DAG         TaskDAG   `json:"dag"`
	Status      JobStatus `json:"status"`
	WorkerID    string    `json:"worker_id,omitempty"`
	Parallelism int       `json:"parallelism,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkerID identifies a registered worker.
type WorkerID string

// WorkerInfo is the controller's view of a registered worker.
type WorkerInfo struct {
	ID               WorkerID  `json:"id"`
	URL              string    `json:"url"`
	MemoryMB         int       `json:"memory_mb"`
	LastSeen         time.Time `json:"last_seen"`
	HeartbeatsMissed int       `json:"heartbeats_missed,omitempty"`
}

// WorkerRegistration is the body a worker PUTs to /workers/register: the
// worker's own URL, base64-encoded because it travels as a JSON string
// used in contexts (forms, query strings) where raw URLs are awkward, and
// its advertised memory in MiB.
type WorkerRegistration struct {
	URLBase64 string `json:"url_base64"`
	MemoryMB  int    `json:"memory_mb"`
}
