package types

// JobStatusEnum is a stage in the job/task state machine.
//
// The ordered lattice is submitted < assigned < preparing < running <
// {failed, finished}. failed and finished are terminal and sit at the same
// ordinal position: once a job or task reaches either, no further update is
// accepted.
type JobStatusEnum string

const (
	StatusSubmitted JobStatusEnum = "submitted"
	StatusAssigned  JobStatusEnum = "assigned"
	StatusPreparing JobStatusEnum = "preparing"
	StatusRunning   JobStatusEnum = "running"
	StatusFailed    JobStatusEnum = "failed"
	StatusFinished  JobStatusEnum = "finished"
)

// statusOrder is the authoritative ordinal lookup used by ValidTransition.
var statusOrder = map[JobStatusEnum]int{
	StatusSubmitted: 0,
	StatusAssigned:  1,
	StatusPreparing: 2,
	StatusRunning:   3,
	StatusFailed:    4,
	StatusFinished:  4,
}

// ValidTransition reports whether moving from before to after is a forward
// (or initial) move in the state lattice. A zero-value before ("") is
// treated as "no previous state", which always permits the transition.
func ValidTransition(before, after JobStatusEnum) bool {
	if before == "" {
		return true
	}
	return statusOrder[before] < statusOrder[after]
}

// IsTerminal reports whether s is a terminal state (failed or finished).
func IsTerminal(s JobStatusEnum) bool {
	return s == StatusFailed || s == StatusFinished
}

// FailureStage names the pipeline stage a failure occurred in, so that
// status_detail is always machine-parseable and not just free text.
type FailureStage string

const (
	StageValidation FailureStage = "validation"
	StageAssignment FailureStage = "assignment"
	StageTask       FailureStage = "task"
	StageWorker     FailureStage = "worker"
)

// Tag renders a failure stage label for status_detail. name is appended for
// the stage kinds that carry one ("task <name>", "worker <id>"); pass ""
// for the unnamed kinds (validation, assignment).
func (s FailureStage) Tag(name string) string {
	if name == "" {
		return string(s)
	}
	return string(s) + " " + name
}
