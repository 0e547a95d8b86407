// Package ctl implements the controller: the job and worker registries, the
// background assignment/heartbeat loop, the worker communication client,
// and the HTTP API that fronts them.
package ctl

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskmesh/taskmesh/internal/types"
)

// State is the controller's copy-on-write job and worker registry: every
// mutation replaces the map entry wholesale rather than mutating a shared
// struct in place, so a reader holding a snapshot never observes a
// half-updated Job or WorkerInfo.
type State struct {
	mu      sync.RWMutex
	jobs    map[types.JobID]types.Job
	workers map[types.WorkerID]types.WorkerInfo
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		jobs:    make(map[types.JobID]types.Job),
		workers: make(map[types.WorkerID]types.WorkerInfo),
	}
}

// SubmitJob registers a new job, under a freshly generated id, in status
// "submitted" and returns it.
func (s *State) SubmitJob(dag types.TaskDAG) types.Job {
	return s.SubmitJobWithID(types.JobID(uuid.NewString()), dag)
}

// SubmitJobWithID registers a new job under a caller-chosen id. Used by
// the schedulable-submit path, where the job id must be fixed before the
// DAG is built so that dataset ids (which hash job id and task name) line
// up with what sched.Build already computed.
func (s *State) SubmitJobWithID(id types.JobID, dag types.TaskDAG) types.Job {
	now := time.Now().UTC()
	job := types.Job{
		ID:  id,
		DAG: dag,
		Status: types.JobStatus{
			JobID:     id,
			CreatedAt: now,
			UpdatedAt: now,
			Status:    types.StatusSubmitted,
		},
		Parallelism: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()
	return job
}

// Job returns a snapshot of the job, if known.
func (s *State) Job(id types.JobID) (types.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

// AssignWorker records which worker a job was handed to.
func (s *State) AssignWorker(id types.JobID, worker types.WorkerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	j.WorkerID = string(worker)
	j.UpdatedAt = time.Now().UTC()
	s.jobs[id] = j
}

// UpdateStatus applies a status update with monotone-transition
// enforcement: a per-task update only takes effect if it advances that
// task's current stage; an overall update only takes effect if it
// advances the job's current status. Result and detail, when present,
// always overwrite regardless of whether the status itself advanced.
// Returns the (possibly unchanged) resulting status, or false if the job
// is unknown.
func (s *State) UpdateStatus(u types.JobStatusUpdate) (types.JobStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[u.JobID]
	if !ok {
		return types.JobStatus{}, false
	}
	status := j.Status

	if u.TaskName != "" {
		// Copy before writing so snapshots handed out earlier keep their
		// own Stages map.
		stages := make(map[string]types.JobStatusEnum, len(status.Stages)+1)
		for name, stage := range status.Stages {
			stages[name] = stage
		}
		if types.ValidTransition(stages[u.TaskName], u.Status) {
			stages[u.TaskName] = u.Status
		}
		status.Stages = stages
	} else if types.ValidTransition(status.Status, u.Status) {
		status.Status = u.Status
	}
	if u.Result != "" {
		status.Result = u.Result
	}
	if u.StatusDetail != "" {
		status.StatusDetail = u.StatusDetail
	}
	status.UpdatedAt = time.Now().UTC()

	j.Status = status
	j.UpdatedAt = status.UpdatedAt
	s.jobs[u.JobID] = j
	return status, true
}

// RegisterWorker adds a worker and returns its assigned id.
func (s *State) RegisterWorker(url string, memoryMB int) types.WorkerID {
	id := types.WorkerID(uuid.NewString())
	s.mu.Lock()
	s.workers[id] = types.WorkerInfo{
		ID:       id,
		URL:      url,
		MemoryMB: memoryMB,
		LastSeen: time.Now().UTC(),
	}
	s.mu.Unlock()
	return id
}

// Worker returns a snapshot of the worker, if known.
func (s *State) Worker(id types.WorkerID) (types.WorkerInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	return w, ok
}

// Workers returns a snapshot slice of all registered workers.
func (s *State) Workers() []types.WorkerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.WorkerInfo, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	return out
}

// TouchWorker marks a worker as seen just now.
func (s *State) TouchWorker(id types.WorkerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return
	}
	w.LastSeen = time.Now().UTC()
	w.HeartbeatsMissed = 0
	s.workers[id] = w
}

// MarkHeartbeatMissed increments a worker's missed-heartbeat counter.
// The minimal design never evicts a worker for this; it is informational.
func (s *State) MarkHeartbeatMissed(id types.WorkerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return
	}
	w.HeartbeatsMissed++
	s.workers[id] = w
}

// PendingJobs returns every job still in status "submitted", in no
// particular order. This is the assignment loop's work queue.
func (s *State) PendingJobs() []types.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Job
	for _, j := range s.jobs {
		if j.Status.Status == types.StatusSubmitted {
			out = append(out, j)
		}
	}
	return out
}
