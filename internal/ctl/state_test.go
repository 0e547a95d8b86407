package ctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/taskmesh/internal/types"
)

func TestSubmitJobStartsAtSubmitted(t *testing.T) {
	s := NewState()
	job := s.SubmitJob(types.TaskDAG{})
	assert.Equal(t, types.StatusSubmitted, job.Status.Status)

	got, ok := s.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)
}

func TestUpdateStatusEnforcesMonotonicity(t *testing.T) {
	s := NewState()
	job := s.SubmitJob(types.TaskDAG{})

	status, ok := s.UpdateStatus(types.JobStatusUpdate{JobID: job.ID, Status: types.StatusRunning})
	require.True(t, ok)
	assert.Equal(t, types.StatusRunning, status.Status)

	status, ok = s.UpdateStatus(types.JobStatusUpdate{JobID: job.ID, Status: types.StatusAssigned})
	require.True(t, ok)
	assert.Equal(t, types.StatusRunning, status.Status, "a backwards transition must be ignored")
}

func TestUpdateStatusAlwaysOverwritesResultAndDetail(t *testing.T) {
	s := NewState()
	job := s.SubmitJob(types.TaskDAG{})
	s.UpdateStatus(types.JobStatusUpdate{JobID: job.ID, Status: types.StatusRunning})

	status, ok := s.UpdateStatus(types.JobStatusUpdate{
		JobID:        job.ID,
		Status:       types.StatusAssigned, // backwards, ignored
		Result:       "http://worker/data/abc",
		StatusDetail: "partial progress",
	})
	require.True(t, ok)
	assert.Equal(t, types.StatusRunning, status.Status)
	assert.Equal(t, "http://worker/data/abc", status.Result)
	assert.Equal(t, "partial progress", status.StatusDetail)
}

func TestUpdateStatusPerTaskStage(t *testing.T) {
	s := NewState()
	job := s.SubmitJob(types.TaskDAG{})

	status, ok := s.UpdateStatus(types.JobStatusUpdate{JobID: job.ID, TaskName: "read", Status: types.StatusRunning})
	require.True(t, ok)
	assert.Equal(t, types.StatusRunning, status.Stages["read"])
	assert.Equal(t, types.StatusSubmitted, status.Status, "overall status untouched by a per-task update")
}

func TestUpdateStatusUnknownJob(t *testing.T) {
	s := NewState()
	_, ok := s.UpdateStatus(types.JobStatusUpdate{JobID: "ghost", Status: types.StatusRunning})
	assert.False(t, ok)
}

func TestRegisterAndTouchWorker(t *testing.T) {
	s := NewState()
	id := s.RegisterWorker("http://worker-1:9000", 2048)

	w, ok := s.Worker(id)
	require.True(t, ok)
	assert.Equal(t, 2048, w.MemoryMB)

	s.MarkHeartbeatMissed(id)
	s.MarkHeartbeatMissed(id)
	w, _ = s.Worker(id)
	assert.Equal(t, 2, w.HeartbeatsMissed)

	s.TouchWorker(id)
	w, _ = s.Worker(id)
	assert.Equal(t, 0, w.HeartbeatsMissed, "a successful heartbeat resets the missed counter")
}

func TestPendingJobsOnlyReturnsSubmitted(t *testing.T) {
	s := NewState()
	a := s.SubmitJob(types.TaskDAG{})
	b := s.SubmitJob(types.TaskDAG{})
	s.UpdateStatus(types.JobStatusUpdate{JobID: b.ID, Status: types.StatusAssigned})

	pending := s.PendingJobs()
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)
}
