package ctl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/taskmesh/internal/types"
)

func TestAssignOneSucceedsAndMarksAssigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	state := NewState()
	sched := NewScheduler(state, NewWorkerComm())
	workerID := state.RegisterWorker(srv.URL, 1024)

	job := state.SubmitJob(types.TaskDAG{})
	sched.assignOne(context.Background(), job)

	got, ok := state.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, types.StatusAssigned, got.Status.Status)
	assert.Equal(t, string(workerID), got.WorkerID)
}

func TestAssignOneFailsWithNoWorkers(t *testing.T) {
	state := NewState()
	sched := NewScheduler(state, NewWorkerComm())
	job := state.SubmitJob(types.TaskDAG{})

	sched.assignOne(context.Background(), job)

	got, _ := state.Job(job.ID)
	assert.Equal(t, types.StatusFailed, got.Status.Status)
	assert.Contains(t, got.Status.StatusDetail, "no workers")
}

func TestAssignOneFailsOnWorkerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	state := NewState()
	comm := NewWorkerComm()
	comm.backoff = time.Millisecond
	sched := NewScheduler(state, comm)
	state.RegisterWorker(srv.URL, 1024)
	job := state.SubmitJob(types.TaskDAG{})

	sched.assignOne(context.Background(), job)

	got, _ := state.Job(job.ID)
	assert.Equal(t, types.StatusFailed, got.Status.Status)
}

func TestHeartbeatAllUpdatesLastSeenOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	state := NewState()
	sched := NewScheduler(state, NewWorkerComm())
	sched.grace = 0 // force every worker to be due for a check
	id := state.RegisterWorker(srv.URL, 1024)
	before, _ := state.Worker(id)

	time.Sleep(2 * time.Millisecond)
	sched.heartbeatAll(context.Background())

	after, _ := state.Worker(id)
	assert.True(t, after.LastSeen.After(before.LastSeen))
}

func TestHeartbeatAllCountsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	state := NewState()
	comm := NewWorkerComm()
	comm.backoff = time.Millisecond
	sched := NewScheduler(state, comm)
	sched.grace = 0
	id := state.RegisterWorker(srv.URL, 1024)

	sched.heartbeatAll(context.Background())

	after, _ := state.Worker(id)
	assert.Equal(t, 1, after.HeartbeatsMissed)
}

func TestHeartbeatAllSkipsRecentlySeenWorkers(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	state := NewState()
	sched := NewScheduler(state, NewWorkerComm())
	sched.grace = time.Hour
	state.RegisterWorker(srv.URL, 1024)

	sched.heartbeatAll(context.Background())
	assert.False(t, called, "a worker seen within the grace interval should not be pinged")
}
