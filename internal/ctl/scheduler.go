package ctl

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/taskmesh/taskmesh/internal/sched"
	"github.com/taskmesh/taskmesh/internal/types"
)

// Scheduler drives the two background loops a controller runs: job
// assignment (submitted -> assigned, or -> failed) and worker heartbeats.
type Scheduler struct {
	state *State
	comm  *WorkerComm

	newJobs chan types.JobID

	pollInterval   time.Duration
	heartbeatEvery time.Duration
	grace          time.Duration

	nextWorker uint64
}

// NewScheduler returns a Scheduler over state using comm to talk to
// workers. Defaults are a 60s heartbeat round with a 2-minute grace
// period.
func NewScheduler(state *State, comm *WorkerComm) *Scheduler {
	return &Scheduler{
		state:          state,
		comm:           comm,
		newJobs:        make(chan types.JobID, 256),
		pollInterval:   time.Second,
		heartbeatEvery: 60 * time.Second,
		grace:          2 * time.Minute,
	}
}

// NotifyNewJob wakes the assignment loop for a just-submitted job instead
// of waiting for the next poll tick.
func (s *Scheduler) NotifyNewJob(id types.JobID) {
	select {
	case s.newJobs <- id:
	default:
		// queue full: the poll loop will pick it up on its next tick regardless
	}
}

// RunAssignmentLoop assigns pending jobs to workers until ctx is
// cancelled. Each job performs a topological linearization pass and one
// submit call (which WorkerComm retries a bounded number of times); on
// any failure (no workers, transport error, non-ok response) the job
// transitions straight to failed with a descriptive detail.
func (s *Scheduler) RunAssignmentLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.newJobs:
			s.assignPending(ctx)
		case <-ticker.C:
			s.assignPending(ctx)
		}
	}
}

func (s *Scheduler) assignPending(ctx context.Context) {
	for _, job := range s.state.PendingJobs() {
		s.assignOne(ctx, job)
	}
}

func (s *Scheduler) assignOne(ctx context.Context, job types.Job) {
	workers := s.state.Workers()
	if len(workers) == 0 {
		s.fail(job.ID, "no workers available")
		return
	}
	idx := atomic.AddUint64(&s.nextWorker, 1) % uint64(len(workers))
	worker := workers[idx]

	order, err := sched.Topological(job.DAG)
	if err != nil {
		s.fail(job.ID, "scheduling failed: "+err.Error())
		return
	}
	_ = order // the single-host schedule is the DAG order itself; the controller does not call sched.Partition

	if err := s.comm.CallSubmit(ctx, worker.URL, job.ID, job.DAG); err != nil {
		s.fail(job.ID, "failed to submit to worker "+string(worker.ID)+": "+err.Error())
		return
	}

	s.state.AssignWorker(job.ID, worker.ID)
	s.state.UpdateStatus(types.JobStatusUpdate{JobID: job.ID, Status: types.StatusAssigned})
	log.Info().Str("job_id", string(job.ID)).Str("worker_id", string(worker.ID)).Msg("job assigned")
}

// fail marks job id failed, with detail tagged as an assignment-stage
// defect so the status_detail names the stage it came from.
func (s *Scheduler) fail(id types.JobID, detail string) {
	tagged := types.StageAssignment.Tag("") + ": " + detail
	s.state.UpdateStatus(types.JobStatusUpdate{JobID: id, Status: types.StatusFailed, StatusDetail: tagged})
	log.Error().Str("job_id", string(id)).Str("detail", tagged).Msg("job assignment failed")
}

// RunHeartbeatLoop periodically checks liveness of every worker not seen
// within the grace interval, until ctx is cancelled. A successful check
// updates last_seen; a failure is logged and counted, never evicting the
// worker automatically.
func (s *Scheduler) RunHeartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.heartbeatAll(ctx)
		}
	}
}

// heartbeatAll probes every worker past the grace interval concurrently,
// so one slow or unreachable worker never delays the liveness check of
// the rest. Each goroutine only touches its own worker's state, so no
// coordination beyond the final Wait is needed.
func (s *Scheduler) heartbeatAll(ctx context.Context) {
	now := time.Now().UTC()
	var g errgroup.Group
	for _, w := range s.state.Workers() {
		if now.Sub(w.LastSeen) < s.grace {
			continue
		}
		w := w
		g.Go(func() error {
			if s.comm.CallHeartbeat(ctx, w.URL) {
				s.state.TouchWorker(w.ID)
			} else {
				s.state.MarkHeartbeatMissed(w.ID)
				log.Error().Str("worker_id", string(w.ID)).Msg("worker failed to heartbeat")
			}
			return nil
		})
	}
	_ = g.Wait()
}
