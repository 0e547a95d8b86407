package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/taskmesh/taskmesh/internal/types"
)

// WorkerComm is the controller's HTTP client to a worker: submit a
// schedule, check liveness. Every call is bounded-retried so a single
// slow or dropped connection doesn't stall the assignment/heartbeat
// loops indefinitely.
type WorkerComm struct {
	client  *http.Client
	retries int
	backoff time.Duration
}

// NewWorkerComm returns a WorkerComm with sane defaults for the minimal
// single-process deployment: a short per-call timeout, three attempts.
func NewWorkerComm() *WorkerComm {
	return &WorkerComm{
		client:  &http.Client{Timeout: 5 * time.Second},
		retries: 3,
		backoff: 200 * time.Millisecond,
	}
}

// CallSubmit PUTs dag to workerURL/jobs/submit/{job-id}. Returns an error
// only after every retry attempt has failed.
func (c *WorkerComm) CallSubmit(ctx context.Context, workerURL string, jobID types.JobID, dag types.TaskDAG) error {
	body, err := json.Marshal(dag)
	if err != nil {
		return errors.Wrap(err, "marshaling task dag")
	}
	url := workerURL + "/jobs/submit/" + string(jobID)

	return c.withRetries(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("worker returned %s", resp.Status)
		}
		return nil
	})
}

// CallHeartbeat GETs workerURL/status and reports whether it responded OK.
func (c *WorkerComm) CallHeartbeat(ctx context.Context, workerURL string) bool {
	err := c.withRetries(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, workerURL+"/status", nil)
		if err != nil {
			return err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("worker returned %s", resp.Status)
		}
		return nil
	})
	return err == nil
}

func (c *WorkerComm) withRetries(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(c.backoff * time.Duration(attempt))
		}
		if err := fn(); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("worker call failed, retrying")
			continue
		}
		return nil
	}
	return lastErr
}
