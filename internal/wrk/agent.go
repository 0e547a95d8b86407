// Package wrk implements the worker: registration with the controller,
// the per-job execution loop (spawning one taskrunner child per task,
// sequentially, in topological order), the shared-memory data endpoint,
// and the worker's HTTP surface.
package wrk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/taskmesh/taskmesh/internal/shm"
	"github.com/taskmesh/taskmesh/internal/types"
)

// Agent is a running worker: its identity once registered, its
// connections to the controller and to its own shared-memory registry,
// and its task supervisor.
type Agent struct {
	SelfURL       string
	ControllerURL string
	MemoryMB      int

	ID types.WorkerID

	httpClient *http.Client
	registry   *shm.Registry
	supervisor *Supervisor

	registerRetries int
	registerBackoff time.Duration
}

// NewAgent returns an Agent ready to Register and to serve its Router.
func NewAgent(selfURL, controllerURL string, memoryMB int) *Agent {
	return &Agent{
		SelfURL:         selfURL,
		ControllerURL:   controllerURL,
		MemoryMB:        memoryMB,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		registry:        shm.NewRegistry(),
		supervisor:      &Supervisor{},
		registerRetries: 5,
		registerBackoff: time.Second,
	}
}

type registerRequestBody struct {
	URLBase64 string `json:"url_base64"`
	MemoryMB  int    `json:"memory_mb"`
}

type registerResponseBody struct {
	WorkerID string `json:"worker_id"`
}

// Register registers the worker with the controller, retrying a small,
// bounded number of times at start-up.
func (a *Agent) Register(ctx context.Context) error {
	body, err := json.Marshal(registerRequestBody{
		URLBase64: base64.StdEncoding.EncodeToString([]byte(a.SelfURL)),
		MemoryMB:  a.MemoryMB,
	})
	if err != nil {
		return errors.Wrap(err, "marshaling registration")
	}

	var lastErr error
	for attempt := 0; attempt < a.registerRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(a.registerBackoff * time.Duration(attempt))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.ControllerURL+"/workers/register", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := a.httpClient.Do(req)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("registration failed, retrying")
			continue
		}
		func() {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				lastErr = errors.Errorf("controller returned %s", resp.Status)
				return
			}
			var parsed registerResponseBody
			if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
				lastErr = errors.Wrap(err, "parsing registration response")
				return
			}
			a.ID = types.WorkerID(parsed.WorkerID)
			lastErr = nil
		}()
		if lastErr == nil && a.ID != "" {
			log.Info().Str("worker_id", string(a.ID)).Msg("registered with controller")
			return nil
		}
	}
	return errors.Wrap(lastErr, "registration exhausted all retries")
}
