package wrk

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/taskmesh/taskmesh/internal/sched"
	"github.com/taskmesh/taskmesh/internal/types"
)

// notifyUpdate posts a status update to the controller. A non-OK response
// is logged, never retried in the minimal design (the caller already
// recorded the terminal outcome locally).
func (a *Agent) notifyUpdate(ctx context.Context, jobID types.JobID, status types.JobStatusEnum, taskName, detail, result string) {
	update := types.JobStatusUpdate{
		JobID:        jobID,
		Status:       status,
		TaskName:     taskName,
		StatusDetail: detail,
		Result:       result,
	}
	body, err := json.Marshal(update)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal status update")
		return
	}
	url := a.ControllerURL + "/jobs/update/" + string(a.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("failed to build status update request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("failed to notify controller of status update")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Error().Str("status", resp.Status).Msg("controller rejected status update")
	}
}

// dataURL builds the URL a consumer would GET to stream a dataset
// published by this worker.
func (a *Agent) dataURL(datasetID string) string {
	return a.SelfURL + "/data/" + datasetID
}

// RunJob executes dag's tasks sequentially in topological order, one
// taskrunner child per task. On the first task failure, the job
// transitions to failed with a detail naming the task and the underlying
// error, and no further tasks are started. On full success the job
// transitions to finished, with its result URL set to the DAG's declared
// output dataset, if any.
func (a *Agent) RunJob(ctx context.Context, jobID types.JobID, dag types.TaskDAG) {
	a.notifyUpdate(ctx, jobID, types.StatusRunning, "", "", "")

	order, err := sched.Topological(dag)
	if err != nil {
		a.notifyUpdate(ctx, jobID, types.StatusFailed, "", "scheduling failed: "+err.Error(), "")
		return
	}
	byName := make(map[string]types.Task, len(dag.Tasks))
	for _, t := range dag.Tasks {
		byName[t.Name] = t
	}

	var produced []string
	for _, name := range order {
		task := byName[name]
		inputLengths := a.collectInputLengths(task)

		a.notifyUpdate(ctx, jobID, types.StatusPreparing, task.Name, "", "")
		result, err := a.supervisor.Run(ctx, ChildRequest{JobID: jobID, Task: task, InputLengths: inputLengths})
		if err != nil {
			// Supervisor.Run's error already reads "task <name>: <reason>"
			// (types.StageTask's shape), so it's used as the detail verbatim
			// instead of tagging it again.
			detail := err.Error()
			a.notifyUpdate(ctx, jobID, types.StatusFailed, "", detail, "")
			log.Error().Str("job_id", string(jobID)).Str("task", task.Name).Err(err).Msg("task failed")
			a.purgeIntermediates(produced, nil)
			return
		}
		if task.OutputName != nil && result.HasOutput {
			a.registry.Register(string(*task.OutputName), result.OutputLength)
			produced = append(produced, string(*task.OutputName))
		}
		a.notifyUpdate(ctx, jobID, types.StatusFinished, task.Name, "", "")
	}

	var resultURL string
	if dag.OutputID != nil {
		resultURL = a.dataURL(string(*dag.OutputID))
	}
	a.notifyUpdate(ctx, jobID, types.StatusFinished, "", "", resultURL)

	// Arena-style dataset lifetime: every segment this job produced is
	// collectively freed at job end, except the one the job's result URL
	// points to, which must stay readable until the worker itself exits.
	var keep string
	if dag.OutputID != nil {
		keep = string(*dag.OutputID)
	}
	a.purgeIntermediates(produced, []string{keep})
}

// purgeIntermediates unlinks every dataset in produced except those named
// in keep, best-effort. A purge failure is logged, never fatal; it must
// not block progress on other jobs.
func (a *Agent) purgeIntermediates(produced []string, keep []string) {
	skip := make(map[string]bool, len(keep))
	for _, k := range keep {
		if k != "" {
			skip[k] = true
		}
	}
	for _, id := range produced {
		if skip[id] {
			continue
		}
		if err := a.registry.Purge(id); err != nil {
			log.Warn().Str("dataset_id", id).Err(err).Msg("failed to purge intermediate dataset")
		}
	}
}

// collectInputLengths gathers the lengths a task's dataset inputs were
// registered with, so its taskrunner child (a separate process, with its
// own empty registry) can decode them without re-deriving the length.
func (a *Agent) collectInputLengths(task types.Task) map[string]int {
	lengths := make(map[string]int, len(task.DatasetInputsKw)+len(task.DatasetInputsPs))
	for _, id := range task.DatasetInputsKw {
		if l, ok := a.registry.Length(string(id)); ok {
			lengths[string(id)] = l
		}
	}
	for _, id := range task.DatasetInputsPs {
		if l, ok := a.registry.Length(string(id)); ok {
			lengths[string(id)] = l
		}
	}
	return lengths
}
