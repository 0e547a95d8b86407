package wrk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskmesh/taskmesh/internal/types"
)

// streamBlockLen is the chunk size used for GET /data/{dataset-id}.
const streamBlockLen = 1024

// Router returns the worker's HTTP surface: job submission, dataset
// streaming, and a liveness probe.
func (a *Agent) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/jobs/submit/{job_id}", a.SubmitJob).Methods(http.MethodPut)
	r.HandleFunc("/data/{dataset_id}", a.StreamData).Methods(http.MethodGet)
	r.HandleFunc("/status", a.Status).Methods(http.MethodGet, http.MethodHead)
	return r
}

// SubmitJob handles PUT /jobs/submit/{job-id}: body is the TaskDAG to
// run. Execution happens in the background; the handler replies as soon
// as the job is accepted.
func (a *Agent) SubmitJob(w http.ResponseWriter, r *http.Request) {
	jobID := types.JobID(mux.Vars(r)["job_id"])
	var dag types.TaskDAG
	if err := json.NewDecoder(r.Body).Decode(&dag); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	// RunJob outlives this handler (it's fire-and-forget), so it must not
	// inherit r.Context(): net/http cancels that context the moment this
	// handler returns, which would kill every task child's
	// exec.CommandContext almost immediately.
	go a.RunJob(context.Background(), jobID, dag)
	_, _ = io.WriteString(w, "ok")
}

// StreamData handles GET /data/{dataset-id}: streams the dataset's exact
// registered length, in bounded chunks, or 404 if it isn't known.
func (a *Agent) StreamData(w http.ResponseWriter, r *http.Request) {
	datasetID := mux.Vars(r)["dataset_id"]
	if !a.registry.Contains(datasetID) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	err := a.registry.Stream(datasetID, streamBlockLen, func(chunk []byte) error {
		_, err := w.Write(chunk)
		return err
	})
	if err != nil {
		http.Error(w, "stream error: "+err.Error(), http.StatusInternalServerError)
	}
}

// Status handles GET|HEAD /status.
func (a *Agent) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = io.WriteString(w, "ok")
}
