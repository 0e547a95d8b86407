package ctl

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/taskmesh/taskmesh/internal/sched"
	"github.com/taskmesh/taskmesh/internal/types"
	"github.com/taskmesh/taskmesh/internal/validate"
)

// API wires the controller's HTTP surface onto a State and Scheduler.
type API struct {
	state     *State
	scheduler *Scheduler
	builder   types.TaskDAGBuilder
}

// NewAPI returns an API. builder is the single job template this minimal
// controller serves; sched.Build runs against it for the
// schedulable-submit path.
func NewAPI(state *State, scheduler *Scheduler, builder types.TaskDAGBuilder) *API {
	return &API{state: state, scheduler: scheduler, builder: builder}
}

// Router returns a configured gorilla/mux router.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/jobs/submit", a.SubmitJob).Methods(http.MethodPut)
	r.HandleFunc("/jobs/schedulable_submit", a.SubmitSchedulableJob).Methods(http.MethodPut)
	r.HandleFunc("/jobs/status/{job_id}", a.JobStatus).Methods(http.MethodGet)
	r.HandleFunc("/workers/register", a.RegisterWorker).Methods(http.MethodPut)
	r.HandleFunc("/jobs/update/{worker_id}", a.UpdateJobStatus).Methods(http.MethodPost)
	r.HandleFunc("/status", a.Status).Methods(http.MethodGet, http.MethodHead)
	return r
}

// SubmitJob handles PUT /jobs/submit: body is a TaskDAG. Validates it
// against the template loaded at startup; on any defect, returns 400
// with the newline-joined list of every defect found.
func (a *API) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var dag types.TaskDAG
	if err := json.NewDecoder(r.Body).Decode(&dag); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if errs := validate.DAG(dag, a.builder); len(errs) > 0 {
		http.Error(w, strings.Join(errs, "\n"), http.StatusBadRequest)
		return
	}

	job := a.state.SubmitJob(dag)
	a.scheduler.NotifyNewJob(job.ID)
	writeJSON(w, http.StatusOK, job.Status)
}

// schedulableSubmitRequest is the body of PUT /jobs/schedulable_submit: a
// job template reference is implicit (the controller serves one), plus
// the flat user parameters to materialize it.
type schedulableSubmitRequest struct {
	Params map[string]string `json:"params"`
}

// SubmitSchedulableJob handles PUT /jobs/schedulable_submit: builds a
// TaskDAG from the loaded template and the request's user parameters. A
// build failure still returns 200, with the job status set to failed and
// the defect list in StatusDetail.
func (a *API) SubmitSchedulableJob(w http.ResponseWriter, r *http.Request) {
	var req schedulableSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	jobID := types.JobID(uuid.NewString())
	dag, errs := sched.Build(a.builder, jobID, req.Params)
	if len(errs) > 0 {
		job := a.state.SubmitJobWithID(jobID, dag)
		a.state.UpdateStatus(types.JobStatusUpdate{
			JobID:        job.ID,
			Status:       types.StatusFailed,
			StatusDetail: types.StageValidation.Tag("") + ": " + strings.Join(errs, "\n"),
		})
		status, _ := a.state.Job(job.ID)
		writeJSON(w, http.StatusOK, status.Status)
		return
	}

	job := a.state.SubmitJobWithID(jobID, dag)
	a.scheduler.NotifyNewJob(job.ID)
	writeJSON(w, http.StatusOK, job.Status)
}

// JobStatus handles GET /jobs/status/{job-id}.
func (a *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	id := types.JobID(mux.Vars(r)["job_id"])
	job, ok := a.state.Job(id)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Status)
}

// registerRequest is the body of PUT /workers/register.
type registerRequest struct {
	URLBase64 string `json:"url_base64"`
	MemoryMB  int    `json:"memory_mb"`
}

// RegisterWorker handles PUT /workers/register.
func (a *API) RegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	reg := types.WorkerRegistration{URLBase64: req.URLBase64, MemoryMB: req.MemoryMB}
	url, err := reg.URL()
	if err != nil {
		http.Error(w, "bad request: invalid url_base64", http.StatusBadRequest)
		return
	}
	id := a.state.RegisterWorker(url, req.MemoryMB)
	log.Info().Str("worker_id", string(id)).Str("url", url).Msg("worker registered")
	writeJSON(w, http.StatusOK, map[string]string{"worker_id": string(id)})
}

// UpdateJobStatus handles POST /jobs/update/{worker-id}.
func (a *API) UpdateJobStatus(w http.ResponseWriter, r *http.Request) {
	workerID := types.WorkerID(mux.Vars(r)["worker_id"])
	if _, ok := a.state.Worker(workerID); !ok {
		http.Error(w, "unknown worker", http.StatusNotFound)
		return
	}
	var update types.JobStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	status, ok := a.state.UpdateStatus(update)
	if !ok {
		http.Error(w, "unknown job", http.StatusNotFound)
		return
	}
	a.state.TouchWorker(workerID)
	writeJSON(w, http.StatusOK, status)
}

// Status handles GET|HEAD /status.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = io.WriteString(w, "ok")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
