package api

import (
	"fmt"
	"net/http"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/jobstore"
	"github.com/cuemby/docpipe/pkg/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	q := r.URL.Query()

	limit := parseIntDefault(q.Get("limit"), defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	filter := jobstore.ListFilter{
		Status: types.JobStatus(q.Get("status")),
		Kind:   types.JobKind(q.Get("kind")),
		Limit:  limit,
		Offset: parseIntDefault(q.Get("offset"), 0),
	}

	jobs, err := s.store.ListJobsByTenant(tenant.ID, filter)
	if err != nil {
		writeError(w, docerrors.E("api.handleListHistory", docerrors.Internal, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "limit": limit, "offset": filter.Offset})
}

func (s *Server) loadOwnedJob(w http.ResponseWriter, r *http.Request) (*types.Job, bool) {
	tenant := tenantFromContext(r.Context())
	id := r.PathValue("id")
	job, err := s.store.GetJob(id)
	if err != nil {
		writeError(w, docerrors.E("api.loadOwnedJob", docerrors.NotFound, err))
		return nil, false
	}
	if job.TenantID != tenant.ID {
		writeError(w, docerrors.E("api.loadOwnedJob", docerrors.NotFound, fmt.Errorf("job not visible to caller")))
		return nil, false
	}
	return job, true
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadOwnedJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadOwnedJob(w, r)
	if !ok {
		return
	}
	if job.Status == types.JobProcessing {
		if err := s.sched.Cancel(job.ID); err != nil {
			writeError(w, docerrors.E("api.handleDeleteJob", docerrors.Internal, err))
			return
		}
	}
	s.deleteJobFiles(job)
	if err := s.store.DeleteJob(job.ID); err != nil {
		writeError(w, docerrors.E("api.handleDeleteJob", docerrors.Internal, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	jobs, err := s.store.DeleteTenantJobs(tenant.ID)
	if err != nil {
		writeError(w, docerrors.E("api.handleClearHistory", docerrors.Internal, err))
		return
	}
	for _, job := range jobs {
		if job.Status == types.JobProcessing {
			_ = s.sched.Cancel(job.ID)
		}
		s.deleteJobFiles(job)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "deleted": len(jobs)})
}

func (s *Server) deleteJobFiles(job *types.Job) {
	for _, path := range job.InputPaths {
		_ = s.files.Delete(path)
	}
	for _, path := range job.OutputPaths {
		_ = s.files.Delete(path)
	}
}
