package api

import (
	"fmt"
	"net/http"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
)

// handleDownload serves a finalized artifact from the tenant's own
// download subtree. The {tenantID} path segment must match the
// authenticated caller's tenant; filestore.Open independently re-validates
// that the resolved path canonicalizes under the storage root, so a
// request can never escape either boundary.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	tenantID := r.PathValue("tenantID")
	jobID := r.PathValue("jobID")
	filename := r.PathValue("filename")

	if tenantID != tenant.ID {
		writeError(w, docerrors.E("api.handleDownload", docerrors.NotFound, fmt.Errorf("requested tenant subtree does not belong to caller")))
		return
	}

	job, err := s.store.GetJob(jobID)
	if err != nil || job.TenantID != tenant.ID {
		writeError(w, docerrors.E("api.handleDownload", docerrors.NotFound, err))
		return
	}

	path := s.files.DownloadPath(tenantID, jobID, filename)
	f, err := s.files.Open(path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, docerrors.E("api.handleDownload", docerrors.Internal, err))
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	http.ServeContent(w, r, filename, info.ModTime(), f)
}
