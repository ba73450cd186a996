package api

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/log"
	"github.com/cuemby/docpipe/pkg/quota"
	"github.com/cuemby/docpipe/pkg/scheduler"
	"github.com/cuemby/docpipe/pkg/types"
	"github.com/google/uuid"
)

const maxUploadMemory = 32 << 20 // buffered in memory before spilling to temp files

// pdfKind binds a URL path segment to a job kind, its input arity (minFiles
// to maxFiles), a function building that kind's Params from form values, and
// its static /info descriptor. Every kind requires a verified tenant; that
// check is made for all of them in createAndDispatchJob.
type pdfKind struct {
	path        string
	kind        types.JobKind
	minFiles    int
	maxFiles    int
	buildParams func(r *http.Request) (types.Params, error)
	info        map[string]interface{}
}

var pdfKinds = []pdfKind{
	{
		path: "compress", kind: types.KindCompress, minFiles: 1, maxFiles: 1,
		buildParams: func(r *http.Request) (types.Params, error) {
			quality, err := strconv.Atoi(r.FormValue("quality"))
			if err != nil || quality < 1 || quality > 100 {
				return types.Params{}, docerrors.E("api.compress", docerrors.InvalidInput, fmt.Errorf("quality must be 1-100"))
			}
			return types.Params{Compress: &types.CompressParams{Quality: quality}}, nil
		},
		info: map[string]interface{}{"accepts": []string{"application/pdf"}, "params": []string{"quality (1-100)"}},
	},
	{
		path: "merge", kind: types.KindMerge, minFiles: 2, maxFiles: 20,
		buildParams: noParams,
		info:        map[string]interface{}{"accepts": []string{"application/pdf"}, "min_files": 2, "max_files": 20},
	},
	{
		path: "split", kind: types.KindSplit, minFiles: 1, maxFiles: 1,
		buildParams: func(r *http.Request) (types.Params, error) {
			pages := r.FormValue("pages")
			if pages == "" {
				return types.Params{}, docerrors.E("api.split", docerrors.InvalidPageSpec, fmt.Errorf("pages is required"))
			}
			return types.Params{Split: &types.SplitParams{Pages: pages}}, nil
		},
		info: map[string]interface{}{"accepts": []string{"application/pdf"}, "params": []string{"pages (e.g. \"1-3,5\")"}},
	},
	{
		path: "rotate", kind: types.KindRotate, minFiles: 1, maxFiles: 1,
		buildParams: func(r *http.Request) (types.Params, error) {
			angle, err := strconv.Atoi(r.FormValue("angle"))
			if err != nil || (angle != 90 && angle != 180 && angle != 270) {
				return types.Params{}, docerrors.E("api.rotate", docerrors.InvalidAngle, fmt.Errorf("angle must be 90, 180 or 270"))
			}
			return types.Params{Rotate: &types.RotateParams{Angle: angle}}, nil
		},
		info: map[string]interface{}{"accepts": []string{"application/pdf"}, "params": []string{"angle (90|180|270)"}},
	},
	{
		path: "watermark", kind: types.KindWatermark, minFiles: 1, maxFiles: 1,
		buildParams: func(r *http.Request) (types.Params, error) {
			text := r.FormValue("text")
			if len(text) < 1 || len(text) > 100 {
				return types.Params{}, docerrors.E("api.watermark", docerrors.InvalidInput, fmt.Errorf("text must be 1-100 characters"))
			}
			return types.Params{Watermark: &types.WatermarkParams{Text: text}}, nil
		},
		info: map[string]interface{}{"accepts": []string{"application/pdf"}, "params": []string{"text (1-100 chars)"}},
	},
	{
		path: "protect", kind: types.KindProtect, minFiles: 1, maxFiles: 1,
		buildParams: func(r *http.Request) (types.Params, error) {
			pw := r.FormValue("password")
			if len(pw) < 4 || len(pw) > 50 {
				return types.Params{}, docerrors.E("api.protect", docerrors.InvalidPassword, fmt.Errorf("password must be 4-50 characters"))
			}
			return types.Params{Protect: &types.ProtectParams{Password: pw}}, nil
		},
		info: map[string]interface{}{"accepts": []string{"application/pdf"}, "params": []string{"password (4-50 chars)"}},
	},
	{
		path: "unlock", kind: types.KindUnlock, minFiles: 1, maxFiles: 1,
		buildParams: func(r *http.Request) (types.Params, error) {
			return types.Params{Unlock: &types.UnlockParams{Password: r.FormValue("password")}}, nil
		},
		info: map[string]interface{}{"accepts": []string{"application/pdf"}, "params": []string{"password"}},
	},
	{
		path: "compare", kind: types.KindCompare, minFiles: 2, maxFiles: 2,
		buildParams: noParams,
		info:        map[string]interface{}{"accepts": []string{"application/pdf"}, "files": []string{"file1", "file2"}},
	},
	{
		path: "crop", kind: types.KindCrop, minFiles: 1, maxFiles: 1,
		buildParams: func(r *http.Request) (types.Params, error) {
			left, errL := strconv.ParseFloat(r.FormValue("left"), 64)
			bottom, errB := strconv.ParseFloat(r.FormValue("bottom"), 64)
			right, errR := strconv.ParseFloat(r.FormValue("right"), 64)
			top, errT := strconv.ParseFloat(r.FormValue("top"), 64)
			if errL != nil || errB != nil || errR != nil || errT != nil {
				return types.Params{}, docerrors.E("api.crop", docerrors.InvalidInput, fmt.Errorf("left, bottom, right, top are required numbers"))
			}
			return types.Params{Crop: &types.CropParams{Left: left, Bottom: bottom, Right: right, Top: top}}, nil
		},
		info: map[string]interface{}{"accepts": []string{"application/pdf"}, "params": []string{"left", "bottom", "right", "top"}},
	},
	{
		path: "redact", kind: types.KindRedact, minFiles: 1, maxFiles: 1,
		buildParams: noParams,
		info:        map[string]interface{}{"accepts": []string{"application/pdf"}, "note": "regions supplied via JSON params are a future extension"},
	},
	{
		path: "sign", kind: types.KindSign, minFiles: 1, maxFiles: 1,
		buildParams: func(r *http.Request) (types.Params, error) {
			text := r.FormValue("text")
			if text == "" {
				return types.Params{}, docerrors.E("api.sign", docerrors.InvalidInput, fmt.Errorf("text is required"))
			}
			page, _ := strconv.Atoi(r.FormValue("page"))
			x, _ := strconv.ParseFloat(r.FormValue("x"), 64)
			y, _ := strconv.ParseFloat(r.FormValue("y"), 64)
			return types.Params{Sign: &types.SignParams{Text: text, Page: page, X: x, Y: y}}, nil
		},
		info: map[string]interface{}{"accepts": []string{"application/pdf"}, "params": []string{"text", "page", "x", "y"}},
	},
	{
		path: "ocr", kind: types.KindOCR, minFiles: 1, maxFiles: 1,
		buildParams: func(r *http.Request) (types.Params, error) {
			lang := r.FormValue("language")
			if lang == "" {
				lang = "eng"
			}
			return types.Params{OCR: &types.OCRParams{Language: lang}}, nil
		},
		info: map[string]interface{}{"accepts": []string{"application/pdf"}, "params": []string{"language (default eng)"}},
	},
	{
		path: "repair", kind: types.KindRepair, minFiles: 1, maxFiles: 1,
		buildParams: noParams,
		info:        map[string]interface{}{"accepts": []string{"application/pdf"}},
	},
}

func noParams(r *http.Request) (types.Params, error) { return types.Params{}, nil }

var convertTargets = map[string]types.JobKind{
	"pdf-to-word":  types.KindConvertPDFToWord,
	"pdf-to-excel": types.KindConvertPDFToExcel,
	"pdf-to-ppt":   types.KindConvertPDFToPPT,
	"word-to-pdf":  types.KindConvertWordToPDF,
	"excel-to-pdf": types.KindConvertExcelToPDF,
	"html-to-pdf":  types.KindConvertHTMLToPDF,
}

var convertOutputExt = map[string]string{
	"pdf-to-word":  ".docx",
	"pdf-to-excel": ".xlsx",
	"pdf-to-ppt":   ".pptx",
	"word-to-pdf":  ".pdf",
	"excel-to-pdf": ".pdf",
	"html-to-pdf":  ".pdf",
}

// handlePDFOperation builds a multipart-upload handler for an operation
// kind, rejecting uploads whose file count falls outside the kind's
// minFiles..maxFiles range.
func (s *Server) handlePDFOperation(op pdfKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenantFromContext(r.Context())

		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeError(w, docerrors.E("api.handlePDFOperation", docerrors.InvalidInput, err))
			return
		}

		files, err := collectUploadFiles(r, op.path)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(files) < op.minFiles || len(files) > op.maxFiles {
			writeError(w, docerrors.E("api.handlePDFOperation", docerrors.InvalidInput,
				fmt.Errorf("%s requires between %d and %d files", op.path, op.minFiles, op.maxFiles)))
			return
		}

		params, err := op.buildParams(r)
		if err != nil {
			writeError(w, err)
			return
		}

		s.createAndDispatchJob(w, r, tenant, op.kind, files, params, op.path+"-result.pdf")
	}
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	target := r.PathValue("target")
	kind, ok := convertTargets[target]
	if !ok {
		writeError(w, docerrors.E("api.handleConvert", docerrors.InvalidInput, fmt.Errorf("unknown conversion target %q", target)))
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, docerrors.E("api.handleConvert", docerrors.InvalidInput, err))
		return
	}
	files, err := collectUploadFiles(r, "convert")
	if err != nil {
		writeError(w, err)
		return
	}
	if len(files) != 1 {
		writeError(w, docerrors.E("api.handleConvert", docerrors.InvalidInput, fmt.Errorf("conversion requires exactly one file")))
		return
	}

	s.createAndDispatchJob(w, r, tenant, kind, files, types.Params{}, target+"-result"+convertOutputExt[target])
}

// collectUploadFiles reads the "file" part, or "files[]" for merge, or
// "file1"+"file2" for compare, preserving caller-significant order.
func collectUploadFiles(r *http.Request, opPath string) ([]*multipart.FileHeader, error) {
	if opPath == "merge" {
		return r.MultipartForm.File["files[]"], nil
	}
	if opPath == "compare" {
		var out []*multipart.FileHeader
		for _, key := range []string{"file1", "file2"} {
			fh := r.MultipartForm.File[key]
			if len(fh) != 1 {
				return nil, docerrors.E("api.collectUploadFiles", docerrors.InvalidInput, fmt.Errorf("%s is required", key))
			}
			out = append(out, fh[0])
		}
		return out, nil
	}
	return r.MultipartForm.File["file"], nil
}

// createAndDispatchJob runs the full admission pipeline: quota check,
// stage uploads, create the PENDING job record, and hand it to the
// scheduler. It responds with 202 and the job's ID and eventual download
// URL as soon as a worker slot is reserved, per the admission contract
// (submit is synchronous only up to worker-slot reservation).
func (s *Server) createAndDispatchJob(w http.ResponseWriter, r *http.Request, tenant *types.Tenant, kind types.JobKind, files []*multipart.FileHeader, params types.Params, outputName string) {
	plan, err := s.store.GetPlan(tenant.PlanID)
	if err != nil {
		writeError(w, docerrors.E("api.createAndDispatchJob", docerrors.Internal, err))
		return
	}

	var totalSize int64
	for _, fh := range files {
		totalSize += fh.Size
	}
	if err := quota.Check(tenant, plan, true, totalSize, time.Now(), func(newLastReset time.Time) {
		tenant.UsageCounter = 0
		tenant.LastReset = newLastReset
		_ = s.store.ResetUsageIfExpired(tenant.ID, newLastReset, quota.PeriodLength)
	}); err != nil {
		writeError(w, err)
		return
	}

	jobID := uuid.New().String()

	inputPaths := make([]string, 0, len(files))
	var inputName string
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, docerrors.E("api.createAndDispatchJob", docerrors.InvalidInput, err))
			return
		}
		saved, err := s.files.SaveUpload(f, tenant.ID, jobID, fh.Filename)
		f.Close()
		if err != nil {
			writeError(w, err)
			return
		}
		inputPaths = append(inputPaths, saved.Path)
		if inputName == "" {
			inputName = fh.Filename
		}
	}

	job := &types.Job{
		ID:         jobID,
		TenantID:   tenant.ID,
		Kind:       kind,
		Status:     types.JobPending,
		CreatedAt:  time.Now(),
		InputPaths: inputPaths,
		InputName:  inputName,
		InputSize:  totalSize,
		Params:     params,
	}
	if err := s.store.CreateJob(job); err != nil {
		writeError(w, docerrors.E("api.createAndDispatchJob", docerrors.Internal, err))
		return
	}

	ticket := scheduler.Ticket{
		JobID:      job.ID,
		TenantID:   tenant.ID,
		Kind:       kind,
		InputPaths: inputPaths,
		OutputName: outputName,
		Params:     params,
	}
	if err := s.sched.Submit(context.Background(), ticket); err != nil {
		writeError(w, err)
		return
	}

	log.WithJobID(job.ID).Info().Str("tenant_id", tenant.ID).Str("kind", string(kind)).Msg("job admitted")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":      true,
		"job_id":       job.ID,
		"status":       string(types.JobPending),
		"download_url": fmt.Sprintf("/storage/downloads/%s/%s/%s", tenant.ID, job.ID, outputName),
	})
}

// handleInfo serves a static capability descriptor for a single-kind
// operation.
func (s *Server) handleInfo(op pdfKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, op.info)
	}
}

func (s *Server) handleConvertInfo(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("target")
	if _, ok := convertTargets[target]; !ok {
		writeError(w, docerrors.E("api.handleConvertInfo", docerrors.InvalidInput, fmt.Errorf("unknown conversion target %q", target)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"target": target, "accepts": []string{"file"}})
}
