package types

import "time"

// Tenant is the principal that owns jobs, uploads, and quota usage.
type Tenant struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Active       bool
	Verified     bool
	PlanID       string
	UsageCounter int
	LastReset    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Plan is the read-only quota view the core consults at admission time.
// The core never mutates a Plan; subscription lifecycle lives outside it.
type Plan struct {
	ID                string
	Name              string
	MaxFilesPerPeriod int   // -1 means unlimited
	MaxFileSizeBytes  int64 // -1 means unlimited
	Active            bool
}

// APIKey is an alternative credential: a raw key handed to the tenant once,
// stored here only as a SHA-256 hash.
type APIKey struct {
	ID         string
	TenantID   string
	KeyHash    string
	Label      string
	CreatedAt  time.Time
	LastUsedAt time.Time
	Revoked    bool
}

// JobKind enumerates the operations the Processor Registry can dispatch.
type JobKind string

const (
	KindCompress          JobKind = "compress"
	KindMerge             JobKind = "merge"
	KindSplit             JobKind = "split"
	KindRotate            JobKind = "rotate"
	KindWatermark         JobKind = "watermark"
	KindProtect           JobKind = "protect"
	KindUnlock            JobKind = "unlock"
	KindCompare           JobKind = "compare"
	KindCrop              JobKind = "crop"
	KindRedact            JobKind = "redact"
	KindSign              JobKind = "sign"
	KindOCR               JobKind = "ocr"
	KindRepair            JobKind = "repair"
	KindConvertPDFToWord  JobKind = "convert_pdf_to_word"
	KindConvertPDFToExcel JobKind = "convert_pdf_to_excel"
	KindConvertPDFToPPT   JobKind = "convert_pdf_to_ppt"
	KindConvertWordToPDF  JobKind = "convert_word_to_pdf"
	KindConvertExcelToPDF JobKind = "convert_excel_to_pdf"
	KindConvertHTMLToPDF  JobKind = "convert_html_to_pdf"
)

// JobStatus is the job's position in its lifecycle. Transitions are
// forward-only: Pending -> Processing -> {Completed|Failed}, and Pending or
// Processing -> Cancelled. See ValidTransitions.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// ValidTransitions enumerates every status a job may move to from a given
// status. A job whose status maps to an empty slice (the terminal states
// Completed, Failed, Cancelled) has no valid next state.
var ValidTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing, JobCancelled},
	JobProcessing: {JobCompleted, JobFailed, JobCancelled},
	JobCompleted:  {},
	JobFailed:     {},
	JobCancelled:  {},
}

// CanTransition reports whether moving from s to next is allowed by J5.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no further transitions.
func (s JobStatus) IsTerminal() bool {
	return len(ValidTransitions[s]) == 0
}

// Job is the central durable record of a single processing request.
type Job struct {
	ID       string
	TenantID string
	Kind     JobKind
	Status   JobStatus

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	InputPaths []string // ordered; significant for merge/split
	InputName  string
	InputSize  int64
	Params     Params

	OutputPaths []string // ordered; significant for split fan-out
	OutputName  string
	OutputSize  int64
	ResultData  ResultData

	ErrorKind    string
	ErrorMessage string

	ProcessingTimeMs int64
}

// InputPath returns the first (and, for every kind but merge/compare, only)
// input path, or "" if none is staged yet.
func (j *Job) InputPath() string {
	if len(j.InputPaths) == 0 {
		return ""
	}
	return j.InputPaths[0]
}

// OutputPath returns the first output path, or "" for jobs whose result is
// purely ResultData (e.g. compare).
func (j *Job) OutputPath() string {
	if len(j.OutputPaths) == 0 {
		return ""
	}
	return j.OutputPaths[0]
}
