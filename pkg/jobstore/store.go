package jobstore

import (
	"time"

	"github.com/cuemby/docpipe/pkg/types"
)

// ListFilter narrows a tenant's job history listing.
type ListFilter struct {
	Status types.JobStatus // zero value means "any status"
	Kind   types.JobKind   // zero value means "any kind"
	Limit  int
	Offset int
}

// Store is the durable record of tenants, plans, API keys and jobs. All
// mutating Job operations are atomic with respect to concurrent callers;
// StartJob, CompleteJob, FailJob and CancelJob fail closed if the job is not
// in the status they expect, guarding against double-pickup.
type Store interface {
	// Jobs
	CreateJob(job *types.Job) error
	GetJob(id string) (*types.Job, error)
	ListJobsByTenant(tenantID string, filter ListFilter) ([]*types.Job, error)
	CountJobsInPeriod(tenantID string, since time.Time) (int, error)

	// StartJob transitions a job from Pending to Processing. It fails if the
	// job is not currently Pending.
	StartJob(jobID string, startedAt time.Time) error

	// CompleteJob transitions a job from Processing to Completed, recording
	// output metadata in the same transaction. It fails if the job is not
	// currently Processing.
	CompleteJob(jobID string, completedAt time.Time, outputPaths []string, outputName string, outputSize int64, resultData types.ResultData) error

	// FailJob transitions a job from Processing to Failed. It fails if the
	// job is not currently Processing.
	FailJob(jobID string, completedAt time.Time, errKind, errMessage string) error

	// CancelJob transitions a job from Pending or Processing to Cancelled.
	CancelJob(jobID string, completedAt time.Time) error

	DeleteJob(id string) error
	DeleteTenantJobs(tenantID string) ([]*types.Job, error)

	// ListTerminalJobsOlderThan returns Completed/Failed jobs whose
	// CompletedAt predates cutoff, for the Cleanup Service's job age sweep.
	ListTerminalJobsOlderThan(cutoff time.Time) ([]*types.Job, error)

	// Tenants
	CreateTenant(tenant *types.Tenant) error
	GetTenant(id string) (*types.Tenant, error)
	GetTenantByEmail(email string) (*types.Tenant, error)
	UpdateTenant(tenant *types.Tenant) error

	// IncrementUsage atomically increments a tenant's usage counter by one.
	// Used only by the Finalizer, only on Completed.
	IncrementUsage(tenantID string) error

	// ResetUsageIfExpired atomically zeroes UsageCounter and advances
	// LastReset to now if the tenant's current period has elapsed.
	ResetUsageIfExpired(tenantID string, now time.Time, periodLength time.Duration) error

	// Plans
	GetPlan(id string) (*types.Plan, error)
	ListPlans() ([]*types.Plan, error)
	PutPlan(plan *types.Plan) error

	// API keys
	CreateAPIKey(key *types.APIKey) error
	GetAPIKeyByHash(hash string) (*types.APIKey, error)
	ListAPIKeysByTenant(tenantID string) ([]*types.APIKey, error)
	RevokeAPIKey(id string) error
	TouchAPIKey(id string, usedAt time.Time) error

	Close() error
}
