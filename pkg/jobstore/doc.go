/*
Package jobstore is the durable record of tenants, subscription plans, API
keys and jobs, backed by a single go.etcd.io/bbolt database file.

bbolt has no query planner, so the (tenant_id, created_at) and (status)
indexes are built by hand as extra buckets (jobs_by_tenant, jobs_by_status)
holding composite keys that point back to the primary jobs bucket - the same
one-bucket-per-entity shape the teacher's storage layer uses, extended with
index buckets instead of a second engine. There is no separate
(tenant_id, status) bucket; listing a tenant's jobs by status scans that
tenant's jobs_by_tenant range and filters on status.

Status transitions (StartJob, CompleteJob, FailJob, CancelJob) are optimistic:
each runs inside one db.Update transaction that reads the current status,
refuses to proceed if it isn't the expected one, and only then writes the new
status and moves the job's key within the jobs_by_status bucket. bbolt serializes all
writers, so this is sufficient to prevent a job from being picked up twice.
*/
package jobstore
