/*
Package types defines the core data structures shared across docpipe.

This package has no dependencies on any other docpipe package. Every other
package imports it; it imports nothing internal. That makes it the one place
where the job lifecycle, the tenant/quota model, and the per-kind parameter
and result shapes are defined once and referenced everywhere else: the job
store persists these types as JSON, the scheduler dispatches on Job.Kind, each
processor reads the populated field of Params for its kind, and the API
layer marshals Job and Tenant directly into HTTP responses.

# Core Types

Tenant and Plan model multi-tenancy and quota admission (see pkg/quota):
Tenant carries the mutable usage counter and billing period reset time; Plan
is the read-only ceiling the quota gate checks against.

APIKey is a secondary credential alongside password + JWT: the raw key is
handed to the tenant once at creation and only its SHA-256 hash is ever
stored or compared.

Job is the central record. Its Kind selects which of the nineteen operations
the Processor Registry performs; its Status moves through the state machine
described by ValidTransitions, enforced by CanTransition so that no caller
can push a job sideways into an invalid state.

Params and ResultData, defined in params.go, are sum types: one populated
field per Kind, the rest left as nil. This is deliberate - an untyped
map[string]interface{} would let a processor reach for a key that was never
set for its kind without the compiler noticing. The job store still persists
these as a single JSON blob per job; the type boundary exists at the Go
level, not the storage level.

# Job Lifecycle

	Pending -> Processing -> Completed
	                       -> Failed
	Pending -> Cancelled
	Processing -> Cancelled

Pending, Processing are the only non-terminal statuses. IsTerminal reports
whether a status has no further transitions (Completed, Failed, Cancelled).
*/
package types
