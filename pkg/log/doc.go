/*
Package log provides structured logging for docpipe using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support
filtering by severity level for production debugging.

# Usage

Initializing the logger:

	import "github.com/cuemby/docpipe/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

Structured logging:

	log.Logger.Info().
		Str("tenant_id", tenant.ID).
		Str("job_id", job.ID).
		Msg("job admitted")

Context loggers:

	// Component-specific logger, e.g. the scheduler's worker pool
	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Info().Msg("starting scheduler")

	// Tenant- or job-scoped loggers
	log.WithTenantID(tenant.ID).Info().Msg("tenant registered")
	log.WithJobID(job.ID).Info().Msg("job admitted")

	// Job-kind-scoped logger, used by the scheduler while a job runs
	log.WithKind(string(ticket.Kind)).Info().Msg("job completed")

# Design

A single package-level zerolog.Logger is initialized once via Init and
read from every package — the scheduler's worker pool, the cleanup
service's sweeps, the API layer's request handlers — without threading a
logger through every call. Context loggers (WithComponent, WithTenantID,
WithJobID, WithKind) attach one field to a child logger so repeated log
lines in a scoped block don't repeat the field by hand.
*/
package log
