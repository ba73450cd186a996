// Package quota implements the admission check every job-creating request
// passes through before a single byte is written to disk.
package quota

import (
	"time"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/types"
)

// PeriodLength is the billing period used to roll the usage counter. A
// calendar month would require a calendar library the examples don't carry;
// a fixed 30-day window is the approximation the gate checks against.
const PeriodLength = 30 * 24 * time.Hour

// Check evaluates tenant and plan against the rules in order:
//  1. tenant must be active; verified is required only when requireVerified
//     is set (downloadable-artifact operations, not history listing).
//  2. if the tenant's period has rolled over, usageReset is invoked so the
//     caller can persist the zeroed counter and advanced LastReset.
//  3. usage must be under the plan's max files per period.
//  4. when inputSize >= 0, it must not exceed the plan's max file size.
//
// Check never mutates tenant itself; the caller is responsible for
// persisting whatever usageReset reports.
func Check(tenant *types.Tenant, plan *types.Plan, requireVerified bool, inputSize int64, now time.Time, usageReset func(newLastReset time.Time)) error {
	if !tenant.Active {
		return docerrors.E("quota.Check", docerrors.Forbidden, nil)
	}
	if requireVerified && !tenant.Verified {
		return docerrors.E("quota.Check", docerrors.Forbidden, nil)
	}

	usage := tenant.UsageCounter
	if now.Sub(tenant.LastReset) >= PeriodLength {
		usage = 0
		if usageReset != nil {
			usageReset(now)
		}
	}

	if plan.MaxFilesPerPeriod != -1 && usage >= plan.MaxFilesPerPeriod {
		return docerrors.E("quota.Check", docerrors.QuotaExhausted, nil)
	}

	if inputSize >= 0 && plan.MaxFileSizeBytes != -1 && inputSize > plan.MaxFileSizeBytes {
		return docerrors.E("quota.Check", docerrors.FileTooLarge, nil)
	}

	return nil
}
