package quota

import (
	"testing"
	"time"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseTenant() *types.Tenant {
	return &types.Tenant{
		ID:           "t1",
		Active:       true,
		Verified:     true,
		UsageCounter: 0,
		LastReset:    time.Now(),
	}
}

func basePlan() *types.Plan {
	return &types.Plan{
		ID:                "free",
		MaxFilesPerPeriod: 10,
		MaxFileSizeBytes:  1024,
		Active:            true,
	}
}

func TestCheckInactiveTenant(t *testing.T) {
	tenant := baseTenant()
	tenant.Active = false

	err := Check(tenant, basePlan(), true, 10, time.Now(), nil)
	require.Error(t, err)
	assert.Equal(t, docerrors.Forbidden, docerrors.KindOf(err))
}

func TestCheckUnverifiedRequiresVerification(t *testing.T) {
	tenant := baseTenant()
	tenant.Verified = false

	err := Check(tenant, basePlan(), true, 10, time.Now(), nil)
	require.Error(t, err)
	assert.Equal(t, docerrors.Forbidden, docerrors.KindOf(err))
}

func TestCheckUnverifiedAllowedWhenNotRequired(t *testing.T) {
	tenant := baseTenant()
	tenant.Verified = false

	err := Check(tenant, basePlan(), false, 10, time.Now(), nil)
	assert.NoError(t, err)
}

func TestCheckQuotaExhausted(t *testing.T) {
	tenant := baseTenant()
	tenant.UsageCounter = 10

	err := Check(tenant, basePlan(), true, 10, time.Now(), nil)
	require.Error(t, err)
	assert.Equal(t, docerrors.QuotaExhausted, docerrors.KindOf(err))
}

func TestCheckUnlimitedFiles(t *testing.T) {
	tenant := baseTenant()
	tenant.UsageCounter = 99999
	plan := basePlan()
	plan.MaxFilesPerPeriod = -1

	err := Check(tenant, plan, true, 10, time.Now(), nil)
	assert.NoError(t, err)
}

func TestCheckFileTooLarge(t *testing.T) {
	tenant := baseTenant()

	err := Check(tenant, basePlan(), true, 2048, time.Now(), nil)
	require.Error(t, err)
	assert.Equal(t, docerrors.FileTooLarge, docerrors.KindOf(err))
}

func TestCheckUnlimitedFileSize(t *testing.T) {
	tenant := baseTenant()
	plan := basePlan()
	plan.MaxFileSizeBytes = -1

	err := Check(tenant, plan, true, 9999999, time.Now(), nil)
	assert.NoError(t, err)
}

func TestCheckNegativeInputSizeSkipsSizeCheck(t *testing.T) {
	tenant := baseTenant()
	err := Check(tenant, basePlan(), true, -1, time.Now(), nil)
	assert.NoError(t, err)
}

func TestCheckPeriodRolloverResetsUsage(t *testing.T) {
	tenant := baseTenant()
	tenant.UsageCounter = 10
	tenant.LastReset = time.Now().Add(-31 * 24 * time.Hour)

	var resetTo time.Time
	now := time.Now()
	err := Check(tenant, basePlan(), true, 10, now, func(t time.Time) {
		resetTo = t
	})
	assert.NoError(t, err)
	assert.Equal(t, now, resetTo)
}
