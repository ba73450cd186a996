package finalizer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/filestore"
	"github.com/cuemby/docpipe/pkg/jobstore"
	"github.com/cuemby/docpipe/pkg/types"
)

// fakeStore implements jobstore.Store, recording CompleteJob/IncrementUsage
// calls and stubbing everything else.
type fakeStore struct {
	completedJobID  string
	outputPaths     []string
	outputName      string
	outputSize      int64
	resultData      types.ResultData
	usageIncrements []string
	completeErr     error
	usageErr        error
}

func (f *fakeStore) CompleteJob(jobID string, completedAt time.Time, outputPaths []string, outputName string, outputSize int64, resultData types.ResultData) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completedJobID = jobID
	f.outputPaths = outputPaths
	f.outputName = outputName
	f.outputSize = outputSize
	f.resultData = resultData
	return nil
}

func (f *fakeStore) IncrementUsage(tenantID string) error {
	if f.usageErr != nil {
		return f.usageErr
	}
	f.usageIncrements = append(f.usageIncrements, tenantID)
	return nil
}

func (f *fakeStore) CreateJob(job *types.Job) error { return nil }
func (f *fakeStore) GetJob(id string) (*types.Job, error) {
	return nil, docerrors.E("fakeStore.GetJob", docerrors.NotFound, nil)
}
func (f *fakeStore) ListJobsByTenant(tenantID string, filter jobstore.ListFilter) ([]*types.Job, error) {
	return nil, nil
}
func (f *fakeStore) CountJobsInPeriod(tenantID string, since time.Time) (int, error) { return 0, nil }
func (f *fakeStore) StartJob(jobID string, startedAt time.Time) error                 { return nil }
func (f *fakeStore) FailJob(jobID string, completedAt time.Time, errKind, errMessage string) error {
	return nil
}
func (f *fakeStore) CancelJob(jobID string, completedAt time.Time) error    { return nil }
func (f *fakeStore) DeleteJob(id string) error                             { return nil }
func (f *fakeStore) DeleteTenantJobs(tenantID string) ([]*types.Job, error) { return nil, nil }
func (f *fakeStore) ListTerminalJobsOlderThan(cutoff time.Time) ([]*types.Job, error) {
	return nil, nil
}
func (f *fakeStore) CreateTenant(tenant *types.Tenant) error { return nil }
func (f *fakeStore) GetTenant(id string) (*types.Tenant, error) {
	return nil, docerrors.E("fakeStore.GetTenant", docerrors.NotFound, nil)
}
func (f *fakeStore) GetTenantByEmail(email string) (*types.Tenant, error) {
	return nil, docerrors.E("fakeStore.GetTenantByEmail", docerrors.NotFound, nil)
}
func (f *fakeStore) UpdateTenant(tenant *types.Tenant) error { return nil }
func (f *fakeStore) ResetUsageIfExpired(tenantID string, now time.Time, periodLength time.Duration) error {
	return nil
}
func (f *fakeStore) GetPlan(id string) (*types.Plan, error) {
	return nil, docerrors.E("fakeStore.GetPlan", docerrors.NotFound, nil)
}
func (f *fakeStore) ListPlans() ([]*types.Plan, error)            { return nil, nil }
func (f *fakeStore) PutPlan(plan *types.Plan) error               { return nil }
func (f *fakeStore) CreateAPIKey(key *types.APIKey) error         { return nil }
func (f *fakeStore) GetAPIKeyByHash(hash string) (*types.APIKey, error) {
	return nil, docerrors.E("fakeStore.GetAPIKeyByHash", docerrors.NotFound, nil)
}
func (f *fakeStore) ListAPIKeysByTenant(tenantID string) ([]*types.APIKey, error) { return nil, nil }
func (f *fakeStore) RevokeAPIKey(id string) error                                { return nil }
func (f *fakeStore) TouchAPIKey(id string, usedAt time.Time) error               { return nil }
func (f *fakeStore) Close() error                                                { return nil }

var _ jobstore.Store = (*fakeStore)(nil)

func writeTemp(t *testing.T, files *filestore.Store, name, content string) string {
	t.Helper()
	path, err := files.NewTempPath(filepath.Ext(name))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFinalizeSingleArtifact(t *testing.T) {
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	store := &fakeStore{}
	f := New(store, files)

	temp := writeTemp(t, files, "out.pdf", "hello world")

	err = f.Finalize("tenant-1", "job-1", types.KindCompress, []string{temp}, "compressed.pdf", types.ResultData{MimeType: "application/pdf"})
	require.NoError(t, err)

	assert.Equal(t, "job-1", store.completedJobID)
	assert.Equal(t, "compressed.pdf", store.outputName)
	assert.Equal(t, int64(len("hello world")), store.outputSize)
	assert.Len(t, store.outputPaths, 1)
	assert.FileExists(t, store.outputPaths[0])
	assert.Equal(t, []string{"tenant-1"}, store.usageIncrements)
	assert.NoFileExists(t, temp)
}

func TestFinalizeMultiArtifactPreservesOrder(t *testing.T) {
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	store := &fakeStore{}
	f := New(store, files)

	temp1 := writeTemp(t, files, "a.pdf", "page one")
	temp2 := writeTemp(t, files, "b.pdf", "page two longer")

	err = f.Finalize("tenant-1", "job-2", types.KindMerge, []string{temp1, temp2}, "merged.pdf", types.ResultData{})
	require.NoError(t, err)

	require.Len(t, store.outputPaths, 2)
	assert.Contains(t, store.outputPaths[0], "merged-1.pdf")
	assert.Contains(t, store.outputPaths[1], "merged-2.pdf")
	assert.Equal(t, int64(len("page one")+len("page two longer")), store.outputSize)
}

func TestFinalizeSplitPreservesPageIdentity(t *testing.T) {
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	store := &fakeStore{}
	f := New(store, files)

	temp1 := writeTemp(t, files, "page-1.pdf", "one")
	temp3 := writeTemp(t, files, "page-3.pdf", "three")
	temp4 := writeTemp(t, files, "page-4.pdf", "four")

	err = f.Finalize("tenant-1", "job-split", types.KindSplit, []string{temp1, temp3, temp4}, "split.pdf", types.ResultData{})
	require.NoError(t, err)

	require.Len(t, store.outputPaths, 3)
	assert.Contains(t, store.outputPaths[0], "page_1.pdf")
	assert.Contains(t, store.outputPaths[1], "page_3.pdf")
	assert.Contains(t, store.outputPaths[2], "page_4.pdf")
}

func TestFinalizeNoArtifactsStillCompletes(t *testing.T) {
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	store := &fakeStore{}
	f := New(store, files)

	err = f.Finalize("tenant-1", "job-3", types.KindCompare, nil, "compare-result", types.ResultData{
		Compare: &types.CompareResult{Identical: true, PageCountA: 3, PageCountB: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, "job-3", store.completedJobID)
	assert.Empty(t, store.outputPaths)
	assert.Equal(t, int64(0), store.outputSize)
	assert.True(t, store.resultData.Compare.Identical)
}

func TestFinalizeMissingTempFileErrors(t *testing.T) {
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	store := &fakeStore{}
	f := New(store, files)

	err = f.Finalize("tenant-1", "job-4", types.KindCompress, []string{filepath.Join(files.Root, "temp", "does-not-exist.pdf")}, "out.pdf", types.ResultData{})
	require.Error(t, err)
	assert.Empty(t, store.completedJobID, "job must not be completed when an artifact is missing")
}

func TestFinalizeUsageIncrementErrorPropagates(t *testing.T) {
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	store := &fakeStore{usageErr: assert.AnError}
	f := New(store, files)

	temp := writeTemp(t, files, "out.pdf", "x")
	err = f.Finalize("tenant-1", "job-5", types.KindCompress, []string{temp}, "out.pdf", types.ResultData{})
	require.Error(t, err)
}

func TestFinalizeManyWithCustomNaming(t *testing.T) {
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	store := &fakeStore{}
	f := New(store, files)

	temp1 := writeTemp(t, files, "a.pdf", "a")
	temp2 := writeTemp(t, files, "b.pdf", "b")

	paths, err := f.FinalizeMany([]string{temp1, temp2}, "tenant-2", "job-6", func(i int, _ string) string {
		return []string{"first.pdf", "second.pdf"}[i]
	})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "first.pdf")
	assert.Contains(t, paths[1], "second.pdf")

	assert.Empty(t, store.completedJobID, "FinalizeMany alone must not complete the job")
}
