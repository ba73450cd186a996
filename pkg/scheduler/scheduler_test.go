package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/filestore"
	"github.com/cuemby/docpipe/pkg/jobstore"
	"github.com/cuemby/docpipe/pkg/processor"
	"github.com/cuemby/docpipe/pkg/types"
)

// fakeStore implements jobstore.Store, recording only the calls the
// Scheduler makes (StartJob, FailJob, CancelJob) and stubbing the rest.
type fakeStore struct {
	mu sync.Mutex

	startErr error
	started  []string
	failed   []string
	canceled []string
}

func (f *fakeStore) StartJob(jobID string, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, jobID)
	return nil
}

func (f *fakeStore) FailJob(jobID string, completedAt time.Time, errKind, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, jobID)
	return nil
}

func (f *fakeStore) CancelJob(jobID string, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, jobID)
	return nil
}

func (f *fakeStore) callCounts() (started, failed, canceled int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started), len(f.failed), len(f.canceled)
}

func (f *fakeStore) CreateJob(job *types.Job) error { return nil }
func (f *fakeStore) GetJob(id string) (*types.Job, error) {
	return nil, docerrors.E("fakeStore.GetJob", docerrors.NotFound, nil)
}
func (f *fakeStore) ListJobsByTenant(tenantID string, filter jobstore.ListFilter) ([]*types.Job, error) {
	return nil, nil
}
func (f *fakeStore) CountJobsInPeriod(tenantID string, since time.Time) (int, error) { return 0, nil }
func (f *fakeStore) CompleteJob(jobID string, completedAt time.Time, outputPaths []string, outputName string, outputSize int64, resultData types.ResultData) error {
	return nil
}
func (f *fakeStore) DeleteJob(id string) error                               { return nil }
func (f *fakeStore) DeleteTenantJobs(tenantID string) ([]*types.Job, error)   { return nil, nil }
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
func (f *fakeStore) IncrementUsage(tenantID string) error    { return nil }
func (f *fakeStore) ResetUsageIfExpired(tenantID string, now time.Time, periodLength time.Duration) error {
	return nil
}
func (f *fakeStore) GetPlan(id string) (*types.Plan, error) {
	return nil, docerrors.E("fakeStore.GetPlan", docerrors.NotFound, nil)
}
func (f *fakeStore) ListPlans() ([]*types.Plan, error)  { return nil, nil }
func (f *fakeStore) PutPlan(plan *types.Plan) error     { return nil }
func (f *fakeStore) CreateAPIKey(key *types.APIKey) error { return nil }
func (f *fakeStore) GetAPIKeyByHash(hash string) (*types.APIKey, error) {
	return nil, docerrors.E("fakeStore.GetAPIKeyByHash", docerrors.NotFound, nil)
}
func (f *fakeStore) ListAPIKeysByTenant(tenantID string) ([]*types.APIKey, error) { return nil, nil }
func (f *fakeStore) RevokeAPIKey(id string) error                                { return nil }
func (f *fakeStore) TouchAPIKey(id string, usedAt time.Time) error               { return nil }
func (f *fakeStore) Close() error                                                { return nil }

var _ jobstore.Store = (*fakeStore)(nil)

// fakeFinalizer records what it was asked to finalize.
type fakeFinalizer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeFinalizer) Finalize(tenantID, jobID string, kind types.JobKind, artifacts []string, displayName string, resultData types.ResultData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

// stubProcessor is a Processor whose behavior each test controls directly.
type stubProcessor struct {
	delay  time.Duration
	err    error
	result *processor.Result
}

func (p *stubProcessor) Process(ctx context.Context, inputPaths []string, outDir string, params types.Params) (*processor.Result, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, docerrors.E("stubProcessor.Process", docerrors.SubprocessTimeout, ctx.Err())
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.result != nil {
		return p.result, nil
	}
	return &processor.Result{Artifacts: []string{"out.pdf"}}, nil
}

// fakeRegistry resolves every kind to the same Processor, regardless of
// what's asked for, unless unregistered is set.
type fakeRegistry struct {
	proc         processor.Processor
	unregistered bool
}

func (r *fakeRegistry) Get(kind types.JobKind) (processor.Processor, error) {
	if r.unregistered {
		return nil, fmt.Errorf("no processor for %s", kind)
	}
	return r.proc, nil
}

func newTestScheduler(t *testing.T, store *fakeStore, reg *fakeRegistry, fin *fakeFinalizer, cfg Config) *Scheduler {
	t.Helper()
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	return New(store, fs, reg, fin, cfg)
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	store := &fakeStore{}
	fin := &fakeFinalizer{}
	reg := &fakeRegistry{proc: &stubProcessor{}}
	s := newTestScheduler(t, store, reg, fin, Config{MaxConcurrentJobs: 2})
	s.Start()

	err := s.Submit(context.Background(), Ticket{JobID: "job-1", TenantID: "t1", Kind: types.KindCompress})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		started, failed, _ := store.callCounts()
		fin.mu.Lock()
		calls := fin.calls
		fin.mu.Unlock()
		return started == 1 && failed == 0 && calls == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSubmitBusyWhenPoolFull(t *testing.T) {
	store := &fakeStore{}
	fin := &fakeFinalizer{}
	reg := &fakeRegistry{proc: &stubProcessor{delay: 200 * time.Millisecond}}
	s := newTestScheduler(t, store, reg, fin, Config{
		MaxConcurrentJobs: 1,
		AdmissionTimeout:  20 * time.Millisecond,
	})
	s.Start()

	require.NoError(t, s.Submit(context.Background(), Ticket{JobID: "job-1", Kind: types.KindCompress}))

	err := s.Submit(context.Background(), Ticket{JobID: "job-2", Kind: types.KindCompress})
	require.Error(t, err)
	assert.Equal(t, docerrors.Busy, docerrors.KindOf(err))

	s.Stop()
}

func TestRunJobFailsWhenStartJobRejects(t *testing.T) {
	store := &fakeStore{startErr: fmt.Errorf("already processing")}
	fin := &fakeFinalizer{}
	reg := &fakeRegistry{proc: &stubProcessor{}}
	s := newTestScheduler(t, store, reg, fin, Config{MaxConcurrentJobs: 1})
	s.Start()

	require.NoError(t, s.Submit(context.Background(), Ticket{JobID: "job-1", Kind: types.KindCompress}))

	assert.Eventually(t, func() bool {
		started, failed, _ := store.callCounts()
		return started == 0 && failed == 0
	}, time.Second, 5*time.Millisecond)

	fin.mu.Lock()
	calls := fin.calls
	fin.mu.Unlock()
	assert.Equal(t, 0, calls, "finalizer should never run when StartJob is rejected")
}

func TestRunJobRecordsFailureOnProcessorError(t *testing.T) {
	store := &fakeStore{}
	fin := &fakeFinalizer{}
	reg := &fakeRegistry{proc: &stubProcessor{err: docerrors.E("processor.Compress", docerrors.ProcessorError, fmt.Errorf("boom"))}}
	s := newTestScheduler(t, store, reg, fin, Config{MaxConcurrentJobs: 1})
	s.Start()

	require.NoError(t, s.Submit(context.Background(), Ticket{JobID: "job-1", Kind: types.KindCompress}))

	assert.Eventually(t, func() bool {
		_, failed, _ := store.callCounts()
		return failed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRunJobDeadlineExceeded(t *testing.T) {
	store := &fakeStore{}
	fin := &fakeFinalizer{}
	reg := &fakeRegistry{proc: &stubProcessor{delay: 100 * time.Millisecond}}
	s := newTestScheduler(t, store, reg, fin, Config{
		MaxConcurrentJobs: 1,
		ProcessingTimeout: 10 * time.Millisecond,
	})
	s.Start()

	require.NoError(t, s.Submit(context.Background(), Ticket{JobID: "job-1", Kind: types.KindCompress}))

	assert.Eventually(t, func() bool {
		_, failed, _ := store.callCounts()
		return failed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCancelStopsRunningJob(t *testing.T) {
	store := &fakeStore{}
	fin := &fakeFinalizer{}
	reg := &fakeRegistry{proc: &stubProcessor{delay: time.Second}}
	s := newTestScheduler(t, store, reg, fin, Config{MaxConcurrentJobs: 1})
	s.Start()

	require.NoError(t, s.Submit(context.Background(), Ticket{JobID: "job-1", Kind: types.KindCompress}))
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, s.Cancel("job-1"))

	_, _, canceled := store.callCounts()
	assert.Equal(t, 1, canceled)
}

func TestUnregisteredKindFailsJob(t *testing.T) {
	store := &fakeStore{}
	fin := &fakeFinalizer{}
	reg := &fakeRegistry{unregistered: true}
	s := newTestScheduler(t, store, reg, fin, Config{MaxConcurrentJobs: 1})
	s.Start()

	require.NoError(t, s.Submit(context.Background(), Ticket{JobID: "job-1", Kind: types.KindCompress}))

	assert.Eventually(t, func() bool {
		_, failed, _ := store.callCounts()
		return failed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStopDrainsInFlightJobs(t *testing.T) {
	store := &fakeStore{}
	fin := &fakeFinalizer{}
	reg := &fakeRegistry{proc: &stubProcessor{delay: 30 * time.Millisecond}}
	s := newTestScheduler(t, store, reg, fin, Config{
		MaxConcurrentJobs: 1,
		ShutdownGrace:     time.Second,
	})
	s.Start()

	require.NoError(t, s.Submit(context.Background(), Ticket{JobID: "job-1", Kind: types.KindCompress}))
	s.Stop()

	fin.mu.Lock()
	calls := fin.calls
	fin.mu.Unlock()
	assert.Equal(t, 1, calls, "job should complete during the shutdown grace period")
}

func TestSubmitRejectedAfterStop(t *testing.T) {
	store := &fakeStore{}
	fin := &fakeFinalizer{}
	reg := &fakeRegistry{proc: &stubProcessor{}}
	s := newTestScheduler(t, store, reg, fin, Config{MaxConcurrentJobs: 1})
	s.Start()
	s.Stop()

	err := s.Submit(context.Background(), Ticket{JobID: "job-1", Kind: types.KindCompress})
	require.Error(t, err)
	assert.Equal(t, docerrors.Busy, docerrors.KindOf(err))
}
