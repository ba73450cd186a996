// Package scheduler runs processing jobs off the request path under a
// bounded worker pool shared by all tenants, enforcing the per-job deadline
// and the pool's concurrency limit.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/filestore"
	"github.com/cuemby/docpipe/pkg/jobstore"
	"github.com/cuemby/docpipe/pkg/log"
	"github.com/cuemby/docpipe/pkg/metrics"
	"github.com/cuemby/docpipe/pkg/processor"
	"github.com/cuemby/docpipe/pkg/types"
)

// Ticket is everything the Scheduler needs to run one job: the already
// durably-created Job's ID plus what the Processor needs to do its work.
type Ticket struct {
	JobID      string
	TenantID   string
	Kind       types.JobKind
	InputPaths []string
	OutputName string
	Params     types.Params
}

// Finalizer persists a job's artifacts and flips it to Completed in one
// step. The Scheduler depends on this interface rather than pkg/finalizer
// directly so it can be swapped for a fake in tests.
type Finalizer interface {
	Finalize(tenantID, jobID string, kind types.JobKind, artifacts []string, displayName string, resultData types.ResultData) error
}

// Registry resolves a job kind to the Processor that implements it. The
// Scheduler depends on this interface, not *processor.Registry directly,
// so tests can substitute a registry of fakes.
type Registry interface {
	Get(kind types.JobKind) (processor.Processor, error)
}

// Config controls the pool's admission and deadline behavior.
type Config struct {
	// MaxConcurrentJobs bounds how many jobs may run at once across all
	// tenants. Zero defaults to 4.
	MaxConcurrentJobs int

	// AdmissionTimeout is how long Submit waits for a free worker slot
	// before returning a Busy error. Zero defaults to 2s.
	AdmissionTimeout time.Duration

	// ProcessingTimeout is the hard deadline applied to a single job's
	// Processor call, including any subprocess it spawns. Zero defaults
	// to 300s.
	ProcessingTimeout time.Duration

	// ShutdownGrace is how long Stop waits for in-flight jobs to finish
	// on their own before cancelling them. Zero defaults to 10s.
	ShutdownGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 4
	}
	if c.AdmissionTimeout <= 0 {
		c.AdmissionTimeout = 2 * time.Second
	}
	if c.ProcessingTimeout <= 0 {
		c.ProcessingTimeout = 300 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

// Scheduler dispatches jobs onto a semaphore-bounded pool of goroutines.
// Unlike a reconciliation loop that periodically compares desired and
// actual state, it dispatches eagerly: Submit blocks only long enough to
// acquire a slot, then the job runs to completion or deadline in its own
// goroutine.
type Scheduler struct {
	store     jobstore.Store
	files     *filestore.Store
	registry  Registry
	finalizer Finalizer
	cfg       Config

	logger zerolog.Logger
	sem    chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	stopCh   chan struct{}
	draining bool
}

// New builds a Scheduler. Start must be called before Submit will accept
// work.
func New(store jobstore.Store, files *filestore.Store, registry Registry, finalizer Finalizer, cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		store:     store,
		files:     files,
		registry:  registry,
		finalizer: finalizer,
		cfg:       cfg,
		logger:    log.WithComponent("scheduler"),
		sem:       make(chan struct{}, cfg.MaxConcurrentJobs),
		cancels:   make(map[string]context.CancelFunc),
		stopCh:    make(chan struct{}),
	}
}

// Start marks the pool open for Submit. There is no background loop to
// launch; Start exists for symmetry with Stop and to make the pool's
// lifecycle explicit to callers.
func (s *Scheduler) Start() {
	s.logger.Info().Int("max_concurrent_jobs", s.cfg.MaxConcurrentJobs).Msg("scheduler started")
}

// Submit admits ticket onto the pool. It blocks until a worker slot is
// free or AdmissionTimeout elapses, in which case it returns a Busy error
// the API layer maps to 503. Submit returns as soon as the job is
// dispatched; it does not wait for the job to finish.
func (s *Scheduler) Submit(ctx context.Context, ticket Ticket) error {
	s.mu.Lock()
	draining := s.draining
	s.mu.Unlock()
	if draining {
		return docerrors.E("scheduler.Submit", docerrors.Busy, fmt.Errorf("scheduler is shutting down"))
	}

	admitCtx, cancel := context.WithTimeout(ctx, s.cfg.AdmissionTimeout)
	defer cancel()

	select {
	case s.sem <- struct{}{}:
	case <-admitCtx.Done():
		return docerrors.E("scheduler.Submit", docerrors.Busy, fmt.Errorf("no worker slot available within %s", s.cfg.AdmissionTimeout))
	case <-s.stopCh:
		return docerrors.E("scheduler.Submit", docerrors.Busy, fmt.Errorf("scheduler is shutting down"))
	}

	jobCtx, jobCancel := context.WithTimeout(context.Background(), s.cfg.ProcessingTimeout)
	s.mu.Lock()
	s.cancels[ticket.JobID] = jobCancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()
		defer jobCancel()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, ticket.JobID)
			s.mu.Unlock()
		}()

		s.runJob(jobCtx, ticket)
	}()

	return nil
}

// runJob carries one ticket from Pending through to a terminal status. Any
// error past this point is recorded on the job, never returned to a
// caller that has already moved on.
func (s *Scheduler) runJob(ctx context.Context, ticket Ticket) {
	logger := log.WithKind(string(ticket.Kind)).With().Str("job_id", ticket.JobID).Logger()
	timer := metrics.NewTimer()

	if err := s.store.StartJob(ticket.JobID, time.Now()); err != nil {
		logger.Error().Err(err).Msg("job could not be started (already claimed or cancelled)")
		metrics.JobsDispatchFailed.Inc()
		return
	}
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	proc, err := s.registry.Get(ticket.Kind)
	if err != nil {
		s.fail(ticket, logger, timer, docerrors.E("scheduler.runJob", docerrors.Internal, err))
		return
	}

	outDir, err := s.files.NewTempDir()
	if err != nil {
		s.fail(ticket, logger, timer, docerrors.E("scheduler.runJob", docerrors.Internal, err))
		return
	}
	defer os.RemoveAll(outDir)

	result, err := proc.Process(ctx, ticket.InputPaths, outDir, ticket.Params)
	if err != nil {
		s.fail(ticket, logger, timer, err)
		return
	}

	if err := s.finalizer.Finalize(ticket.TenantID, ticket.JobID, ticket.Kind, result.Artifacts, ticket.OutputName, result.Metadata); err != nil {
		s.fail(ticket, logger, timer, docerrors.E("scheduler.runJob", docerrors.Internal, err))
		return
	}

	timer.ObserveDurationVec(metrics.JobDuration, string(ticket.Kind), "completed")
	metrics.JobsCompleted.WithLabelValues(string(ticket.Kind)).Inc()
	logger.Info().Dur("elapsed", timer.Duration()).Msg("job completed")
}

func (s *Scheduler) fail(ticket Ticket, logger zerolog.Logger, timer *metrics.Timer, procErr error) {
	kind := docerrors.KindOf(procErr)
	if err := s.store.FailJob(ticket.JobID, time.Now(), string(kind), procErr.Error()); err != nil {
		logger.Error().Err(err).Msg("failed to record job failure")
	}
	timer.ObserveDurationVec(metrics.JobDuration, string(ticket.Kind), "failed")
	metrics.JobsFailed.WithLabelValues(string(ticket.Kind), string(kind)).Inc()
	logger.Error().Err(procErr).Str("kind", string(ticket.Kind)).Msg("job failed")
}

// Cancel requests that a Pending-or-Processing job stop. If the job has
// already left the pool (completed, failed, or was never submitted to
// this process), CancelJob on the store still records the terminal
// status; the in-memory cancel is best-effort for jobs currently running
// in this process.
func (s *Scheduler) Cancel(jobID string) error {
	s.mu.Lock()
	cancel, running := s.cancels[jobID]
	s.mu.Unlock()

	if err := s.store.CancelJob(jobID, time.Now()); err != nil {
		return err
	}
	if running {
		cancel()
	}
	return nil
}

// Stop stops admitting new jobs, waits up to ShutdownGrace for in-flight
// jobs to finish on their own, then cancels whatever remains and waits
// for those goroutines to unwind before returning.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("scheduler drained cleanly")
		return
	case <-time.After(s.cfg.ShutdownGrace):
	}

	s.mu.Lock()
	for jobID, cancel := range s.cancels {
		s.logger.Warn().Str("job_id", jobID).Msg("cancelling job past shutdown grace period")
		cancel()
	}
	s.mu.Unlock()

	<-done
	s.logger.Info().Msg("scheduler stopped")
}
