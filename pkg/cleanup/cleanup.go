// Package cleanup runs the two idempotent reclamation passes that keep
// the filestore and job store from growing without bound: a file age
// sweep over uploads/downloads/temp, and a job age sweep over terminal
// job records and their artifacts.
package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/docpipe/pkg/filestore"
	"github.com/cuemby/docpipe/pkg/jobstore"
	"github.com/cuemby/docpipe/pkg/log"
	"github.com/cuemby/docpipe/pkg/metrics"
	"github.com/cuemby/docpipe/pkg/types"
)

// Config controls sweep thresholds and cadence. Zero values fall back to
// the defaults named in the storage and job retention contracts.
type Config struct {
	Interval             time.Duration
	MaxFileAge           time.Duration
	MaxTempFileAge       time.Duration
	TerminalJobRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.MaxFileAge <= 0 {
		c.MaxFileAge = 24 * time.Hour
	}
	if c.MaxTempFileAge <= 0 {
		c.MaxTempFileAge = time.Hour
	}
	if c.TerminalJobRetention <= 0 {
		c.TerminalJobRetention = 30 * 24 * time.Hour
	}
	return c
}

// Service runs both sweeps on a ticker, mirroring the ticker-driven
// periodic-collection shape used elsewhere in the ambient stack.
type Service struct {
	store  jobstore.Store
	files  *filestore.Store
	cfg    Config
	logger zerolog.Logger
	stopCh chan struct{}
}

// New builds a cleanup Service.
func New(store jobstore.Store, files *filestore.Store, cfg Config) *Service {
	return &Service{
		store:  store,
		files:  files,
		cfg:    cfg.withDefaults(),
		logger: log.WithComponent("cleanup"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the sweep ticker. Sweeps run immediately on start and then
// every Config.Interval.
func (s *Service) Start() {
	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		s.runSweeps()
		for {
			select {
			case <-ticker.C:
				s.runSweeps()
			case <-s.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the sweep ticker.
func (s *Service) Stop() {
	close(s.stopCh)
}

func (s *Service) runSweeps() {
	now := time.Now()
	if err := s.sweepFiles(now); err != nil {
		s.logger.Error().Err(err).Msg("file age sweep failed")
	}
	if err := s.sweepJobs(now); err != nil {
		s.logger.Error().Err(err).Msg("job age sweep failed")
	}
}

// sweepFiles deletes files under uploads/ and downloads/ older than
// MaxFileAge, files under temp/ older than MaxTempFileAge, and prunes
// directories left empty afterward. Processing jobs are never touched
// here: their artifacts are still in temp/ or not yet written, and this
// sweep only ever removes files by age, never by association with a job.
func (s *Service) sweepFiles(now time.Time) error {
	if err := s.sweepSubtree(filepath.Join(s.files.Root, "uploads"), s.cfg.MaxFileAge, now, "uploads"); err != nil {
		return err
	}
	if err := s.sweepSubtree(filepath.Join(s.files.Root, "downloads"), s.cfg.MaxFileAge, now, "downloads"); err != nil {
		return err
	}
	return s.sweepSubtree(filepath.Join(s.files.Root, "temp"), s.cfg.MaxTempFileAge, now, "temp")
}

func (s *Service) sweepSubtree(root string, maxAge time.Duration, now time.Time, label string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root {
				dirs = append(dirs, path)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) <= maxAge {
			return nil
		}
		if err := s.files.Delete(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to delete aged file")
			return nil
		}
		metrics.CleanupFilesDeletedTotal.WithLabelValues(label).Inc()
		return nil
	})
	if err != nil {
		return err
	}

	// Prune deepest directories first so a now-empty parent becomes
	// removable on the same pass.
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
	return nil
}

// sweepJobs deletes terminal (Completed/Failed) jobs whose CompletedAt
// predates TerminalJobRetention, removing their artifacts first so a
// reader never observes a dangling Job record pointing at a deleted file
// and a live file with no owning record at the same time.
func (s *Service) sweepJobs(now time.Time) error {
	cutoff := now.Add(-s.cfg.TerminalJobRetention)
	jobs, err := s.store.ListTerminalJobsOlderThan(cutoff)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		s.deleteJobArtifacts(job)
		if err := s.store.DeleteJob(job.ID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to delete aged job record")
			continue
		}
		metrics.CleanupJobsDeletedTotal.Inc()
	}
	return nil
}

func (s *Service) deleteJobArtifacts(job *types.Job) {
	for _, path := range job.OutputPaths {
		if err := s.files.Delete(path); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Str("path", path).Msg("failed to delete job output artifact")
		}
	}
	for _, path := range job.InputPaths {
		if err := s.files.Delete(path); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Str("path", path).Msg("failed to delete job input artifact")
		}
	}
}
