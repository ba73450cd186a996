// Package finalizer installs a Processor's output into a tenant's
// download area and completes the owning job in one step, so a reader of
// the Job Store never observes a COMPLETED job whose artifacts are not
// yet in place.
package finalizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/docpipe/pkg/filestore"
	"github.com/cuemby/docpipe/pkg/jobstore"
	"github.com/cuemby/docpipe/pkg/types"
)

// NamingFunc derives a multi-artifact job's per-file display name from its
// position in the (caller-significant) artifact order and its temp path,
// e.g. split's page files keep the page number encoded in their temp name.
type NamingFunc func(index int, tempPath string) string

// Finalizer moves Processor output out of scratch space and completes the
// job record that produced it.
type Finalizer struct {
	store jobstore.Store
	files *filestore.Store
}

// New builds a Finalizer.
func New(store jobstore.Store, files *filestore.Store) *Finalizer {
	return &Finalizer{store: store, files: files}
}

// Finalize implements the scheduler.Finalizer interface. A single artifact
// is installed under displayName. More than one artifact uses a
// kind-specific naming scheme: split keeps each page file's original page
// number (the Processor names its temp files page-<n>.pdf) so a caller
// can tell which output is which page; every other multi-artifact kind
// falls back to an index-prefixed scheme. Callers that need precise
// control over multi-artifact naming should call FinalizeMany directly
// instead.
func (f *Finalizer) Finalize(tenantID, jobID string, kind types.JobKind, tempPaths []string, displayName string, resultData types.ResultData) error {
	switch len(tempPaths) {
	case 0:
		return f.complete(jobID, tenantID, nil, displayName, 0, resultData)
	case 1:
		dest, size, err := f.install(tempPaths[0], tenantID, jobID, displayName)
		if err != nil {
			return err
		}
		return f.complete(jobID, tenantID, []string{dest}, displayName, size, resultData)
	default:
		naming := indexNaming(displayName)
		if kind == types.KindSplit {
			naming = splitPageNaming
		}
		paths, err := f.FinalizeMany(tempPaths, tenantID, jobID, naming)
		if err != nil {
			return err
		}
		total, err := f.totalSize(paths)
		if err != nil {
			return err
		}
		return f.complete(jobID, tenantID, paths, displayName, total, resultData)
	}
}

// indexNaming builds the default multi-artifact naming scheme: displayName
// with a 1-based index inserted before its extension.
func indexNaming(displayName string) NamingFunc {
	ext := filepath.Ext(displayName)
	base := displayName[:len(displayName)-len(ext)]
	return func(i int, _ string) string {
		return fmt.Sprintf("%s-%d%s", base, i+1, ext)
	}
}

// splitPageNaming recovers the page number SplitProcessor encoded in its
// temp file's name (page-<n>.pdf) so the finalized artifact keeps that
// page's identity instead of a positional index.
func splitPageNaming(i int, tempPath string) string {
	ext := filepath.Ext(tempPath)
	base := strings.TrimSuffix(filepath.Base(tempPath), ext)
	if n, err := strconv.Atoi(strings.TrimPrefix(base, "page-")); err == nil {
		return fmt.Sprintf("page_%d%s", n, ext)
	}
	return fmt.Sprintf("page_%d%s", i+1, ext)
}

// FinalizeMany installs every temp artifact under a name naming computes
// from its index, preserving tempPaths' order in the returned slice. It
// does not itself complete the job; callers orchestrating a multi-artifact
// job call this then CompleteJob (or Finalize, which wraps both steps
// with a default naming scheme).
func (f *Finalizer) FinalizeMany(tempPaths []string, tenantID, jobID string, naming NamingFunc) ([]string, error) {
	dests := make([]string, 0, len(tempPaths))
	for i, tempPath := range tempPaths {
		dest, _, err := f.install(tempPath, tenantID, jobID, naming(i, tempPath))
		if err != nil {
			return nil, err
		}
		dests = append(dests, dest)
	}
	return dests, nil
}

func (f *Finalizer) install(tempPath, tenantID, jobID, displayName string) (string, int64, error) {
	dest, err := f.files.FinalizeOutput(tempPath, tenantID, jobID, displayName)
	if err != nil {
		return "", 0, fmt.Errorf("finalize artifact: %w", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return "", 0, fmt.Errorf("stat finalized artifact: %w", err)
	}
	return dest, info.Size(), nil
}

func (f *Finalizer) totalSize(paths []string) (int64, error) {
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return 0, fmt.Errorf("stat finalized artifact: %w", err)
		}
		total += info.Size()
	}
	return total, nil
}

func (f *Finalizer) complete(jobID, tenantID string, outputPaths []string, outputName string, outputSize int64, resultData types.ResultData) error {
	now := time.Now()
	if err := f.store.CompleteJob(jobID, now, outputPaths, outputName, outputSize, resultData); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if err := f.store.IncrementUsage(tenantID); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}
