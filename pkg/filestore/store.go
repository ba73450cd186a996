package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
)

// forbiddenNameChars mirrors the storage layout contract: a caller-supplied
// filename containing any of these after basename stripping is rejected
// rather than sanitized.
const forbiddenNameChars = `/\:*?"<>|`

// SavedFile is what SaveUpload reports back about a newly written file.
type SavedFile struct {
	Path     string
	Size     int64
	MimeType string
	SHA256   string
}

// Store is the tenant-isolated filesystem underneath uploads, downloads and
// scratch space. Every method that takes an external path canonicalizes it
// and rejects anything that resolves outside Root.
type Store struct {
	Root string
}

// New creates the root/uploads, root/downloads and root/temp directories if
// missing and returns a Store rooted there.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	for _, sub := range []string{"uploads", "downloads", "temp"} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return &Store{Root: abs}, nil
}

// canonicalize resolves symlinks and ".." segments in path and asserts the
// result falls under Root. It never echoes the rejected path back to the
// caller, per the path-traversal defense contract.
func (s *Store) canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", docerrors.E("filestore.canonicalize", docerrors.PathEscape, nil)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The target may not exist yet (e.g. a destination we're about to
		// create); resolve the nearest existing ancestor and re-append the
		// missing trailing elements so new-file paths are still checked.
		dir, rest := abs, ""
		for {
			parent := filepath.Dir(dir)
			if parent == dir {
				return "", docerrors.E("filestore.canonicalize", docerrors.PathEscape, nil)
			}
			rest = filepath.Join(filepath.Base(dir), rest)
			dir = parent
			if r, err2 := filepath.EvalSymlinks(dir); err2 == nil {
				resolved = filepath.Join(r, rest)
				break
			}
		}
	}
	rootWithSep := s.Root + string(filepath.Separator)
	if resolved != s.Root && !strings.HasPrefix(resolved, rootWithSep) {
		return "", docerrors.E("filestore.canonicalize", docerrors.PathEscape, nil)
	}
	return resolved, nil
}

// sanitizeName validates a caller-supplied filename per the storage layout
// contract: basename only, no path separators or reserved characters.
func sanitizeName(name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == "" {
		return "", docerrors.E("filestore.sanitizeName", docerrors.InvalidInput, nil)
	}
	if strings.ContainsAny(base, forbiddenNameChars) || strings.Contains(name, "..") {
		return "", docerrors.E("filestore.sanitizeName", docerrors.InvalidInput, nil)
	}
	return base, nil
}

// SaveUpload writes src to uploads/<tenantID>/[<jobID>/]<uuid><ext>, detects
// its content type from the written bytes, and returns the stored path,
// size, MIME type and digest.
func (s *Store) SaveUpload(src io.Reader, tenantID, jobID, originalName string) (*SavedFile, error) {
	base, err := sanitizeName(originalName)
	if err != nil {
		return nil, err
	}
	ext := filepath.Ext(base)

	dir := filepath.Join(s.Root, "uploads", tenantID)
	if jobID != "" {
		dir = filepath.Join(dir, jobID)
	}
	if _, err := s.canonicalize(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(dir, uuid.New().String()+ext)
	if _, err := s.canonicalize(path); err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hasher), src)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write upload: %w", err)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("detect mime type: %w", err)
	}

	return &SavedFile{
		Path:     path,
		Size:     size,
		MimeType: mtype.String(),
		SHA256:   hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// NewTempPath reserves a path under temp/ for a processor to write an
// intermediate or final artifact to before it is finalized or discarded.
func (s *Store) NewTempPath(ext string) (string, error) {
	path := filepath.Join(s.Root, "temp", uuid.New().String()+ext)
	if _, err := s.canonicalize(path); err != nil {
		return "", err
	}
	return path, nil
}

// NewTempDir creates and returns a fresh scratch directory under temp/ for
// a Processor to write its output artifacts into. The caller is
// responsible for removing it once its contents have been finalized or
// discarded.
func (s *Store) NewTempDir() (string, error) {
	path := filepath.Join(s.Root, "temp", uuid.New().String())
	if _, err := s.canonicalize(path); err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	return path, nil
}

// FinalizeOutput moves tempPath into downloads/<tenantID>/<jobID>/<displayName>.
// It tries a rename first and falls back to copy-then-unlink for cross-device
// moves.
func (s *Store) FinalizeOutput(tempPath, tenantID, jobID, displayName string) (string, error) {
	if _, err := s.canonicalize(tempPath); err != nil {
		return "", err
	}
	name, err := sanitizeName(displayName)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(s.Root, "downloads", tenantID, jobID)
	if _, err := s.canonicalize(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	dest := filepath.Join(dir, name)
	if _, err := s.canonicalize(dest); err != nil {
		return "", err
	}

	if err := os.Rename(tempPath, dest); err != nil {
		if err := copyThenUnlink(tempPath, dest); err != nil {
			return "", fmt.Errorf("finalize output: %w", err)
		}
	}
	return dest, nil
}

func copyThenUnlink(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// Delete removes a single file. path is canonicalized first.
func (s *Store) Delete(path string) error {
	resolved, err := s.canonicalize(path)
	if err != nil {
		return err
	}
	if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// DeleteTenant removes every upload and download belonging to tenantID.
func (s *Store) DeleteTenant(tenantID string) error {
	for _, sub := range []string{"uploads", "downloads"} {
		dir := filepath.Join(s.Root, sub, tenantID)
		resolved, err := s.canonicalize(dir)
		if err != nil {
			return err
		}
		if err := os.RemoveAll(resolved); err != nil {
			return fmt.Errorf("delete tenant %s: %w", sub, err)
		}
	}
	return nil
}

// DownloadPath builds the canonical path to a finalized artifact under
// downloads/<tenantID>/<jobID>/<filename>. The caller still must pass the
// result to Open, which re-validates it canonicalizes under Root.
func (s *Store) DownloadPath(tenantID, jobID, filename string) string {
	return filepath.Join(s.Root, "downloads", tenantID, jobID, filename)
}

// Open opens path for reading after canonicalizing it.
func (s *Store) Open(path string) (*os.File, error) {
	resolved, err := s.canonicalize(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, docerrors.E("filestore.Open", docerrors.NotFound, nil)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}
