package filestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNewCreatesLayout(t *testing.T) {
	s := newTestStore(t)
	for _, sub := range []string{"uploads", "downloads", "temp"} {
		info, err := os.Stat(filepath.Join(s.Root, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestSaveUpload(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.SaveUpload(strings.NewReader("%PDF-1.4 fake"), "tenant-1", "", "report.pdf")
	require.NoError(t, err)

	assert.FileExists(t, saved.Path)
	assert.Equal(t, int64(len("%PDF-1.4 fake")), saved.Size)
	assert.NotEmpty(t, saved.SHA256)
	assert.True(t, strings.HasSuffix(saved.Path, ".pdf"))
	assert.True(t, strings.HasPrefix(saved.Path, filepath.Join(s.Root, "uploads", "tenant-1")))
}

func TestSaveUploadRejectsTraversalInName(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SaveUpload(strings.NewReader("x"), "tenant-1", "", "../../etc/passwd")
	require.Error(t, err)
	assert.Equal(t, docerrors.InvalidInput, docerrors.KindOf(err))
}

func TestSaveUploadRejectsReservedChars(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"a:b.pdf", "a*b.pdf", "a?b.pdf", `a\b.pdf`} {
		_, err := s.SaveUpload(strings.NewReader("x"), "tenant-1", "", name)
		require.Error(t, err, name)
		assert.Equal(t, docerrors.InvalidInput, docerrors.KindOf(err))
	}
}

func TestFinalizeOutputMoves(t *testing.T) {
	s := newTestStore(t)

	temp, err := s.NewTempPath(".pdf")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(temp, []byte("result"), 0o644))

	dest, err := s.FinalizeOutput(temp, "tenant-1", "job-1", "compressed.pdf")
	require.NoError(t, err)

	assert.FileExists(t, dest)
	assert.NoFileExists(t, temp)
	assert.Equal(t, filepath.Join(s.Root, "downloads", "tenant-1", "job-1", "compressed.pdf"), dest)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.SaveUpload(strings.NewReader("x"), "tenant-1", "", "a.pdf")
	require.NoError(t, err)

	require.NoError(t, s.Delete(saved.Path))
	assert.NoFileExists(t, saved.Path)
}

func TestDeleteNonExistentIsNoop(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete(filepath.Join(s.Root, "uploads", "tenant-1", "missing.pdf"))
	assert.NoError(t, err)
}

func TestDeleteTenant(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.SaveUpload(strings.NewReader("x"), "tenant-1", "", "a.pdf")
	require.NoError(t, err)

	require.NoError(t, s.DeleteTenant("tenant-1"))
	assert.NoFileExists(t, saved.Path)
}

func TestCanonicalizeRejectsEscape(t *testing.T) {
	s := newTestStore(t)

	_, err := s.canonicalize(filepath.Join(s.Root, "uploads", "..", "..", "etc", "passwd"))
	require.Error(t, err)
	assert.Equal(t, docerrors.PathEscape, docerrors.KindOf(err))
}

func TestOpenMissingFile(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Open(filepath.Join(s.Root, "uploads", "tenant-1", "missing.pdf"))
	require.Error(t, err)
	assert.Equal(t, docerrors.NotFound, docerrors.KindOf(err))
}
