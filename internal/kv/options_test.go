package kv_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/uren/internal/fs"
	"github.com/calvinalkan/uren/internal/kv"
)

var errStatDenied = errors.New("stat denied")

// recordingFS passes through to the real filesystem, logging each index
// path operation and optionally failing Exists.
type recordingFS struct {
	*fs.Real
	calls     []string
	existsErr error
}

func (r *recordingFS) Exists(path string) (bool, error) {
	r.calls = append(r.calls, "exists "+filepath.Base(path))
	if r.existsErr != nil {
		return false, r.existsErr
	}

	return r.Real.Exists(path)
}

func (r *recordingFS) MkdirAll(path string, perm os.FileMode) error {
	r.calls = append(r.calls, "mkdir "+filepath.Base(path))
	return r.Real.MkdirAll(path, perm)
}

func (r *recordingFS) RemoveAll(path string) error {
	r.calls = append(r.calls, "removeall "+filepath.Base(path))
	return r.Real.RemoveAll(path)
}

func Test_OpenBolt_Uses_Options_FS_When_Checking_And_Creating_Index(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	rec := &recordingFS{Real: fs.NewReal()}

	db, err := kv.OpenBolt(kv.Options{Path: filepath.Join(dir, ".cache"), FS: rec})
	require.NoError(t, err)
	require.True(t, db.Created())
	require.NoError(t, db.Close())

	require.Equal(t, []string{"exists .cache", "mkdir data"}, rec.calls)

	rec.calls = nil

	db, err = kv.OpenBolt(kv.Options{Path: filepath.Join(dir, ".cache"), FS: rec})
	require.NoError(t, err)
	require.False(t, db.Created())
	require.NoError(t, db.Close())
}

func Test_OpenPebble_Truncates_Through_Options_FS_When_Truncate_Set(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".cache")
	rec := &recordingFS{Real: fs.NewReal()}

	db, err := kv.OpenPebble(kv.Options{Path: path, FS: rec})
	require.NoError(t, err)
	putAll(t, db, "Pa")
	require.NoError(t, db.Close())

	rec.calls = nil

	db, err = kv.OpenPebble(kv.Options{Path: path, Truncate: true, FS: rec})
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	require.Equal(t, []string{"removeall .cache", "exists .cache"}, rec.calls)
	require.True(t, db.Created())
	require.Empty(t, scanForward(t, db))
}

// Contract: a stat failure on the index path is an open error, not a fresh index.
func Test_Open_Fails_When_Index_Stat_Fails(t *testing.T) {
	t.Parallel()

	for _, backend := range []kv.Backend{kv.BackendBolt, kv.BackendPebble} {
		rec := &recordingFS{Real: fs.NewReal(), existsErr: errStatDenied}

		_, err := kv.Open(backend, kv.Options{Path: filepath.Join(t.TempDir(), ".cache"), FS: rec})
		require.ErrorIs(t, err, errStatDenied, "backend %s", backend)
	}
}
