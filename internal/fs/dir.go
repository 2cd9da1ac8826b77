package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// ErrDirClosed is returned by [Dir] methods after [Dir.Close].
var ErrDirClosed = errors.New("dir closed")

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Dir is an open handle on a data root. Names passed to its methods are
// relative to the root and are resolved against the open descriptor with the
// *at family of syscalls, so the root path is resolved exactly once.
//
// Names must be relative and must not contain "..". They may contain a single
// separator ("project/file").
//
// Dir is safe for concurrent use. After Close every call fails with
// [ErrDirClosed].
type Dir struct {
	mu   sync.RWMutex
	fd   int
	path string
}

// OpenDir opens the directory at path, creating it and any parents first.
func OpenDir(path string) (*Dir, error) {
	if path == "" {
		return nil, errors.New("open dir: empty path")
	}

	if err := os.MkdirAll(path, dirPerm); err != nil {
		return nil, fmt.Errorf("open dir: %w", err)
	}

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}

	return &Dir{fd: fd, path: path}, nil
}

// Path returns the path the root was opened with.
func (d *Dir) Path() string {
	return d.path
}

// Join returns the path of name below the root, for messages and for
// libraries that only accept paths.
func (d *Dir) Join(name ...string) string {
	return filepath.Join(append([]string{d.path}, name...)...)
}

// Close releases the root descriptor. Close is idempotent.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fd < 0 {
		return nil
	}

	err := unix.Close(d.fd)
	d.fd = -1

	if err != nil {
		return &os.PathError{Op: "close", Path: d.path, Err: err}
	}

	return nil
}

// MkdirIfAbsent creates the directory name. An existing directory is not an
// error; an existing non-directory is.
func (d *Dir) MkdirIfAbsent(name string) error {
	return d.with("mkdirat", name, func(fd int, rel string) error {
		err := unix.Mkdirat(fd, rel, dirPerm)
		if err == nil {
			return nil
		}

		if !errors.Is(err, unix.EEXIST) {
			return err
		}

		var st unix.Stat_t
		if statErr := unix.Fstatat(fd, rel, &st, unix.AT_SYMLINK_NOFOLLOW); statErr != nil {
			return statErr
		}

		if st.Mode&unix.S_IFMT != unix.S_IFDIR {
			return unix.ENOTDIR
		}

		return nil
	})
}

// OpenRead opens name for reading.
func (d *Dir) OpenRead(name string) (*os.File, error) {
	var f *os.File

	err := d.with("openat", name, func(fd int, rel string) error {
		nfd, err := unix.Openat(fd, rel, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err != nil {
			return err
		}

		f = os.NewFile(uintptr(nfd), d.Join(rel))

		return nil
	})
	if err != nil {
		return nil, err
	}

	return f, nil
}

// ReadFile reads at most limit bytes of name. limit <= 0 reads everything.
func (d *Dir) ReadFile(name string, limit int64) ([]byte, error) {
	f, err := d.OpenRead(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.Join(name), err)
	}

	return data, nil
}

// Rename atomically moves oldName to newName, replacing newName if it exists.
// Both names are relative to the root, so the move never leaves the data tree.
func (d *Dir) Rename(oldName, newName string) error {
	if err := checkName(newName); err != nil {
		return &os.PathError{Op: "renameat", Path: newName, Err: err}
	}

	return d.with("renameat", oldName, func(fd int, rel string) error {
		err := unix.Renameat(fd, rel, fd, filepath.Clean(newName))
		if err != nil {
			return &os.LinkError{Op: "renameat", Old: d.Join(rel), New: d.Join(newName), Err: err}
		}

		return nil
	})
}

// Remove unlinks the file name.
func (d *Dir) Remove(name string) error {
	return d.with("unlinkat", name, func(fd int, rel string) error {
		return unix.Unlinkat(fd, rel, 0)
	})
}

// RemoveDirIfEmpty removes the directory name and reports whether it did. A
// non-empty directory is left in place and is not an error.
func (d *Dir) RemoveDirIfEmpty(name string) (bool, error) {
	removed := false

	err := d.with("unlinkat", name, func(fd int, rel string) error {
		err := unix.Unlinkat(fd, rel, unix.AT_REMOVEDIR)
		switch {
		case err == nil:
			removed = true
			return nil
		case errors.Is(err, unix.ENOTEMPTY), errors.Is(err, unix.EEXIST):
			return nil
		default:
			return err
		}
	})

	return removed, err
}

// ReadDir lists the directory name ("." for the root), sorted by file name.
func (d *Dir) ReadDir(name string) ([]os.DirEntry, error) {
	var entries []os.DirEntry

	err := d.with("openat", name, func(fd int, rel string) error {
		nfd, err := unix.Openat(fd, rel, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
		if err != nil {
			return err
		}

		f := os.NewFile(uintptr(nfd), d.Join(rel))
		defer f.Close()

		entries, err = f.ReadDir(-1)
		if err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})

	return entries, nil
}

// CreateExclusive creates an empty file name, failing with an error matching
// [os.ErrExist] if it already exists.
func (d *Dir) CreateExclusive(name string) error {
	return d.with("openat", name, func(fd int, rel string) error {
		nfd, err := unix.Openat(fd, rel, unix.O_WRONLY|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, filePerm)
		if err != nil {
			return err
		}

		return unix.Close(nfd)
	})
}

// Stat returns file info for name without following a final symlink.
func (d *Dir) Stat(name string) (os.FileInfo, error) {
	var info os.FileInfo

	err := d.with("fstatat", name, func(fd int, rel string) error {
		var st unix.Stat_t
		if err := unix.Fstatat(fd, rel, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return err
		}

		info = statInfo{name: filepath.Base(rel), st: st}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

// Exists reports whether name exists.
func (d *Dir) Exists(name string) (bool, error) {
	_, err := d.Stat(name)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, err
}

// WriteFileAtomic writes r to name through a temp file and rename.
func (d *Dir) WriteFileAtomic(name string, r io.Reader) error {
	if err := checkName(name); err != nil {
		return &os.PathError{Op: "write", Path: name, Err: err}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.fd < 0 {
		return ErrDirClosed
	}

	if err := atomic.WriteFile(d.Join(name), r); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}

// with validates name and runs op against the root descriptor. Errors from
// op that are bare errnos are wrapped in an [os.PathError].
func (d *Dir) with(op, name string, fn func(fd int, rel string) error) error {
	if err := checkName(name); err != nil {
		return &os.PathError{Op: op, Path: name, Err: err}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.fd < 0 {
		return ErrDirClosed
	}

	rel := filepath.Clean(name)

	err := fn(d.fd, rel)
	if err == nil {
		return nil
	}

	if errno, ok := err.(unix.Errno); ok {
		return &os.PathError{Op: op, Path: d.Join(rel), Err: errno}
	}

	return err
}

var errBadName = errors.New("invalid name")

func checkName(name string) error {
	if name == "" || filepath.IsAbs(name) {
		return errBadName
	}

	for part := range strings.SplitSeq(filepath.Clean(name), string(filepath.Separator)) {
		if part == ".." {
			return errBadName
		}
	}

	return nil
}

type statInfo struct {
	name string
	st   unix.Stat_t
}

func (s statInfo) Name() string { return s.name }
func (s statInfo) Size() int64  { return s.st.Size }
func (s statInfo) IsDir() bool  { return s.st.Mode&unix.S_IFMT == unix.S_IFDIR }
func (s statInfo) Sys() any     { return &s.st }

func (s statInfo) ModTime() time.Time {
	return time.Unix(int64(s.st.Mtim.Sec), int64(s.st.Mtim.Nsec))
}

func (s statInfo) Mode() os.FileMode {
	mode := os.FileMode(s.st.Mode & 0o777)

	switch s.st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		mode |= os.ModeDir
	case unix.S_IFLNK:
		mode |= os.ModeSymlink
	case unix.S_IFIFO:
		mode |= os.ModeNamedPipe
	case unix.S_IFSOCK:
		mode |= os.ModeSocket
	case unix.S_IFCHR:
		mode |= os.ModeDevice | os.ModeCharDevice
	case unix.S_IFBLK:
		mode |= os.ModeDevice
	}

	return mode
}
