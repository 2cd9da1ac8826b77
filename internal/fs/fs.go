// Package fs provides the filesystem capabilities used by the index store.
//
// The main types are:
//   - [FS]: interface for path-based filesystem operations
//   - [Real]: production implementation using [os] package
//   - [Locker]: advisory flock(2) locks used for single-writer exclusion
//   - [Dir]: a data-root handle; every entry file operation is resolved
//     relative to its open descriptor
//
// Example usage:
//
//	dir, err := fs.OpenDir("/home/me/.uren")
//	if err != nil {
//	    return err
//	}
//	defer dir.Close()
//
//	err = dir.MkdirIfAbsent("alpha")
package fs

import (
	"io"
	"os"
)

// File represents an open file descriptor.
//
// This interface is satisfied by [os.File].
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. See [os.File.Fd].
	// Used for low-level operations like [syscall.Flock].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// FS defines the path-based filesystem operations needed outside the data
// root handle: opening lock files ([Locker]) and inspecting, creating and
// truncating the index file or directory (the kv backends).
//
// All methods mirror their [os] package equivalents.
type FS interface {
	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// RemoveAll deletes a path and any children. See [os.RemoveAll].
	RemoveAll(path string) error
}

// Compile-time interface checks.
var (
	_ File = (*os.File)(nil)
	_ FS   = (*Real)(nil)
)
