// Package kv is the ordered key substrate underneath the time-entry index.
//
// Every backend stores a sorted set of byte keys (values are always empty)
// compared byte-lexicographically, and exposes it through read and update
// transactions with a bidirectional cursor. Three backends are available:
//
//   - [Bolt]: a single B+tree file (go.etcd.io/bbolt); the default
//   - [Pebble]: an LSM directory (github.com/cockroachdb/pebble)
//   - [Memory]: an in-process B-tree (github.com/google/btree); nothing
//     survives Close
package kv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/uren/internal/fs"
)

// ErrClosed is returned by transactions started after Close.
var ErrClosed = errors.New("kv: closed")

// ErrEmptyKey is returned by Put for a zero-length key.
var ErrEmptyKey = errors.New("kv: empty key")

var errReadOnly = errors.New("kv: write in read-only transaction")

// DB is an ordered set of keys.
type DB interface {
	// View runs fn in a read-only transaction.
	View(fn func(Tx) error) error

	// Update runs fn in a read-write transaction. If fn returns an error or
	// the commit fails, none of fn's writes are applied.
	Update(fn func(Tx) error) error

	// Created reports whether Open found no prior contents (new or truncated).
	Created() bool

	// Close flushes and releases the store.
	Close() error
}

// Tx is a transaction. It must not be used after the callback that received
// it returns. Cursors must not be used across Put or Delete in the same Tx.
type Tx interface {
	Has(key []byte) (bool, error)
	Put(key []byte) error
	Delete(key []byte) error

	// Cursor returns a new cursor. The caller must Close it.
	Cursor() Cursor
}

// Cursor walks keys in byte order. Positioning methods return the key at the
// new position or nil when the cursor ran off either end. A returned key is
// only valid until the next call on the cursor; copy it to keep it.
type Cursor interface {
	// Seek positions at the first key >= target.
	Seek(target []byte) []byte
	Next() []byte
	Prev() []byte
	Last() []byte

	// Close releases the cursor. A cursor that stopped early because of an
	// error returns nil from its positioning methods and reports the error
	// here, so callers must check it before trusting a finished walk.
	Close() error
}

// Options configure Open.
type Options struct {
	// Path is the file (bolt) or directory (pebble) holding the store. Ignored
	// by the memory backend.
	Path string

	// Truncate discards any prior contents.
	Truncate bool

	// FS is used to inspect, create and truncate Path. Nil means [fs.Real].
	FS fs.FS
}

func (o Options) fs() fs.FS {
	if o.FS == nil {
		return fs.NewReal()
	}

	return o.FS
}

// Backend names a substrate implementation.
type Backend string

const (
	BackendBolt   Backend = "bolt"
	BackendPebble Backend = "pebble"
	BackendMemory Backend = "memory"
)

// Backends lists the accepted backend names.
func Backends() []Backend {
	return []Backend{BackendBolt, BackendPebble, BackendMemory}
}

// ParseBackend validates a backend name. The empty string selects bolt.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendBolt, nil
	case BackendBolt, BackendPebble, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want bolt, pebble or memory)", s)
	}
}

// Open opens the store for backend.
func Open(backend Backend, opts Options) (DB, error) {
	switch backend {
	case BackendBolt, "":
		return OpenBolt(opts)
	case BackendPebble:
		return OpenPebble(opts)
	case BackendMemory:
		return OpenMemory(), nil
	default:
		return nil, fmt.Errorf("open: unknown backend %q", backend)
	}
}
