// Package store is the time-entry index: entry files live at
// <data>/<project>/<YYYYMMDDTHHMMZ_YYYYMMDDTHHMMZ>, and an ordered key set
// holds two keys per entry, one ordered by project and one by date, so range
// scans never touch the files.
//
// A Store holds an exclusive lock on its index for its whole lifetime; a
// second Open on the same index fails with [ErrAlreadyRunning]. Methods are
// safe to call from one goroutine at a time.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/calvinalkan/uren/internal/fs"
	"github.com/calvinalkan/uren/internal/kv"
)

// DefaultIndexName is the index file (or directory) inside the data root.
const DefaultIndexName = ".cache"

// Options configure [Open].
type Options struct {
	// DataDir is the data root. Required.
	DataDir string

	// IndexPath overrides the index location. Defaults to DataDir/.cache.
	IndexPath string

	// Backend selects the key substrate. Defaults to bolt.
	Backend kv.Backend

	// Truncate discards the existing index and rebuilds it from the files.
	Truncate bool

	// Logger receives warnings about skipped files and duplicate keys.
	// Nil discards them.
	Logger *slog.Logger
}

// Store is an open index over a data root.
type Store struct {
	dir     *fs.Dir
	db      kv.DB
	lock    *fs.Lock
	log     *slog.Logger
	created bool
	indexed int
}

// Open locks and opens the index for opts.DataDir, creating the data root and
// the index if needed. A newly created (or truncated) index is rebuilt from
// the entry files before Open returns.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if ctx == nil {
		return nil, errors.New("open store: context is nil")
	}

	if opts.DataDir == "" {
		return nil, errors.New("open store: data directory is empty")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	indexPath := opts.IndexPath
	if indexPath == "" {
		indexPath = filepath.Join(opts.DataDir, DefaultIndexName)
	}

	dir, err := fs.OpenDir(filepath.Clean(opts.DataDir))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	fsys := fs.NewReal()

	lock, err := fs.NewLocker(fsys).TryLock(indexPath + ".lock")
	if err != nil {
		_ = dir.Close()

		if errors.Is(err, fs.ErrWouldBlock) {
			return nil, fmt.Errorf("open store: %w: %s is locked by another process", ErrAlreadyRunning, indexPath)
		}

		return nil, fmt.Errorf("open store: lock: %w", err)
	}

	db, err := kv.Open(opts.Backend, kv.Options{Path: indexPath, Truncate: opts.Truncate, FS: fsys})
	if err != nil {
		_ = lock.Close()
		_ = dir.Close()

		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{
		dir:     dir,
		db:      db,
		lock:    lock,
		log:     logger,
		created: db.Created(),
	}

	if s.created {
		n, err := s.rebuild(ctx)
		if err != nil {
			_ = s.Close()

			return nil, fmt.Errorf("open store: %w", err)
		}

		s.indexed = n
		logger.Debug("index rebuilt", "path", indexPath, "entries", n)
	}

	return s, nil
}

// Created reports whether Open created (and therefore rebuilt) the index.
func (s *Store) Created() bool { return s.created }

// Rebuilt returns the number of entries indexed by the rebuild in Open.
func (s *Store) Rebuilt() int { return s.indexed }

// Dir returns the data root handle. It is closed by Close.
func (s *Store) Dir() *fs.Dir { return s.dir }

// DataDir returns the data root path.
func (s *Store) DataDir() string { return s.dir.Path() }

// Close flushes the index and releases the lock. Close is idempotent.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	dbErr := s.db.Close()
	dirErr := s.dir.Close()
	lockErr := s.lock.Close()
	s.db = nil

	if dbErr != nil {
		dbErr = fmt.Errorf("close index: %w", dbErr)
	}

	return errors.Join(dbErr, dirErr, lockErr)
}

// Contains reports whether k is indexed.
func (s *Store) Contains(k Key) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}

	var ok bool

	err := s.db.View(func(tx kv.Tx) error {
		var err error
		ok, err = tx.Has(k.Bytes())

		return err
	})
	if err != nil {
		return false, fmt.Errorf("contains: %w", err)
	}

	return ok, nil
}

func (s *Store) check() error {
	if s == nil || s.db == nil {
		return ErrClosed
	}

	return nil
}
