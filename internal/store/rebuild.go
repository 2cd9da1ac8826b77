package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/uren/internal/kv"
)

// Reindex drops every key and rebuilds the index from the entry files in one
// transaction. It returns the number of entries indexed.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	if ctx == nil {
		return 0, errors.New("reindex: context is nil")
	}

	if err := s.check(); err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}

	pkeys, err := s.scanEntryFiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}

	var n int

	err = s.db.Update(func(tx kv.Tx) error {
		if err := deleteAll(tx); err != nil {
			return err
		}

		n, err = s.insertAll(tx, pkeys)

		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}

	return n, nil
}

// rebuild fills a freshly created index from the entry files.
func (s *Store) rebuild(ctx context.Context) (int, error) {
	pkeys, err := s.scanEntryFiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("rebuild: %w", err)
	}

	var n int

	err = s.db.Update(func(tx kv.Tx) error {
		var err error
		n, err = s.insertAll(tx, pkeys)

		return err
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild: %w", err)
	}

	return n, nil
}

// scanEntryFiles walks <data>/<project>/<file> and returns the project key of
// every well-named entry file. Dot entries are skipped silently. Unreadable
// project directories, invalid project names and malformed file names are
// skipped with a warning.
func (s *Store) scanEntryFiles(ctx context.Context) ([]Key, error) {
	top, err := s.dir.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var pkeys []Key

	for _, de := range top {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("canceled: %w", context.Cause(ctx))
		}

		project := de.Name()
		if strings.HasPrefix(project, ".") {
			continue
		}

		if !de.IsDir() {
			s.log.Warn("skip non-directory in data dir", "path", s.dir.Join(project))
			continue
		}

		if err := ValidateProject(project); err != nil {
			s.log.Warn("skip project directory", "path", s.dir.Join(project), "err", err)
			continue
		}

		files, err := s.dir.ReadDir(project)
		if err != nil {
			s.log.Warn("skip unreadable project directory", "path", s.dir.Join(project), "err", err)
			continue
		}

		for _, f := range files {
			name := f.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}

			start, end, err := ParseFilename(name)
			if err != nil {
				s.log.Warn("skip entry file", "path", s.dir.Join(project, name), "err", err)
				continue
			}

			if !start.Before(end) {
				s.log.Warn("skip entry file", "path", s.dir.Join(project, name), "err", ErrInvalidRange)
				continue
			}

			pkey, err := NewProjectKey(project, start, end)
			if err != nil {
				s.log.Warn("skip entry file", "path", s.dir.Join(project, name), "err", err)
				continue
			}

			pkeys = append(pkeys, pkey)
		}
	}

	return pkeys, nil
}

func (s *Store) insertAll(tx kv.Tx, pkeys []Key) (int, error) {
	n := 0

	for _, pkey := range pkeys {
		inserted, err := s.insertPair(tx, pkey)
		if err != nil {
			return 0, err
		}

		if inserted {
			n++
		}
	}

	return n, nil
}

// insertPair puts both keys of an entry. A key that already exists is logged
// and left alone; insertPair reports whether anything was added.
func (s *Store) insertPair(tx kv.Tx, pkey Key) (bool, error) {
	inserted := false

	for _, k := range []Key{pkey, pkey.Sibling()} {
		ok, err := tx.Has(k.Bytes())
		if err != nil {
			return false, fmt.Errorf("insert %s: %w", k, err)
		}

		if ok {
			s.log.Warn("duplicate key, skipping insert", "key", k.String())
			continue
		}

		if err := tx.Put(k.Bytes()); err != nil {
			return false, fmt.Errorf("insert %s: %w", k, err)
		}

		inserted = true
	}

	return inserted, nil
}

// deleteAll removes every key. Keys are collected first because cursors must
// not be used across writes.
func deleteAll(tx kv.Tx) error {
	var keys [][]byte

	c := tx.Cursor()
	for k := c.Seek(nil); k != nil; k = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	if err := c.Close(); err != nil {
		return err
	}

	for _, k := range keys {
		if err := tx.Delete(k); err != nil {
			return err
		}
	}

	return nil
}
