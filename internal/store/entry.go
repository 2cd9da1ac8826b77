package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/uren/internal/kv"
)

// MaxContent is the default read limit of [Store.ReadProjectFile].
const MaxContent = 16 * 1024

const (
	stagePrefix  = ".stage-"
	backupSuffix = ".bak"
)

// Entry is a time entry to save. Its content must already be staged in the
// data root with [Store.Stage] or [Store.StageCopy].
type Entry struct {
	Project string
	Start   time.Time
	End     time.Time
	Staged  string // Staged is the name returned by Stage.
}

// Stage writes r to a new scratch file in the data root and returns its name
// for [Entry.Staged]. The file is written atomically.
func (s *Store) Stage(r io.Reader) (string, error) {
	if err := s.check(); err != nil {
		return "", fmt.Errorf("stage: %w", err)
	}

	name := stagePrefix + uuid.NewString()

	if err := s.dir.WriteFileAtomic(name, r); err != nil {
		return "", fmt.Errorf("stage: %w", err)
	}

	return name, nil
}

// StageCopy stages a copy of the content of the entry at k.
func (s *Store) StageCopy(k Key) (string, error) {
	f, err := s.OpenProjectFile(k)
	if err != nil {
		return "", fmt.Errorf("stage copy: %w", err)
	}
	defer f.Close()

	return s.Stage(f)
}

// Discard removes a staged file that will not be saved.
func (s *Store) Discard(staged string) error {
	if err := s.check(); err != nil {
		return fmt.Errorf("discard: %w", err)
	}

	if err := checkStaged(staged); err != nil {
		return fmt.Errorf("discard: %w", err)
	}

	if err := s.dir.Remove(staged); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard: %w", err)
	}

	return nil
}

// Save moves e's staged content to <project>/<filename> and indexes both of
// its keys. If replacing is set, that entry (either of its keys may be passed)
// is removed in the same index transaction.
//
// Every check runs before anything is touched. If the index commit fails the
// file moves are undone, so the store is left as it was. Start and End are
// truncated to the minute.
func (s *Store) Save(e Entry, replacing Key) (Key, Key, error) {
	if err := s.check(); err != nil {
		return Key{}, Key{}, fmt.Errorf("save: %w", err)
	}

	start := e.Start.Truncate(time.Minute)
	end := e.End.Truncate(time.Minute)

	if err := ValidateProject(e.Project); err != nil {
		return Key{}, Key{}, fmt.Errorf("save: %w", err)
	}

	if !start.Before(end) {
		return Key{}, Key{}, fmt.Errorf("save: %w: start %s is not before end %s", ErrInvalidRange,
			start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	}

	pkey, dkey, err := EntryKeys(e.Project, start, end)
	if err != nil {
		return Key{}, Key{}, fmt.Errorf("save: %w", err)
	}

	if err := checkStaged(e.Staged); err != nil {
		return Key{}, Key{}, fmt.Errorf("save: %w", err)
	}

	if ok, err := s.dir.Exists(e.Staged); err != nil {
		return Key{}, Key{}, fmt.Errorf("save: %w", err)
	} else if !ok {
		return Key{}, Key{}, fmt.Errorf("save: %w: %s does not exist", ErrInvalidContent, e.Staged)
	}

	if !replacing.IsZero() {
		replacing = replacing.ProjectKey()

		if err := s.requirePair(replacing); err != nil {
			return Key{}, Key{}, fmt.Errorf("save: replace: %w", err)
		}
	}

	target := pkey.Path()

	// The project directory is created only once nothing else can fail
	// before the rename, so restore can always remove it again.
	backup, err := s.setAside(target)
	if err != nil {
		return Key{}, Key{}, fmt.Errorf("save: %w", err)
	}

	if err := s.dir.MkdirIfAbsent(e.Project); err != nil {
		return Key{}, Key{}, errors.Join(fmt.Errorf("save: %w", err), s.restore(backup, target, e.Project))
	}

	if err := s.dir.Rename(e.Staged, target); err != nil {
		return Key{}, Key{}, errors.Join(fmt.Errorf("save: %w", err), s.restore(backup, target, e.Project))
	}

	err = s.db.Update(func(tx kv.Tx) error {
		if !replacing.IsZero() {
			if err := deletePair(tx, replacing); err != nil {
				return err
			}
		}

		_, err := s.insertPair(tx, pkey)

		return err
	})
	if err != nil {
		undoErr := s.dir.Rename(target, e.Staged)

		return Key{}, Key{}, errors.Join(fmt.Errorf("save: %w", err), undoErr, s.restore(backup, target, e.Project))
	}

	if backup != "" {
		if err := s.dir.Remove(backup); err != nil {
			s.log.Warn("remove backup after save", "path", s.dir.Join(backup), "err", err)
		}
	}

	if !replacing.IsZero() && replacing.Path() != target {
		if err := s.removeFile(replacing); err != nil {
			return pkey, dkey, fmt.Errorf("save: remove replaced entry: %w", err)
		}
	}

	return pkey, dkey, nil
}

// Delete removes the entry file for k, its project directory if that is now
// empty, and both of its keys. Keys that are missing are reported as
// [ErrKeyNotFound] after the rest of the cleanup has been done.
func (s *Store) Delete(k Key) error {
	if err := s.check(); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if k.IsZero() {
		return fmt.Errorf("delete: %w: zero key", ErrKeyNotFound)
	}

	if err := s.removeFile(k); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	var missing []error

	err := s.db.Update(func(tx kv.Tx) error {
		missing = nil

		for _, key := range []Key{k, k.Sibling()} {
			ok, err := tx.Has(key.Bytes())
			if err != nil {
				return err
			}

			if !ok {
				missing = append(missing, fmt.Errorf("%w: %s", ErrKeyNotFound, key))
				continue
			}

			if err := tx.Delete(key.Bytes()); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if len(missing) > 0 {
		return fmt.Errorf("delete: %w", errors.Join(missing...))
	}

	return nil
}

// OpenProjectFile opens the content of the entry at k.
func (s *Store) OpenProjectFile(k Key) (*os.File, error) {
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("open project file: %w", err)
	}

	if k.IsZero() {
		return nil, fmt.Errorf("open project file: %w: zero key", ErrKeyNotFound)
	}

	f, err := s.dir.OpenRead(k.Path())
	if err != nil {
		return nil, fmt.Errorf("open project file: %w", err)
	}

	return f, nil
}

// ReadProjectFile returns up to limit bytes of the entry content at k with one
// trailing newline removed. limit <= 0 means [MaxContent].
func (s *Store) ReadProjectFile(k Key, limit int64) (string, error) {
	if err := s.check(); err != nil {
		return "", fmt.Errorf("read project file: %w", err)
	}

	if limit <= 0 {
		limit = MaxContent
	}

	data, err := s.dir.ReadFile(k.Path(), limit)
	if err != nil {
		return "", fmt.Errorf("read project file: %w", err)
	}

	return string(bytes.TrimSuffix(data, []byte("\n"))), nil
}

// requirePair fails with ErrKeyNotFound unless both keys of pkey's entry are
// indexed.
func (s *Store) requirePair(pkey Key) error {
	return s.db.View(func(tx kv.Tx) error {
		for _, k := range []Key{pkey, pkey.Sibling()} {
			ok, err := tx.Has(k.Bytes())
			if err != nil {
				return err
			}

			if !ok {
				return fmt.Errorf("%w: %s", ErrKeyNotFound, k)
			}
		}

		return nil
	})
}

func deletePair(tx kv.Tx, pkey Key) error {
	for _, k := range []Key{pkey, pkey.Sibling()} {
		if err := tx.Delete(k.Bytes()); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}

	return nil
}

// removeFile unlinks the entry file for k and then its project directory if
// it became empty. A file that is already gone is logged, not returned, so the
// keys of a half-deleted entry can still be cleaned up.
func (s *Store) removeFile(k Key) error {
	err := s.dir.Remove(k.Path())

	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Warn("entry file already missing", "path", s.dir.Join(k.Path()))
	case err != nil:
		return err
	}

	if _, err := s.dir.RemoveDirIfEmpty(k.Project()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// setAside moves an existing file at target out of the way so a failed save
// can put it back. It returns "" when there was nothing to move.
func (s *Store) setAside(target string) (string, error) {
	ok, err := s.dir.Exists(target)
	if err != nil || !ok {
		return "", err
	}

	backup := stagePrefix + uuid.NewString() + backupSuffix

	if err := s.dir.Rename(target, backup); err != nil {
		return "", err
	}

	return backup, nil
}

// restore undoes setAside. Without a backup the project directory may have
// been created by the failed save, so it is removed again if empty.
func (s *Store) restore(backup, target, project string) error {
	if backup == "" {
		_, err := s.dir.RemoveDirIfEmpty(project)
		return err
	}

	return s.dir.Rename(backup, target)
}

func checkStaged(name string) error {
	if !strings.HasPrefix(name, stagePrefix) || strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: %q is not a staged file name", ErrInvalidContent, name)
	}

	return nil
}
