package store

import (
	"fmt"
	"time"

	"github.com/calvinalkan/uren/internal/kv"
)

// Projects returns every project with at least one entry, in byte order.
//
// It seeks once per project: after reading a project from the first key at
// or after the cursor, it jumps to the successor of that project's prefix.
func (s *Store) Projects() ([]string, error) {
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("projects: %w", err)
	}

	var names []string

	err := s.db.View(func(tx kv.Tx) (err error) {
		c := tx.Cursor()

		defer func() {
			if closeErr := c.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("cursor: %w", closeErr)
			}
		}()

		bound, err := ProjectLowerBound("", time.Time{})
		if err != nil {
			return err
		}

		for {
			cur := c.Seek(bound.raw)
			if cur == nil || Kind(cur[0]) != KindProject {
				return nil
			}

			k, err := DecodeKey(cur)
			if err != nil {
				return err
			}

			names = append(names, k.Project())

			bound, err = ProjectUpperBound(k.Project(), time.Time{})
			if err != nil {
				return err
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("projects: %w", err)
	}

	return names, nil
}
