package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/calvinalkan/uren/internal/kv"
)

// Query selects a range of keys. The zero Query walks the whole date index.
type Query struct {
	Project    string    // Project selects the project index when non-empty.
	MinStart   time.Time // MinStart is the lowest entry start; zero means open.
	MaxStart   time.Time // MaxStart bounds entry starts from above; zero means open.
	IncludeMin bool      // IncludeMin keeps a key equal to the lower bound.
	IncludeMax bool      // IncludeMax keeps a key equal to the upper bound.
	Limit      int       // Limit caps visited keys when > 0.
	Skip       int       // Skip drops that many in-range keys first.
	Reverse    bool      // Reverse walks from the upper bound down.

	// After resumes a previous scan: it replaces the lower bound of a forward
	// scan or the upper bound of a reverse scan. It must come from the index
	// the query selects. IncludeMin/IncludeMax still decide whether After
	// itself is visited.
	After Key
}

// Index returns the index the query scans.
func (q Query) Index() Kind {
	if q.Project != "" {
		return KindProject
	}

	return KindDate
}

// Visitor receives keys in scan order. Returning false stops the scan; an
// error aborts it and is returned from [Store.Iterate]. Visitors must not
// modify the store.
type Visitor func(Key) (bool, error)

// Iterate walks the keys selected by q and returns the last key that was in
// range (visited or skipped), or the zero Key if none was. Pass it as
// q.After with IncludeMin (or IncludeMax when reversed) unset to fetch the
// next page.
func (s *Store) Iterate(q Query, visit Visitor) (Key, error) {
	if err := s.check(); err != nil {
		return Key{}, fmt.Errorf("iterate: %w", err)
	}

	sc, err := q.scan()
	if err != nil {
		return Key{}, fmt.Errorf("iterate: %w", err)
	}

	var last Key

	err = s.db.View(func(tx kv.Tx) error {
		var err error
		last, err = sc.run(tx, visit)

		return err
	})
	if err != nil {
		return Key{}, fmt.Errorf("iterate: %w", err)
	}

	return last, nil
}

// Keys collects the keys selected by q.
func (s *Store) Keys(q Query) ([]Key, Key, error) {
	var keys []Key

	last, err := s.Iterate(q, func(k Key) (bool, error) {
		keys = append(keys, k)
		return true, nil
	})
	if err != nil {
		return nil, Key{}, err
	}

	return keys, last, nil
}

// scan is a resolved range: two bounds and the walk parameters.
type scan struct {
	lower, upper         Bound
	inclLower, inclUpper bool
	limit, skip          int
	reverse              bool
}

func (q Query) scan() (scan, error) {
	if q.Limit < 0 || q.Skip < 0 {
		return scan{}, fmt.Errorf("%w: limit and skip must be non-negative", ErrInvalidQuery)
	}

	if !q.After.IsZero() && q.After.Kind() != q.Index() {
		return scan{}, fmt.Errorf("%w: continuation key %s is not in the %s index", ErrInvalidQuery, q.After, q.Index())
	}

	if !q.After.IsZero() && q.Project != "" && q.After.Project() != q.Project {
		return scan{}, fmt.Errorf("%w: continuation key %s is not in project %q", ErrInvalidQuery, q.After, q.Project)
	}

	var (
		lower, upper Bound
		err          error
	)

	if q.Index() == KindProject {
		lower, err = ProjectLowerBound(q.Project, q.MinStart)
		if err != nil {
			return scan{}, err
		}

		upper, err = ProjectUpperBound(q.Project, q.MaxStart)
		if err != nil {
			return scan{}, err
		}
	} else {
		lower, err = DateLowerBound(q.MinStart)
		if err != nil {
			return scan{}, err
		}

		upper, err = DateUpperBound(q.MaxStart)
		if err != nil {
			return scan{}, err
		}
	}

	if !q.After.IsZero() {
		if q.Reverse {
			upper = KeyBound(q.After)
		} else {
			lower = KeyBound(q.After)
		}
	}

	return scan{
		lower:     lower,
		upper:     upper,
		inclLower: q.IncludeMin,
		inclUpper: q.IncludeMax,
		limit:     q.Limit,
		skip:      q.Skip,
		reverse:   q.Reverse,
	}, nil
}

// run walks the cursor between the bounds.
//
// The cursor is positioned with an ascending seek on the starting bound and
// corrected by at most one step. From there each key is tested only against
// the far bound; see [outside].
//
// A cursor that fails reports it from Close; that error replaces a result
// that would otherwise look complete.
func (sc scan) run(tx kv.Tx, visit Visitor) (last Key, err error) {
	kind, err := sc.index()
	if err != nil {
		return Key{}, err
	}

	lower, inclLower := sc.lower, sc.inclLower
	if lower.IsZero() {
		lower, inclLower = Bound{kind: kind, raw: []byte{byte(kind)}}, true
	}

	upper, inclUpper := sc.upper, sc.inclUpper
	if upper.IsZero() {
		upper, inclUpper = Bound{kind: kind, raw: []byte{byte(kind) + 1}}, true
	}

	c := tx.Cursor()

	defer func() {
		if closeErr := c.Close(); closeErr != nil && err == nil {
			last, err = Key{}, fmt.Errorf("cursor: %w", closeErr)
		}
	}()

	var (
		cur  []byte
		far  Bound
		incl bool
		step func() []byte
	)

	if sc.reverse {
		far, incl, step = lower, inclLower, c.Prev

		cur = c.Seek(upper.raw)

		switch {
		case cur != nil && inclUpper && bytes.Equal(cur, upper.raw):
		case cur == nil:
			cur = c.Last()
		default:
			cur = c.Prev()
		}
	} else {
		far, incl, step = upper, inclUpper, c.Next

		cur = c.Seek(lower.raw)
		if cur != nil && !inclLower && bytes.Equal(cur, lower.raw) {
			cur = c.Next()
		}
	}

	var (
		called int
		skip   = sc.skip
	)

	for ; cur != nil; cur = step() {
		if outside(cur, far.raw, incl, sc.reverse) {
			break
		}

		k, err := DecodeKey(cur)
		if err != nil {
			return Key{}, err
		}

		last = k

		if skip > 0 {
			skip--
			continue
		}

		more, err := visit(k)
		called++

		if err != nil {
			return Key{}, fmt.Errorf("visit %s: %w", k, err)
		}

		if !more || (sc.limit > 0 && called == sc.limit) {
			break
		}
	}

	return last, nil
}

// index infers the scanned index from the bounds. An unset bound takes the
// other bound's index; with neither set the date index is used.
func (sc scan) index() (Kind, error) {
	switch {
	case !sc.lower.IsZero() && !sc.upper.IsZero():
		if sc.lower.kind != sc.upper.kind {
			return 0, fmt.Errorf("%w: lower %s, upper %s", ErrIndexMismatch, sc.lower.kind, sc.upper.kind)
		}

		return sc.lower.kind, nil
	case !sc.lower.IsZero():
		return sc.lower.kind, nil
	case !sc.upper.IsZero():
		return sc.upper.kind, nil
	default:
		return KindDate, nil
	}
}

// outside reports whether key lies beyond bound for a walk in the given
// direction. Only the common prefix is compared; when it matches, a bound
// that is a strict prefix of key sorts before it and a bound longer than key
// sorts after it. An exact match is outside unless the bound is inclusive.
func outside(key, bound []byte, inclusive, reverse bool) bool {
	n := min(len(key), len(bound))

	switch c := bytes.Compare(bound[:n], key[:n]); {
	case c > 0:
		return reverse
	case c < 0:
		return !reverse
	}

	switch {
	case len(bound) == len(key):
		return !inclusive
	case len(bound) > len(key):
		return reverse
	default:
		return !reverse
	}
}
