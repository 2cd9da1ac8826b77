package store

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Bound is a scan boundary: a full key, a prefix of keys, or the successor of
// a prefix. Bounds are never stored.
type Bound struct {
	kind Kind
	raw  []byte
}

// Kind returns the index the bound belongs to.
func (b Bound) Kind() Kind { return b.kind }

// IsZero reports whether b is unset.
func (b Bound) IsZero() bool { return len(b.raw) == 0 }

// Bytes returns a copy of the bound.
func (b Bound) Bytes() []byte { return append([]byte(nil), b.raw...) }

func (b Bound) String() string { return fmt.Sprintf("%q", b.raw) }

// KeyBound returns a bound equal to k.
func KeyBound(k Key) Bound {
	return Bound{kind: k.Kind(), raw: k.Bytes()}
}

// ProjectLowerBound returns the first position of the project index for
// project at or after minStart. An empty project yields the start of the
// index; a zero minStart yields the start of the project.
func ProjectLowerBound(project string, minStart time.Time) (Bound, error) {
	prefix, err := projectPrefix(project, minStart)
	if err != nil {
		return Bound{}, fmt.Errorf("project lower bound: %w", err)
	}

	return Bound{kind: KindProject, raw: prefix}, nil
}

// ProjectUpperBound returns the end of the project index range for project.
//
// With maxStart set the bound is the (project, maxStart) prefix itself, so
// keys starting exactly at maxStart sort after it and are never included.
// Without maxStart it is the successor of the project prefix, and without a
// project the successor of the tag byte.
func ProjectUpperBound(project string, maxStart time.Time) (Bound, error) {
	prefix, err := projectPrefix(project, maxStart)
	if err != nil {
		return Bound{}, fmt.Errorf("project upper bound: %w", err)
	}

	if !maxStart.IsZero() {
		return Bound{kind: KindProject, raw: prefix}, nil
	}

	succ, err := successor(prefix)
	if err != nil {
		return Bound{}, fmt.Errorf("project upper bound: %w", err)
	}

	return Bound{kind: KindProject, raw: succ}, nil
}

// DateLowerBound returns the first position of the date index at or after
// minStart, or the start of the index for a zero minStart.
func DateLowerBound(minStart time.Time) (Bound, error) {
	prefix, err := datePrefix(minStart)
	if err != nil {
		return Bound{}, fmt.Errorf("date lower bound: %w", err)
	}

	return Bound{kind: KindDate, raw: prefix}, nil
}

// DateUpperBound returns the maxStart prefix of the date index, or the
// successor of the tag byte for a zero maxStart.
func DateUpperBound(maxStart time.Time) (Bound, error) {
	prefix, err := datePrefix(maxStart)
	if err != nil {
		return Bound{}, fmt.Errorf("date upper bound: %w", err)
	}

	if !maxStart.IsZero() {
		return Bound{kind: KindDate, raw: prefix}, nil
	}

	succ, err := successor(prefix)
	if err != nil {
		return Bound{}, fmt.Errorf("date upper bound: %w", err)
	}

	return Bound{kind: KindDate, raw: succ}, nil
}

// projectPrefix builds 'P' [project 0x00 [be32(at)]], stopping after the
// rightmost field that is set.
func projectPrefix(project string, at time.Time) ([]byte, error) {
	if project == "" {
		if !at.IsZero() {
			return nil, fmt.Errorf("%w: time %s without a project", ErrInvalidBoundary, at.UTC().Format(time.RFC3339))
		}

		return []byte{byte(KindProject)}, nil
	}

	if err := ValidateProject(project); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, tagLen+len(project)+1+stampSz)
	buf = append(buf, byte(KindProject))
	buf = append(buf, project...)
	buf = append(buf, 0)

	if at.IsZero() {
		return buf, nil
	}

	s, err := seconds(at)
	if err != nil {
		return nil, err
	}

	return binary.BigEndian.AppendUint32(buf, s), nil
}

// datePrefix builds 'D' [be32(at)].
func datePrefix(at time.Time) ([]byte, error) {
	buf := []byte{byte(KindDate)}

	if at.IsZero() {
		return buf, nil
	}

	s, err := seconds(at)
	if err != nil {
		return nil, err
	}

	return binary.BigEndian.AppendUint32(buf, s), nil
}

// successor returns the smallest byte string greater than every string that
// has prefix as a prefix, by incrementing the last byte. It needs that byte
// to be below 0xFF; project names and tags guarantee that, times do not, so
// successor is only ever applied to prefixes ending in a tag or terminator.
func successor(prefix []byte) ([]byte, error) {
	if len(prefix) == 0 {
		return nil, fmt.Errorf("%w: empty prefix has no successor", ErrInvalidBoundary)
	}

	last := prefix[len(prefix)-1]
	if last == 0xFF {
		return nil, fmt.Errorf("%w: prefix %q ends in 0xff", ErrInvalidBoundary, prefix)
	}

	out := append([]byte(nil), prefix...)
	out[len(out)-1] = last + 1

	return out, nil
}
