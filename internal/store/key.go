package store

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// Kind is the leading tag byte of a key and names the index it belongs to.
type Kind byte

const (
	// KindProject keys order entries by (project, start, end).
	KindProject Kind = 'P'
	// KindDate keys order entries by (start, end, project).
	KindDate Kind = 'D'
)

func (k Kind) String() string {
	switch k {
	case KindProject:
		return "project"
	case KindDate:
		return "date"
	default:
		return fmt.Sprintf("kind(%#x)", byte(k))
	}
}

const (
	tagLen   = 1
	stampSz  = 4
	timesLen = 2 * stampSz

	minKeyLen = tagLen + 1 + 1 + timesLen
	maxKeyLen = tagLen + MaxProjectLen + 1 + timesLen
)

// Key is one index entry. Layouts (integers big-endian seconds):
//
//	project: 'P' project 0x00 start(4) end(4)
//	date:    'D' start(4) end(4) project 0x00
//
// The zero Key is "no key". Keys are immutable and comparable with ==.
type Key struct {
	raw string
}

// NewProjectKey encodes a project-index key.
func NewProjectKey(project string, start, end time.Time) (Key, error) {
	return newKey(KindProject, project, start, end)
}

// NewDateKey encodes a date-index key.
func NewDateKey(project string, start, end time.Time) (Key, error) {
	return newKey(KindDate, project, start, end)
}

// EntryKeys returns both keys of an entry, project key first.
func EntryKeys(project string, start, end time.Time) (Key, Key, error) {
	pkey, err := NewProjectKey(project, start, end)
	if err != nil {
		return Key{}, Key{}, err
	}

	return pkey, pkey.Sibling(), nil
}

func newKey(kind Kind, project string, start, end time.Time) (Key, error) {
	if err := ValidateProject(project); err != nil {
		return Key{}, err
	}

	s, err := seconds(start)
	if err != nil {
		return Key{}, err
	}

	e, err := seconds(end)
	if err != nil {
		return Key{}, err
	}

	return encodeKey(kind, project, s, e), nil
}

func encodeKey(kind Kind, project string, start, end uint32) Key {
	buf := make([]byte, 0, tagLen+len(project)+1+timesLen)
	buf = append(buf, byte(kind))

	switch kind {
	case KindProject:
		buf = append(buf, project...)
		buf = append(buf, 0)
		buf = binary.BigEndian.AppendUint32(buf, start)
		buf = binary.BigEndian.AppendUint32(buf, end)
	case KindDate:
		buf = binary.BigEndian.AppendUint32(buf, start)
		buf = binary.BigEndian.AppendUint32(buf, end)
		buf = append(buf, project...)
		buf = append(buf, 0)
	}

	return Key{raw: string(buf)}
}

// seconds converts t to the unsigned 32-bit epoch seconds stored in keys.
func seconds(t time.Time) (uint32, error) {
	u := t.Unix()
	if u < 0 || u > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s is outside the storable range", ErrInvalidRange, t.UTC().Format(time.RFC3339))
	}

	return uint32(u), nil
}

// DecodeKey parses b as a stored key. b is copied.
func DecodeKey(b []byte) (Key, error) {
	if len(b) < minKeyLen || len(b) > maxKeyLen {
		return Key{}, fmt.Errorf("%w: length %d", ErrCorruptKey, len(b))
	}

	var project []byte

	switch Kind(b[0]) {
	case KindProject:
		if b[len(b)-timesLen-1] != 0 {
			return Key{}, fmt.Errorf("%w: project key %q has no terminator", ErrCorruptKey, b)
		}

		project = b[tagLen : len(b)-timesLen-1]
	case KindDate:
		if b[len(b)-1] != 0 {
			return Key{}, fmt.Errorf("%w: date key %q has no terminator", ErrCorruptKey, b)
		}

		project = b[tagLen+timesLen : len(b)-1]
	default:
		return Key{}, fmt.Errorf("%w: unknown tag %#x", ErrCorruptKey, b[0])
	}

	if err := ValidateProject(string(project)); err != nil {
		return Key{}, fmt.Errorf("%w: %w", ErrCorruptKey, err)
	}

	return Key{raw: string(b)}, nil
}

// ParseToken decodes the hex form produced by [Key.Token].
func ParseToken(s string) (Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: token %q: %w", ErrCorruptKey, s, err)
	}

	return DecodeKey(b)
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.raw == "" }

// Kind returns the index k belongs to.
func (k Key) Kind() Kind {
	if k.raw == "" {
		return 0
	}

	return Kind(k.raw[0])
}

// Project returns the project name.
func (k Key) Project() string {
	switch k.Kind() {
	case KindProject:
		return k.raw[tagLen : len(k.raw)-timesLen-1]
	case KindDate:
		return k.raw[tagLen+timesLen : len(k.raw)-1]
	default:
		return ""
	}
}

// Start returns the entry start in UTC.
func (k Key) Start() time.Time {
	return time.Unix(int64(k.startSec()), 0).UTC()
}

// End returns the entry end in UTC.
func (k Key) End() time.Time {
	return time.Unix(int64(k.endSec()), 0).UTC()
}

// Minutes returns the whole minutes between start and end.
func (k Key) Minutes() int64 {
	return (int64(k.endSec()) - int64(k.startSec())) / 60
}

func (k Key) startSec() uint32 {
	switch k.Kind() {
	case KindProject:
		return be32(k.raw[len(k.raw)-timesLen:])
	case KindDate:
		return be32(k.raw[tagLen:])
	default:
		return 0
	}
}

func (k Key) endSec() uint32 {
	switch k.Kind() {
	case KindProject:
		return be32(k.raw[len(k.raw)-stampSz:])
	case KindDate:
		return be32(k.raw[tagLen+stampSz:])
	default:
		return 0
	}
}

func be32(s string) uint32 {
	return uint32(s[0])<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3])
}

// Sibling returns the other index's key for the same entry.
func (k Key) Sibling() Key {
	switch k.Kind() {
	case KindProject:
		return encodeKey(KindDate, k.Project(), k.startSec(), k.endSec())
	case KindDate:
		return encodeKey(KindProject, k.Project(), k.startSec(), k.endSec())
	default:
		return Key{}
	}
}

// ProjectKey returns k if it is a project key, else its sibling.
func (k Key) ProjectKey() Key {
	if k.Kind() == KindDate {
		return k.Sibling()
	}

	return k
}

// Equal reports whether k and o are the same key.
func (k Key) Equal(o Key) bool { return k.raw == o.raw }

// Bytes returns a copy of the encoded key.
func (k Key) Bytes() []byte { return []byte(k.raw) }

// Filename returns the entry file name derived from the key's range.
func (k Key) Filename() string { return Filename(k.Start(), k.End()) }

// Path returns the entry file path relative to the data root.
func (k Key) Path() string { return k.Project() + "/" + k.Filename() }

// Token returns the key as lowercase hex, for use on command lines.
func (k Key) Token() string { return hex.EncodeToString([]byte(k.raw)) }

// String renders k for logs: tag, project, start and end in UTC.
func (k Key) String() string {
	if k.IsZero() {
		return "<none>"
	}

	const layout = "2006-01-02 15:04"

	return fmt.Sprintf("%c %s %s %s", k.raw[0], k.Project(), k.Start().Format(layout), k.End().Format(layout))
}
