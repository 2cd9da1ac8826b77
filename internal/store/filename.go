package store

import (
	"fmt"
	"time"
)

const (
	stampLayout = "20060102T1504Z"
	stampLen    = len(stampLayout)

	// FilenameLen is the length of every entry file name.
	FilenameLen = 2*stampLen + 1
)

// Filename returns the entry file name for a time range:
// YYYYMMDDTHHMMZ_YYYYMMDDTHHMMZ in UTC. Seconds are dropped.
func Filename(start, end time.Time) string {
	return start.UTC().Format(stampLayout) + "_" + end.UTC().Format(stampLayout)
}

// ParseFilename is the inverse of [Filename]. Both times are returned in UTC
// at minute precision.
func ParseFilename(name string) (start, end time.Time, err error) {
	if len(name) != FilenameLen || name[stampLen-1] != 'Z' || name[stampLen] != '_' || name[FilenameLen-1] != 'Z' {
		return time.Time{}, time.Time{}, fmt.Errorf("parse filename %q: want YYYYMMDDTHHMMZ_YYYYMMDDTHHMMZ", name)
	}

	start, err = time.ParseInLocation(stampLayout, name[:stampLen], time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse filename %q: start: %w", name, err)
	}

	end, err = time.ParseInLocation(stampLayout, name[stampLen+1:], time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse filename %q: end: %w", name, err)
	}

	return start, end, nil
}
