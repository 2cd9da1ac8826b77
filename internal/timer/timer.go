// Package timer keeps a single running stopwatch as a marker file in the data
// root. The marker's modification time is the start time, so a running timer
// survives process restarts and needs no index.
package timer

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/calvinalkan/uren/internal/fs"
)

// FileName is the marker file inside the data root.
const FileName = ".timer"

var (
	// ErrRunning is returned by Start when a timer is already running.
	ErrRunning = errors.New("timer already running")

	// ErrNotRunning is returned by Stop when no timer is running.
	ErrNotRunning = errors.New("timer not running")

	// ErrFutureStart reports a marker whose time lies in the future, which
	// happens after the clock was set back.
	ErrFutureStart = errors.New("timer start is in the future")
)

// Timer reads and writes the marker in dir.
type Timer struct {
	dir *fs.Dir
	now func() time.Time
}

// New returns a timer for dir. A nil now uses [time.Now].
func New(dir *fs.Dir, now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}

	return &Timer{dir: dir, now: now}
}

// Start creates the marker.
func (t *Timer) Start() (time.Time, error) {
	err := t.dir.CreateExclusive(FileName)
	if errors.Is(err, os.ErrExist) {
		return time.Time{}, ErrRunning
	}

	if err != nil {
		return time.Time{}, fmt.Errorf("start timer: %w", err)
	}

	started, ok, err := t.Started()
	if err != nil {
		return time.Time{}, err
	}

	if !ok {
		return time.Time{}, fmt.Errorf("start timer: %s vanished", t.dir.Join(FileName))
	}

	return started, nil
}

// Started returns the start time of the running timer and whether one runs.
func (t *Timer) Started() (time.Time, bool, error) {
	info, err := t.dir.Stat(FileName)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}

	if err != nil {
		return time.Time{}, false, fmt.Errorf("timer status: %w", err)
	}

	started := info.ModTime().Truncate(time.Second)
	if started.After(t.now()) {
		return time.Time{}, false, fmt.Errorf("%w: %s", ErrFutureStart, started.UTC().Format(time.RFC3339))
	}

	return started, true, nil
}

// Elapsed returns how long the running timer has been running.
func (t *Timer) Elapsed() (time.Duration, bool, error) {
	started, ok, err := t.Started()
	if err != nil || !ok {
		return 0, ok, err
	}

	return t.now().Sub(started), true, nil
}

// Stop removes the marker and returns the time the timer was started.
func (t *Timer) Stop() (time.Time, error) {
	started, ok, err := t.Started()
	if err != nil {
		return time.Time{}, err
	}

	if !ok {
		return time.Time{}, ErrNotRunning
	}

	if err := t.dir.Remove(FileName); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, ErrNotRunning
		}

		return time.Time{}, fmt.Errorf("stop timer: %w", err)
	}

	return started, nil
}
