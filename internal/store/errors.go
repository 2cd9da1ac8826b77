package store

import "errors"

// ErrInvalidProject reports a project name that is empty, longer than
// [MaxProjectLen], starts with '.', or contains '/', NUL or 0x01.
var ErrInvalidProject = errors.New("invalid project")

// ErrInvalidRange reports an entry whose start is not before its end, or a
// time outside the unsigned 32-bit seconds range the keys can hold.
var ErrInvalidRange = errors.New("invalid range")

// ErrInvalidBoundary reports a project-index bound with a time but no
// project, or a prefix that has no successor.
var ErrInvalidBoundary = errors.New("invalid boundary")

// ErrIndexMismatch reports scan bounds taken from different indices.
var ErrIndexMismatch = errors.New("bounds belong to different indices")

// ErrCorruptKey reports bytes that do not decode as a key.
var ErrCorruptKey = errors.New("corrupt key")

// ErrAlreadyRunning reports that another process holds the index lock.
var ErrAlreadyRunning = errors.New("already running")

// ErrKeyNotFound reports a delete or replace of a key that is not indexed.
var ErrKeyNotFound = errors.New("key not found")

// ErrInvalidQuery reports a negative limit or skip, or a continuation key from
// the wrong index.
var ErrInvalidQuery = errors.New("invalid query")

// ErrClosed reports use of a closed store.
var ErrClosed = errors.New("store closed")

// ErrInvalidContent reports a missing or malformed staged content name.
var ErrInvalidContent = errors.New("invalid content")
