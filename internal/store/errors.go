package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a guarded status transition loses against the
// current state of the row (e.g. annotating a resolved issue).
var ErrConflict = errors.New("conflict")
