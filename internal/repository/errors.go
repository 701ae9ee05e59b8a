package repository

import "errors"

// ErrNotFound reports that no row matches the lookup.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate reports a violated uniqueness constraint.
var ErrDuplicate = errors.New("repository: duplicate record")
