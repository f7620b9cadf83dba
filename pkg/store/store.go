package store

import "errors"

// ErrNotFound is returned for rows that are absent or owned by a different
// user. The two cases are deliberately indistinguishable to callers.
var ErrNotFound = errors.New("record not found")
