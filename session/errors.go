package session

import "github.com/pkg/errors"

// ErrTableFull is the error returned when a fixed-capacity session table cannot
// accept another key. Tables never evict silently: mis-tracking sequence numbers
// causes silent data corruption, so saturation is surfaced as an explicit error.
var ErrTableFull error = errors.New("session table is at capacity")
