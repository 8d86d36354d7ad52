package transport

import "github.com/pkg/errors"

// ErrDriverDown is the sentinel a Driver wraps when the bus is permanently
// unusable (controller bus-off, device removed). The scheduling core treats any
// error wrapping it as fatal: the current cycle aborts and recovery policy is left
// to the caller.
var ErrDriverDown error = errors.New("bus driver is permanently unusable")
