package blockpool

import "github.com/pkg/errors"

// ErrExhausted is the error returned from Pool.Allocate when every block in the pool
// is currently owned. It is a transient condition: callers are expected to drop the
// in-flight operation rather than retry in a loop.
var ErrExhausted error = errors.New("block pool exhausted")

// PowerOfTwoError is the error returned from CheckPow2 if the number being tested is
// not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")
