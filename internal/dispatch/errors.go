package dispatch

import "errors"

// ErrCycleInFlight means another invocation holds the cycle lock. Cycles are
// single-flight; the caller should skip this round and try again later.
var ErrCycleInFlight = errors.New("dispatch: cycle already in flight")
