package replay

import "errors"

// ErrUnderflow is returned when a sample requests more experiences than
// a pool currently holds. Callers that want to avoid it must pre-check
// with Len before sampling; it is never silently truncated.
var ErrUnderflow = errors.New("replay: not enough experiences to sample")
