package frb

import "errors"

// ErrMalformedReport is returned when a beam report cannot be accepted.
// No state is mutated when it is returned.
var ErrMalformedReport = errors.New("malformed beam report")

// ErrInvalidConfig is returned by constructors given an unusable configuration.
var ErrInvalidConfig = errors.New("invalid configuration")
