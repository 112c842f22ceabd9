package kernel

import "errors"

var (
	// ErrInvalidConfig occurs when a [Config] cannot be booted.
	ErrInvalidConfig = errors.New("invalid kernel configuration")

	// ErrCorrupted occurs when a workload job reads back other data than it
	// has written.
	ErrCorrupted = errors.New("data read back differs from data written")
)
