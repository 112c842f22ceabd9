package drivers

import "errors"

var (
	// ErrDriverStopped occurs when a message is posted to a driver that no
	// longer runs.
	ErrDriverStopped = errors.New("driver stopped")

	// ErrBufferFull occurs when a write does not fit into the echo buffer.
	ErrBufferFull = errors.New("buffer full")
)
