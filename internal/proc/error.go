package proc

import "errors"

var (
	// ErrNoProcess occurs when a pid does not belong to a registered process.
	ErrNoProcess = errors.New("no such process")

	// ErrNoThread occurs when a tid does not belong to a living thread.
	ErrNoThread = errors.New("no such thread")
)
