package request

import "errors"

var (
	// ErrTableFull occurs when every request slot is taken. Callers treat it
	// as resource exhaustion and do not retry indefinitely.
	ErrTableFull = errors.New("request table full")

	// ErrRequestExists occurs when a thread that already owns a live request
	// asks for another one.
	ErrRequestExists = errors.New("thread already has a pending request")

	// ErrInvalidOwner occurs when a request is asked for with an invalid tid.
	ErrInvalidOwner = errors.New("invalid request owner")

	// ErrInterrupted occurs when an interruptible wait for a reply was ended
	// by a signal.
	ErrInterrupted = errors.New("interrupted")

	// ErrDriverDied occurs when a thread waiting for a reply was woken
	// without the reply having arrived.
	ErrDriverDied = errors.New("driver died")

	// ErrInvalidHandler occurs when a message handler is registered for an
	// out-of-range message kind or without function.
	ErrInvalidHandler = errors.New("invalid message handler")

	// ErrHandlerExists occurs when a message kind already has a handler.
	ErrHandlerExists = errors.New("message handler already registered")
)
