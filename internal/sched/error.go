package sched

import "errors"

// ErrReadyQueueFull occurs when a thread is made ready while every slot of the
// ready queue is taken. The ready queue is sized to the maximum thread count,
// so this indicates a capacity or accounting problem elsewhere.
var ErrReadyQueueFull = errors.New("ready queue exhausted")
