// Package queue implements the queues of the kernel: the fixed-capacity
// [FixedQueue] backing the scheduler's ready queue and the [WorkQueue] that
// feeds simulated workload jobs to the kernel.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Decision is the outcome of processing a [WorkQueue] item.
type Decision int

const (
	// DecisionSuccess is returned by a processFunc when an item was processed.
	DecisionSuccess Decision = 1

	// DecisionFailed is returned by a processFunc when an item failed for
	// good.
	DecisionFailed Decision = 0

	// DecisionRequeue is returned by a processFunc when an item could not be
	// processed for now, e.g. because a kernel table was exhausted.
	DecisionRequeue Decision = -1
)

// Progress is a point-in-time description of a [WorkQueue].
type Progress struct {
	HasStarted      bool
	HasFinished     bool
	StartTime       time.Time
	FinishTime      time.Time
	ProgressPct     float64
	TotalItems      int
	ProcessedItems  int
	InProgressItems int
	SuccessItems    int
	FailedItems     int
	RequeuedItems   int
	ETA             time.Time
	TimeLeft        time.Duration
	ItemsPerSec     float64
}

// WorkQueue is a queue of work items that records the outcome of each item.
// Requeued items are appended to the tail again.
type WorkQueue[T comparable] struct {
	sync.RWMutex
	hasStarted  bool
	hasFinished bool
	startTime   time.Time
	finishTime  time.Time
	head        int
	items       []T
	total       int
	requeued    int
	success     []T
	failed      []T
	inProgress  map[T]struct{}
}

// NewWorkQueue returns a pointer to a new [WorkQueue].
func NewWorkQueue[T comparable]() *WorkQueue[T] {
	return &WorkQueue[T]{
		inProgress: make(map[T]struct{}),
	}
}

// HasRemainingItems returns whether the queue has items left to dequeue.
func (q *WorkQueue[T]) HasRemainingItems() bool {
	q.RLock()
	defer q.RUnlock()

	return q.head < len(q.items)
}

// Successful returns a copy of the successfully processed items.
func (q *WorkQueue[T]) Successful() []T {
	q.RLock()
	defer q.RUnlock()

	result := make([]T, len(q.success))
	copy(result, q.success)

	return result
}

// Failed returns a copy of the failed items.
func (q *WorkQueue[T]) Failed() []T {
	q.RLock()
	defer q.RUnlock()

	result := make([]T, len(q.failed))
	copy(result, q.failed)

	return result
}

// Enqueue adds new items to the queue.
func (q *WorkQueue[T]) Enqueue(items ...T) {
	q.Lock()
	defer q.Unlock()

	q.reopenLocked()

	q.items = append(q.items, items...)
	q.total += len(items)
}

// requeue puts an in-progress item back to the tail.
func (q *WorkQueue[T]) requeue(item T) {
	q.Lock()
	defer q.Unlock()

	q.reopenLocked()

	delete(q.inProgress, item)
	q.items = append(q.items, item)
	q.requeued++
}

func (q *WorkQueue[T]) reopenLocked() {
	if q.hasFinished {
		q.finishTime = time.Time{}
		q.hasFinished = false
	}
}

// Dequeue returns the item at the head and marks it as in progress.
func (q *WorkQueue[T]) Dequeue() (T, bool) { //nolint:ireturn
	q.Lock()
	defer q.Unlock()

	if q.head >= len(q.items) {
		var zeroVal T

		return zeroVal, false
	}

	if !q.hasStarted {
		q.startTime = time.Now()
		q.hasStarted = true
	}

	item := q.items[q.head]
	q.head++
	q.inProgress[item] = struct{}{}

	return item, true
}

// SetSuccess records in-progress items as successfully processed.
func (q *WorkQueue[T]) SetSuccess(items ...T) {
	q.settle(&q.success, items)
}

// SetFailed records in-progress items as failed.
func (q *WorkQueue[T]) SetFailed(items ...T) {
	q.settle(&q.failed, items)
}

func (q *WorkQueue[T]) settle(into *[]T, items []T) {
	q.Lock()
	defer q.Unlock()

	for _, item := range items {
		delete(q.inProgress, item)
		*into = append(*into, item)
	}

	if len(q.success)+len(q.failed) >= q.total && !q.hasFinished {
		q.finishTime = time.Now()
		q.hasFinished = true
	}
}

// Progress returns the [Progress] of the queue.
func (q *WorkQueue[T]) Progress() Progress {
	q.RLock()
	defer q.RUnlock()

	processedItems := min(len(q.success)+len(q.failed), q.total)

	var progressPct float64
	if q.total > 0 {
		progressPct = float64(processedItems) / float64(q.total) * 100 //nolint:mnd
		progressPct = max(float64(0), min(progressPct, float64(100)))  //nolint:mnd
	}

	var eta time.Time
	var timeLeft time.Duration
	var itemsPerSec float64

	if q.hasStarted && processedItems > 0 {
		elapsed := time.Since(q.startTime)
		if q.hasFinished {
			elapsed = q.finishTime.Sub(q.startTime)
		}

		itemsPerSec = float64(processedItems) / max(elapsed.Seconds(), 1)

		if processedItems < q.total && itemsPerSec > 0 {
			remainingSeconds := float64(q.total-processedItems) / itemsPerSec
			timeLeft = time.Duration(remainingSeconds * float64(time.Second))
			eta = time.Now().Add(timeLeft)
		}
	}

	return Progress{
		HasStarted:      q.hasStarted,
		HasFinished:     q.hasFinished,
		StartTime:       q.startTime,
		FinishTime:      q.finishTime,
		ProgressPct:     progressPct,
		TotalItems:      q.total,
		ProcessedItems:  processedItems,
		InProgressItems: len(q.inProgress),
		SuccessItems:    len(q.success),
		FailedItems:     len(q.failed),
		RequeuedItems:   q.requeued,
		ETA:             eta,
		TimeLeft:        timeLeft,
		ItemsPerSec:     itemsPerSec,
	}
}

func (q *WorkQueue[T]) decide(item T, decision Decision) {
	switch decision {
	case DecisionRequeue:
		q.requeue(item)

	case DecisionFailed:
		q.SetFailed(item)

	case DecisionSuccess:
		q.SetSuccess(item)
	}
}

// DequeueAndProcess sequentially dequeues and processes items with the given
// processFunc until the queue is drained. An error is only returned in case
// of a context cancellation.
func (q *WorkQueue[T]) DequeueAndProcess(ctx context.Context, processFunc func(T) Decision) error {
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("(queue-proc) %w", ctx.Err())
		}

		item, ok := q.Dequeue()
		if !ok {
			return nil
		}

		q.decide(item, processFunc(item))
	}
}

// DequeueAndProcessConc dequeues and processes items with up to maxWorkers
// concurrent invocations of processFunc until the queue is drained. An error
// is only returned in case of a context cancellation.
//
// The processFunc is responsible for the thread-safety of whatever it
// touches, the [WorkQueue] only guarantees thread-safety for itself.
func (q *WorkQueue[T]) DequeueAndProcessConc(ctx context.Context, maxWorkers int, processFunc func(T) Decision) error {
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, max(maxWorkers, 1))

LOOP:
	for {
		select {
		case <-ctx.Done():
			wg.Wait()

			return fmt.Errorf("(queue-concproc) %w", ctx.Err())
		case semaphore <- struct{}{}:
		}

		item, ok := q.Dequeue()
		if !ok {
			<-semaphore

			break
		}

		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-semaphore }()

			q.decide(item, processFunc(item))
		}(item)
	}

	wg.Wait()

	if ctx.Err() != nil {
		return fmt.Errorf("(queue-concproc) %w", ctx.Err())
	}

	if q.HasRemainingItems() {
		// Items were requeued after the loop saw an empty queue.
		goto LOOP
	}

	return nil
}
