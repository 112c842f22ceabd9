package proc

import (
	"context"
	"fmt"
)

// Run is the dispatcher loop. It repeatedly asks the scheduler for the next
// thread, hands it the CPU and waits until the CPU is given back. Without a
// runnable thread it idles until a thread becomes ready. Run returns when the
// context is cancelled or the scheduler reports an error.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("(proc-run) %w", ctx.Err())
		}

		next, err := m.sched.Perform()
		if err != nil {
			return fmt.Errorf("(proc-run) %w", err)
		}

		if next == nil {
			select {
			case <-m.kick:
				continue
			case <-ctx.Done():
				return fmt.Errorf("(proc-run) %w", ctx.Err())
			}
		}

		m.Lock()
		t, ok := m.threads[next.Tid]
		m.Unlock()

		if !ok {
			continue
		}

		select {
		case t.resume <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("(proc-run) %w", ctx.Err())
		}

		select {
		case <-m.released:
		case <-ctx.Done():
			return fmt.Errorf("(proc-run) %w", ctx.Err())
		}
	}
}
