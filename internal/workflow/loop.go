package workflow

import (
	"context"
	"log/slog"
	"sync"
)

// Task is a unit of work run on the loop goroutine.
type Task func(ctx context.Context)

// Loop runs tasks one at a time, in the order they were posted. It is the
// single writer for the store: UI commands and completions of network
// fetches both enter through it, so a command's mutation and the events it
// publishes are never interleaved with another command.
type Loop struct {
	logger *slog.Logger

	mu    sync.Mutex
	queue []Task
	wake  chan struct{}
}

// NewLoop creates an idle loop. Call Run to start processing.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Post enqueues a task and returns immediately. It never blocks, so it is
// safe to call from a task or from a bus handler running on the loop.
func (l *Loop) Post(task Task) {
	if task == nil {
		return
	}

	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do enqueues fn and waits for it to finish. fn receives the caller's
// context. If ctx ends first Do returns ctx.Err(); a task that has not
// started by then is skipped. Do must not be called from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)

	l.Post(func(context.Context) {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- fn(ctx)
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run processes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("command loop starting")

	for {
		if task, ok := l.next(); ok {
			l.run(ctx, task)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Info("command loop shutting down", "pending", l.Pending())
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic recovered in command loop", "error", r)
		}
	}()
	task(ctx)
}
