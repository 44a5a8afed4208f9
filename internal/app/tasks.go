package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/svglol/dinkdonkbot/internal/correlation"
)

// TaskRunner is the detached execution boundary for work that continues
// after the caller has been acknowledged. Submit returns immediately;
// a task's result is observable only through its side effects (the
// dispatched or edited message), never through a returned value.
// Cancellation is not modeled: an accepted task runs to completion or
// terminal failure.
type TaskRunner struct {
	wg sync.WaitGroup
}

func NewTaskRunner() *TaskRunner {
	return &TaskRunner{}
}

// Submit schedules fn on its own goroutine with a fresh correlation ID.
func (r *TaskRunner) Submit(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Task panicked", "task", name, "panic", rec)
			}
		}()

		ctx := correlation.WithID(context.Background(), correlation.NewID())
		fn(ctx)
	}()
}

// Wait blocks until all submitted tasks have finished. Used on shutdown.
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}
