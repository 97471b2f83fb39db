package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPanic wraps a value recovered from a panicking task
type ErrPanic struct {
	Task  string
	Value interface{}
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Task, e.Value)
}

// Detached runs fn synchronously under a context that keeps the parent's values
// but not its cancellation, bounded by timeout. Panics are recovered and
// returned as *ErrPanic.
//
// Use it for side effects that must finish even if the caller goes away, while
// still keeping the caller waiting for an outcome.
//
// Example:
//
//	err := async.Detached(r.Context(), 5*time.Second, "provisioning", func(ctx context.Context) error {
//	    return notifier.NotifyNewUser(ctx, id, token)
//	})
func Detached(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &ErrPanic{Task: taskName, Value: r}
		}
	}()

	return fn(ctx)
}

// SafeGo executes fn in a goroutine with:
// - Detachment from the parent's cancellation
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
// The returned channel is closed once fn has returned.
//
// Example:
//
//	async.SafeGo(r.Context(), 5*time.Second, "provisioning", logger, func(ctx context.Context) error {
//	    return notifier.NotifyNewUser(ctx, id, token)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, logger *logrus.Entry, fn func(context.Context) error) <-chan struct{} {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		err := Detached(parentCtx, timeout, taskName, fn)
		if err == nil {
			return
		}

		entry := logger.WithField("task", taskName)
		if p, ok := err.(*ErrPanic); ok {
			entry.WithField("stack", string(debug.Stack())).Errorf("PANIC in background task: %v", p.Value)
			return
		}
		// Caller decides whether this is critical; here it is only logged
		entry.WithError(err).Warn("Background task failed")
	}()
	return done
}
