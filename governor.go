package graphview

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
)

// ---------------------------------------------------------------------------
// Search Governor: resource limits for path search.
//
// Path search may run as long as the graph lets it; the engine performs no
// cycle detection. The governor gives an execution engine two brakes:
//
//  1. MaxPaths bounds how many path records one search may accumulate
//     before it fails with ErrResultTooLarge.
//
//  2. DefaultTimeout applies a deadline when the caller's context has none,
//     so a runaway traversal is cancelled between expansions.
//
// The governor is immutable after construction and shared read-only.
// ---------------------------------------------------------------------------

var (
	// ErrResultTooLarge is returned when a path search produces more than
	// Options.MaxPaths path records.
	ErrResultTooLarge = errors.New("graphview: path search exceeds MaxPaths limit")

	// ErrQueryPanic is returned when an engine call panics. The panic value
	// and stack trace are included in the error message.
	ErrQueryPanic = errors.New("graphview: engine call panicked")
)

type searchGovernor struct {
	maxPaths       int           // 0 = unlimited
	defaultTimeout time.Duration // 0 = no default timeout
}

// wrapContext applies defaultTimeout when ctx has no deadline. The caller's
// own deadline always wins. The returned cancel must be called.
func (g *searchGovernor) wrapContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, g.defaultTimeout)
	}
	return ctx, func() {}
}

// checkPathCount fails once n exceeds the configured limit.
func (g *searchGovernor) checkPathCount(n int) error {
	if g.maxPaths > 0 && n > g.maxPaths {
		return ErrResultTooLarge
	}
	return nil
}

// safeExecute runs fn and converts a panic into an error wrapping
// ErrQueryPanic, so one bad step operator cannot take the process down.
func safeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("%w: %v\n\nstack trace:\n%s", ErrQueryPanic, r, buf[:n])
		}
	}()
	return fn()
}

// safeExecuteResult is safeExecute for functions returning a value.
func safeExecuteResult[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			var zero T
			result = zero
			err = fmt.Errorf("%w: %v\n\nstack trace:\n%s", ErrQueryPanic, r, buf[:n])
		}
	}()
	return fn()
}
