package rag

import (
	"context"
	"time"
)

// RunWithTimeout runs op with a context that expires after limit. It
// returns op's value and true, or the zero value and false once the limit
// has passed. On timeout op keeps running in the background until it
// observes the cancelled context; its result is discarded.
func RunWithTimeout[T any](ctx context.Context, limit time.Duration, op func(context.Context) T) (T, bool) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	// buffered so the worker can always deliver and exit
	done := make(chan T, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case v := <-done:
		return v, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}
