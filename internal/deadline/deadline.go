// Package deadline implements the cooperative, goroutine-scoped deadline
// propagation described for the client: every blocking wait (a pending
// request's completion, a socket read, a socket write) observes a
// deadline installed by an entry point on behalf of its caller, and the
// earliest of any deadlines in play wins.
//
// Go has no thread-local storage; context.Context is the idiomatic
// substitute, and is what this package builds on.
package deadline

import (
	"context"
	"time"
)

type key struct{}

// WithDeadline installs t as the deadline observed by blocking operations
// downstream in ctx, narrowing any deadline already present to the
// earlier of the two.
func WithDeadline(ctx context.Context, t time.Time) (context.Context, context.CancelFunc) {
	if existing, ok := ctx.Deadline(); ok && existing.Before(t) {
		t = existing
	}
	return context.WithDeadline(context.WithValue(ctx, key{}, t), t)
}

// WithTimeout is WithDeadline(ctx, time.Now().Add(d)).
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return WithDeadline(ctx, time.Now().Add(d))
}

// From reports the deadline installed on ctx by WithDeadline, if any.
func From(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(key{}).(time.Time)
	return t, ok
}

// Earliest returns the earliest of the given deadlines that is actually
// set; ok is false if none of them carry a deadline.
func Earliest(deadlines ...time.Time) (earliest time.Time, ok bool) {
	for _, t := range deadlines {
		if t.IsZero() {
			continue
		}
		if !ok || t.Before(earliest) {
			earliest = t
			ok = true
		}
	}
	return earliest, ok
}
