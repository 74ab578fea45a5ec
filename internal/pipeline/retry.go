package pipeline

import (
	"context"
	"time"
)

// Policy bounds a retried unit of work. Delay is constant between attempts,
// so one unit of work never takes longer than MaxAttempts*Delay waiting.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	OnError     func(error)
}

// WithSink returns a copy of the policy reporting errors to sink.
func (p Policy) WithSink(sink func(error)) Policy {
	p.OnError = sink
	return p
}

// Outcome reports how a retried operation settled. Exhausted means every
// attempt failed and Value was never produced; the caller decides what that
// means for its own record.
type Outcome[T any] struct {
	Value     T
	Attempts  int
	Exhausted bool
}

// Retry runs op until it succeeds or the policy is spent. Every failure is
// reported to the policy's error sink. Exhaustion is returned as an outcome,
// never propagated as an error: downstream stages must keep running when a
// sibling unit of work gives up.
//
// op may leave partial side effects behind on a failed attempt; nothing is
// rolled back here, so callers must make op safe to repeat.
func Retry[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) Outcome[T] {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var out Outcome[T]
	for attempt := 1; attempt <= attempts; attempt++ {
		out.Attempts = attempt
		v, err := op(ctx)
		if err == nil {
			out.Value = v
			return out
		}
		if p.OnError != nil {
			p.OnError(err)
		}
		if attempt == attempts {
			break
		}
		if !sleep(ctx, p.Delay) {
			break
		}
	}
	out.Exhausted = true
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
