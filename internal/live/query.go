package live

import (
	"context"
	"log/slog"
)

// Stream is anything that can be observed until ctx ends.
// The returned channel is closed once the subscription stops.
type Stream[T any] interface {
	Subscribe(ctx context.Context) <-chan T
}

// FetchFunc loads the current snapshot of a query.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Query re-runs fetch whenever its Source changes.
type Query[T any] struct {
	name  string
	src   *Source
	fetch FetchFunc[T]
}

func NewQuery[T any](name string, src *Source, fetch FetchFunc[T]) *Query[T] {
	return &Query[T]{name: name, src: src, fetch: fetch}
}

// Get runs the query once without subscribing.
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	return q.fetch(ctx)
}

// Subscribe emits the current snapshot immediately and again after every
// change notification. Failed fetches are logged and skipped; the next
// notification triggers a new attempt.
func (q *Query[T]) Subscribe(ctx context.Context) <-chan T {
	out := make(chan T, 1)
	// Attach before the first fetch so a write racing with it is not lost.
	ticks, detach := q.src.watch()

	go func() {
		defer close(out)
		defer detach()

		for {
			v, err := q.fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.WarnContext(ctx, "Live query fetch failed", "query", q.name, "error", err)
			} else {
				sendLatest(out, v)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticks:
			}
		}
	}()

	return out
}

// sendLatest replaces any unconsumed value in a 1-buffered channel.
// Only the owning goroutine may send on out.
func sendLatest[T any](out chan T, v T) {
	select {
	case out <- v:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	out <- v
}

// drain drops an unconsumed value, if any.
func drain[T any](out chan T) {
	select {
	case <-out:
	default:
	}
}
