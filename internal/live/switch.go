package live

import "context"

// Switch follows sel and forwards values only from the stream selected by
// its current content.
//
// Every change of sel cancels the previous subscription and opens a new one.
// Values of an abandoned stream are discarded: once sel.Set returns, the
// output holds nothing computed for the previous selection and nothing of
// it will be sent later.
func Switch[K, T any](ctx context.Context, sel *Value[K], selectFn func(K) Stream[T]) <-chan T {
	out := make(chan T, 1)
	removeHook := sel.onChange(func() { drain(out) })
	keys := sel.subscribeVersioned(ctx)

	go func() {
		defer close(out)
		defer removeHook()

		var (
			cur    <-chan T
			curGen uint64
			cancel context.CancelFunc = func() {}
		)
		// The inner stream closes only after it has detached, so out closes
		// once nothing of this switch still watches the store.
		defer func() {
			cancel()
			for cur != nil {
				if _, ok := <-cur; !ok {
					cur = nil
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case k, ok := <-keys:
				if !ok {
					return
				}
				cancel()
				subCtx, c := context.WithCancel(ctx)
				cancel = c
				curGen = k.gen
				cur = selectFn(k.v).Subscribe(subCtx)
			case v, ok := <-cur:
				if !ok {
					cur = nil
					continue
				}
				sel.ifCurrent(curGen, func() { sendLatest(out, v) })
			}
		}
	}()

	return out
}

// Map transforms every value of a stream.
func Map[T, U any](s Stream[T], fn func(T) U) Stream[U] {
	return mapped[T, U]{in: s, fn: fn}
}

type mapped[T, U any] struct {
	in Stream[T]
	fn func(T) U
}

func (m mapped[T, U]) Subscribe(ctx context.Context) <-chan U {
	out := make(chan U, 1)
	in := m.in.Subscribe(ctx)
	go func() {
		defer close(out)
		for v := range in {
			sendLatest(out, m.fn(v))
		}
	}()
	return out
}
