package live

import (
	"context"
	"sync"
)

// Value is a settable observable, used for UI-side state such as the
// active filter or the last operation result.
type Value[T any] struct {
	mu     sync.RWMutex
	v      T
	gen    uint64
	hooks  map[uint64]func()
	nextID uint64
	src    *Source
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, src: NewSource(), hooks: make(map[uint64]func())}
}

func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.v
}

// Set stores x and wakes every subscriber.
func (v *Value[T]) Set(x T) {
	v.Update(func(T) T { return x })
}

// Update applies fn atomically and wakes every subscriber.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	v.v = fn(v.v)
	v.gen++
	x := v.v
	// Hooks run under the write lock so a switch cannot hand out a value
	// computed for the previous selection once Update has returned.
	for _, h := range v.hooks {
		h()
	}
	v.mu.Unlock()
	v.src.Notify()
	return x
}

func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	return NewQuery("value", v.src, func(context.Context) (T, error) {
		return v.Get(), nil
	}).Subscribe(ctx)
}

type versioned[T any] struct {
	gen uint64
	v   T
}

func (v *Value[T]) subscribeVersioned(ctx context.Context) <-chan versioned[T] {
	return NewQuery("value", v.src, func(context.Context) (versioned[T], error) {
		v.mu.RLock()
		defer v.mu.RUnlock()
		return versioned[T]{gen: v.gen, v: v.v}, nil
	}).Subscribe(ctx)
}

func (v *Value[T]) onChange(fn func()) (remove func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.hooks[id] = fn
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		delete(v.hooks, id)
		v.mu.Unlock()
	}
}

// ifCurrent runs fn while holding the read lock, only if gen is still the
// latest generation.
func (v *Value[T]) ifCurrent(gen uint64, fn func()) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.gen == gen {
		fn()
	}
}
