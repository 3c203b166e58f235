// Package observable provides a latest-value cell that subscribers can watch.
package observable

import "sync"

// Reader is the read side of a Value
type Reader[T any] interface {
	Get() T
	Subscribe() (<-chan T, func())
}

// Value holds a single value and notifies subscribers when it changes.
// Subscriptions are conflated: a slow subscriber only ever sees the most
// recent value, never a backlog.
type Value[T any] struct {
	mu    sync.Mutex
	value T
	equal func(a, b T) bool
	subs  map[chan T]struct{}
}

// New creates a Value. equal decides whether a Set is a change; nil means
// every Set notifies.
func New[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		value: initial,
		equal: equal,
		subs:  make(map[chan T]struct{}),
	}
}

// NewComparable creates a Value using == as the change test
func NewComparable[T comparable](initial T) *Value[T] {
	return New(initial, func(a, b T) bool { return a == b })
}

// Get returns the current value
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set stores value and notifies subscribers if it differs from the previous
// one. It reports whether subscribers were notified.
func (v *Value[T]) Set(value T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	changed := v.equal == nil || !v.equal(v.value, value)
	v.value = value
	if !changed {
		return false
	}
	for ch := range v.subs {
		offer(ch, value)
	}
	return true
}

// Subscribe returns a channel that first yields the current value and then
// every subsequent change. Call the returned function to unsubscribe.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan T, 1)
	ch <- v.value
	v.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subs, ch)
			close(ch)
		})
	}
	return ch, cancel
}

// offer replaces any undelivered value in ch with value. Callers hold v.mu,
// which makes them the only sender.
func offer[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- value
}
