package balar

import (
	"context"
	"sync"
)

// deferred is a one-shot value-or-error cell, created eagerly so waiters
// may subscribe before the producer completes. Its resolve/reject path may
// be reached from a force-fail concurrently with the ordinary drain path
// racing to finish first, so resolution is idempotent: the first of
// resolve/reject to run wins.
type deferred[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// newDeferred constructs an unresolved deferred.
func newDeferred[T any]() *deferred[T] {
	return &deferred[T]{done: make(chan struct{})}
}

// resolve completes the deferred successfully. Only the first call (across
// resolve and reject) has any effect.
func (d *deferred[T]) resolve(value T) {
	d.once.Do(func() {
		d.value = value
		close(d.done)
	})
}

// reject completes the deferred with an error. Only the first call (across
// resolve and reject) has any effect.
func (d *deferred[T]) reject(err error) {
	d.once.Do(func() {
		d.err = err
		close(d.done)
	})
}

// wait blocks until the deferred is resolved or rejected, or ctx is done,
// whichever happens first.
func (d *deferred[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// rejecter is satisfied by every *deferred[T], regardless of T, since
// reject's signature does not depend on the type parameter. It lets a
// force-fail pool the batch and scope Deferreds dispatched in one drain
// cycle into a single slice, so it can reject whichever of them are still
// in flight when it runs.
type rejecter interface {
	reject(err error)
}
