// Package async holds the handshake primitives: a write-once Future and
// the All join that waits for independent operations and fails fast.
package async

import (
	"context"
	"errors"
	"sync"
)

var ErrRejectedNil = errors.New("async: reject with nil error")

// Future is a write-once result. The first Resolve or Reject wins; later
// calls report false and leave the value untouched.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve stores v if the future is still pending.
func (f *Future[T]) Resolve(v T) bool {
	fired := false
	f.once.Do(func() {
		f.val = v
		close(f.done)
		fired = true
	})
	return fired
}

// Reject stores err if the future is still pending.
func (f *Future[T]) Reject(err error) bool {
	if err == nil {
		err = ErrRejectedNil
	}
	fired := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		fired = true
	})
	return fired
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether Resolve or Reject already happened.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future settles or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
