package models

import (
	"context"
)

type Result[T any] struct {
	Data T
	Err  error
}

type Future[T any] struct {
	input  chan T
	cancel context.CancelFunc
}

func NewFuture[T any](input chan T, cancel context.CancelFunc) *Future[T] {
	f := &Future[T]{
		input:  input,
		cancel: cancel,
	}

	return f
}

// ResolvedFuture returns a future whose channel already holds v.
func ResolvedFuture[T any](v T) *Future[T] {
	c := make(chan T, 1)
	c <- v
	return NewFuture(c, func() {})
}

func (f *Future[T]) C() chan T {
	return f.input
}

func (f *Future[T]) Stop() {
	f.cancel()
}
