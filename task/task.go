// Package task runs work off the calling goroutine and hands the result, or
// the error, back as a value. Panics inside the work function are recovered
// and reported as *PanicError so that a failing computation never takes the
// process down with it.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// PanicError is an unclassified failure inside a worker goroutine.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("unhandled panic in worker: %v", e.Value)
}

// Future is the handle to one unit of background work.
type Future[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc

	val T
	err error
}

// Submit starts fn on its own goroutine. The context passed to fn is
// cancelled when the future is cancelled or ctx is done.
func Submit[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancel(ctx)
	f := &Future[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(f.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				f.err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()

		f.val, f.err = fn(ctx)
	}()

	return f
}

// Done is closed once the work has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the work has finished and returns its result.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Cancel asks the work to stop. Work that ignores its context still runs to
// completion; its result can be read but callers normally drop it.
func (f *Future[T]) Cancel() {
	f.cancel()
}

// Slot holds at most one in-flight future. Submitting new work cancels the
// previous future, and each submission is tagged with a generation so that
// late results from superseded work can be recognized and ignored.
type Slot[T any] struct {
	mu      sync.Mutex
	current *Future[T]
	gen     uint64
	pending sync.WaitGroup
}

// Submit cancels any in-flight work and starts fn. onResult is invoked on the
// worker goroutine once fn returns, with the generation of this submission;
// use Current to discard stale results.
func (s *Slot[T]) Submit(ctx context.Context, fn func(context.Context) (T, error), onResult func(gen uint64, val T, err error)) uint64 {
	s.mu.Lock()
	if s.current != nil {
		s.current.Cancel()
	}
	s.gen++
	gen := s.gen
	fut := Submit(ctx, fn)
	s.current = fut
	s.pending.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pending.Done()

		val, err := fut.Wait()

		if onResult != nil {
			onResult(gen, val, err)
		}

		s.mu.Lock()
		if s.current == fut {
			s.current = nil
		}
		s.mu.Unlock()
	}()

	return gen
}

// Current reports whether gen is the most recent submission.
func (s *Slot[T]) Current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

// Busy reports whether the latest submission has not yet finished, including
// its onResult callback.
func (s *Slot[T]) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Cancel cancels the in-flight work, if any, and invalidates its generation.
func (s *Slot[T]) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Cancel()
		s.current = nil
	}
	s.gen++
}

// Wait blocks until every submitted future has finished and its onResult
// callback has returned.
func (s *Slot[T]) Wait() {
	s.pending.Wait()
}
