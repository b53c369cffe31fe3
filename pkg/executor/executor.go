// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package executor runs tasks asynchronously on a bounded goroutine pool and
// hands back a Handle per task to wait on.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"ray-launcher/pkg/logging"

	"github.com/panjf2000/ants/v2"
)

// PanicError is the error a Handle returns when its task panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Executor is a fixed-size worker pool.
type Executor struct {
	pool *ants.Pool
}

// New creates an executor with the given number of workers, one per CPU
// when workers is 0 or less.
func New(workers int) (*Executor, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pool, err := ants.NewPool(workers,
		ants.WithPanicHandler(func(p any) {
			logging.Error("executor worker panicked outside a task: %v", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Executor{pool: pool}, nil
}

// Workers returns the pool size.
func (e *Executor) Workers() int {
	return e.pool.Cap()
}

// Running returns the number of busy workers.
func (e *Executor) Running() int {
	return e.pool.Running()
}

// Release waits up to timeout for running tasks and then frees the pool.
// Submitting after Release fails.
func (e *Executor) Release(timeout time.Duration) error {
	if timeout <= 0 {
		e.pool.Release()
		return nil
	}
	return e.pool.ReleaseTimeout(timeout)
}

// Handle is the pending result of a submitted task.
type Handle[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Get blocks until the task finishes or ctx is done.
func (h *Handle[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn on the executor. It blocks while all workers are busy.
// A panic in fn is returned from Get as a *PanicError.
func Submit[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) (*Handle[T], error) {
	h := &Handle[T]{done: make(chan struct{})}
	err := e.pool.Submit(func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		if err := ctx.Err(); err != nil {
			h.err = err
			return
		}
		h.value, h.err = fn(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit task: %w", err)
	}
	return h, nil
}

// Wait blocks on every handle in order and returns the values in the same
// order. The first error stops the wait.
func Wait[T any](ctx context.Context, handles []*Handle[T]) ([]T, error) {
	values := make([]T, 0, len(handles))
	for i, h := range handles {
		v, err := h.Get(ctx)
		if err != nil {
			return values, fmt.Errorf("task %d: %w", i, err)
		}
		values = append(values, v)
	}
	return values, nil
}
