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

package executor

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newExecutor(t *testing.T, workers int) *Executor {
	t.Helper()
	e, err := New(workers)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { e.Release(0) })
	return e
}

func TestDefaultWorkers(t *testing.T) {
	e := newExecutor(t, 0)
	if e.Workers() != runtime.NumCPU() {
		t.Errorf("Workers() = %d, want %d", e.Workers(), runtime.NumCPU())
	}
}

func TestWaitPreservesOrder(t *testing.T) {
	e := newExecutor(t, 4)
	ctx := context.Background()

	var handles []*Handle[int]
	for i := 0; i < 20; i++ {
		i := i
		h, err := Submit(ctx, e, func(context.Context) (int, error) {
			// Later tasks finish first.
			time.Sleep(time.Duration(20-i) * time.Millisecond)
			return i * i, nil
		})
		if err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}
		handles = append(handles, h)
	}

	got, err := Wait(ctx, handles)
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	want := make([]int, 20)
	for i := range want {
		want[i] = i * i
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Wait() mismatch (-want +got):\n%s", diff)
	}
}

func TestBoundedConcurrency(t *testing.T) {
	e := newExecutor(t, 2)
	ctx := context.Background()

	var running, peak int32
	var handles []*Handle[struct{}]
	for i := 0; i < 8; i++ {
		h, err := Submit(ctx, e, func(context.Context) (struct{}, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return struct{}{}, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		handles = append(handles, h)
	}
	if _, err := Wait(ctx, handles); err != nil {
		t.Fatal(err)
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestPanicIsCaptured(t *testing.T) {
	e := newExecutor(t, 1)
	ctx := context.Background()

	bad, err := Submit(ctx, e, func(context.Context) (int, error) { panic("boom") })
	if err != nil {
		t.Fatal(err)
	}
	good, err := Submit(ctx, e, func(context.Context) (int, error) { return 7, nil })
	if err != nil {
		t.Fatal(err)
	}

	_, err = bad.Get(ctx)
	var pe *PanicError
	if !errors.As(err, &pe) || pe.Value != "boom" || len(pe.Stack) == 0 {
		t.Errorf("Get() error = %v, want PanicError(boom) with stack", err)
	}
	if v, err := good.Get(ctx); err != nil || v != 7 {
		t.Errorf("Get() = %d, %v; want 7, nil", v, err)
	}
}

func TestTaskError(t *testing.T) {
	e := newExecutor(t, 1)
	ctx := context.Background()
	h, err := Submit(ctx, e, func(context.Context) (string, error) { return "", errors.New("nope") })
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Wait(ctx, []*Handle[string]{h}); err == nil || err.Error() != "task 0: nope" {
		t.Errorf("Wait() error = %v, want task 0: nope", err)
	}
}

func TestGetHonorsContext(t *testing.T) {
	e := newExecutor(t, 1)
	release := make(chan struct{})
	defer close(release)

	h, err := Submit(context.Background(), e, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Get() error = %v, want deadline exceeded", err)
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	e := newExecutor(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	h, err := Submit(ctx, e, func(context.Context) (int, error) {
		ran.Store(true)
		return 0, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Get(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
	if ran.Load() {
		t.Error("task ran although its context was cancelled")
	}
}

func TestSubmitAfterRelease(t *testing.T) {
	e, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	e.Release(0)
	if _, err := Submit(context.Background(), e, func(context.Context) (int, error) { return 0, nil }); err == nil {
		t.Error("Submit() after Release succeeded, want error")
	}
}
