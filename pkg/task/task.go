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

// Package task holds the functions jobs run on the head node and the
// runner that wraps each call with a working directory and status capture.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ray-launcher/pkg/jobspec"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ErrUnknownTask is returned when a task name is not registered.
var ErrUnknownTask = errors.New("unknown task")

// JobContext is everything a task function gets to see about its job.
type JobContext struct {
	Job        jobspec.JobConfig
	Run        jobspec.RunContext
	WorkingDir string
	Fs         afero.Fs
	Logger     *logrus.Entry
}

// Params is a shorthand for Job.Params().
func (c *JobContext) Params() map[string]string {
	return c.Job.Params()
}

// Func is a task function. The returned value must be JSON serializable.
type Func func(ctx context.Context, jc *JobContext) (any, error)

// Registry maps task names to functions.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: map[string]Func{}}
}

// Builtin returns a registry holding the tasks shipped with the launcher.
func Builtin() *Registry {
	r := NewRegistry()
	r.MustRegister(ShellTaskName, Shell)
	return r
}

// Register adds fn under name. Names are unique.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return errors.New("task name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("task %q has a nil function", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[name]; ok {
		return fmt.Errorf("task %q is already registered", name)
	}
	r.tasks[name] = fn
	return nil
}

// MustRegister is Register that panics on error, for use at init time.
func (r *Registry) MustRegister(name string, fn Func) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w %q, registered tasks: %v", ErrUnknownTask, name, r.namesLocked())
	}
	return fn, nil
}

// Names returns the registered task names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.tasks))
	for n := range r.tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
