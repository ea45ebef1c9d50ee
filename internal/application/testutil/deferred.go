package testutil

import (
	"context"
	"sync"
	"time"
)

// DeferredTask is one task registered with FakeDeferredRunner.
type DeferredTask struct {
	Name string
	At   time.Time
	Task func(ctx context.Context)
}

// FakeDeferredRunner records deferred tasks; tests fire them explicitly.
type FakeDeferredRunner struct {
	mu    sync.Mutex
	tasks map[string]DeferredTask
	Err   error
}

func NewFakeDeferredRunner() *FakeDeferredRunner {
	return &FakeDeferredRunner{tasks: make(map[string]DeferredTask)}
}

func (r *FakeDeferredRunner) RunAt(name string, at time.Time, task func(ctx context.Context)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.tasks[name] = DeferredTask{Name: name, At: at, Task: task}
	return nil
}

// Pending returns the registered tasks that have not fired.
func (r *FakeDeferredRunner) Pending() map[string]DeferredTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]DeferredTask, len(r.tasks))
	for k, v := range r.tasks {
		out[k] = v
	}
	return out
}

// Fire runs and removes the named task. It reports whether the task existed.
func (r *FakeDeferredRunner) Fire(ctx context.Context, name string) bool {
	r.mu.Lock()
	t, ok := r.tasks[name]
	delete(r.tasks, name)
	r.mu.Unlock()
	if ok {
		t.Task(ctx)
	}
	return ok
}

// ReminderSet is an in-memory ReminderDeduplicator.
type ReminderSet struct {
	mu   sync.Mutex
	seen map[string]bool
	Err  error
}

func NewReminderSet() *ReminderSet {
	return &ReminderSet{seen: make(map[string]bool)}
}

func (s *ReminderSet) TryMark(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}
