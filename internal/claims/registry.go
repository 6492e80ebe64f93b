// Package claims implements the worker-to-task claim registry. A claim is a
// soft, revocable assignment held only here; it is orthogonal to the task's
// persisted status. The registry is the one resource in the engine that needs
// true mutual exclusion: the scan-and-record in Claim runs as a single
// critical section so two workers can never claim the same task.
package claims

import (
	"sync"

	"github.com/herdhq/herd/internal/work"
)

// Source provides read access to canonical task state. The orchestrator
// implements it; reads take its shared lock.
type Source interface {
	// ReadyTasks returns a snapshot of tasks with status Ready.
	ReadyTasks() []work.Task
}

// Registry maps worker ids to claimed task ids.
type Registry struct {
	source Source

	mu          sync.Mutex
	assignments map[string]string // worker id -> task id
}

// New creates an empty registry reading candidate tasks from source.
func New(source Source) *Registry {
	return &Registry{
		source:      source,
		assignments: make(map[string]string),
	}
}

// Claim atomically selects the highest-priority unassigned Ready task,
// records the assignment and returns the task. Ties on priority break by
// task id ascending, so selection is deterministic. The second return is
// false when no eligible task exists.
func (r *Registry) Claim(workerID string) (work.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	claimed := make(map[string]struct{}, len(r.assignments))
	for _, taskID := range r.assignments {
		claimed[taskID] = struct{}{}
	}

	var best work.Task
	found := false
	for _, t := range r.source.ReadyTasks() {
		if _, taken := claimed[t.ID]; taken {
			continue
		}
		if !found || t.Priority > best.Priority || (t.Priority == best.Priority && t.ID < best.ID) {
			best = t
			found = true
		}
	}

	if !found {
		return work.Task{}, false
	}

	r.assignments[workerID] = best.ID
	return best, true
}

// Release removes the worker's assignment. It is idempotent and is called
// after every execution attempt regardless of outcome.
func (r *Registry) Release(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assignments, workerID)
}

// ReadyCount returns the number of tasks with status Ready, claimed or not.
// Idle workers use it to decide between backing off and retiring.
func (r *Registry) ReadyCount() int {
	return len(r.source.ReadyTasks())
}

// Assignments returns a copy of the current worker-to-task map for
// reporting.
func (r *Registry) Assignments() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.assignments))
	for w, t := range r.assignments {
		out[w] = t
	}
	return out
}
