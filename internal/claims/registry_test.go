package claims

import (
	"fmt"
	"sync"
	"testing"

	"github.com/herdhq/herd/internal/work"
)

// staticSource serves a fixed task list.
type staticSource struct {
	mu    sync.RWMutex
	tasks []work.Task
}

func (s *staticSource) ReadyTasks() []work.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []work.Task
	for _, t := range s.tasks {
		if t.Status == work.StatusReady {
			out = append(out, t)
		}
	}
	return out
}

func readyTasks(n int) []work.Task {
	tasks := make([]work.Task, n)
	for i := range tasks {
		tasks[i] = work.Task{
			ID:     fmt.Sprintf("bd-%03d", i),
			Status: work.StatusReady,
		}
	}
	return tasks
}

func TestClaimHighestPriority(t *testing.T) {
	src := &staticSource{tasks: []work.Task{
		{ID: "bd-low", Priority: 1, Status: work.StatusReady},
		{ID: "bd-high", Priority: 10, Status: work.StatusReady},
		{ID: "bd-blocked", Priority: 99, Status: work.StatusBlocked},
	}}
	r := New(src)

	task, ok := r.Claim("worker-0")
	if !ok {
		t.Fatal("expected a claim")
	}
	if task.ID != "bd-high" {
		t.Errorf("claimed %q, want bd-high", task.ID)
	}
}

func TestClaimTieBreakByID(t *testing.T) {
	src := &staticSource{tasks: []work.Task{
		{ID: "bd-b", Priority: 5, Status: work.StatusReady},
		{ID: "bd-a", Priority: 5, Status: work.StatusReady},
		{ID: "bd-c", Priority: 5, Status: work.StatusReady},
	}}

	// The same registry state must always pick the same task.
	for i := 0; i < 10; i++ {
		r := New(src)
		task, ok := r.Claim("worker-0")
		if !ok || task.ID != "bd-a" {
			t.Fatalf("iteration %d: claimed %q, want bd-a", i, task.ID)
		}
	}
}

func TestClaimSkipsAssigned(t *testing.T) {
	src := &staticSource{tasks: readyTasks(2)}
	r := New(src)

	first, ok := r.Claim("worker-0")
	if !ok {
		t.Fatal("expected first claim")
	}
	second, ok := r.Claim("worker-1")
	if !ok {
		t.Fatal("expected second claim")
	}
	if first.ID == second.ID {
		t.Fatalf("both workers claimed %q", first.ID)
	}

	if _, ok := r.Claim("worker-2"); ok {
		t.Error("third claim should fail with two tasks assigned")
	}
}

// With K ready tasks and W > K concurrent claim attempts, exactly K claims
// succeed and no task id is held twice.
func TestConcurrentClaimsNoDoubleAssignment(t *testing.T) {
	const k = 8
	const w = 32

	src := &staticSource{tasks: readyTasks(k)}
	r := New(src)

	var wg sync.WaitGroup
	results := make([]string, w)
	oks := make([]bool, w)

	for i := 0; i < w; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task, ok := r.Claim(fmt.Sprintf("worker-%d", i))
			if ok {
				results[i] = task.ID
			}
			oks[i] = ok
		}(i)
	}
	wg.Wait()

	succeeded := 0
	held := make(map[string]int)
	for i := 0; i < w; i++ {
		if oks[i] {
			succeeded++
			held[results[i]]++
		}
	}

	if succeeded != k {
		t.Errorf("%d claims succeeded, want %d", succeeded, k)
	}
	for id, n := range held {
		if n > 1 {
			t.Errorf("task %s held by %d workers", id, n)
		}
	}
}

func TestReleaseIdempotent(t *testing.T) {
	src := &staticSource{tasks: readyTasks(1)}
	r := New(src)

	if _, ok := r.Claim("worker-0"); !ok {
		t.Fatal("expected claim")
	}

	r.Release("worker-0")
	r.Release("worker-0")
	r.Release("worker-never-claimed")

	// Task becomes claimable again.
	if _, ok := r.Claim("worker-1"); !ok {
		t.Error("task should be claimable after release")
	}
}

func TestReadyCountIgnoresClaims(t *testing.T) {
	src := &staticSource{tasks: readyTasks(3)}
	r := New(src)

	if _, ok := r.Claim("worker-0"); !ok {
		t.Fatal("expected claim")
	}

	// ReadyCount reflects status, not assignments.
	if got := r.ReadyCount(); got != 3 {
		t.Errorf("ReadyCount = %d, want 3", got)
	}
}

func TestAssignmentsSnapshot(t *testing.T) {
	src := &staticSource{tasks: readyTasks(1)}
	r := New(src)

	task, _ := r.Claim("worker-0")
	snap := r.Assignments()
	if snap["worker-0"] != task.ID {
		t.Errorf("snapshot = %v", snap)
	}

	// Mutating the snapshot must not affect the registry.
	delete(snap, "worker-0")
	if got := r.Assignments(); got["worker-0"] != task.ID {
		t.Error("snapshot mutation leaked into registry")
	}
}
