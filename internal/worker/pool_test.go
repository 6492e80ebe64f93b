package worker

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/herdhq/herd/internal/claims"
	"github.com/herdhq/herd/internal/logging"
	"github.com/herdhq/herd/internal/work"
)

// poolSource is a mutable claims source for pool tests.
type poolSource struct {
	mu    sync.RWMutex
	tasks map[string]*work.Task
}

func newPoolSource(tasks ...work.Task) *poolSource {
	s := &poolSource{tasks: make(map[string]*work.Task)}
	for i := range tasks {
		t := tasks[i]
		s.tasks[t.ID] = &t
	}
	return s
}

func (s *poolSource) ReadyTasks() []work.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []work.Task
	for _, t := range s.tasks {
		if t.Status == work.StatusReady {
			out = append(out, *t)
		}
	}
	return out
}

func (s *poolSource) setStatus(id string, status work.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id].Status = status
}

// funcRunner adapts a function to the runner interface.
type funcRunner func(ctx context.Context, task work.Task) (time.Duration, error)

func (f funcRunner) Execute(ctx context.Context, task work.Task) (time.Duration, error) {
	return f(ctx, task)
}

func TestOutcomeClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Event
	}{
		{
			name: "success",
			err:  nil,
			want: Completed{TaskID: "bd-1", Duration: time.Second},
		},
		{
			name: "blocked by phrase",
			err:  errors.New("cannot proceed: blocked by bd-123 and bd-456"),
			want: Blocked{TaskID: "bd-1", BlockedBy: []string{"bd-123", "bd-456"}},
		},
		{
			name: "blocked without phrase is not retriable",
			err:  errors.New("resource blocked"),
			want: Failed{TaskID: "bd-1", Err: "resource blocked", Retriable: false},
		},
		{
			name: "other failures are retriable",
			err:  errors.New("tests failed"),
			want: Failed{TaskID: "bd-1", Err: "tests failed", Retriable: true},
		},
		{
			name: "timeout is retriable",
			err:  errors.New("task timed out after 10m0s"),
			want: Failed{TaskID: "bd-1", Err: "task timed out after 10m0s", Retriable: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := outcome("bd-1", time.Second, tt.err)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestExtractBlockers(t *testing.T) {
	got := ExtractBlockers("blocked by bd-abc123, bd-def and also bd-abc123")
	want := []string{"bd-abc123", "bd-def"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if got := ExtractBlockers("no ids here"); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestWorkerEmitsOneEventPerClaim(t *testing.T) {
	src := newPoolSource(work.Task{ID: "bd-1", Status: work.StatusReady})
	registry := claims.New(src)
	events := make(chan Event, 16)

	r := funcRunner(func(ctx context.Context, task work.Task) (time.Duration, error) {
		// Mark the task done the way the orchestrator would, so the worker
		// retires after this attempt instead of reclaiming.
		src.setStatus(task.ID, work.StatusCompleted)
		return 5 * time.Millisecond, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := New(Config{Workers: 1, IdleBackoff: time.Millisecond}, registry, r, events, logging.Discard())
	pool.Start(ctx)

	select {
	case ev := <-events:
		done, ok := ev.(Completed)
		if !ok || done.TaskID != "bd-1" {
			t.Fatalf("unexpected event: %#v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected second event: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWorkerRetiresWhenNoWork(t *testing.T) {
	src := newPoolSource() // empty
	registry := claims.New(src)
	events := make(chan Event, 1)

	executed := make(chan struct{}, 1)
	r := funcRunner(func(ctx context.Context, task work.Task) (time.Duration, error) {
		executed <- struct{}{}
		return 0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := New(Config{Workers: 2, IdleBackoff: time.Millisecond}, registry, r, events, logging.Discard())
	pool.Start(ctx)

	select {
	case <-executed:
		t.Fatal("runner should never execute with no ready tasks")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestExecuteTimeoutIsRetriable(t *testing.T) {
	src := newPoolSource(work.Task{ID: "bd-slow", Status: work.StatusReady})
	registry := claims.New(src)
	events := make(chan Event, 1)

	r := funcRunner(func(ctx context.Context, task work.Task) (time.Duration, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := New(Config{
		Workers:     1,
		TaskTimeout: 10 * time.Millisecond,
		IdleBackoff: time.Millisecond,
	}, registry, r, events, logging.Discard())
	pool.Start(ctx)

	select {
	case ev := <-events:
		failed, ok := ev.(Failed)
		if !ok {
			t.Fatalf("unexpected event: %#v", ev)
		}
		if !failed.Retriable {
			t.Error("timeout should be retriable")
		}
		src.setStatus("bd-slow", work.StatusFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestPoolHardCancel(t *testing.T) {
	src := newPoolSource(work.Task{ID: "bd-1", Status: work.StatusReady})
	registry := claims.New(src)
	events := make(chan Event) // unbuffered: nobody consumes

	started := make(chan struct{})
	r := funcRunner(func(ctx context.Context, task work.Task) (time.Duration, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	pool := New(Config{Workers: 1, IdleBackoff: time.Millisecond}, registry, r, events, logging.Discard())
	pool.Start(ctx)

	<-started
	cancel()

	// The abandoned outcome must never be delivered.
	select {
	case ev := <-events:
		t.Fatalf("event delivered after cancel: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
