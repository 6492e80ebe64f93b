// Package work defines the task, epic and manifest data model shared by the
// orchestration engine. A manifest is a snapshot built once at run start;
// canonical task state diverges from it as the run progresses.
package work

import (
	"fmt"
	"sort"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

// Task status constants. Only Ready, Blocked, Completed and Failed are ever
// assigned by the orchestrator; Claimed and InProgress exist in the work
// source vocabulary and in registry-derived views.
const (
	StatusReady      Status = "ready"
	StatusClaimed    Status = "claimed"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final for a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus maps a work source status string to an internal status.
// Unrecognized strings default to Ready.
func ParseStatus(s string) Status {
	switch s {
	case "open":
		return StatusReady
	case "in-progress":
		return StatusInProgress
	case "blocked":
		return StatusBlocked
	case "closed":
		return StatusCompleted
	default:
		return StatusReady
	}
}

// Task is a single unit of work. Fields are immutable after ingestion except
// Status, BlockedBy, Attempts and LastError, which are mutated exclusively by
// the orchestrator.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    int      `json:"priority"`
	Status      Status   `json:"status"`
	ParentEpic  string   `json:"parentEpic,omitempty"`
	BlockedBy   []string `json:"blockedBy,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Attempts    int      `json:"attempts"`
	LastError   string   `json:"lastError,omitempty"`
}

// Epic groups related tasks with derived aggregate progress.
type Epic struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Tasks    []Task  `json:"tasks"`
	Progress float64 `json:"progress"`
}

// Manifest is a snapshot of all discovered work plus aggregate counts.
type Manifest struct {
	Epics           []Epic `json:"epics"`
	StandaloneTasks []Task `json:"standaloneTasks"`
	TotalTasks      int    `json:"totalTasks"`
	ReadyTasks      int    `json:"readyTasks"`
	BlockedTasks    int    `json:"blockedTasks"`
	CompletedTasks  int    `json:"completedTasks"`
}

// AllTasks returns every task in the manifest, epic tasks first.
func (m *Manifest) AllTasks() []Task {
	tasks := make([]Task, 0, m.TotalTasks)
	for _, e := range m.Epics {
		tasks = append(tasks, e.Tasks...)
	}
	tasks = append(tasks, m.StandaloneTasks...)
	return tasks
}

// TargetDescription returns a human-readable summary of what the manifest
// covers.
func (m *Manifest) TargetDescription() string {
	switch {
	case len(m.Epics) == 1 && len(m.StandaloneTasks) == 0:
		return fmt.Sprintf("Epic: %s", m.Epics[0].Title)
	case len(m.Epics) == 0 && len(m.StandaloneTasks) > 0:
		return fmt.Sprintf("%d standalone tasks", len(m.StandaloneTasks))
	default:
		return fmt.Sprintf("%d epics, %d standalone tasks", len(m.Epics), len(m.StandaloneTasks))
	}
}

// Stats holds counts derived from a set of tasks.
type Stats struct {
	Ready     int
	Blocked   int
	Completed int
}

// CalculateStats counts tasks by scheduling state.
func CalculateStats(tasks []Task) Stats {
	var s Stats
	for i := range tasks {
		switch tasks[i].Status {
		case StatusReady:
			s.Ready++
		case StatusBlocked:
			s.Blocked++
		case StatusCompleted:
			s.Completed++
		}
	}
	return s
}

// Progress returns the percentage of tasks completed. An empty slice counts
// as fully complete.
func Progress(tasks []Task) float64 {
	if len(tasks) == 0 {
		return 100.0
	}
	completed := 0
	for i := range tasks {
		if tasks[i].Status == StatusCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(tasks)) * 100.0
}

// NormalizeBlockers deduplicates and sorts blocker ids. Blocker collections
// carry set semantics so that unblock handling stays idempotent.
func NormalizeBlockers(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RemoveBlocker removes every occurrence of id from blockers and returns the
// remaining slice.
func RemoveBlocker(blockers []string, id string) []string {
	out := blockers[:0]
	for _, b := range blockers {
		if b != id {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FormatDuration formats a duration as HH:MM:SS, or MM:SS when under an hour.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
