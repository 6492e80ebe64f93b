package cli

import (
	"testing"
	"time"

	"github.com/herdhq/herd/internal/checkpoint"
	"github.com/herdhq/herd/internal/work"
)

func TestResolveConfigAppliesOverrides(t *testing.T) {
	projectDir = t.TempDir()
	runWorkers = 8
	runTimeout = 30
	runRetries = 5
	runLimit = 10
	runEpic = "bd-epic1"
	defer func() {
		projectDir = "."
		runWorkers, runTimeout, runRetries, runLimit = 0, 0, 0, 0
		runEpic = ""
	}()

	cfg, err := resolveConfig()
	if err != nil {
		t.Fatalf("resolveConfig() failed: %v", err)
	}

	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.TaskTimeout != 30*time.Second {
		t.Errorf("TaskTimeout = %v, want 30s", cfg.TaskTimeout)
	}
	if cfg.MaxTaskAttempts != 5 {
		t.Errorf("MaxTaskAttempts = %d, want 5", cfg.MaxTaskAttempts)
	}
	if cfg.TaskLimit != 10 {
		t.Errorf("TaskLimit = %d, want 10", cfg.TaskLimit)
	}
	if cfg.Epic != "bd-epic1" {
		t.Errorf("Epic = %q, want %q", cfg.Epic, "bd-epic1")
	}
}

func TestDepsLines(t *testing.T) {
	m := &work.Manifest{
		Epics: []work.Epic{{
			ID:    "bd-epic1",
			Title: "Auth overhaul",
			Tasks: []work.Task{
				{ID: "bd-1", Status: work.StatusReady},
				{ID: "bd-2", Status: work.StatusBlocked, BlockedBy: []string{"bd-1"}},
			},
		}},
		StandaloneTasks: []work.Task{
			{ID: "bd-3", Status: work.StatusBlocked, BlockedBy: []string{"bd-1", "bd-2"}},
		},
		TotalTasks: 3,
	}

	want := []string{
		"bd-2 <- bd-1",
		"bd-3 <- bd-1",
		"bd-3 <- bd-2",
	}
	got := depsLines(m)
	if len(got) != len(want) {
		t.Fatalf("depsLines() returned %d lines, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("depsLines()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDepsLinesNoEdges(t *testing.T) {
	m := &work.Manifest{
		StandaloneTasks: []work.Task{{ID: "bd-1", Status: work.StatusReady}},
		TotalTasks:      1,
	}
	if got := depsLines(m); len(got) != 0 {
		t.Errorf("depsLines() = %v, want empty", got)
	}
}

func TestResolveConfigKeepsDefaults(t *testing.T) {
	projectDir = t.TempDir()
	defer func() { projectDir = "." }()

	cfg, err := resolveConfig()
	if err != nil {
		t.Fatalf("resolveConfig() failed: %v", err)
	}

	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want default 4", cfg.Workers)
	}
	if cfg.TaskTimeout != 600*time.Second {
		t.Errorf("TaskTimeout = %v, want default 600s", cfg.TaskTimeout)
	}
}

func TestFormatOutcome(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name    string
		success *bool
		want    string
	}{
		{"open run", nil, "running"},
		{"successful run", &yes, "success"},
		{"failed run", &no, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := checkpoint.RunRecord{Success: tt.success}
			if got := formatOutcome(r); got != tt.want {
				t.Errorf("formatOutcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want string
	}{
		{"seconds", 30 * time.Second, "just now"},
		{"minutes", 5 * time.Minute, "5m ago"},
		{"hours", 3 * time.Hour, "3h ago"},
		{"days", 49 * time.Hour, "2d ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAge(time.Now().Add(-tt.age)); got != tt.want {
				t.Errorf("formatAge() = %q, want %q", got, tt.want)
			}
		})
	}
}
