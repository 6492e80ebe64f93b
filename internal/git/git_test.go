package git

import (
	"context"
	"testing"

	"github.com/herdhq/herd/internal/testutil"
)

func TestGetStatus_CleanWorkspace(t *testing.T) {
	orig := CommandContext
	defer func() { CommandContext = orig }()
	CommandContext = testutil.MockCommandFunc("")

	status, err := GetStatus(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Clean {
		t.Error("empty porcelain output should report clean")
	}
	if len(status.Files) != 0 {
		t.Errorf("Files = %v, want none", status.Files)
	}
}

func TestGetStatus_DirtyWorkspace(t *testing.T) {
	orig := CommandContext
	defer func() { CommandContext = orig }()
	CommandContext = testutil.MockCommandFunc(" M internal/work/work.go\n?? notes.txt\n")

	status, err := GetStatus(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Clean {
		t.Error("dirty output should not report clean")
	}
	want := []string{"internal/work/work.go", "notes.txt"}
	if len(status.Files) != len(want) {
		t.Fatalf("Files = %v, want %v", status.Files, want)
	}
	for i, f := range want {
		if status.Files[i] != f {
			t.Errorf("Files[%d] = %q, want %q", i, status.Files[i], f)
		}
	}
}

func TestIsClean_CommandFailure(t *testing.T) {
	orig := CommandContext
	defer func() { CommandContext = orig }()
	CommandContext = testutil.FailingCommandFunc("fatal: not a git repository")

	if _, err := IsClean(context.Background(), ""); err == nil {
		t.Error("expected an error when git fails")
	}
}
