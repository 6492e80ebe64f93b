// Package config loads herd settings from .herd.toml and resolves them into
// the runtime configuration for a run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the settings file looked up in the project directory.
const FileName = ".herd.toml"

// File mirrors the .herd.toml layout. Every field is optional; absent fields
// keep their defaults.
type File struct {
	// Workers is the number of parallel worker loops.
	Workers int `toml:"workers"`
	// Timeout is the per-task execution timeout in seconds.
	Timeout int `toml:"timeout"`
	// Retries is the maximum attempts per task.
	Retries int `toml:"retries"`
	// AutoUnblock enables synthetic remediation tasks for blockers.
	AutoUnblock bool `toml:"auto_unblock"`
	// Database is the checkpoint store URL (sqlite:// or mysql://).
	Database string `toml:"database"`
	// StallThreshold is the no-progress warning threshold in seconds.
	StallThreshold int `toml:"stall_threshold"`
	// PollInterval is the orchestrator completion-check interval in ms.
	PollInterval int `toml:"poll_interval"`
}

// Defaults returns the built-in settings.
func Defaults() File {
	return File{
		Workers:        4,
		Timeout:        600,
		Retries:        3,
		AutoUnblock:    true,
		Database:       "sqlite://.herd.db",
		StallThreshold: 300,
		PollInterval:   5000,
	}
}

// Load reads .herd.toml from the project directory. A missing file yields
// the defaults; a malformed file is an error.
func Load(projectDir string) (File, error) {
	cfg := Defaults()

	path := filepath.Join(projectDir, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return File{}, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	return cfg, nil
}

// RunConfig is the resolved runtime configuration for a single run.
type RunConfig struct {
	Workers         int
	MaxTaskAttempts int
	TaskTimeout     time.Duration
	StallThreshold  time.Duration
	PollInterval    time.Duration
	AutoUnblock     bool
	Database        string
	ProjectDir      string
	// TaskLimit caps the number of task outcomes processed; 0 means no cap.
	TaskLimit int
	// Epic restricts discovery to one epic's tasks; empty means the whole
	// backlog.
	Epic string
}

// Resolve converts file settings into a RunConfig rooted at projectDir.
func (f File) Resolve(projectDir string) RunConfig {
	return RunConfig{
		Workers:         f.Workers,
		MaxTaskAttempts: f.Retries,
		TaskTimeout:     time.Duration(f.Timeout) * time.Second,
		StallThreshold:  time.Duration(f.StallThreshold) * time.Second,
		PollInterval:    time.Duration(f.PollInterval) * time.Millisecond,
		AutoUnblock:     f.AutoUnblock,
		Database:        f.Database,
		ProjectDir:      projectDir,
	}
}
