// Package orchestrator drives a pool of tasks to completion. It owns the
// canonical run state: only the event loop in Run mutates task status,
// attempts and blocker lists. Workers and reporting paths reach the state
// through the claim registry and read-only snapshots.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herdhq/herd/internal/checkpoint"
	"github.com/herdhq/herd/internal/claims"
	"github.com/herdhq/herd/internal/config"
	"github.com/herdhq/herd/internal/runner"
	"github.com/herdhq/herd/internal/work"
	"github.com/herdhq/herd/internal/worker"
)

// WorkSource is the side-effect port back into the external work tracker.
// Both calls are best-effort during a run: failures are logged, never fatal.
type WorkSource interface {
	CreateTask(ctx context.Context, title string) (string, error)
	CloseTask(ctx context.Context, id, reason string) error
}

// Result summarizes a finished run.
type Result struct {
	Success        bool
	Duration       time.Duration
	TasksCompleted int
	TasksFailed    int
	// SuccessRate is completed/(completed+failed), or 1.0 when no task
	// reached a terminal state.
	SuccessRate float64
	// Blockers is the deduplicated union of blocker ids across tasks still
	// blocked at the end of the run.
	Blockers []string
}

const (
	// remediationPriority outranks ordinary work so blockers are cleared
	// first.
	remediationPriority = 100
	// remediationLabel marks synthetic tasks created to clear blockers.
	remediationLabel = "herd-auto"

	eventBuffer = 1000
	stallTick   = time.Minute
)

// Orchestrator owns one run from seeding to sealing.
type Orchestrator struct {
	cfg    config.RunConfig
	store  checkpoint.Store
	source WorkSource
	runner runner.Runner
	logger *slog.Logger

	runID    uuid.UUID
	registry *claims.Registry
	events   chan worker.Event

	// Overridable in tests.
	stallTick   time.Duration
	idleBackoff time.Duration

	mu           sync.RWMutex
	tasks        map[string]*work.Task
	startedAt    time.Time
	completed    int
	failed       int
	lastProgress time.Time
	// remediated guards one remediation task per blocker id per run.
	remediated map[string]struct{}
}

// New builds the canonical run state from the manifest and records the run
// start. A checkpoint failure here aborts before any worker is spawned.
func New(ctx context.Context, manifest *work.Manifest, cfg config.RunConfig,
	store checkpoint.Store, source WorkSource, r runner.Runner, logger *slog.Logger) (*Orchestrator, error) {

	now := time.Now()
	tasks := make(map[string]*work.Task, manifest.TotalTasks)
	for _, t := range manifest.AllTasks() {
		t := t
		// A previous run abandoned claimed/in-progress tasks; this run
		// re-drives them from Ready.
		if t.Status == work.StatusInProgress || t.Status == work.StatusClaimed {
			t.Status = work.StatusReady
		}
		t.BlockedBy = work.NormalizeBlockers(t.BlockedBy)
		tasks[t.ID] = &t
	}

	o := &Orchestrator{
		cfg:          cfg,
		store:        store,
		source:       source,
		runner:       r,
		logger:       logger,
		runID:        uuid.New(),
		events:       make(chan worker.Event, eventBuffer),
		stallTick:    stallTick,
		idleBackoff:  worker.DefaultIdleBackoff,
		tasks:        tasks,
		startedAt:    now,
		lastProgress: now,
		remediated:   make(map[string]struct{}),
	}
	o.registry = claims.New(o)

	if err := store.StartRun(ctx, o.runID, manifest); err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}
	return o, nil
}

// RunID returns the identifier generated for this run.
func (o *Orchestrator) RunID() uuid.UUID {
	return o.runID
}

// ReadyTasks returns a snapshot of tasks with status Ready. It implements
// claims.Source.
func (o *Orchestrator) ReadyTasks() []work.Task {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []work.Task
	for _, t := range o.tasks {
		if t.Status == work.StatusReady {
			out = append(out, *t)
		}
	}
	return out
}

// Assignments returns the current worker-to-task claim map.
func (o *Orchestrator) Assignments() map[string]string {
	return o.registry.Assignments()
}

// Run executes the main event loop until the run terminates: every task has
// reached Completed, Failed or an unresolvable Blocked state, the task cap
// is hit, or ctx is canceled. Termination hard-stops the workers and the
// stall monitor, then seals the run in the checkpoint store.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	o.logger.Info("starting run",
		"run", o.runID, "tasks", len(o.tasks), "workers", o.cfg.Workers)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := worker.New(worker.Config{
		Workers:     o.cfg.Workers,
		TaskTimeout: o.cfg.TaskTimeout,
		IdleBackoff: o.idleBackoff,
	}, o.registry, o.runner, o.events, o.logger)
	pool.Start(runCtx)

	go o.monitor(runCtx)

	processed := 0
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			o.logger.Warn("run canceled", "run", o.runID)
			break loop

		case ev := <-o.events:
			if o.handleEvent(runCtx, ev) {
				processed++
				if o.cfg.TaskLimit > 0 && processed >= o.cfg.TaskLimit {
					o.logger.Info("task limit reached", "limit", o.cfg.TaskLimit)
					break loop
				}
			}

		case <-ticker.C:
			// Periodic completion re-check while no events are flowing.
		}

		if o.isComplete() {
			break
		}
	}

	cancel()

	result := o.buildResult()
	err := o.store.CompleteRun(context.WithoutCancel(ctx), o.runID, checkpoint.RunSummary{
		Success:        result.Success,
		TasksCompleted: result.TasksCompleted,
		TasksFailed:    result.TasksFailed,
	})
	if err != nil {
		return result, fmt.Errorf("failed to seal run: %w", err)
	}

	o.logger.Info("run finished",
		"run", o.runID, "success", result.Success,
		"completed", result.TasksCompleted, "failed", result.TasksFailed)
	return result, nil
}

// handleEvent dispatches one outcome through the transition table. The
// return value reports whether the event counts toward the task cap.
func (o *Orchestrator) handleEvent(ctx context.Context, ev worker.Event) bool {
	switch ev := ev.(type) {
	case worker.Completed:
		o.handleCompleted(ctx, ev)
	case worker.Failed:
		o.handleFailed(ev)
	case worker.Blocked:
		o.handleBlocked(ctx, ev)
	case worker.Stalled:
		o.handleStalled(ev)
		return false
	}
	return true
}

func (o *Orchestrator) handleCompleted(ctx context.Context, ev worker.Completed) {
	// The status change and the dependent unblocking form one critical
	// section so workers never observe a window where the completed task is
	// terminal but its dependents are still blocked; an idle worker polling
	// in that window would see no ready work and retire.
	o.mu.Lock()
	t, ok := o.tasks[ev.TaskID]
	if !ok || t.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	t.Status = work.StatusCompleted
	o.completed++
	o.lastProgress = time.Now()
	unblocked := o.unblockDependentsLocked(ev.TaskID)
	o.mu.Unlock()

	o.logger.Info("task completed", "task", ev.TaskID, "duration", ev.Duration)
	for _, id := range unblocked {
		o.logger.Info("task unblocked", "task", id)
	}

	if err := o.source.CloseTask(ctx, ev.TaskID, "Completed by herd"); err != nil {
		o.logger.Warn("failed to close task in work source", "task", ev.TaskID, "error", err)
	}
}

func (o *Orchestrator) handleFailed(ev worker.Failed) {
	o.mu.Lock()
	defer o.mu.Unlock()

	t, ok := o.tasks[ev.TaskID]
	if !ok || t.Status.Terminal() {
		return
	}
	t.LastError = ev.Err

	// The retry budget is checked before incrementing so attempts tops out
	// at the configured maximum.
	if ev.Retriable && t.Attempts < o.cfg.MaxTaskAttempts {
		t.Attempts++
		t.Status = work.StatusReady
		o.logger.Info("requeueing task", "task", ev.TaskID, "attempt", t.Attempts, "error", ev.Err)
		return
	}

	if t.Attempts < o.cfg.MaxTaskAttempts {
		t.Attempts++
	}
	t.Status = work.StatusFailed
	o.failed++
	o.logger.Error("task permanently failed", "task", ev.TaskID, "attempts", t.Attempts, "error", ev.Err)
}

func (o *Orchestrator) handleBlocked(ctx context.Context, ev worker.Blocked) {
	// Marking the task Blocked and injecting its remediation tasks happen in
	// one critical section for the same worker-retirement reason as in
	// handleCompleted.
	o.mu.Lock()
	t, ok := o.tasks[ev.TaskID]
	if !ok || t.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	t.Status = work.StatusBlocked
	t.BlockedBy = work.NormalizeBlockers(ev.BlockedBy)
	blockers := append([]string(nil), t.BlockedBy...)

	var created []string
	if o.cfg.AutoUnblock {
		for _, blocker := range blockers {
			if id, ok := o.remediateLocked(blocker); ok {
				created = append(created, id)
			}
		}
	}
	o.mu.Unlock()

	o.logger.Warn("task blocked", "task", ev.TaskID, "blocked_by", blockers)

	for _, taskID := range created {
		title := o.taskTitle(taskID)
		o.logger.Info("created remediation task", "task", taskID)
		if _, err := o.source.CreateTask(ctx, title); err != nil {
			o.logger.Warn("failed to create remediation task in work source", "task", taskID, "error", err)
		}
	}
}

// remediateLocked creates at most one synthetic remediation task per blocker
// id per run. The task joins canonical state immediately; the manifest
// snapshot is not updated. Caller holds o.mu.
func (o *Orchestrator) remediateLocked(blocker string) (string, bool) {
	if _, done := o.remediated[blocker]; done {
		return "", false
	}

	taskID := fmt.Sprintf("herd-fix-%s", shortID(blocker))
	o.tasks[taskID] = &work.Task{
		ID:          taskID,
		Title:       fmt.Sprintf("Fix: %s", blocker),
		Description: fmt.Sprintf("Auto-created by herd to unblock dependent tasks.\n\nBlocker: %s", blocker),
		Priority:    remediationPriority,
		Status:      work.StatusReady,
		Labels:      []string{remediationLabel},
	}
	o.remediated[blocker] = struct{}{}
	return taskID, true
}

func (o *Orchestrator) taskTitle(taskID string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if t, ok := o.tasks[taskID]; ok {
		return t.Title
	}
	return taskID
}

func (o *Orchestrator) handleStalled(ev worker.Stalled) {
	o.logger.Warn("progress stalled", "idle", ev.Duration)

	o.mu.RLock()
	defer o.mu.RUnlock()

	var blocked []*work.Task
	ready := 0
	for _, t := range o.tasks {
		switch t.Status {
		case work.StatusBlocked:
			blocked = append(blocked, t)
		case work.StatusReady:
			ready++
		}
	}

	if len(blocked) > 0 && ready == 0 {
		o.logger.Warn("all remaining work is blocked", "blocked", len(blocked))
		for i, t := range blocked {
			if i >= 3 {
				break
			}
			o.logger.Warn("blocked task", "task", t.ID, "blocked_by", t.BlockedBy)
		}
	}
}

// unblockDependentsLocked removes completedID from every blocked task's
// blocker set; tasks whose set drains become Ready again. Caller holds o.mu.
func (o *Orchestrator) unblockDependentsLocked(completedID string) []string {
	var unblocked []string
	for _, t := range o.tasks {
		if t.Status != work.StatusBlocked {
			continue
		}
		t.BlockedBy = work.RemoveBlocker(t.BlockedBy, completedID)
		if len(t.BlockedBy) == 0 {
			t.Status = work.StatusReady
			unblocked = append(unblocked, t.ID)
		}
	}
	return unblocked
}

// isComplete reports whether the run can make no further progress: every
// task is terminal or stuck in Blocked with no Ready work left to drain the
// blockers. Blocked tasks with a live remediation or dependency path keep
// the run going because that path is itself a Ready task.
func (o *Orchestrator) isComplete() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, t := range o.tasks {
		switch t.Status {
		case work.StatusCompleted, work.StatusFailed, work.StatusBlocked:
		default:
			return false
		}
	}
	return true
}

func (o *Orchestrator) buildResult() *Result {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var blockers []string
	for _, t := range o.tasks {
		if t.Status == work.StatusBlocked {
			blockers = append(blockers, t.BlockedBy...)
		}
	}
	blockers = work.NormalizeBlockers(blockers)

	total := o.completed + o.failed
	rate := 1.0
	if total > 0 {
		rate = float64(o.completed) / float64(total)
	}

	return &Result{
		Success:        o.failed == 0 && len(blockers) == 0,
		Duration:       time.Since(o.startedAt),
		TasksCompleted: o.completed,
		TasksFailed:    o.failed,
		SuccessRate:    rate,
		Blockers:       blockers,
	}
}

// shortID truncates a blocker id for use inside a remediation task id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
