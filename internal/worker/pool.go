// Package worker runs the pool of concurrent execution loops. Each loop
// claims a task, invokes the runner under the configured timeout, releases
// the claim and emits exactly one outcome event. Workers never touch task
// state; the orchestrator is the sole writer.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/herdhq/herd/internal/claims"
	"github.com/herdhq/herd/internal/runner"
	"github.com/herdhq/herd/internal/work"
)

// DefaultIdleBackoff is how long an idle worker waits before re-polling when
// ready tasks exist but are all claimed by peers.
const DefaultIdleBackoff = 5 * time.Second

// blockerPattern matches work source ids inside a "blocked by ..." message.
var blockerPattern = regexp.MustCompile(`bd-[a-z0-9]+`)

// Config holds pool settings.
type Config struct {
	Workers     int
	TaskTimeout time.Duration
	// IdleBackoff defaults to DefaultIdleBackoff when zero.
	IdleBackoff time.Duration
}

// Pool spawns and owns the worker loops.
type Pool struct {
	cfg      Config
	registry *claims.Registry
	runner   runner.Runner
	events   chan<- Event
	logger   *slog.Logger
}

// New creates a pool emitting outcome events to events.
func New(cfg Config, registry *claims.Registry, r runner.Runner, events chan<- Event, logger *slog.Logger) *Pool {
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = DefaultIdleBackoff
	}
	return &Pool{
		cfg:      cfg,
		registry: registry,
		runner:   r,
		events:   events,
		logger:   logger,
	}
}

// Start spawns the configured number of worker loops. Shutdown is
// non-cooperative: canceling ctx abandons in-flight executions and their
// outcomes are never observed.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		go p.loop(ctx, fmt.Sprintf("worker-%d", i))
	}
}

func (p *Pool) loop(ctx context.Context, workerID string) {
	p.logger.Debug("worker started", "worker", workerID)
	defer p.logger.Debug("worker stopped", "worker", workerID)

	for {
		if ctx.Err() != nil {
			return
		}

		task, ok := p.registry.Claim(workerID)
		if !ok {
			// No claimable task. If nothing is Ready anywhere the run has
			// no more reachable work for this worker; otherwise peers hold
			// the ready tasks, so back off and re-poll.
			if p.registry.ReadyCount() == 0 {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.IdleBackoff):
			}
			continue
		}

		p.logger.Info("claimed task", "worker", workerID, "task", task.ID)

		duration, err := p.execute(ctx, task)
		p.registry.Release(workerID)

		if ctx.Err() != nil {
			return
		}

		select {
		case p.events <- outcome(task.ID, duration, err):
		case <-ctx.Done():
			return
		}
	}
}

// execute wraps the runner invocation with the task timeout.
func (p *Pool) execute(ctx context.Context, task work.Task) (time.Duration, error) {
	runCtx := ctx
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	duration, err := p.runner.Execute(runCtx, task)
	if err != nil && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return 0, fmt.Errorf("task timed out after %s", p.cfg.TaskTimeout)
	}
	return duration, err
}

// outcome translates an execution result into exactly one event. Failures
// whose text carries a "blocked by" phrase become Blocked with the ids
// extracted from the message; failures merely mentioning "blocked" are not
// retriable; everything else is retriable by default.
func outcome(taskID string, duration time.Duration, err error) Event {
	if err == nil {
		return Completed{TaskID: taskID, Duration: duration}
	}

	msg := err.Error()
	if strings.Contains(msg, "blocked by") {
		return Blocked{TaskID: taskID, BlockedBy: ExtractBlockers(msg)}
	}
	return Failed{
		TaskID:    taskID,
		Err:       msg,
		Retriable: !strings.Contains(msg, "blocked"),
	}
}

// ExtractBlockers scans a message for work source id tokens.
func ExtractBlockers(msg string) []string {
	matches := blockerPattern.FindAllString(msg, -1)
	return work.NormalizeBlockers(matches)
}
