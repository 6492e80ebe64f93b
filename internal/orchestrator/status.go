package orchestrator

import (
	"time"

	"github.com/herdhq/herd/internal/work"
)

// ProjectStatus is a point-in-time snapshot of run progress, suitable for
// the dashboard and the status command.
type ProjectStatus struct {
	Total     int
	Ready     int
	Blocked   int
	Completed int
	Failed    int
	// InFlight counts tasks currently claimed by a worker.
	InFlight int
	// Progress is percent complete, 100 for an empty run.
	Progress float64
	Elapsed  time.Duration
	// ETA estimates remaining wall time from the average pace so far; zero
	// until at least one task has completed.
	ETA time.Duration
}

// Status snapshots current progress. Safe to call from any goroutine.
func (o *Orchestrator) Status() ProjectStatus {
	inFlight := len(o.registry.Assignments())

	o.mu.RLock()
	defer o.mu.RUnlock()

	s := ProjectStatus{
		Total:    len(o.tasks),
		InFlight: inFlight,
		Elapsed:  time.Since(o.startedAt),
	}
	for _, t := range o.tasks {
		switch t.Status {
		case work.StatusReady:
			s.Ready++
		case work.StatusBlocked:
			s.Blocked++
		case work.StatusCompleted:
			s.Completed++
		case work.StatusFailed:
			s.Failed++
		}
	}

	if s.Total == 0 {
		s.Progress = 100.0
		return s
	}
	s.Progress = float64(s.Completed) / float64(s.Total) * 100.0

	remaining := s.Total - s.Completed - s.Failed
	if s.Completed > 0 && remaining > 0 {
		perTask := s.Elapsed / time.Duration(s.Completed)
		s.ETA = perTask * time.Duration(remaining)
	}
	return s
}
