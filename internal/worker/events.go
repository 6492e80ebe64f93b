package worker

import "time"

// Event is an outcome emitted toward the orchestrator. Each execution
// attempt produces exactly one Completed, Failed or Blocked event; Stalled
// comes from the stall monitor.
type Event interface {
	event()
}

// Completed reports a successful execution.
type Completed struct {
	TaskID   string
	Duration time.Duration
}

// Failed reports an execution failure. Retriable failures consume one retry
// of the task's budget; non-retriable ones fail the task immediately.
type Failed struct {
	TaskID    string
	Err       string
	Retriable bool
}

// Blocked reports that execution discovered unresolved dependencies.
type Blocked struct {
	TaskID    string
	BlockedBy []string
}

// Stalled reports that no completion has been observed for Duration.
type Stalled struct {
	Duration time.Duration
}

func (Completed) event() {}
func (Failed) event()    {}
func (Blocked) event()   {}
func (Stalled) event()   {}
