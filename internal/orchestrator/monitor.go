package orchestrator

import (
	"context"
	"time"

	"github.com/herdhq/herd/internal/worker"
)

// monitor watches for stretches with no completed task and injects a
// Stalled event into the main loop when the idle time crosses the
// configured threshold. It observes only; the event loop decides how to
// react. It runs until ctx is canceled.
func (o *Orchestrator) monitor(ctx context.Context) {
	ticker := time.NewTicker(o.stallTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.mu.RLock()
			idle := time.Since(o.lastProgress)
			o.mu.RUnlock()

			if idle <= o.cfg.StallThreshold {
				continue
			}
			select {
			case o.events <- worker.Stalled{Duration: idle}:
			case <-ctx.Done():
				return
			}
		}
	}
}
