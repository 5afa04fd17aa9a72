package orchestrator

import (
	"context"
	"time"
)

// sleep espera d em passos de sleep_step e retorna antes em caso de
// desligamento, cancelamento ou Wake.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	step := o.cfg.SleepStep
	if step <= 0 || step > d {
		step = d
	}

	deadline := time.Now().Add(d)
	timer := time.NewTimer(step)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.wake:
			return
		case <-timer.C:
		}

		if o.Requested() {
			return
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		timer.Reset(min(step, remaining))
	}
}
