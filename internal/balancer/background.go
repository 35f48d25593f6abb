package balancer

import (
	"context"
	"time"
)

const (
	sweepInterval    = 5 * time.Minute
	recoveryInterval = 10 * time.Second
)

// StartBackgroundTasks launches the session sweeper and CB recovery tick as
// persistent goroutines, grounded on the teacher's errgroup-managed
// lifecycle in internal/app/app.go. Both tasks stop when ctx is canceled or
// Close is called, whichever comes first.
func (b *Balancer) StartBackgroundTasks(ctx context.Context) {
	go b.runSweeper(ctx)
	go b.runRecoveryTick(ctx)
}

func (b *Balancer) runSweeper(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-t.C:
			b.sessions.Sweep(time.Now())
		}
	}
}

func (b *Balancer) runRecoveryTick(ctx context.Context) {
	t := time.NewTicker(recoveryInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-t.C:
			b.cb.TickRecovery()
		}
	}
}
