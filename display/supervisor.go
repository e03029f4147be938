package display

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// RunSupervisor re-runs the View's pipeline on a fixed interval
type RunSupervisor struct {
	View     *View
	Interval time.Duration
	Ticker   *time.Ticker
	StopChan chan struct{}
	WG       sync.WaitGroup
}

// NewRunSupervisor couples a supervisor to v, one knows about the other
func (v *View) NewRunSupervisor(interval time.Duration) *RunSupervisor {
	if interval <= 0 {
		interval = time.Hour
	}
	rs := &RunSupervisor{
		View:     v,
		Interval: interval,
	}
	v.Supervisor = rs
	return rs
}

// Start runs once immediately, then on every tick
func (r *RunSupervisor) Start(ctx context.Context) {
	stop := make(chan struct{})
	r.StopChan = stop
	r.Ticker = time.NewTicker(r.Interval)
	ticker := r.Ticker

	ctx, cancel := context.WithCancel(ctx)
	r.WG.Add(1)
	go func() {
		defer r.WG.Done()
		defer ticker.Stop()
		defer cancel()

		r.refresh(ctx)
		for {
			select {
			case <-ticker.C:
				r.refresh(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	// a run in flight is canceled on Stop
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
}

func (r *RunSupervisor) refresh(ctx context.Context) {
	if err := r.View.Refresh(ctx); err != nil && !errors.Is(err, ErrBusy) {
		slog.Warn("Scheduled run failed", slog.Any("error", err))
	}
}

// Stop the RunSupervisor and wait for it to exit
func (r *RunSupervisor) Stop() {
	if r.StopChan != nil {
		close(r.StopChan)
		r.WG.Wait()
		r.StopChan = nil
	}
}

func (r *RunSupervisor) Restart(ctx context.Context) {
	r.Stop()
	r.Start(ctx)
}
