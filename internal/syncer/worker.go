// Package syncer drains the offline queue in the background: once when
// connectivity comes back and then periodically while records stay pending.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/claritydesk/internal/connectivity"
	"github.com/kalambet/claritydesk/internal/orchestrator"
)

// Queue is the part of the orchestrator the worker drives.
type Queue interface {
	SyncQueue(ctx context.Context) (orchestrator.SyncResult, error)
	State() orchestrator.State
}

// Worker triggers queue syncs.
type Worker struct {
	queue  Queue
	net    connectivity.Monitor
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to one minute.
func NewWorker(queue Queue, net connectivity.Monitor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Worker{
		queue:  queue,
		net:    net,
		poll:   pollInterval,
		logger: slog.Default().With("component", "syncer"),
	}
}

// Run syncs on every offline to online transition and on each poll tick
// until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	transitions, stop := w.net.Subscribe()
	defer stop()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	w.step(ctx, false)
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-transitions:
			if !ok {
				return
			}
			if online {
				w.logger.Info("connectivity restored, syncing queue")
				w.step(ctx, true)
			}
		case <-ticker.C:
			w.step(ctx, false)
		}
	}
}

func (w *Worker) step(ctx context.Context, force bool) {
	if _, err := w.runOnce(ctx, force); err != nil {
		w.logger.Error("sync iteration failed", "error", err)
	}
}

// RunOnce syncs if the service is online, records are pending and the
// orchestrator is not showing an error. It returns true if a sync ran.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	return w.runOnce(ctx, false)
}

func (w *Worker) runOnce(ctx context.Context, force bool) (bool, error) {
	st := w.queue.State()
	if !st.Online || !st.HasPending {
		return false, nil
	}
	if st.Status == orchestrator.StatusError && !force {
		return false, nil
	}

	res, err := w.queue.SyncQueue(ctx)
	if err != nil {
		return true, fmt.Errorf("syncing queue: %w", err)
	}
	if res.Skipped {
		return false, nil
	}
	w.logger.Info("queue synced", "completed", res.Completed, "failed", res.Failed)
	return true, nil
}
