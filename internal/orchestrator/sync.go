package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/claritydesk/internal/classify"
	"github.com/kalambet/claritydesk/internal/records"
)

var errConnectivityLost = errors.New("connectivity lost during sync")

// SyncResult summarises one SyncQueue call.
type SyncResult struct {
	// Skipped is set when the run did not start because the service is
	// offline or another request is in flight.
	Skipped   bool `json:"skipped"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
}

// SyncQueue sends every pending record, Technical collection first, one at a
// time. Each record is resolved to completed or failed on a working copy;
// both collections are committed together once every record has been tried.
// A systemic fault (cancellation, lost connectivity, a generator panic or a
// failed commit) abandons the run, persists nothing and sets the status to
// ERROR with a Sync Interrupted error.
func (o *Orchestrator) SyncQueue(ctx context.Context) (SyncResult, error) {
	o.mu.Lock()
	if !o.net.Online() || o.status == StatusLoading {
		o.mu.Unlock()
		recordSyncRun("skipped")
		return SyncResult{Skipped: true}, nil
	}
	techQueue := o.store.Technical.Pending()
	stratQueue := o.store.Strategic.Pending()
	if len(techQueue)+len(stratQueue) == 0 {
		o.mu.Unlock()
		return SyncResult{}, nil
	}
	o.beginLoading()
	o.mu.Unlock()

	o.logger.Info("sync started", "technical", len(techQueue), "strategic", len(stratQueue))

	var res SyncResult
	techDone, err := drain(ctx, o, o.technical, techQueue, &res)
	var stratDone []records.StrategicRecord
	if err == nil {
		stratDone, err = drain(ctx, o, o.strategic, stratQueue, &res)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		return SyncResult{}, o.interrupt(err)
	}

	restore := o.store.Snapshot()
	mergeBack(o, o.technical, techDone)
	mergeBack(o, o.strategic, stratDone)
	if err := o.store.SaveAll(); err != nil {
		restore()
		return SyncResult{}, o.interrupt(err)
	}

	for _, r := range techDone {
		recordSynced(records.Technical, r.Status)
	}
	for _, r := range stratDone {
		recordSynced(records.Strategic, r.Status)
	}
	recordSyncRun("completed")
	o.finishIdle()
	o.logger.Info("sync finished", "completed", res.Completed, "failed", res.Failed)
	return res, nil
}

// drain resolves queue in order. Per-record generation failures mark the
// record failed; anything that says the run itself is broken is returned.
func drain[I, R any](ctx context.Context, o *Orchestrator, l lane[I, R], queue []records.Record[I, R], res *SyncResult) ([]records.Record[I, R], error) {
	done := make([]records.Record[I, R], 0, len(queue))
	for _, rec := range queue {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !o.net.Online() {
			return nil, errConnectivityLost
		}

		report, err := callGenerator(ctx, l, rec.Input)
		var gp *generatorPanic
		if errors.As(err, &gp) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if err != nil {
			o.logger.Warn("sync record failed", "variant", l.variant, "record_id", rec.ID, "error", err)
			done = append(done, rec.Fail())
			res.Failed++
			continue
		}
		done = append(done, rec.Complete(report))
		res.Completed++
	}
	return done, nil
}

// mergeBack writes resolved records into the live collection by id. Records
// deleted while the sync was running stay deleted. Requires o.mu.
func mergeBack[I, R any](o *Orchestrator, l lane[I, R], done []records.Record[I, R]) {
	c := l.collection()
	for _, r := range done {
		if err := c.Replace(r); err != nil {
			o.logger.Debug("skipping record removed during sync", "variant", l.variant, "record_id", r.ID)
		}
	}
}

// interrupt records a systemic sync fault. Requires o.mu.
func (o *Orchestrator) interrupt(cause error) *classify.Error {
	ce := classify.SyncInterrupted(fmt.Errorf("sync aborted: %w", cause))
	o.fail(ce)
	recordSyncRun("interrupted")
	o.logger.Error("sync interrupted", "error", cause)
	return ce
}
