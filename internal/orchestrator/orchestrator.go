// Package orchestrator decides whether a submission is sent now or queued,
// drains the queue when connectivity returns, and owns the global
// IDLE/LOADING/ERROR status that keeps submissions and syncs from overlapping.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/claritydesk/internal/classify"
	"github.com/kalambet/claritydesk/internal/connectivity"
	"github.com/kalambet/claritydesk/internal/generation"
	"github.com/kalambet/claritydesk/internal/intake"
	"github.com/kalambet/claritydesk/internal/records"
)

// Orchestrator is safe for concurrent use. mu guards the store and all
// status fields; generation calls run without it.
type Orchestrator struct {
	mu sync.Mutex

	store  *records.Store
	gen    generation.Generator
	net    connectivity.Monitor
	logger *slog.Logger
	now    func() time.Time

	status     Status
	err        *classify.Error
	last       *retained
	lastMillis int64

	technical lane[intake.TechnicalInput, intake.TechnicalReport]
	strategic lane[intake.StrategicInput, intake.StrategicReport]
}

// retained is the most recent submission, kept so Retry can re-issue it.
type retained struct {
	variant  records.Variant
	resubmit func(ctx context.Context) (records.Entry, error)
}

// lane binds one variant's collection to its generation call so the
// submit and sync paths are written once for both variants.
type lane[I, R any] struct {
	variant    records.Variant
	collection func() *records.Collection[I, R]
	generate   func(ctx context.Context, in I) (*R, error)
	entry      func(records.Record[I, R]) records.Entry
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the clock used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator over a loaded store.
func New(store *records.Store, gen generation.Generator, net connectivity.Monitor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		gen:    gen,
		net:    net,
		logger: slog.Default().With("component", "orchestrator"),
		now:    time.Now,
		status: StatusIdle,

		// Ids continue after the newest persisted record even if the
		// clock reads the same or an earlier millisecond after a restart.
		lastMillis: store.MaxMillis(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.technical = lane[intake.TechnicalInput, intake.TechnicalReport]{
		variant:    records.Technical,
		collection: func() *records.Collection[intake.TechnicalInput, intake.TechnicalReport] { return store.Technical },
		generate:   gen.GenerateTechnical,
		entry:      records.TechnicalEntry,
	}
	o.strategic = lane[intake.StrategicInput, intake.StrategicReport]{
		variant:    records.Strategic,
		collection: func() *records.Collection[intake.StrategicInput, intake.StrategicReport] { return store.Strategic },
		generate:   gen.GenerateStrategic,
		entry:      records.StrategicEntry,
	}
	recordStatus(o.status)
	return o
}

// SubmitTechnical sends or queues a diagnostic request.
func (o *Orchestrator) SubmitTechnical(ctx context.Context, in intake.TechnicalInput) (records.TechnicalRecord, error) {
	return submit(ctx, o, o.technical, in)
}

// SubmitStrategic sends or queues an advisory request.
func (o *Orchestrator) SubmitStrategic(ctx context.Context, in intake.StrategicInput) (records.StrategicRecord, error) {
	return submit(ctx, o, o.strategic, in)
}

// submit creates a record for in. Offline, the record is queued as pending
// without touching the remote service. Online, the record is generated and
// lands as completed or failed; a failure returns the failed record together
// with a *classify.Error and leaves the status at ERROR.
func submit[I, R any](ctx context.Context, o *Orchestrator, l lane[I, R], in I) (records.Record[I, R], error) {
	o.mu.Lock()
	online := o.net.Online()
	if online && o.status == StatusLoading {
		o.mu.Unlock()
		return records.Record[I, R]{}, ErrBusy
	}

	ms := o.nextMillis()
	rec := records.Record[I, R]{
		ID:        records.NewID(l.variant, ms),
		Input:     in,
		Timestamp: records.FormatTimestamp(time.UnixMilli(ms)),
		Status:    records.StatusPending,
	}
	o.last = &retained{
		variant: l.variant,
		resubmit: func(ctx context.Context) (records.Entry, error) {
			r, err := submit(ctx, o, l, in)
			return l.entry(r), err
		},
	}

	if !online {
		defer o.mu.Unlock()
		if err := prepend(o, l, rec); err != nil {
			return records.Record[I, R]{}, err
		}
		recordSubmission(l.variant, rec.Status)
		o.logger.Info("queued offline submission", "variant", l.variant, "record_id", rec.ID)
		return rec, nil
	}

	o.beginLoading()
	o.mu.Unlock()

	report, genErr := callGenerator(ctx, l, in)

	o.mu.Lock()
	defer o.mu.Unlock()

	if genErr != nil {
		rec = rec.Fail()
	} else {
		rec = rec.Complete(report)
	}
	if err := prepend(o, l, rec); err != nil {
		o.fail(classify.Classify(err, string(l.variant)))
		return records.Record[I, R]{}, err
	}
	recordSubmission(l.variant, rec.Status)

	if genErr != nil {
		ce := classify.Classify(genErr, string(l.variant))
		o.fail(ce)
		o.logger.Warn("generation failed", "variant", l.variant, "record_id", rec.ID, "title", ce.Title, "error", genErr)
		return rec, ce
	}

	o.finishIdle()
	o.last = nil
	o.logger.Info("report generated", "variant", l.variant, "record_id", rec.ID)
	return rec, nil
}

// prepend puts rec at the front of its collection and writes the collection
// through. The in-memory change is undone if the write fails. Requires o.mu.
func prepend[I, R any](o *Orchestrator, l lane[I, R], rec records.Record[I, R]) error {
	restore := o.store.Snapshot()
	if err := l.collection().InsertFront(rec); err != nil {
		return err
	}
	if err := o.store.Save(l.variant); err != nil {
		restore()
		o.logger.Error("persisting record", "variant", l.variant, "record_id", rec.ID, "error", err)
		return err
	}
	return nil
}

// nextMillis returns the creation time for a new record in unix millis,
// bumped past the previous one when the clock has not advanced so ids and
// timestamps stay unique and strictly ordered. Requires o.mu.
func (o *Orchestrator) nextMillis() int64 {
	ms := o.now().UnixMilli()
	if ms <= o.lastMillis {
		ms = o.lastMillis + 1
	}
	o.lastMillis = ms
	return ms
}

// Retry re-submits the retained request as a new record. The displayed
// error is cleared first.
func (o *Orchestrator) Retry(ctx context.Context) (records.Entry, error) {
	o.mu.Lock()
	last := o.last
	if last == nil {
		o.mu.Unlock()
		return records.Entry{}, ErrNothingToRetry
	}
	if o.status == StatusLoading {
		o.mu.Unlock()
		return records.Entry{}, ErrBusy
	}
	o.finishIdle()
	o.mu.Unlock()

	o.logger.Info("retrying last request", "variant", last.variant)
	return last.resubmit(ctx)
}

// Dismiss clears a displayed error and returns the status to IDLE.
func (o *Orchestrator) Dismiss() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == StatusError {
		o.finishIdle()
	}
}

// Delete removes a record and persists its collection immediately.
func (o *Orchestrator) Delete(v records.Variant, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.store.Delete(v, id); err != nil {
		return err
	}
	o.logger.Info("record deleted", "variant", v, "record_id", id)
	return nil
}

// State returns the current status, error and pending flag.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Status:     o.status,
		Error:      o.err,
		Online:     o.net.Online(),
		HasPending: o.store.HasPending(),
	}
}

// CanRetry reports whether a request is retained for Retry.
func (o *Orchestrator) CanRetry() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last != nil
}

// Merged lists both collections newest first.
func (o *Orchestrator) Merged() []records.Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.MergedView()
}

func (o *Orchestrator) Technical(id string) (records.TechnicalRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Technical.Get(id)
}

func (o *Orchestrator) Strategic(id string) (records.StrategicRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Strategic.Get(id)
}

func (o *Orchestrator) TechnicalHistory() []records.TechnicalRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Technical.All()
}

func (o *Orchestrator) StrategicHistory() []records.StrategicRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Strategic.All()
}

// callGenerator invokes the remote service for one input, converting a
// panic into an error.
func callGenerator[I, R any](ctx context.Context, l lane[I, R], in I) (report *R, err error) {
	defer func() {
		if r := recover(); r != nil {
			report, err = nil, &generatorPanic{value: r}
		}
	}()
	start := time.Now()
	defer func() { observeGeneration(l.variant, time.Since(start).Seconds()) }()

	report, err = l.generate(ctx, in)
	if err == nil && report == nil {
		err = fmt.Errorf("generation returned no %s report", l.variant)
	}
	return report, err
}

// generatorPanic reports a panic raised inside a Generator.
type generatorPanic struct {
	value any
}

func (p *generatorPanic) Error() string {
	return fmt.Sprintf("generator panicked: %v", p.value)
}
