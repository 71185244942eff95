package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/claritydesk/internal/classify"
	"github.com/kalambet/claritydesk/internal/records"
)

// queue submits two Technical and one Strategic record while offline and
// then brings the harness online.
func queue(t *testing.T, h *harness) (t1, t2 records.TechnicalRecord, s1 records.StrategicRecord) {
	t.Helper()
	ctx := context.Background()
	var err error
	t1, err = h.o.SubmitTechnical(ctx, techInput("one"))
	require.NoError(t, err)
	t2, err = h.o.SubmitTechnical(ctx, techInput("two"))
	require.NoError(t, err)
	s1, err = h.o.SubmitStrategic(ctx, stratInput("three"))
	require.NoError(t, err)
	h.net.Set(true)
	return t1, t2, s1
}

func TestSyncQueueOfflineIsNoop(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.o.SubmitTechnical(context.Background(), techInput("one"))
	require.NoError(t, err)

	res, err := h.o.SyncQueue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, h.gen.Calls())
	assert.Equal(t, StatusIdle, h.o.State().Status)
	assert.True(t, h.o.State().HasPending)
}

func TestSyncQueueEmptyDoesNothing(t *testing.T) {
	h := newHarness(t, true)
	res, err := h.o.SyncQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, res)
	assert.Equal(t, 0, h.gen.Calls())
}

func TestSyncQueueResolvesEveryPendingRecord(t *testing.T) {
	h := newHarness(t, false)
	t1, t2, s1 := queue(t, h)

	// Collection order is newest first, so t2 is sent first and t1 fails.
	h.gen.Hook = func(_ context.Context, call int) error {
		if call == 1 {
			return errors.New("upstream 500")
		}
		return nil
	}

	res, err := h.o.SyncQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Completed: 2, Failed: 1}, res)

	inputs := h.gen.TechnicalInputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, "two", inputs[0].Client.Name)
	assert.Equal(t, "one", inputs[1].Client.Name)

	hist := h.o.TechnicalHistory()
	require.Len(t, hist, 2)
	assert.Equal(t, t2.ID, hist[0].ID)
	assert.Equal(t, records.StatusCompleted, hist[0].Status)
	assert.NotNil(t, hist[0].Report)
	assert.Equal(t, t1.ID, hist[1].ID)
	assert.Equal(t, records.StatusFailed, hist[1].Status)

	got, err := h.o.Strategic(s1.ID)
	require.NoError(t, err)
	assert.Equal(t, records.StatusCompleted, got.Status)

	st := h.o.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.False(t, st.HasPending)

	persisted := h.reload()
	assert.False(t, persisted.HasPending())
	assert.Equal(t, records.StatusCompleted, persisted.Technical.All()[0].Status)
}

func assertInterrupted(t *testing.T, h *harness, err error) {
	t.Helper()
	var ce *classify.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, classify.SyncInterruption, ce.Category)
	assert.Equal(t, "Sync Interrupted", ce.Title)
	assert.Equal(t, "Network error during batch sync.", ce.Detail)

	st := h.o.State()
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, ce, st.Error)

	for _, r := range h.o.TechnicalHistory() {
		assert.Equal(t, records.StatusPending, r.Status)
	}
	for _, r := range h.o.StrategicHistory() {
		assert.Equal(t, records.StatusPending, r.Status)
	}
	persisted := h.reload()
	for _, r := range persisted.Technical.All() {
		assert.Equal(t, records.StatusPending, r.Status)
	}
	for _, r := range persisted.Strategic.All() {
		assert.Equal(t, records.StatusPending, r.Status)
	}
}

func TestSyncQueueConnectivityDropAborts(t *testing.T) {
	h := newHarness(t, false)
	queue(t, h)
	h.gen.Hook = func(_ context.Context, call int) error {
		if call == 0 {
			h.net.Set(false)
		}
		return nil
	}

	_, err := h.o.SyncQueue(context.Background())
	assertInterrupted(t, h, err)
	assert.Equal(t, 1, h.gen.Calls())
}

func TestSyncQueueGeneratorPanicAborts(t *testing.T) {
	h := newHarness(t, false)
	queue(t, h)
	h.gen.Hook = func(_ context.Context, call int) error {
		if call == 2 {
			panic("bad state")
		}
		return nil
	}

	_, err := h.o.SyncQueue(context.Background())
	assertInterrupted(t, h, err)
}

func TestSyncQueueCancelledContextAborts(t *testing.T) {
	h := newHarness(t, false)
	queue(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	h.gen.Hook = func(ctx context.Context, call int) error {
		cancel()
		return ctx.Err()
	}

	_, err := h.o.SyncQueue(ctx)
	assertInterrupted(t, h, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyncQueueCommitFailureRevertsState(t *testing.T) {
	kv := &flakyKV{data: map[string]string{}}
	h := newHarnessWithKV(t, false, kv)
	queue(t, h)
	h.gen.Hook = func(_ context.Context, call int) error {
		kv.setFail(true)
		return nil
	}

	_, err := h.o.SyncQueue(context.Background())
	kv.setFail(false)
	assertInterrupted(t, h, err)
	assert.Equal(t, 3, h.gen.Calls())
}

func TestSyncQueueKeepsRecordsDeletedMidRun(t *testing.T) {
	h := newHarness(t, false)
	t1, t2, _ := queue(t, h)
	h.gen.Hook = func(_ context.Context, call int) error {
		if call == 0 {
			require.NoError(t, h.o.Delete(records.Technical, t1.ID))
		}
		return nil
	}

	res, err := h.o.SyncQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Completed)

	hist := h.o.TechnicalHistory()
	require.Len(t, hist, 1)
	assert.Equal(t, t2.ID, hist[0].ID)
	assert.Equal(t, 1, h.reload().Technical.Len())
}

func TestSyncQueueRunsFromErrorState(t *testing.T) {
	h := newHarness(t, false)
	queue(t, h)

	h.gen.SetErr(errors.New("boom"))
	_, err := h.o.SubmitTechnical(context.Background(), techInput("live"))
	require.Error(t, err)
	require.Equal(t, StatusError, h.o.State().Status)

	h.gen.SetErr(nil)
	res, err := h.o.SyncQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Completed)
	assert.Equal(t, StatusIdle, h.o.State().Status)
}
