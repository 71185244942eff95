package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/claritydesk/internal/connectivity"
	"github.com/kalambet/claritydesk/internal/generation/generationtest"
	"github.com/kalambet/claritydesk/internal/orchestrator"
	"github.com/kalambet/claritydesk/internal/records"
	"github.com/kalambet/claritydesk/internal/storage"
)

const testToken = "test-token-12345"

const technicalBody = `{
  "client": {"name": "Ada Lovelace", "email": "ada@example.com"},
  "vehicle": {"make": "Toyota", "model": "Prius", "year": "2015"},
  "symptoms": "Battery fan runs constantly",
  "occurrence": "warm",
  "onset": "gradual",
  "driveability": "normal"
}`

const strategicBody = `{
  "client": {"name": "Grace Hopper", "email": "grace@example.com"},
  "vehicle": {"make": "Nissan", "model": "Leaf", "year": "2019"},
  "decisionType": "Import Strategy",
  "subject": "Import a used Leaf"
}`

type testEnv struct {
	handler http.Handler
	orch    *orchestrator.Orchestrator
	gen     *generationtest.Fake
	net     *connectivity.Static
}

func newTestOrchestrator(t *testing.T, online bool) (*orchestrator.Orchestrator, *generationtest.Fake, *connectivity.Static) {
	t.Helper()
	kv, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	store := records.NewStore(kv)
	store.Load()
	gen := &generationtest.Fake{}
	net := connectivity.NewStatic(online)
	return orchestrator.New(store, gen, net), gen, net
}

func setupAppHandler(t *testing.T, online bool) *testEnv {
	t.Helper()
	orch, gen, net := newTestOrchestrator(t, online)
	h := NewAppHandler(AppDeps{
		Service: orch,
		Token:   testToken,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "# metrics\n")
		}),
	})
	return &testEnv{handler: h, orch: orch, gen: gen, net: net}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (e *testEnv) do(method, url, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, authReq(method, url, body, testToken))
	return rr
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	env := setupAppHandler(t, true)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthRequired(t *testing.T) {
	env := setupAppHandler(t, true)

	for _, token := range []string{"", "wrong"} {
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, authReq(http.MethodGet, "/records", "", token))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "authentication_error")
	}
}

func TestSubmitTechnicalOnline(t *testing.T) {
	env := setupAppHandler(t, true)

	rr := env.do(http.MethodPost, "/reports", technicalBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var rec records.TechnicalRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, records.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Report)
	assert.True(t, strings.HasPrefix(rec.ID, "TR-"))
}

func TestSubmitStrategicOfflineQueues(t *testing.T) {
	env := setupAppHandler(t, false)

	rr := env.do(http.MethodPost, "/judgments", strategicBody)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var rec records.StrategicRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, records.StatusPending, rec.Status)
	assert.Nil(t, rec.Report)
	assert.Equal(t, 0, env.gen.Calls())
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	env := setupAppHandler(t, true)

	rr := env.do(http.MethodPost, "/reports", `{"client":{"name":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid_request_error")

	rr = env.do(http.MethodPost, "/reports", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, env.gen.Calls())
}

func TestSubmitFailureReturnsClassifiedError(t *testing.T) {
	env := setupAppHandler(t, true)
	env.gen.SetErr(errors.New("Quota exceeded (429)"))

	rr := env.do(http.MethodPost, "/reports", technicalBody)
	require.Equal(t, http.StatusBadGateway, rr.Code)

	var body struct {
		Record records.TechnicalRecord `json:"record"`
		Error  classifiedBody          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, records.StatusFailed, body.Record.Status)
	assert.Equal(t, "Technical Capacity Limit", body.Error.Title)
	assert.Equal(t, "Quota exceeded (429)", body.Error.Trace)
	assert.Equal(t, "generation_error", body.Error.Type)

	rr = env.do(http.MethodGet, "/status", "")
	var st StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, orchestrator.StatusError, st.Status)
	assert.True(t, st.CanRetry)
	require.NotNil(t, st.Error)

	env.gen.SetErr(nil)
	rr = env.do(http.MethodPost, "/retry", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var entry records.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	assert.Equal(t, records.StatusCompleted, entry.Status)
	assert.Equal(t, "Ada Lovelace", entry.ClientName)
}

func TestRetryWithNothingRetained(t *testing.T) {
	env := setupAppHandler(t, true)
	rr := env.do(http.MethodPost, "/retry", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "nothing_to_retry")
}

func TestDismiss(t *testing.T) {
	env := setupAppHandler(t, true)
	env.gen.SetErr(errors.New("boom"))
	env.do(http.MethodPost, "/reports", technicalBody)

	rr := env.do(http.MethodPost, "/error/dismiss", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var st StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, orchestrator.StatusIdle, st.Status)
	assert.Nil(t, st.Error)
}

func TestSyncEndpoint(t *testing.T) {
	env := setupAppHandler(t, false)
	env.do(http.MethodPost, "/reports", technicalBody)
	env.do(http.MethodPost, "/judgments", strategicBody)

	rr := env.do(http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"skipped":true,"completed":0,"failed":0}`, rr.Body.String())

	env.net.Set(true)
	rr = env.do(http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"skipped":false,"completed":2,"failed":0}`, rr.Body.String())
}

// queueTwoOffline leaves one pending record of each variant and goes online.
func queueTwoOffline(t *testing.T, h http.Handler, net *connectivity.Static) {
	t.Helper()
	for path, body := range map[string]string{"/reports": technicalBody, "/judgments": strategicBody} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodPost, path, body, testToken))
		require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	}
	net.Set(true)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestSyncSurvivesClientHangUp(t *testing.T) {
	env := setupAppHandler(t, false)
	queueTwoOffline(t, env.handler, env.net)

	started := make(chan struct{})
	release := make(chan struct{})
	env.gen.Hook = func(ctx context.Context, call int) error {
		if call == 0 {
			close(started)
			<-release
		}
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	req := authReq(http.MethodPost, "/sync", "", testToken).WithContext(ctx)
	rr := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		env.handler.ServeHTTP(rr, req)
		close(done)
	}()

	waitFor(t, started, "first generation call")
	cancel()
	close(release)
	waitFor(t, done, "sync response")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"skipped":false,"completed":2,"failed":0}`, rr.Body.String())
	assert.Equal(t, orchestrator.StatusIdle, env.orch.State().Status)
	for _, e := range env.orch.Merged() {
		assert.Equal(t, records.StatusCompleted, e.Status, e.ID)
	}
}

func TestSyncStopsOnShutdown(t *testing.T) {
	orch, gen, net := newTestOrchestrator(t, false)
	base, shutdown := context.WithCancel(context.Background())
	defer shutdown()
	h := NewAppHandler(AppDeps{Service: orch, Token: testToken, BaseContext: base})
	queueTwoOffline(t, h, net)

	started := make(chan struct{})
	gen.Hook = func(ctx context.Context, call int) error {
		if call == 0 {
			close(started)
			<-ctx.Done()
		}
		return ctx.Err()
	}

	rr := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		h.ServeHTTP(rr, authReq(http.MethodPost, "/sync", "", testToken))
		close(done)
	}()

	waitFor(t, started, "first generation call")
	shutdown()
	waitFor(t, done, "sync response")

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, orchestrator.StatusError, orch.State().Status)
	for _, e := range orch.Merged() {
		assert.Equal(t, records.StatusPending, e.Status, e.ID)
	}
}

func TestListGetDeleteRecords(t *testing.T) {
	env := setupAppHandler(t, false)
	env.do(http.MethodPost, "/reports", technicalBody)
	env.do(http.MethodPost, "/judgments", strategicBody)

	rr := env.do(http.MethodGet, "/records", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []records.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, records.Strategic, entries[0].Variant)
	assert.Equal(t, records.Technical, entries[1].Variant)

	rr = env.do(http.MethodGet, "/records?type=technical", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	techID := entries[0].ID

	rr = env.do(http.MethodGet, "/records/technical/"+techID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var rec records.TechnicalRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "Battery fan runs constantly", rec.Input.Symptoms)

	rr = env.do(http.MethodGet, "/records/bogus/"+techID, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodDelete, "/records/technical/"+techID, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodGet, "/records/technical/"+techID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.do(http.MethodDelete, "/records/technical/"+techID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(http.MethodGet, "/records", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}

func TestEmptyRecordListIsArray(t *testing.T) {
	env := setupAppHandler(t, true)
	rr := env.do(http.MethodGet, "/records", "")
	assert.JSONEq(t, `[]`, rr.Body.String())
}
