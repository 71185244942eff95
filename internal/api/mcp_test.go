package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/claritydesk/internal/orchestrator"
	"github.com/kalambet/claritydesk/internal/records"
)

func newTestMCPDeps(t *testing.T, online bool) (MCPDeps, *testEnv) {
	t.Helper()
	orch, gen, net := newTestOrchestrator(t, online)
	return MCPDeps{Service: orch}, &testEnv{orch: orch, gen: gen, net: net}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "no content in result")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestNewMCPServerBuilds(t *testing.T) {
	deps, _ := newTestMCPDeps(t, true)
	assert.NotNil(t, NewMCPServer(deps))
}

func TestMCPTool_SubmitTechnical(t *testing.T) {
	deps, _ := newTestMCPDeps(t, true)

	result, err := mcpSubmitTechnical(deps)(context.Background(),
		makeCallToolRequest("submit_technical", map[string]any{"input": technicalBody}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	var rec records.TechnicalRecord
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &rec))
	assert.Equal(t, records.StatusCompleted, rec.Status)
}

func TestMCPTool_SubmitValidation(t *testing.T) {
	deps, env := newTestMCPDeps(t, true)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing input", map[string]any{}},
		{"bad json", map[string]any{"input": "{"}},
		{"invalid intake", map[string]any{"input": `{"client":{"name":"x"}}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := mcpSubmitStrategic(deps)(context.Background(), makeCallToolRequest("submit_strategic", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
	assert.Equal(t, 0, env.gen.Calls())
}

func TestMCPTool_SubmitFailureIsClassified(t *testing.T) {
	deps, env := newTestMCPDeps(t, true)
	env.gen.SetErr(errors.New("rate limit hit"))

	result, err := mcpSubmitStrategic(deps)(context.Background(),
		makeCallToolRequest("submit_strategic", map[string]any{"input": strategicBody}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	text := toolText(t, result)
	assert.Contains(t, text, "Strategic Capacity Limit")
	assert.Contains(t, text, "trace: rate limit hit")

	env.gen.SetErr(nil)
	result, err = mcpRetry(deps)(context.Background(), makeCallToolRequest("retry_last", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError, toolText(t, result))
}

func TestMCPTool_SyncQueue(t *testing.T) {
	deps, env := newTestMCPDeps(t, false)
	_, err := mcpSubmitTechnical(deps)(context.Background(),
		makeCallToolRequest("submit_technical", map[string]any{"input": technicalBody}))
	require.NoError(t, err)

	result, err := mcpSyncQueue(deps)(context.Background(), makeCallToolRequest("sync_queue", nil))
	require.NoError(t, err)
	assert.Contains(t, toolText(t, result), "skipped")

	env.net.Set(true)
	result, err = mcpSyncQueue(deps)(context.Background(), makeCallToolRequest("sync_queue", nil))
	require.NoError(t, err)
	assert.Equal(t, "Synced queue: 1 completed, 0 failed.", toolText(t, result))
}

func TestMCPTool_SyncQueueOutlivesCancelledCall(t *testing.T) {
	deps, env := newTestMCPDeps(t, false)
	for _, body := range []string{technicalBody, technicalBody} {
		_, err := mcpSubmitTechnical(deps)(context.Background(),
			makeCallToolRequest("submit_technical", map[string]any{"input": body}))
		require.NoError(t, err)
	}
	env.net.Set(true)

	ctx, cancel := context.WithCancel(context.Background())
	env.gen.Hook = func(hctx context.Context, call int) error {
		if call == 0 {
			cancel()
		}
		return hctx.Err()
	}

	result, err := mcpSyncQueue(deps)(ctx, makeCallToolRequest("sync_queue", nil))
	require.NoError(t, err)
	assert.Equal(t, "Synced queue: 2 completed, 0 failed.", toolText(t, result))
	assert.Equal(t, orchestrator.StatusIdle, env.orch.State().Status)
}

func TestMCPTool_ListGetDelete(t *testing.T) {
	deps, _ := newTestMCPDeps(t, false)
	ctx := context.Background()

	result, err := mcpListRecords(deps)(ctx, makeCallToolRequest("list_records", nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", toolText(t, result))

	_, err = mcpSubmitStrategic(deps)(ctx, makeCallToolRequest("submit_strategic", map[string]any{"input": strategicBody}))
	require.NoError(t, err)

	result, err = mcpListRecords(deps)(ctx, makeCallToolRequest("list_records", map[string]any{"type": "strategic"}))
	require.NoError(t, err)
	var entries []records.Entry
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &entries))
	require.Len(t, entries, 1)
	id := entries[0].ID

	result, err = mcpGetRecord(deps)(ctx, makeCallToolRequest("get_record", map[string]any{"type": "strategic", "id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, toolText(t, result), "Import a used Leaf")

	result, err = mcpDeleteRecord(deps)(ctx, makeCallToolRequest("delete_record", map[string]any{"type": "strategic", "id": id}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "confirm=true")

	result, err = mcpDeleteRecord(deps)(ctx, makeCallToolRequest("delete_record", map[string]any{"type": "strategic", "id": id, "confirm": true}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	result, err = mcpGetRecord(deps)(ctx, makeCallToolRequest("get_record", map[string]any{"type": "strategic", "id": id}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMCPResource_Registry(t *testing.T) {
	deps, _ := newTestMCPDeps(t, false)
	_, err := mcpSubmitTechnical(deps)(context.Background(),
		makeCallToolRequest("submit_technical", map[string]any{"input": technicalBody}))
	require.NoError(t, err)

	contents, err := mcpResourceRegistry(deps)(context.Background(), makeReadResourceRequest("records://registry"))
	require.NoError(t, err)
	require.Len(t, contents, 1)
	tc, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", tc.MIMEType)

	var entries []records.Entry
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Ada Lovelace", entries[0].ClientName)
	assert.Equal(t, "2015", entries[0].VehicleYear)
	assert.Equal(t, records.StatusPending, entries[0].Status)
}

func TestMCPResource_Status(t *testing.T) {
	deps, _ := newTestMCPDeps(t, false)
	contents, err := mcpResourceStatus(deps)(context.Background(), makeReadResourceRequest("records://status"))
	require.NoError(t, err)
	tc := contents[0].(mcp.TextResourceContents)

	var st StatusResponse
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &st))
	assert.False(t, st.Online)
	assert.False(t, st.HasPending)
}
