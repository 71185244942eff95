package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/claritydesk/internal/classify"
	"github.com/kalambet/claritydesk/internal/intake"
	"github.com/kalambet/claritydesk/internal/records"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service Service
	Version string
	// BaseContext bounds a queue sync once the tool call has returned or
	// been cancelled. Nil means context.Background.
	BaseContext context.Context
}

// NewMCPServer creates an MCP server with the claritydesk tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"claritydesk",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("claritydesk: request vehicle Clarity Reports and Strategic judgments. Requests made while offline are queued and sent by sync_queue."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("submit_technical",
			mcp.WithDescription("Request a technical Clarity Report for a vehicle. Queued as pending when offline."),
			mcp.WithString("input", mcp.Description("TechnicalInput as a JSON object string"), mcp.Required()),
		),
		mcpSubmitTechnical(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_strategic",
			mcp.WithDescription("Request a Strategic judgment brief. Queued as pending when offline."),
			mcp.WithString("input", mcp.Description("StrategicInput as a JSON object string"), mcp.Required()),
		),
		mcpSubmitStrategic(deps),
	)

	s.AddTool(
		mcp.NewTool("retry_last",
			mcp.WithDescription("Re-send the most recent failed request as a new record."),
		),
		mcpRetry(deps),
	)

	s.AddTool(
		mcp.NewTool("sync_queue",
			mcp.WithDescription("Send every pending record now. Does nothing when offline or busy."),
		),
		mcpSyncQueue(deps),
	)

	s.AddTool(
		mcp.NewTool("list_records",
			mcp.WithDescription("List technical reports and strategic judgments, newest first."),
			mcp.WithString("type", mcp.Description("Optional filter: technical or strategic")),
		),
		mcpListRecords(deps),
	)

	s.AddTool(
		mcp.NewTool("get_record",
			mcp.WithDescription("Fetch a full record including its report."),
			mcp.WithString("type", mcp.Description("technical or strategic"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Record id, e.g. TR-1717000000000"), mcp.Required()),
		),
		mcpGetRecord(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_record",
			mcp.WithDescription("Permanently delete a record. Requires confirm=true."),
			mcp.WithString("type", mcp.Description("technical or strategic"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Record id"), mcp.Required()),
			mcp.WithBoolean("confirm", mcp.Description("Must be true to delete")),
		),
		mcpDeleteRecord(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"records://registry",
			"Record Registry",
			mcp.WithResourceDescription("Merged list of all records, newest first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRegistry(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"records://status",
			"Status",
			mcp.WithResourceDescription("Global status, current error, connectivity and pending flag"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(deps),
	)

	return s
}

func parseInput[T any, PT interface {
	*T
	validatable
}](req mcp.CallToolRequest) (T, *mcp.CallToolResult) {
	var in T
	raw, err := req.RequireString("input")
	if err != nil {
		return in, mcpError("input is required")
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return in, mcpError(fmt.Sprintf("invalid input JSON: %v", err))
	}
	if err := PT(&in).Validate(); err != nil {
		return in, mcpError(err.Error())
	}
	return in, nil
}

func mcpSubmitTechnical(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, bad := parseInput[intake.TechnicalInput](req)
		if bad != nil {
			return bad, nil
		}
		rec, err := deps.Service.SubmitTechnical(ctx, in)
		if err != nil {
			return mcpFailure(err), nil
		}
		return mcpJSON(rec)
	}
}

func mcpSubmitStrategic(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, bad := parseInput[intake.StrategicInput](req)
		if bad != nil {
			return bad, nil
		}
		rec, err := deps.Service.SubmitStrategic(ctx, in)
		if err != nil {
			return mcpFailure(err), nil
		}
		return mcpJSON(rec)
	}
}

func mcpRetry(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entry, err := deps.Service.Retry(ctx)
		if err != nil {
			return mcpFailure(err), nil
		}
		return mcpJSON(entry)
	}
}

func mcpSyncQueue(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, cancel := detach(ctx, deps.BaseContext)
		defer cancel()
		res, err := deps.Service.SyncQueue(ctx)
		if err != nil {
			return mcpFailure(err), nil
		}
		if res.Skipped {
			return mcpText("Sync skipped: offline or another request is in flight."), nil
		}
		return mcpText(fmt.Sprintf("Synced queue: %d completed, %d failed.", res.Completed, res.Failed)), nil
	}
}

func mcpListRecords(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entries := deps.Service.Merged()
		if t := req.GetString("type", ""); t != "" {
			variant, err := records.ParseVariant(t)
			if err != nil {
				return mcpError(err.Error()), nil
			}
			var filtered []records.Entry
			for _, e := range entries {
				if e.Variant == variant {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		if len(entries) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(entries)
	}
}

func mcpGetRecord(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		variant, id, bad := recordRef(req)
		if bad != nil {
			return bad, nil
		}
		var (
			rec any
			err error
		)
		switch variant {
		case records.Technical:
			rec, err = deps.Service.Technical(id)
		case records.Strategic:
			rec, err = deps.Service.Strategic(id)
		}
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(rec)
	}
}

func mcpDeleteRecord(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		variant, id, bad := recordRef(req)
		if bad != nil {
			return bad, nil
		}
		if !req.GetBool("confirm", false) {
			return mcpError(fmt.Sprintf("refusing to delete %s without confirm=true", id)), nil
		}
		if err := deps.Service.Delete(variant, id); err != nil {
			return mcpError(fmt.Sprintf("delete failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted %s", id)), nil
	}
}

func recordRef(req mcp.CallToolRequest) (records.Variant, string, *mcp.CallToolResult) {
	t, err := req.RequireString("type")
	if err != nil {
		return "", "", mcpError("type is required")
	}
	variant, err := records.ParseVariant(t)
	if err != nil {
		return "", "", mcpError(err.Error())
	}
	id, err := req.RequireString("id")
	if err != nil {
		return "", "", mcpError("id is required")
	}
	return variant, id, nil
}

func mcpResourceRegistry(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries := deps.Service.Merged()
		if entries == nil {
			entries = []records.Entry{}
		}
		return jsonResource(req.Params.URI, entries)
	}
}

func mcpResourceStatus(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(req.Params.URI, statusOf(deps.Service))
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

// mcpFailure renders a classified error as "title: detail" with the trace.
func mcpFailure(err error) *mcp.CallToolResult {
	var ce *classify.Error
	if errors.As(err, &ce) {
		return mcpError(fmt.Sprintf("%s: %s\ntrace: %s", ce.Title, ce.Detail, ce.Trace))
	}
	return mcpError(err.Error())
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
