package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/llm-judge/internal/record"
	"github.com/giantswarm/llm-judge/internal/server"
)

func registerHistoryTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	s.AddTool(mcp.NewTool("list_history",
		mcp.WithDescription("List saved judging records, newest first"),
	), bind(handleListHistory, sc))

	s.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Show a saved judging record"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Record id")),
	), bind(handleGetRecord, sc))

	s.AddTool(mcp.NewTool("delete_record",
		mcp.WithDescription("Delete a saved judging record"),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Record id")),
	), bind(handleDeleteRecord, sc))

	s.AddTool(mcp.NewTool("remove_record_answer",
		mcp.WithDescription("Remove one model's answer from a saved record. The judge report is kept."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Record id")),
		mcp.WithString("model", mcp.Required(), mcp.Description("Answer id or model name")),
	), bind(handleRemoveRecordAnswer, sc))
}

func storeError(err error) *mcp.CallToolResult {
	if errors.Is(err, record.ErrNotFound) {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(fmt.Sprintf("record store error: %v", err))
}

func handleListHistory(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Records == nil {
		return mcp.NewToolResultError("record store is not configured"), nil
	}
	records, err := sc.Records.List(ctx)
	if err != nil {
		return storeError(err), nil
	}
	if records == nil {
		records = []record.Record{}
	}
	return jsonResult(records)
}

func handleGetRecord(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Records == nil {
		return mcp.NewToolResultError("record store is not configured"), nil
	}
	id, ok := intArg(request.GetArguments(), "id")
	if !ok {
		return mcp.NewToolResultError("id must be a positive integer"), nil
	}
	rec, err := sc.Records.Get(ctx, id)
	if err != nil {
		return storeError(err), nil
	}
	return jsonResult(rec)
}

func handleDeleteRecord(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Records == nil {
		return mcp.NewToolResultError("record store is not configured"), nil
	}
	id, ok := intArg(request.GetArguments(), "id")
	if !ok {
		return mcp.NewToolResultError("id must be a positive integer"), nil
	}
	if _, err := sc.Records.Remove(ctx, id); err != nil {
		return storeError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("record %d deleted", id)), nil
}

func handleRemoveRecordAnswer(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Records == nil {
		return mcp.NewToolResultError("record store is not configured"), nil
	}
	args := request.GetArguments()
	id, ok := intArg(args, "id")
	if !ok {
		return mcp.NewToolResultError("id must be a positive integer"), nil
	}
	model, ok := args["model"].(string)
	if !ok || model == "" {
		return mcp.NewToolResultError("model is required"), nil
	}
	if err := sc.Records.RemoveAnswer(ctx, id, model); err != nil {
		return storeError(err), nil
	}
	rec, err := sc.Records.Get(ctx, id)
	if err != nil {
		return storeError(err), nil
	}
	return jsonResult(rec)
}
