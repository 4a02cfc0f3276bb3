package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/llm-judge/internal/server"
)

func registerModelTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	listTool := mcp.NewTool("list_models",
		mcp.WithDescription("List models that can answer or judge, from the gateway, the configuration and KServe"),
	)
	s.AddTool(listTool, bind(handleListModels, sc))
}

func handleListModels(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Catalog == nil {
		return mcp.NewToolResultError("model catalog is not configured"), nil
	}
	models, err := sc.Catalog.Models(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list models: %v", err)), nil
	}
	return jsonResult(models)
}
