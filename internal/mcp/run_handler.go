package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/llm-judge/internal/judge"
	"github.com/giantswarm/llm-judge/internal/prompt"
	"github.com/giantswarm/llm-judge/internal/server"
)

func registerRunTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	runTool := mcp.NewTool("run_judge",
		mcp.WithDescription("Ask several answer models the same question, let a judge model compare their answers and save the result to the history."),
		mcp.WithString("prompt",
			mcp.Description("Question sent to every answer model (default: the configured default prompt)"),
		),
		mcp.WithArray("answer_models",
			mcp.Required(),
			mcp.Description("Answer models, each as 'name' or 'name=api-model-id'"),
			mcp.WithStringItems(),
		),
		mcp.WithString("judge_model",
			mcp.Required(),
			mcp.Description("Judge model, as 'name' or 'name=api-model-id'. Must not be an answer model."),
		),
		mcp.WithNumber("full_marks",
			mcp.Description("Maximum score per answer (default: 5)"),
		),
		mcp.WithString("report_format",
			mcp.Description("Judge report layout"),
			mcp.Enum(string(prompt.ProsAndCons), string(prompt.MultiDimensional)),
		),
		mcp.WithString("locale",
			mcp.Description("Judge prompt language: en, zh or ja (default: en)"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the run to finish (default: true)"),
		),
	)
	s.AddTool(runTool, bind(handleRunJudge, sc))

	stateTool := mcp.NewTool("get_state",
		mcp.WithDescription("Show the current or last judging run"),
	)
	s.AddTool(stateTool, bind(handleGetState, sc))

	removeTool := mcp.NewTool("remove_answer",
		mcp.WithDescription("Drop a model from the current run. While answers are being fetched the judge starts without it."),
		mcp.WithString("model",
			mcp.Required(),
			mcp.Description("Display name of the answer model"),
		),
	)
	s.AddTool(removeTool, bind(handleRemoveAnswer, sc))
}

func runConfigFromArgs(args map[string]any) (judge.RunConfig, error) {
	var cfg judge.RunConfig

	cfg.Prompt, _ = args["prompt"].(string)

	raw, ok := args["answer_models"].([]any)
	if !ok || len(raw) == 0 {
		return cfg, errors.New("answer_models is required")
	}
	models := make([]judge.ModelSelection, 0, len(raw))
	for _, item := range raw {
		name, ok := item.(string)
		if !ok || strings.TrimSpace(name) == "" {
			return cfg, errors.New("answer_models must be an array of non-empty strings")
		}
		models = append(models, judge.ParseModelSelection(name))
	}
	cfg.AnswerModels = models

	judgeModel, ok := args["judge_model"].(string)
	if !ok || strings.TrimSpace(judgeModel) == "" {
		return cfg, errors.New("judge_model is required")
	}
	cfg.JudgeModel = judge.ParseModelSelection(judgeModel)

	if fm, ok := intArg(args, "full_marks"); ok {
		cfg.FullMarks = int(fm)
	} else if _, present := args["full_marks"]; present {
		return cfg, errors.New("full_marks must be a positive integer")
	}

	if format, ok := args["report_format"].(string); ok && format != "" {
		f, err := prompt.ParseFormat(format)
		if err != nil {
			return cfg, err
		}
		cfg.ReportFormat = f
	}
	cfg.Locale, _ = args["locale"].(string)
	return cfg, nil
}

func handleRunJudge(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Coordinator == nil {
		return mcp.NewToolResultError("run coordinator is not configured"), nil
	}

	args := request.GetArguments()
	cfg, err := runConfigFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	wait := true
	if w, ok := args["wait"].(bool); ok {
		wait = w
	}

	if err := sc.Coordinator.Start(ctx, cfg); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start run: %v", err)), nil
	}
	if !wait {
		return jsonResult(sc.Coordinator.State())
	}

	snap, err := sc.Coordinator.Wait(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run did not finish: %v", err)), nil
	}
	if snap.Status != judge.StatusComplete {
		return mcp.NewToolResultError(fmt.Sprintf("run ended without a result (status %s, failed models: %s)",
			snap.Status, strings.Join(snap.FailedIDs, ", "))), nil
	}
	return jsonResult(snap)
}

func handleGetState(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Coordinator == nil {
		return mcp.NewToolResultError("run coordinator is not configured"), nil
	}
	return jsonResult(sc.Coordinator.State())
}

func handleRemoveAnswer(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Coordinator == nil {
		return mcp.NewToolResultError("run coordinator is not configured"), nil
	}
	model, ok := request.GetArguments()["model"].(string)
	if !ok || model == "" {
		return mcp.NewToolResultError("model is required"), nil
	}
	if err := sc.Coordinator.RemoveAnswer(ctx, model); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sc.Coordinator.State())
}
