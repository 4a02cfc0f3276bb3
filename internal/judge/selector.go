package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/giantswarm/llm-judge/internal/llm"
	"github.com/giantswarm/llm-judge/internal/record"
)

//go:generate mockgen -package=judge -destination=mock_judge_test.go github.com/giantswarm/llm-judge/internal/judge Selector,RecordAppender

// Selector extracts the best model's name from a judge report.
type Selector interface {
	SelectBest(ctx context.Context, report, judgeModel string) (string, error)
}

// RecordAppender persists a completed run.
type RecordAppender interface {
	Append(ctx context.Context, rec record.NewRecord) ([]record.Record, error)
}

const selectorSystemPrompt = "Please extract the best model summarized in the uploaded evaluation report. Directly output the model name without any further explanation!!"

// LLMSelector asks a model to name the best model in a report. Timeouts
// and retries come from the client.
type LLMSelector struct {
	client llm.Client
	model  string
}

var _ Selector = (*LLMSelector)(nil)

// NewLLMSelector creates a selector. When model is empty the judge model
// performs the extraction.
func NewLLMSelector(client llm.Client, model string) *LLMSelector {
	return &LLMSelector{client: client, model: model}
}

// SelectBest returns the trimmed model name found in report.
func (s *LLMSelector) SelectBest(ctx context.Context, report, judgeModel string) (string, error) {
	model := s.model
	if model == "" {
		model = judgeModel
	}
	resp, err := s.client.ChatCompletion(ctx, llm.ChatRequest{
		Model:         model,
		SystemMessage: selectorSystemPrompt,
		UserMessage:   report + ",Directly output the model name!!",
	})
	if err != nil {
		return "", fmt.Errorf("failed to select best model: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// MatchBestModel returns the display id of the answer named by best,
// compared case-insensitively, or "" when best names none of them.
func MatchBestModel(best string, answers []AnswerOutcome) string {
	best = strings.TrimSpace(best)
	if best == "" {
		return ""
	}
	for _, a := range answers {
		if strings.EqualFold(a.ModelID, best) {
			return a.ModelID
		}
	}
	return ""
}
