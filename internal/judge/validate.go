package judge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrRunInProgress is returned when starting a run while another one is
// fetching answers or judging.
var ErrRunInProgress = errors.New("a run is already in progress")

// ValidationError lists why a RunConfig was rejected.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid run configuration: " + strings.Join(e.Problems, "; ")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks c and returns a *ValidationError describing every problem.
func Validate(c RunConfig) error {
	var problems []string

	if strings.TrimSpace(c.Prompt) == "" {
		problems = append(problems, "prompt is required")
	}
	if c.JudgeModel.DisplayID == "" {
		problems = append(problems, "judge model is required")
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate run configuration: %w", err)
		}
		for _, fe := range verrs {
			if msg := fieldProblem(fe); msg != "" {
				problems = append(problems, msg)
			}
		}
	}

	seen := make(map[string]bool, len(c.AnswerModels))
	for _, m := range c.AnswerModels {
		if m.DisplayID == "" {
			continue
		}
		if seen[m.DisplayID] {
			problems = append(problems, fmt.Sprintf("answer model %q selected more than once", m.DisplayID))
		}
		seen[m.DisplayID] = true
	}
	if c.JudgeModel.DisplayID != "" && seen[c.JudgeModel.DisplayID] {
		problems = append(problems, fmt.Sprintf("model %q cannot be both judge and answer model", c.JudgeModel.DisplayID))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func fieldProblem(fe validator.FieldError) string {
	switch fe.StructNamespace() {
	case "RunConfig.Prompt", "RunConfig.JudgeModel.DisplayID":
		// reported above
		return ""
	case "RunConfig.AnswerModels":
		return "at least one answer model is required"
	case "RunConfig.FullMarks":
		return "full marks must be at least 1"
	case "RunConfig.ReportFormat":
		return fmt.Sprintf("unsupported report format %q", fe.Value())
	}
	if strings.HasPrefix(fe.StructNamespace(), "RunConfig.AnswerModels[") {
		return "answer model display id is required"
	}
	return fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag())
}
