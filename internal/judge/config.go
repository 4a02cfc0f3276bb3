package judge

import (
	"strings"

	"github.com/giantswarm/llm-judge/internal/prompt"
)

// ModelSelection identifies a model. DisplayID keys session tracking and is
// what the judge sees; APIID is sent to the backend.
type ModelSelection struct {
	DisplayID string `json:"displayId" validate:"required"`
	APIID     string `json:"apiId,omitempty"`
}

// API returns the backend identifier, defaulting to the display id.
func (m ModelSelection) API() string {
	if m.APIID != "" {
		return m.APIID
	}
	return m.DisplayID
}

// ParseModelSelection parses "display" or "display=api".
func ParseModelSelection(s string) ModelSelection {
	display, api, _ := strings.Cut(strings.TrimSpace(s), "=")
	return ModelSelection{DisplayID: strings.TrimSpace(display), APIID: strings.TrimSpace(api)}
}

// RunConfig describes one judging run. It is not modified once the run
// starts.
type RunConfig struct {
	Prompt       string           `json:"prompt" validate:"required"`
	AnswerModels []ModelSelection `json:"answerModels" validate:"required,min=1,dive"`
	JudgeModel   ModelSelection   `json:"judgeModel"`
	FullMarks    int              `json:"fullMarks" validate:"min=1"`
	ReportFormat prompt.Format    `json:"reportFormat" validate:"oneof=prosAndCons multiDimensional"`
	Locale       string           `json:"locale,omitempty"`
}

// Defaults fill unset RunConfig fields.
type Defaults struct {
	Prompt       string
	FullMarks    int
	ReportFormat prompt.Format
	Locale       string
}

// BuiltinDefaults are used for fields no other default sets.
func BuiltinDefaults() Defaults {
	return Defaults{FullMarks: 5, ReportFormat: prompt.ProsAndCons, Locale: "en"}
}

// merge returns d with its unset fields taken from fallback.
func (d Defaults) merge(fallback Defaults) Defaults {
	if d.Prompt == "" {
		d.Prompt = fallback.Prompt
	}
	if d.FullMarks == 0 {
		d.FullMarks = fallback.FullMarks
	}
	if d.ReportFormat == "" {
		d.ReportFormat = fallback.ReportFormat
	}
	if d.Locale == "" {
		d.Locale = fallback.Locale
	}
	return d
}

// WithDefaults returns a copy of c with unset fields filled from d.
func (c RunConfig) WithDefaults(d Defaults) RunConfig {
	out := c.Clone()
	if out.Prompt == "" {
		out.Prompt = d.Prompt
	}
	if out.FullMarks == 0 {
		out.FullMarks = d.FullMarks
	}
	if out.ReportFormat == "" {
		out.ReportFormat = d.ReportFormat
	}
	if out.Locale == "" {
		out.Locale = d.Locale
	}
	return out
}

// Clone returns a deep copy of c.
func (c RunConfig) Clone() RunConfig {
	out := c
	out.AnswerModels = append([]ModelSelection(nil), c.AnswerModels...)
	return out
}

// SetJudgeModel selects m as judge and drops it from the answer models.
func (c *RunConfig) SetJudgeModel(m ModelSelection) {
	c.JudgeModel = m
	c.AnswerModels = withoutModel(c.AnswerModels, m.DisplayID)
}

// SetAnswerModels replaces the answer models and clears the judge when it
// is among them.
func (c *RunConfig) SetAnswerModels(models []ModelSelection) {
	c.AnswerModels = append([]ModelSelection(nil), models...)
	if c.JudgeModel.DisplayID != "" && c.hasAnswerModel(c.JudgeModel.DisplayID) {
		c.JudgeModel = ModelSelection{}
	}
}

// AnswerModelIDs returns the answer display ids in selection order.
func (c RunConfig) AnswerModelIDs() []string {
	ids := make([]string, 0, len(c.AnswerModels))
	for _, m := range c.AnswerModels {
		ids = append(ids, m.DisplayID)
	}
	return ids
}

func (c RunConfig) hasAnswerModel(id string) bool {
	for _, m := range c.AnswerModels {
		if m.DisplayID == id {
			return true
		}
	}
	return false
}

func withoutModel(models []ModelSelection, id string) []ModelSelection {
	out := make([]ModelSelection, 0, len(models))
	for _, m := range models {
		if m.DisplayID != id {
			out = append(out, m)
		}
	}
	return out
}
