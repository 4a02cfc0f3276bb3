// Package prompt assembles the prompt sent to the judge model.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/language"
)

// Format selects the judging rubric.
type Format string

const (
	// ProsAndCons asks for pros and cons per model, a total score, a
	// comparative ranking and a synthesized final answer.
	ProsAndCons Format = "prosAndCons"
	// MultiDimensional asks for per-dimension scores with justification.
	MultiDimensional Format = "multiDimensional"
)

// Formats lists the supported formats.
var Formats = []Format{ProsAndCons, MultiDimensional}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported report format %q (supported: %s, %s)", s, ProsAndCons, MultiDimensional)
}

// Answer is one model's answer as presented to the judge.
type Answer struct {
	Name string
	Text string
}

var supportedLocales = []language.Tag{
	language.English,
	language.Chinese,
	language.Japanese,
}

var matcher = language.NewMatcher(supportedLocales)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// ResolveLocale maps a locale to one with templates: "en", "zh" or "ja".
// Unsupported or malformed locales resolve to "en".
func ResolveLocale(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return "en"
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return "en"
	}
	base, _ := supportedLocales[idx].Base()
	return base.String()
}

// BuildJudgePrompt renders the judge prompt. Answers are listed one per
// line in the order given.
func BuildJudgePrompt(question, judge string, fullMarks int, answers []Answer, format Format, locale string) (string, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return "", err
	}
	locale = ResolveLocale(locale)

	sep := ": "
	if locale == "zh" {
		sep = "："
	}
	lines := make([]string, 0, len(answers))
	for _, a := range answers {
		lines = append(lines, a.Name+sep+a.Text)
	}

	var b strings.Builder
	err := templates.ExecuteTemplate(&b, string(format)+"."+locale+".tmpl", struct {
		Question  string
		Judge     string
		FullMarks int
		Answers   string
	}{
		Question:  question,
		Judge:     judge,
		FullMarks: fullMarks,
		Answers:   strings.Join(lines, "\n"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", format, err)
	}
	return strings.TrimSpace(b.String()), nil
}
