package prompt

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twoAnswers = []Answer{
	{Name: "A", Text: "x"},
	{Name: "B", Text: "y"},
}

func TestBuildJudgePromptProsAndConsEnglish(t *testing.T) {
	got, err := BuildJudgePrompt("Q", "J", 5, twoAnswers, ProsAndCons, "en")
	require.NoError(t, err)

	want := `You are an experienced evaluator (J). Your task is to generate a detailed assessment report based on the following question and different model answers.

Question: Q

Model answers:

A: x
B: y

Please perform the following assessment for each model's answer:

1. Analyze pros and cons
2. Give a total score (out of 5) and explain why

Finally, please provide a comprehensive analysis:
1. Compare all model answers
2. Select the best answer and explain why
3. Based on all model answers, provide a final complete answer

Note:
- Scoring should be objective and fair
- Analysis should be specific and detailed
- The final answer should be comprehensive and in-depth
- Need to reflect a professional assessment perspective`

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildJudgePrompt() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildJudgePromptIsDeterministic(t *testing.T) {
	for _, format := range Formats {
		for _, locale := range []string{"en", "zh", "ja"} {
			first, err := BuildJudgePrompt("Q", "J", 7, twoAnswers, format, locale)
			require.NoError(t, err)
			second, err := BuildJudgePrompt("Q", "J", 7, twoAnswers, format, locale)
			require.NoError(t, err)
			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("%s/%s not deterministic:\n%s", format, locale, diff)
			}
		}
	}
}

func TestBuildJudgePromptContents(t *testing.T) {
	tests := []struct {
		format   Format
		locale   string
		contains []string
	}{
		{ProsAndCons, "en", []string{"(J)", "Question: Q", "A: x\nB: y", "out of 10"}},
		{ProsAndCons, "zh", []string{"(J)", "问题：Q", "A：x\nB：y", "满分10"}},
		{ProsAndCons, "ja", []string{"(J)", "問題：Q", "A: x\nB: y", "満点10"}},
		{MultiDimensional, "en", []string{"(J)", "Question: Q", "A: x\nB: y", "1-10 points"}},
		{MultiDimensional, "zh", []string{"(J)", "问题：Q", "A：x\nB：y", "1-10分"}},
		{MultiDimensional, "ja", []string{"(J)", "質問：Q", "A: x\nB: y", "1-10点"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format)+"/"+tt.locale, func(t *testing.T) {
			got, err := BuildJudgePrompt("Q", "J", 10, twoAnswers, tt.format, tt.locale)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
			assert.NotContains(t, got, "{{")
		})
	}
}

func TestBuildJudgePromptPreservesAnswerOrder(t *testing.T) {
	got, err := BuildJudgePrompt("Q", "J", 5, []Answer{{"C", "3"}, {"A", "1"}, {"B", "2"}}, MultiDimensional, "en")
	require.NoError(t, err)
	assert.Less(t, strings.Index(got, "C: 3"), strings.Index(got, "A: 1"))
	assert.Less(t, strings.Index(got, "A: 1"), strings.Index(got, "B: 2"))
}

func TestBuildJudgePromptUnknownLocaleFallsBackToEnglish(t *testing.T) {
	en, err := BuildJudgePrompt("Q", "J", 5, twoAnswers, ProsAndCons, "en")
	require.NoError(t, err)

	for _, locale := range []string{"fr", "", "??"} {
		got, err := BuildJudgePrompt("Q", "J", 5, twoAnswers, ProsAndCons, locale)
		require.NoError(t, err)
		assert.Equal(t, en, got, "locale %q", locale)
	}
}

func TestBuildJudgePromptRejectsUnknownFormat(t *testing.T) {
	_, err := BuildJudgePrompt("Q", "J", 5, twoAnswers, Format("essay"), "en")
	require.Error(t, err)
}

func TestResolveLocale(t *testing.T) {
	tests := map[string]string{
		"en":    "en",
		"en-GB": "en",
		"zh":    "zh",
		"zh-CN": "zh",
		"ja":    "ja",
		"ja-JP": "ja",
		"de":    "en",
		"":      "en",
	}
	for in, want := range tests {
		assert.Equal(t, want, ResolveLocale(in), "locale %q", in)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("multiDimensional")
	require.NoError(t, err)
	assert.Equal(t, MultiDimensional, f)

	_, err = ParseFormat("ProsAndCons")
	require.Error(t, err)
}
