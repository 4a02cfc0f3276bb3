package judge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/llm-judge/internal/llm"
	"github.com/giantswarm/llm-judge/internal/prompt"
)

func testConfig(answers ...string) RunConfig {
	models := make([]ModelSelection, 0, len(answers))
	for _, a := range answers {
		models = append(models, ModelSelection{DisplayID: a})
	}
	return RunConfig{
		Prompt:       "Which is larger, 9.11 or 9.9?",
		AnswerModels: models,
		JudgeModel:   ModelSelection{DisplayID: "judge"},
		FullMarks:    5,
		ReportFormat: prompt.ProsAndCons,
		Locale:       "en",
	}
}

func started(t *testing.T, answers ...string) State {
	t.Helper()
	s, d := Transition(NewState(), RunStarted{RunID: "run-1", Config: testConfig(answers...)})
	require.True(t, d.Changed)
	require.Equal(t, StatusFetchingAnswers, s.Status)
	return s
}

func step(t *testing.T, s State, ev Event) (State, Decision) {
	t.Helper()
	next, d := Transition(s, ev)
	require.True(t, d.Changed, "event %T was ignored", ev)
	return next, d
}

func TestRunStartedResetsState(t *testing.T) {
	prev := State{
		Generation: 3,
		Status:     StatusComplete,
		Completed:  map[string]bool{"old": true},
		Failed:     map[string]bool{},
		Answers:    []AnswerOutcome{{ModelID: "old", FinalText: "x"}},
		BestModel:  "old",
		RecordID:   7,
	}

	s, d := Transition(prev, RunStarted{RunID: "run-2", Config: testConfig("a")})

	assert.True(t, d.Changed)
	assert.Equal(t, uint64(4), s.Generation)
	assert.Equal(t, "run-2", s.RunID)
	assert.Equal(t, StatusFetchingAnswers, s.Status)
	assert.Empty(t, s.Answers)
	assert.Empty(t, s.Completed)
	assert.Empty(t, s.BestModel)
	assert.Zero(t, s.RecordID)
}

func TestJudgeStartsOnlyWhenAllAnswersAreTerminal(t *testing.T) {
	s := started(t, "a", "b")

	s, d := step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "a", Content: "A says 9.9", RecordID: "r-a"})
	assert.Nil(t, d.StartJudge)
	assert.Equal(t, StatusFetchingAnswers, s.Status)

	s, d = step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "b", Content: "B says 9.9", RecordID: "r-b"})
	require.NotNil(t, d.StartJudge)
	assert.Equal(t, StatusJudging, s.Status)
	assert.Equal(t, "judge", d.StartJudge.Judge.DisplayID)
	assert.Contains(t, d.StartJudge.Prompt, "A says 9.9")
	assert.Contains(t, d.StartJudge.Prompt, "B says 9.9")
	assert.Equal(t, []string{"a", "b"}, modelIDs(s.Judged))
}

func TestJudgeExcludesFailedModels(t *testing.T) {
	s := started(t, "a", "b", "c")

	s, _ = step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "c", Content: "C answer"})
	s, d := step(t, s, AnswerFailed{Gen: s.Generation, ModelID: "b", Err: errors.New("boom")})
	require.Len(t, d.Notifications, 1)
	assert.Equal(t, LevelError, d.Notifications[0].Level)
	assert.Equal(t, KindStream, d.Notifications[0].Kind)
	assert.Nil(t, d.StartJudge)

	s, d = step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "a", Content: "A answer"})
	require.NotNil(t, d.StartJudge)
	assert.NotContains(t, d.StartJudge.Prompt, "b: ")
	assert.Equal(t, []string{"a", "c"}, modelIDs(s.Judged), "judged answers follow selection order")
}

func TestEmptyAnswerCountsAsFailure(t *testing.T) {
	s := started(t, "a", "b")

	s, d := step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "a", Content: "   "})
	require.Len(t, d.Notifications, 1)
	assert.Equal(t, KindEmptyOutput, d.Notifications[0].Kind)
	assert.True(t, s.Failed["a"])
	assert.True(t, s.Completed["a"])
	assert.Empty(t, s.Answers)
}

func TestPartialAnswerIsKept(t *testing.T) {
	s := started(t, "a")

	s, d := step(t, s, AnswerFailed{
		Gen:      s.Generation,
		ModelID:  "a",
		Content:  "partial",
		RecordID: "error-01",
		Err:      errors.New("connection reset"),
	})

	require.Len(t, d.Notifications, 1)
	assert.Equal(t, LevelWarning, d.Notifications[0].Level)
	assert.False(t, s.Failed["a"])
	require.NotNil(t, d.StartJudge)
	assert.Equal(t, []AnswerOutcome{{ModelID: "a", FinalText: "partial", SourceRecordID: "error-01"}}, s.Answers)
}

func TestAllFailedAbortsRun(t *testing.T) {
	s := started(t, "a", "b")

	s, _ = step(t, s, AnswerFailed{Gen: s.Generation, ModelID: "a", Err: errors.New("x")})
	s, d := step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "b", Content: ""})

	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, OutcomeAborted, d.Outcome)
	assert.Nil(t, d.StartJudge)
	assert.Nil(t, s.Judge)
}

func TestStaleEventsAreIgnored(t *testing.T) {
	s := started(t, "a")
	old := s.Generation
	s, _ = Transition(s, RunStarted{RunID: "run-2", Config: testConfig("a")})

	next, d := Transition(s, AnswerCompleted{Gen: old, ModelID: "a", Content: "late"})

	assert.False(t, d.Changed)
	assert.Equal(t, s, next)
	assert.Empty(t, next.Answers)
}

func TestEventsForUnselectedModelsAreIgnored(t *testing.T) {
	s := started(t, "a")

	_, d := Transition(s, AnswerCompleted{Gen: s.Generation, ModelID: "zzz", Content: "x"})

	assert.False(t, d.Changed)
}

func TestAnswerEventsIgnoredWhileJudging(t *testing.T) {
	s := started(t, "a")
	s, _ = step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "a", Content: "A"})
	require.Equal(t, StatusJudging, s.Status)

	_, d := Transition(s, AnswerFailed{Gen: s.Generation, ModelID: "a", Err: errors.New("late")})

	assert.False(t, d.Changed)
}

func TestTransitionDoesNotModifyInput(t *testing.T) {
	s := started(t, "a", "b")
	before := s.Clone()

	_, _ = Transition(s, AnswerCompleted{Gen: s.Generation, ModelID: "a", Content: "A"})

	assert.Equal(t, before, s)
}

func TestJudgeCompletedRequestsFinalize(t *testing.T) {
	s := started(t, "a", "b")
	s, _ = step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "a", Content: "A", RecordID: "r-a"})
	s, _ = step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "b", Content: "B", RecordID: "r-b"})

	s, d := step(t, s, JudgeCompleted{Gen: s.Generation, Text: "a wins"})

	require.NotNil(t, d.Finalize)
	assert.Equal(t, StatusJudging, s.Status)
	assert.Equal(t, "judge", d.Finalize.JudgeAPIID)
	assert.Equal(t, JudgeOutcome{Model: "judge", Text: "a wins", Format: prompt.ProsAndCons, FullMarks: 5}, d.Finalize.Judge)
	assert.Equal(t, []string{"a", "b"}, modelIDs(d.Finalize.Answers))

	s, d = step(t, s, Finalized{Gen: s.Generation, BestModel: "A", RecordID: 11})

	assert.Equal(t, StatusComplete, s.Status)
	assert.Equal(t, OutcomeComplete, d.Outcome)
	assert.Equal(t, "A", s.BestModel)
	assert.Equal(t, "a", s.BestMatch)
	assert.Equal(t, int64(11), s.RecordID)
}

func TestEmptyJudgeReportReturnsToIdle(t *testing.T) {
	s := started(t, "a")
	s, _ = step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "a", Content: "A"})

	s, d := step(t, s, JudgeCompleted{Gen: s.Generation, Text: " "})

	assert.Equal(t, StatusIdle, s.Status)
	assert.Nil(t, d.Finalize)
	assert.Equal(t, OutcomeFailed, d.Outcome)
}

func TestJudgeFailedReturnsToIdle(t *testing.T) {
	s := started(t, "a")
	s, _ = step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "a", Content: "A"})

	s, d := step(t, s, JudgeFailed{Gen: s.Generation, Err: errors.New("judge down")})

	assert.Equal(t, StatusIdle, s.Status)
	require.Len(t, d.Notifications, 1)
	assert.Equal(t, KindJudge, d.Notifications[0].Kind)
}

func judging(t *testing.T) State {
	t.Helper()
	s := started(t, "a")
	s, _ = step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "a", Content: "A"})
	s, _ = step(t, s, JudgeCompleted{Gen: s.Generation, Text: "report"})
	return s
}

func TestSelectorFailureStillCompletes(t *testing.T) {
	s := judging(t)

	s, d := step(t, s, Finalized{Gen: s.Generation, SelectorErr: errors.New("timeout"), RecordID: 2})

	assert.Equal(t, StatusComplete, s.Status)
	assert.Empty(t, s.BestModel)
	assert.Empty(t, s.BestMatch)
	require.Len(t, d.Notifications, 1)
	assert.Equal(t, KindSelector, d.Notifications[0].Kind)
	assert.Equal(t, LevelWarning, d.Notifications[0].Level)
}

func TestPersistFailureReturnsToIdle(t *testing.T) {
	s := judging(t)

	s, d := step(t, s, Finalized{Gen: s.Generation, BestModel: "a", PersistErr: errors.New("disk full")})

	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, OutcomeFailed, d.Outcome)
	assert.Zero(t, s.RecordID)
	require.Len(t, d.Notifications, 1)
	assert.Equal(t, KindPersistence, d.Notifications[0].Kind)
}

func TestUnknownBestModelHasNoMatch(t *testing.T) {
	s := judging(t)

	s, _ = step(t, s, Finalized{Gen: s.Generation, BestModel: "somebody else", RecordID: 1})

	assert.Equal(t, "somebody else", s.BestModel)
	assert.Empty(t, s.BestMatch)
}

func TestRemoveAnswerTriggersJudge(t *testing.T) {
	s := started(t, "a", "b")
	s, _ = step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "a", Content: "A"})

	s, d := step(t, s, AnswerRemoved{ModelID: "b"})

	assert.Equal(t, "b", d.CloseHandle)
	assert.Equal(t, []string{"a"}, s.Config.AnswerModelIDs())
	require.NotNil(t, d.StartJudge)
}

func TestRemoveLastAnswerModelStopsRun(t *testing.T) {
	s := started(t, "a")

	s, d := step(t, s, AnswerRemoved{ModelID: "a"})

	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, OutcomeAborted, d.Outcome)
}

func TestRemoveAfterCompleteKeepsStatus(t *testing.T) {
	s := judging(t)
	s, _ = step(t, s, Finalized{Gen: s.Generation, RecordID: 1})

	s, d := step(t, s, AnswerRemoved{ModelID: "a"})

	assert.Equal(t, StatusComplete, s.Status)
	assert.Empty(t, s.Answers)
	assert.Empty(t, d.Outcome)
}

func TestRemoveUnknownModelIsIgnored(t *testing.T) {
	s := started(t, "a")

	_, d := Transition(s, AnswerRemoved{ModelID: "nope"})

	assert.False(t, d.Changed)
}

func TestSnapshotSortsIDs(t *testing.T) {
	s := started(t, "b", "a")
	s, _ = step(t, s, AnswerCompleted{Gen: s.Generation, ModelID: "b", Content: "B"})
	s, _ = step(t, s, AnswerFailed{Gen: s.Generation, ModelID: "a", Err: errors.New("x")})

	snap := s.Snapshot()

	assert.Equal(t, []string{"a", "b"}, snap.CompletedIDs)
	assert.Equal(t, []string{"a"}, snap.FailedIDs)
	assert.Equal(t, StatusJudging, snap.Status)
}

func modelIDs(answers []AnswerOutcome) []string {
	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.ModelID)
	}
	return ids
}

func TestBackendErrorsAreLocalizedInNotifications(t *testing.T) {
	cfg := testConfig("a", "b")
	cfg.Locale = "zh"
	s, _ := Transition(NewState(), RunStarted{RunID: "run-1", Config: cfg})

	backendErr := &llm.BackendError{Code: "-10001", Type: "X", Message: "generic", MessageCN: "余额不足", MessageEN: "insufficient balance"}
	_, d := step(t, s, AnswerFailed{
		Gen:     s.Generation,
		ModelID: "a",
		Err:     fmt.Errorf("chat completion stream failed: %w", backendErr),
	})

	require.Len(t, d.Notifications, 1)
	assert.Equal(t, "a failed: 余额不足 (-10001)", d.Notifications[0].Message)
}

func TestPlainErrorsKeepTheirText(t *testing.T) {
	s := started(t, "a", "b")

	_, d := step(t, s, AnswerFailed{Gen: s.Generation, ModelID: "a", Err: errors.New("connection reset")})

	require.Len(t, d.Notifications, 1)
	assert.Equal(t, "a failed: connection reset", d.Notifications[0].Message)
}
