package judge

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/giantswarm/llm-judge/internal/llm"
	"github.com/giantswarm/llm-judge/internal/prompt"
)

// Status is the lifecycle stage of a run.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusFetchingAnswers Status = "fetchingAnswers"
	StatusJudging         Status = "judging"
	StatusComplete        Status = "complete"
)

// AnswerOutcome is a model's non-empty answer.
type AnswerOutcome struct {
	ModelID        string `json:"modelId"`
	FinalText      string `json:"finalText"`
	SourceRecordID string `json:"sourceRecordId"`
}

// JudgeOutcome is the judge's report.
type JudgeOutcome struct {
	Model     string        `json:"model"`
	Text      string        `json:"text"`
	Format    prompt.Format `json:"format"`
	FullMarks int           `json:"fullMarks"`
}

// State is the authoritative run state. It is only changed by Transition.
type State struct {
	RunID      string
	Generation uint64
	Status     Status
	Config     RunConfig
	Completed  map[string]bool
	Failed     map[string]bool
	Answers    []AnswerOutcome
	// Judged holds the answers handed to the judge, in selection order.
	Judged []AnswerOutcome
	Judge  *JudgeOutcome
	// BestModel is the selector's raw answer; BestMatch is the answer
	// model it names, or empty when it names none.
	BestModel string
	BestMatch string
	RecordID  int64
}

// NewState returns the initial idle state.
func NewState() State {
	return State{
		Status:    StatusIdle,
		Completed: map[string]bool{},
		Failed:    map[string]bool{},
	}
}

// InProgress reports whether a run is fetching answers or judging.
func (s State) InProgress() bool {
	return s.Status == StatusFetchingAnswers || s.Status == StatusJudging
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Config = s.Config.Clone()
	out.Completed = make(map[string]bool, len(s.Completed))
	for k, v := range s.Completed {
		out.Completed[k] = v
	}
	out.Failed = make(map[string]bool, len(s.Failed))
	for k, v := range s.Failed {
		out.Failed[k] = v
	}
	out.Answers = append([]AnswerOutcome(nil), s.Answers...)
	out.Judged = append([]AnswerOutcome(nil), s.Judged...)
	if s.Judge != nil {
		j := *s.Judge
		out.Judge = &j
	}
	return out
}

// Snapshot is a read-only view of State for callers outside the event loop.
type Snapshot struct {
	RunID        string          `json:"runId,omitempty"`
	Status       Status          `json:"status"`
	Config       RunConfig       `json:"config"`
	CompletedIDs []string        `json:"completedModelIds"`
	FailedIDs    []string        `json:"failedModelIds"`
	Answers      []AnswerOutcome `json:"answers"`
	Judge        *JudgeOutcome   `json:"judge,omitempty"`
	BestModel    string          `json:"bestModel,omitempty"`
	BestMatch    string          `json:"bestMatch,omitempty"`
	RecordID     int64           `json:"recordId,omitempty"`
}

// Snapshot returns a deep-copied view of s.
func (s State) Snapshot() Snapshot {
	c := s.Clone()
	if c.Answers == nil {
		c.Answers = []AnswerOutcome{}
	}
	return Snapshot{
		RunID:        c.RunID,
		Status:       c.Status,
		Config:       c.Config,
		CompletedIDs: sortedKeys(c.Completed),
		FailedIDs:    sortedKeys(c.Failed),
		Answers:      c.Answers,
		Judge:        c.Judge,
		BestModel:    c.BestModel,
		BestMatch:    c.BestMatch,
		RecordID:     c.RecordID,
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Run outcomes reported in Decision.Outcome.
const (
	OutcomeComplete = "complete"
	OutcomeAborted  = "aborted"
	OutcomeFailed   = "failed"
)

// JudgeRequest asks the driver to start judging.
type JudgeRequest struct {
	Judge  ModelSelection
	Prompt string
}

// FinalizeRequest asks the driver to select the best model and persist the
// run.
type FinalizeRequest struct {
	Prompt     string
	Answers    []AnswerOutcome
	Judge      JudgeOutcome
	JudgeAPIID string
}

// Decision lists the side effects a transition requires.
type Decision struct {
	Changed       bool
	StartJudge    *JudgeRequest
	Finalize      *FinalizeRequest
	CloseHandle   string
	Notifications []Notification
	// Outcome is set when the transition ends the run.
	Outcome string
}

func (d *Decision) notify(n Notification) {
	d.Notifications = append(d.Notifications, n)
}

// Transition applies ev to s. It has no side effects; s is not modified.
// Events from an earlier run generation are ignored.
func Transition(s State, ev Event) (State, Decision) {
	if started, ok := ev.(RunStarted); ok {
		next := NewState()
		next.RunID = started.RunID
		next.Generation = s.Generation + 1
		next.Status = StatusFetchingAnswers
		next.Config = started.Config.Clone()
		return next, Decision{Changed: true}
	}

	if gen, ok := ev.(interface{ generation() uint64 }); ok && gen.generation() != s.Generation {
		return s, Decision{}
	}

	next := s.Clone()
	var d Decision

	switch ev := ev.(type) {
	case AnswerCompleted:
		if next.Status != StatusFetchingAnswers || !next.Config.hasAnswerModel(ev.ModelID) {
			return s, Decision{}
		}
		if strings.TrimSpace(ev.Content) == "" {
			next.recordFailure(ev.ModelID)
			d.notify(Notification{
				Level:   LevelError,
				Kind:    KindEmptyOutput,
				ModelID: ev.ModelID,
				Message: fmt.Sprintf("%s returned an empty answer", ev.ModelID),
			})
		} else {
			next.recordAnswer(AnswerOutcome{ModelID: ev.ModelID, FinalText: ev.Content, SourceRecordID: ev.RecordID})
		}
		next.checkCompletion(&d)

	case AnswerFailed:
		if next.Status != StatusFetchingAnswers || !next.Config.hasAnswerModel(ev.ModelID) {
			return s, Decision{}
		}
		if strings.TrimSpace(ev.Content) != "" {
			// content that arrived before the error still counts
			next.recordAnswer(AnswerOutcome{ModelID: ev.ModelID, FinalText: ev.Content, SourceRecordID: ev.RecordID})
			d.notify(Notification{
				Level:   LevelWarning,
				Kind:    KindStream,
				ModelID: ev.ModelID,
				Message: fmt.Sprintf("%s was interrupted, keeping its partial answer: %s", ev.ModelID, errText(ev.Err, next.Config.Locale)),
			})
		} else {
			next.recordFailure(ev.ModelID)
			d.notify(Notification{
				Level:   LevelError,
				Kind:    KindStream,
				ModelID: ev.ModelID,
				Message: fmt.Sprintf("%s failed: %s", ev.ModelID, errText(ev.Err, next.Config.Locale)),
			})
		}
		next.checkCompletion(&d)

	case AnswerRemoved:
		if !next.removeAnswer(ev.ModelID) {
			return s, Decision{}
		}
		d.CloseHandle = ev.ModelID
		if next.Status == StatusFetchingAnswers {
			if len(next.Config.AnswerModels) == 0 {
				next.Status = StatusIdle
				d.Outcome = OutcomeAborted
				d.notify(Notification{Level: LevelWarning, Kind: KindRun, Message: "no answer models left, run stopped"})
			} else {
				next.checkCompletion(&d)
			}
		}

	case StartFailed:
		if next.Status != StatusFetchingAnswers {
			return s, Decision{}
		}
		next.Status = StatusIdle
		d.Outcome = OutcomeFailed
		d.notify(Notification{Level: LevelError, Kind: KindRun, Message: fmt.Sprintf("failed to start run: %s", errText(ev.Err, next.Config.Locale))})

	case JudgeCompleted:
		if next.Status != StatusJudging || next.Judge != nil {
			return s, Decision{}
		}
		if strings.TrimSpace(ev.Text) == "" {
			next.Status = StatusIdle
			d.Outcome = OutcomeFailed
			d.notify(Notification{
				Level:   LevelError,
				Kind:    KindEmptyOutput,
				ModelID: next.Config.JudgeModel.DisplayID,
				Message: "the judge returned an empty report",
			})
			break
		}
		next.Judge = &JudgeOutcome{
			Model:     next.Config.JudgeModel.DisplayID,
			Text:      ev.Text,
			Format:    next.Config.ReportFormat,
			FullMarks: next.Config.FullMarks,
		}
		d.Finalize = &FinalizeRequest{
			Prompt:     next.Config.Prompt,
			Answers:    append([]AnswerOutcome(nil), next.Judged...),
			Judge:      *next.Judge,
			JudgeAPIID: next.Config.JudgeModel.API(),
		}

	case JudgeFailed:
		if next.Status != StatusJudging || next.Judge != nil {
			return s, Decision{}
		}
		next.Status = StatusIdle
		d.Outcome = OutcomeFailed
		d.notify(Notification{
			Level:   LevelError,
			Kind:    KindJudge,
			ModelID: next.Config.JudgeModel.DisplayID,
			Message: fmt.Sprintf("judging failed: %s", errText(ev.Err, next.Config.Locale)),
		})

	case Finalized:
		if next.Status != StatusJudging || next.Judge == nil {
			return s, Decision{}
		}
		if ev.SelectorErr != nil {
			d.notify(Notification{
				Level:   LevelWarning,
				Kind:    KindSelector,
				Message: fmt.Sprintf("could not determine the best model: %s", errText(ev.SelectorErr, next.Config.Locale)),
			})
		}
		if ev.PersistErr != nil {
			next.Status = StatusIdle
			d.Outcome = OutcomeFailed
			d.notify(Notification{
				Level:   LevelError,
				Kind:    KindPersistence,
				Message: fmt.Sprintf("failed to save the judging record: %s", errText(ev.PersistErr, next.Config.Locale)),
			})
			break
		}
		next.Status = StatusComplete
		next.BestModel = ev.BestModel
		next.BestMatch = MatchBestModel(ev.BestModel, next.Judged)
		next.RecordID = ev.RecordID
		d.Outcome = OutcomeComplete

	default:
		return s, Decision{}
	}

	d.Changed = true
	return next, d
}

// recordAnswer upserts a by model id and marks it completed.
func (s *State) recordAnswer(a AnswerOutcome) {
	replaced := false
	for i := range s.Answers {
		if s.Answers[i].ModelID == a.ModelID {
			s.Answers[i] = a
			replaced = true
			break
		}
	}
	if !replaced {
		s.Answers = append(s.Answers, a)
	}
	delete(s.Failed, a.ModelID)
	s.Completed[a.ModelID] = true
}

func (s *State) recordFailure(modelID string) {
	s.Failed[modelID] = true
	s.Completed[modelID] = true
}

func (s *State) removeAnswer(modelID string) bool {
	found := false
	for i := range s.Answers {
		if s.Answers[i].ModelID == modelID {
			s.Answers = append(s.Answers[:i], s.Answers[i+1:]...)
			found = true
			break
		}
	}
	if s.Config.hasAnswerModel(modelID) {
		s.Config.AnswerModels = withoutModel(s.Config.AnswerModels, modelID)
		found = true
	}
	delete(s.Completed, modelID)
	delete(s.Failed, modelID)
	return found
}

// checkCompletion hands off to the judge once every answer model reached a
// terminal state, or stops the run when all of them failed.
func (s *State) checkCompletion(d *Decision) {
	total := len(s.Config.AnswerModels)
	done, failed := 0, 0
	for _, m := range s.Config.AnswerModels {
		if s.Completed[m.DisplayID] {
			done++
			if s.Failed[m.DisplayID] {
				failed++
			}
		}
	}
	if total == 0 || done != total {
		return
	}

	if failed == total {
		s.Status = StatusIdle
		d.Outcome = OutcomeAborted
		d.notify(Notification{Level: LevelError, Kind: KindRun, Message: "all answer models failed, nothing to judge"})
		return
	}

	byModel := make(map[string]AnswerOutcome, len(s.Answers))
	for _, a := range s.Answers {
		byModel[a.ModelID] = a
	}
	judged := make([]AnswerOutcome, 0, total-failed)
	answers := make([]prompt.Answer, 0, total-failed)
	for _, m := range s.Config.AnswerModels {
		if s.Failed[m.DisplayID] {
			continue
		}
		a := byModel[m.DisplayID]
		judged = append(judged, a)
		answers = append(answers, prompt.Answer{Name: a.ModelID, Text: a.FinalText})
	}

	text, err := prompt.BuildJudgePrompt(
		s.Config.Prompt,
		s.Config.JudgeModel.DisplayID,
		s.Config.FullMarks,
		answers,
		s.Config.ReportFormat,
		s.Config.Locale,
	)
	if err != nil {
		s.Status = StatusIdle
		d.Outcome = OutcomeFailed
		d.notify(Notification{Level: LevelError, Kind: KindRun, Message: err.Error()})
		return
	}

	s.Status = StatusJudging
	s.Judged = judged
	d.StartJudge = &JudgeRequest{Judge: s.Config.JudgeModel, Prompt: text}
}

// errText describes err for a notification. Gateway errors use the message
// for locale and keep their code.
func errText(err error, locale string) string {
	if err == nil {
		return "unknown error"
	}
	var backendErr *llm.BackendError
	if errors.As(err, &backendErr) {
		msg := backendErr.Localized(locale)
		if msg == "" {
			return err.Error()
		}
		if backendErr.Code != "" {
			return fmt.Sprintf("%s (%s)", msg, backendErr.Code)
		}
		return msg
	}
	return err.Error()
}
