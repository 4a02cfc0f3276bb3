package judge

// Event is an input to Transition.
type Event interface {
	isEvent()
}

// RunStarted begins a new run generation with Config.
type RunStarted struct {
	RunID  string
	Config RunConfig
}

// AnswerCompleted reports that an answer model finished streaming.
type AnswerCompleted struct {
	Gen      uint64
	ModelID  string
	Content  string
	RecordID string
}

// AnswerFailed reports that an answer model's stream failed. Content holds
// whatever arrived before the failure.
type AnswerFailed struct {
	Gen      uint64
	ModelID  string
	Content  string
	RecordID string
	Err      error
}

// AnswerRemoved drops a model's answer and deselects the model.
type AnswerRemoved struct {
	ModelID string
}

// StartFailed reports that the sessions could not be prepared.
type StartFailed struct {
	Gen uint64
	Err error
}

// JudgeCompleted carries the judge's report.
type JudgeCompleted struct {
	Gen  uint64
	Text string
}

// JudgeFailed reports that the judge session failed.
type JudgeFailed struct {
	Gen uint64
	Err error
}

// Finalized reports the outcome of best-model selection and persistence.
type Finalized struct {
	Gen         uint64
	BestModel   string
	SelectorErr error
	PersistErr  error
	RecordID    int64
}

func (RunStarted) isEvent()      {}
func (AnswerCompleted) isEvent() {}
func (AnswerFailed) isEvent()    {}
func (AnswerRemoved) isEvent()   {}
func (StartFailed) isEvent()     {}
func (JudgeCompleted) isEvent()  {}
func (JudgeFailed) isEvent()     {}
func (Finalized) isEvent()       {}

func (e AnswerCompleted) generation() uint64 { return e.Gen }
func (e AnswerFailed) generation() uint64    { return e.Gen }
func (e StartFailed) generation() uint64     { return e.Gen }
func (e JudgeCompleted) generation() uint64  { return e.Gen }
func (e JudgeFailed) generation() uint64     { return e.Gen }
func (e Finalized) generation() uint64       { return e.Gen }

// Notification levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notification kinds.
const (
	KindValidation  = "validation"
	KindStream      = "stream"
	KindEmptyOutput = "emptyOutput"
	KindSelector    = "selector"
	KindPersistence = "persistence"
	KindJudge       = "judge"
	KindRun         = "run"
)

// Notification is a user-facing message about the run.
type Notification struct {
	Level   string `json:"level"`
	Kind    string `json:"kind"`
	ModelID string `json:"modelId,omitempty"`
	Message string `json:"message"`
}

// RunEvent types published to subscribers.
const (
	RunEventState        = "state"
	RunEventDelta        = "delta"
	RunEventNotification = "notification"
)

// RunEvent is published to subscribers as the run progresses.
type RunEvent struct {
	Type         string        `json:"type"`
	RunID        string        `json:"runId,omitempty"`
	ModelID      string        `json:"modelId,omitempty"`
	Delta        string        `json:"delta,omitempty"`
	State        *Snapshot     `json:"state,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}
