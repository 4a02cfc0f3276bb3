// Package record persists completed judging sessions.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// AnswerEntry is one model's answer within a record.
type AnswerEntry struct {
	Model  string `json:"model"`
	Answer string `json:"answer"`
	ID     string `json:"id"`
}

// JudgeEntry is the judge's report within a record.
type JudgeEntry struct {
	Model     string `json:"model"`
	Answer    string `json:"answer"`
	Format    string `json:"format"`
	FullMarks int    `json:"fullMarks"`
}

// ModelAnswer is the serialized payload of a record. Its JSON shape is
// shared with other readers of the store and must stay stable.
type ModelAnswer struct {
	Models []AnswerEntry `json:"models"`
	Judge  JudgeEntry    `json:"judge"`
}

// Record is a persisted judging session.
type Record struct {
	ID          int64       `json:"id"`
	Prompt      string      `json:"prompt"`
	ModelAnswer ModelAnswer `json:"modelAnswer"`
	BestModel   string      `json:"bestModel,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// NewRecord holds the fields supplied when appending a record.
type NewRecord struct {
	Prompt      string
	ModelAnswer ModelAnswer
	BestModel   string
}

// Store is the record persistence capability.
type Store interface {
	// Append inserts a record in a single write and returns all records,
	// newest first.
	Append(ctx context.Context, rec NewRecord) ([]Record, error)
	// Remove deletes a record and returns the remaining records, newest first.
	Remove(ctx context.Context, id int64) ([]Record, error)
	// RemoveAnswer drops one model entry from a record, leaving the judge
	// entry untouched. modelID matches an entry's ID, or its model name
	// when no entry has that ID.
	RemoveAnswer(ctx context.Context, id int64, modelID string) error
	// List returns all records, newest first.
	List(ctx context.Context) ([]Record, error)
	// Get returns a single record.
	Get(ctx context.Context, id int64) (*Record, error)
	// Close releases the underlying connections.
	Close() error
}

func encodeModelAnswer(ma ModelAnswer) (string, error) {
	if ma.Models == nil {
		ma.Models = []AnswerEntry{}
	}
	data, err := json.Marshal(ma)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeModelAnswer(s string) (ModelAnswer, error) {
	var ma ModelAnswer
	if err := json.Unmarshal([]byte(s), &ma); err != nil {
		return ModelAnswer{}, err
	}
	return ma, nil
}

// withoutAnswer returns models with the entry identified by modelID removed.
func withoutAnswer(models []AnswerEntry, modelID string) []AnswerEntry {
	byID := false
	for _, m := range models {
		if m.ID == modelID {
			byID = true
			break
		}
	}

	out := make([]AnswerEntry, 0, len(models))
	for _, m := range models {
		if byID && m.ID == modelID {
			continue
		}
		if !byID && m.Model == modelID {
			continue
		}
		out = append(out, m)
	}
	return out
}
