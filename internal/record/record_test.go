package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelAnswerJSONShape(t *testing.T) {
	payload, err := encodeModelAnswer(ModelAnswer{
		Models: []AnswerEntry{{Model: "A", Answer: "x", ID: "r1"}},
		Judge:  JudgeEntry{Model: "J", Answer: "report", Format: "multiDimensional", FullMarks: 10},
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))

	models := raw["models"].([]any)
	require.Len(t, models, 1)
	assert.Equal(t, map[string]any{"model": "A", "answer": "x", "id": "r1"}, models[0])
	assert.Equal(t, map[string]any{
		"model":     "J",
		"answer":    "report",
		"format":    "multiDimensional",
		"fullMarks": float64(10),
	}, raw["judge"])
}

func TestEncodeEmptyModelsAsArray(t *testing.T) {
	payload, err := encodeModelAnswer(ModelAnswer{})
	require.NoError(t, err)
	assert.Contains(t, payload, `"models":[]`)
}

func TestWithoutAnswer(t *testing.T) {
	models := []AnswerEntry{
		{Model: "A", ID: "1"},
		{Model: "B", ID: "2"},
		{Model: "C", ID: "3"},
	}

	tests := []struct {
		name string
		key  string
		want []string
	}{
		{name: "by id", key: "2", want: []string{"A", "C"}},
		{name: "by model name", key: "C", want: []string{"A", "B"}},
		{name: "no match", key: "Z", want: []string{"A", "B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range withoutAnswer(models, tt.key) {
				got = append(got, m.Model)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
