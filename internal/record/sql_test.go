package record

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Driver: SQLiteDriver,
		URL:    "file:" + filepath.Join(t.TempDir(), "records.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func twoModelRecord(prompt string) NewRecord {
	return NewRecord{
		Prompt: prompt,
		ModelAnswer: ModelAnswer{
			Models: []AnswerEntry{
				{Model: "A", Answer: "a says", ID: "rec-a"},
				{Model: "B", Answer: "b says", ID: "rec-b"},
			},
			Judge: JudgeEntry{Model: "J", Answer: "report", Format: "prosAndCons", FullMarks: 5},
		},
		BestModel: "A",
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql", URL: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestAppendReturnsListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, twoModelRecord("first"))
	require.NoError(t, err)
	records, err := s.Append(ctx, twoModelRecord("second"))
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "second", records[0].Prompt)
	assert.Equal(t, "first", records[1].Prompt)
	assert.Greater(t, records[0].ID, records[1].ID)
	assert.Equal(t, "A", records[0].BestModel)
	assert.WithinDuration(t, time.Now(), records[0].CreatedAt, time.Minute)
}

func TestAppendWithoutBestModel(t *testing.T) {
	s := newTestStore(t)
	rec := twoModelRecord("q")
	rec.BestModel = ""

	records, err := s.Append(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].BestModel)
}

func TestRecordRoundTripsModelAnswer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records, err := s.Append(ctx, twoModelRecord("q"))
	require.NoError(t, err)

	got, err := s.Get(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, twoModelRecord("q").ModelAnswer, got.ModelAnswer)
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, twoModelRecord("keep"))
	require.NoError(t, err)
	records, err := s.Append(ctx, twoModelRecord("drop"))
	require.NoError(t, err)

	remaining, err := s.Remove(ctx, records[0].ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "keep", remaining[0].Prompt)

	_, err = s.Remove(ctx, records[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveAnswerLeavesJudgeUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records, err := s.Append(ctx, twoModelRecord("q"))
	require.NoError(t, err)
	id := records[0].ID

	require.NoError(t, s.RemoveAnswer(ctx, id, "rec-a"))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []AnswerEntry{{Model: "B", Answer: "b says", ID: "rec-b"}}, got.ModelAnswer.Models)
	assert.Equal(t, twoModelRecord("q").ModelAnswer.Judge, got.ModelAnswer.Judge)
	assert.Equal(t, "A", got.BestModel)
}

func TestRemoveAnswerByModelName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records, err := s.Append(ctx, twoModelRecord("q"))
	require.NoError(t, err)
	id := records[0].ID

	require.NoError(t, s.RemoveAnswer(ctx, id, "B"))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.ModelAnswer.Models, 1)
	assert.Equal(t, "A", got.ModelAnswer.Models[0].Model)
}

func TestRemoveAnswerUnknownRecord(t *testing.T) {
	s := newTestStore(t)
	err := s.RemoveAnswer(context.Background(), 42, "A")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUnknownRecord(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEmpty(t *testing.T) {
	s := newTestStore(t)
	records, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func countRows(t *testing.T, s *SQLStore) int {
	t.Helper()
	var n int
	require.NoError(t, s.pool.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM records`).Scan(&n))
	return n
}

func TestAppendLeavesNoRowWhenListingFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.pool.ExecContext(ctx,
		`INSERT INTO records (prompt, model_answer, best_model, created_at) VALUES (?, ?, NULL, ?)`,
		"broken", "not json", time.Now().UnixMilli())
	require.NoError(t, err)
	require.Equal(t, 1, countRows(t, s))

	_, err = s.Append(ctx, twoModelRecord("q"))
	require.Error(t, err)

	assert.Equal(t, 1, countRows(t, s))
}
