package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()
	r.RunFinished("complete")
	r.RunFinished("complete")
	r.RunFinished("aborted")
	r.AnswerOutcome("failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.answers.WithLabelValues("failed")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RunFinished("complete")
	r.AnswerOutcome("success")
	r.ObserveStage("judging", time.Second)
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.ObserveStage("answers", 2*time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "llm_judge_stage_duration_seconds"))
}
