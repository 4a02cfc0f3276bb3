package server

import (
	"context"
	"log/slog"

	"github.com/giantswarm/llm-judge/internal/catalog"
	"github.com/giantswarm/llm-judge/internal/judge"
	"github.com/giantswarm/llm-judge/internal/metrics"
	"github.com/giantswarm/llm-judge/internal/record"
)

// RecordStore is the judging history used by the API and MCP tools.
type RecordStore interface {
	List(ctx context.Context) ([]record.Record, error)
	Get(ctx context.Context, id int64) (*record.Record, error)
	Remove(ctx context.Context, id int64) ([]record.Record, error)
	RemoveAnswer(ctx context.Context, id int64, modelID string) error
}

// ModelCatalog lists selectable models.
type ModelCatalog interface {
	Models(ctx context.Context) ([]catalog.Model, error)
}

// ServerContext holds shared dependencies for MCP tool and API handlers.
type ServerContext struct {
	Coordinator *judge.Coordinator
	Records     RecordStore
	Catalog     ModelCatalog
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
}

func (sc *ServerContext) logger() *slog.Logger {
	if sc.Logger != nil {
		return sc.Logger
	}
	return slog.Default()
}
