package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// registers the "pgx" driver
	_ "github.com/jackc/pgx/v5/stdlib"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"
)

// SQLStore implements Store on database/sql.
type SQLStore struct {
	driver string
	pool   *sql.DB
	stmts  *statements
	logger *slog.Logger
	now    func() time.Time
}

var _ Store = (*SQLStore)(nil)

// Open connects to the configured database, verifies it is reachable and
// ensures the schema exists.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stmts, err := statementsForDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	logger.Info("opening record store", "driver", cfg.Driver)

	pool, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	if cfg.ConnMaxLifetime != nil {
		pool.SetConnMaxLifetime(*cfg.ConnMaxLifetime)
	}
	if cfg.MaxIdleConns != nil {
		pool.SetMaxIdleConns(*cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns != nil {
		pool.SetMaxOpenConns(*cfg.MaxOpenConns)
	} else if cfg.Driver == SQLiteDriver {
		// sqlite allows a single writer
		pool.SetMaxOpenConns(1)
	}

	s := &SQLStore{
		driver: cfg.Driver,
		pool:   pool,
		stmts:  stmts,
		logger: logger,
		now:    time.Now,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", cfg.Driver, err)
	}

	if _, err := pool.ExecContext(ctx, stmts.schema); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return s, nil
}

// Append inserts rec and returns all records, newest first.
func (s *SQLStore) Append(ctx context.Context, rec NewRecord) ([]Record, error) {
	payload, err := encodeModelAnswer(rec.ModelAnswer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model answers: %w", err)
	}

	var records []Record
	err = s.withTransaction(ctx, "append", 0, func(tx *sql.Tx) error {
		var id int64
		if err := tx.QueryRowContext(ctx, s.stmts.insert,
			rec.Prompt, payload, nullString(rec.BestModel), s.now().UnixMilli(),
		).Scan(&id); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
		var listErr error
		records, listErr = listRecords(ctx, tx, s.stmts.list)
		if listErr != nil {
			return listErr
		}
		s.logger.Debug("record appended", "id", id, "models", len(rec.ModelAnswer.Models))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Remove deletes the record with id and returns the remaining records.
func (s *SQLStore) Remove(ctx context.Context, id int64) ([]Record, error) {
	res, err := s.pool.ExecContext(ctx, s.stmts.remove, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete record %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return s.List(ctx)
}

// RemoveAnswer rewrites the record's models list without modelID.
func (s *SQLStore) RemoveAnswer(ctx context.Context, id int64, modelID string) error {
	return s.withTransaction(ctx, "remove answer", id, func(tx *sql.Tx) error {
		rec, err := scanRecord(tx.QueryRowContext(ctx, s.stmts.getForUpdate, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("record %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to read record %d: %w", id, err)
		}

		rec.ModelAnswer.Models = withoutAnswer(rec.ModelAnswer.Models, modelID)
		payload, err := encodeModelAnswer(rec.ModelAnswer)
		if err != nil {
			return fmt.Errorf("failed to encode model answers: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.stmts.update, payload, id); err != nil {
			return fmt.Errorf("failed to update record %d: %w", id, err)
		}
		return nil
	})
}

// List returns all records ordered by id descending.
func (s *SQLStore) List(ctx context.Context) ([]Record, error) {
	return listRecords(ctx, s.pool, s.stmts.list)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listRecords(ctx context.Context, q queryer, query string) ([]Record, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

// Get returns the record with id.
func (s *SQLStore) Get(ctx context.Context, id int64) (*Record, error) {
	rec, err := scanRecord(s.pool.QueryRowContext(ctx, s.stmts.get, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get record %d: %w", id, err)
	}
	return rec, nil
}

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	return s.pool.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		payload   string
		bestModel sql.NullString
		createdAt int64
	)
	if err := row.Scan(&rec.ID, &rec.Prompt, &payload, &bestModel, &createdAt); err != nil {
		return nil, err
	}
	ma, err := decodeModelAnswer(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode model answers of record %d: %w", rec.ID, err)
	}
	rec.ModelAnswer = ma
	rec.BestModel = bestModel.String
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
