package record

import (
	"context"
	"database/sql"
	"fmt"
)

type transactionFunc func(*sql.Tx) error

// withTransaction runs fn in a transaction, committing on success and
// rolling back when fn fails.
func (s *SQLStore) withTransaction(ctx context.Context, name string, id int64, fn transactionFunc) error {
	txn, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("failed to begin transaction", "name", name, "record_id", id, "error", err)
		return fmt.Errorf("failed to begin transaction %s: %w", name, err)
	}

	if fnErr := fn(txn); fnErr != nil {
		if rbErr := txn.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction", "name", name, "record_id", id, "error", rbErr)
		}
		return fnErr
	}

	if err := txn.Commit(); err != nil {
		s.logger.Error("failed to commit transaction", "name", name, "record_id", id, "error", err)
		return fmt.Errorf("failed to commit transaction %s: %w", name, err)
	}
	return nil
}
