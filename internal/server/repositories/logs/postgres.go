package logs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/authgate/internal/dbx"
)

// PostgresRepository stores entries of every stream in log_entries, one
// JSONB payload per row. Append and cap enforcement share a transaction.
type PostgresRepository[T any] struct {
	db     *sql.DB
	stream string
	cap    int
}

func NewPostgresRepository[T any](db *sql.DB, stream Stream) *PostgresRepository[T] {
	return &PostgresRepository[T]{db: db, stream: stream.Name, cap: stream.Cap}
}

func (r *PostgresRepository[T]) Append(ctx context.Context, entry T) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		insert := `INSERT INTO log_entries (stream, payload) VALUES ($1, $2)`
		if _, err := tx.ExecContext(ctx, insert, r.stream, payload); err != nil {
			return err
		}

		trim :=
			`DELETE FROM log_entries
			 WHERE stream = $1 AND id NOT IN (
			   SELECT id FROM log_entries WHERE stream = $1 ORDER BY id DESC LIMIT $2
			 )`
		_, err := tx.ExecContext(ctx, trim, r.stream, r.cap)
		return err
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository[T]) Tail(ctx context.Context, limit int) ([]T, error) {
	if limit <= 0 || limit > r.cap {
		limit = r.cap
	}

	query :=
		`SELECT payload FROM (
		   SELECT id, payload FROM log_entries WHERE stream = $1 ORDER BY id DESC LIMIT $2
		 ) newest ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, r.stream, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		var entry T
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return out, nil
}
