package sqlexec

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nbertagnolli/sql-rag/internal/domain/nlquery"
)

// PostgresExecutor runs resolved SQL on a scoped pool connection. Each call
// acquires its own connection and releases it before returning; no
// connection outlives the operation that opened it.
type PostgresExecutor struct {
	pool *pgxpool.Pool
}

// NewPostgresExecutor constructs the executor.
func NewPostgresExecutor(pool *pgxpool.Pool) *PostgresExecutor {
	return &PostgresExecutor{pool: pool}
}

// Execute runs a statement and fetches every row.
func (e *PostgresExecutor) Execute(ctx context.Context, sql string) (nlquery.ResultSet, error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nlquery.ResultSet{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nlquery.ResultSet{}, fmt.Errorf("execute query: %w", err)
	}
	return collectRows(rows)
}

// DescribeSchema returns the non-system column listing used as generation
// context.
func (e *PostgresExecutor) DescribeSchema(ctx context.Context) (nlquery.ResultSet, error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nlquery.ResultSet{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, nlquery.SchemaQuery)
	if err != nil {
		return nlquery.ResultSet{}, fmt.Errorf("describe schema: %w", err)
	}
	return collectRows(rows)
}

func collectRows(rows pgx.Rows) (nlquery.ResultSet, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = field.Name
	}

	var out [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nlquery.ResultSet{}, fmt.Errorf("read row: %w", err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nlquery.ResultSet{}, fmt.Errorf("iterate rows: %w", err)
	}
	return nlquery.ResultSet{Columns: columns, Rows: out}, nil
}

var _ nlquery.Executor = (*PostgresExecutor)(nil)
