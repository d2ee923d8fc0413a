package auditrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nbertagnolli/sql-rag/internal/domain/nlquery"
)

// PostgresRepository appends audit records to the user_queries table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Insert writes one append-only audit row.
func (r *PostgresRepository) Insert(ctx context.Context, record nlquery.AuditRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_queries (user_query, sql_query, conversation_history)
		VALUES ($1, $2, $3)
	`, record.UserQuery, record.ResolvedSQL, record.ConversationHistory)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

var _ nlquery.AuditRepository = (*PostgresRepository)(nil)
