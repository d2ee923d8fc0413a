package templaterepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/nbertagnolli/sql-rag/internal/domain/nlquery"
)

// PostgresRepository implements nlquery.TemplateRepository using pgx over
// the queries table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// FindSimilar returns the closest templates by cosine distance. The name
// column breaks distance ties deterministically.
func (r *PostgresRepository) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]nlquery.SimilarityResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, query, args, arg_types, (embedding <=> $1) AS distance
		FROM queries
		ORDER BY embedding <=> $1, name
		LIMIT $2
	`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var results []nlquery.SimilarityResult
	for rows.Next() {
		var result nlquery.SimilarityResult
		if err := rows.Scan(
			&result.Template.ID,
			&result.Template.Name,
			&result.Template.QueryText,
			&result.Template.ParameterNames,
			&result.Template.ParameterTypes,
			&result.Distance,
		); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// Insert stores a new template; a taken name reports ErrDuplicateTemplate.
func (r *PostgresRepository) Insert(ctx context.Context, template nlquery.QueryTemplate) (nlquery.QueryTemplate, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO queries (name, query, args, arg_types, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING
		RETURNING id
	`, template.Name, template.QueryText, template.ParameterNames, template.ParameterTypes, pgvector.NewVector(template.Embedding))
	if err := row.Scan(&template.ID); err != nil {
		if err == pgx.ErrNoRows {
			return nlquery.QueryTemplate{}, nlquery.ErrDuplicateTemplate
		}
		return nlquery.QueryTemplate{}, fmt.Errorf("insert template: %w", err)
	}
	return template, nil
}

var _ nlquery.TemplateRepository = (*PostgresRepository)(nil)
