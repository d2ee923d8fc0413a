package nlquery

import (
	"context"
	"errors"
)

// ErrDuplicateTemplate is returned when a template name is already taken.
var ErrDuplicateTemplate = errors.New("template name already exists")

// SchemaQuery lists every non-system column; its result is handed to the
// model verbatim as generation context.
const SchemaQuery = `
SELECT
    table_schema,
    table_name,
    column_name,
    data_type,
    is_nullable,
    column_default
FROM
    information_schema.columns
WHERE
    table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY
    table_schema,
    table_name,
    ordinal_position;
`

// TemplateRepository encapsulates the template store.
type TemplateRepository interface {
	// FindSimilar returns up to limit templates ordered by ascending vector
	// distance, ties broken by template name.
	FindSimilar(ctx context.Context, embedding []float32, limit int) ([]SimilarityResult, error)
	Insert(ctx context.Context, template QueryTemplate) (QueryTemplate, error)
}

// AuditRepository appends resolution records; entries are never updated.
type AuditRepository interface {
	Insert(ctx context.Context, record AuditRecord) error
}

// Executor runs SQL against the relational store on a scoped connection that
// never outlives the call.
type Executor interface {
	Execute(ctx context.Context, sql string) (ResultSet, error)
	DescribeSchema(ctx context.Context) (ResultSet, error)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TrendingStore counts asked questions for the trending endpoint.
type TrendingStore interface {
	IncrementQuery(ctx context.Context, canonical, display string) error
	TopQueries(ctx context.Context, limit int) ([]TrendingQuery, error)
}
