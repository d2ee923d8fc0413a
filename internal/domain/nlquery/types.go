package nlquery

import "github.com/nbertagnolli/sql-rag/pkg/metrics"

// QueryTemplate is a named, parameterized, pre-vetted SQL statement with an
// associated semantic embedding. Templates are created by offline seeding and
// are read-only from the pipeline's perspective.
type QueryTemplate struct {
	ID             int64
	Name           string
	QueryText      string
	ParameterNames []string
	ParameterTypes []string
	Embedding      []float32
}

// SimilarityResult pairs a template with its vector distance from a query.
type SimilarityResult struct {
	Template QueryTemplate
	Distance float64
}

// AuditRecord is the append-only log entry written after every
// generation-path resolution, successful or not.
type AuditRecord struct {
	UserQuery           string
	ResolvedSQL         string
	ConversationHistory string
}

// ResultSet carries the rows produced by an executed statement. The shape is
// determined entirely by the resolved SQL's select list.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Request is the natural-language query payload.
type Request struct {
	Query string `json:"query"`
}

// ResolutionSource identifies which pipeline branch produced the answer.
const (
	SourceTemplate  = "template"
	SourceGenerated = "generated"
)

// Response is returned to the HTTP transport.
type Response struct {
	Columns    []string            `json:"columns"`
	Rows       [][]any             `json:"rows"`
	Source     string              `json:"source"`
	Template   string              `json:"template,omitempty"`
	Notes      string              `json:"notes,omitempty"`
	TokenUsage *metrics.TokenUsage `json:"tokenUsage,omitempty"`
	DurationMs int64               `json:"durationMs,omitempty"`
}

// AddTemplateRequest registers a new query template.
type AddTemplateRequest struct {
	Name     string   `json:"name"`
	Query    string   `json:"query"`
	Args     []string `json:"args"`
	ArgTypes []string `json:"argTypes"`
}

// SearchResult is a similarity hit returned by the search endpoint.
type SearchResult struct {
	Name     string   `json:"name"`
	Query    string   `json:"query"`
	Args     []string `json:"args"`
	ArgTypes []string `json:"argTypes"`
	Distance float64  `json:"distance"`
}

// TrendingQuery represents a frequently asked question.
type TrendingQuery struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}
