package templaterepo

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/nbertagnolli/sql-rag/internal/domain/nlquery"
)

// MemoryRepository keeps templates in memory for tests and local development.
type MemoryRepository struct {
	mu        sync.RWMutex
	templates []nlquery.QueryTemplate
	nextID    int64
}

// NewMemoryRepository constructs the repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1}
}

// FindSimilar ranks stored templates by cosine distance, ties broken by name.
func (r *MemoryRepository) FindSimilar(_ context.Context, embedding []float32, limit int) ([]nlquery.SimilarityResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]nlquery.SimilarityResult, 0, len(r.templates))
	for _, template := range r.templates {
		results = append(results, nlquery.SimilarityResult{
			Template: template,
			Distance: cosineDistance(embedding, template.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Template.Name < results[j].Template.Name
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Insert stores a template, rejecting duplicate names.
func (r *MemoryRepository) Insert(_ context.Context, template nlquery.QueryTemplate) (nlquery.QueryTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.templates {
		if existing.Name == template.Name {
			return nlquery.QueryTemplate{}, nlquery.ErrDuplicateTemplate
		}
	}
	template.ID = r.nextID
	r.nextID++
	r.templates = append(r.templates, template)
	return template, nil
}

// cosineDistance mirrors the pgvector <=> operator.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

var _ nlquery.TemplateRepository = (*MemoryRepository)(nil)
