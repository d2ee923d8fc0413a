package auditrepo

import (
	"context"
	"sync"

	"github.com/nbertagnolli/sql-rag/internal/domain/nlquery"
)

// MemoryRepository collects audit records in memory for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	records []nlquery.AuditRecord
}

// NewMemoryRepository constructs the repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Insert appends a record.
func (r *MemoryRepository) Insert(_ context.Context, record nlquery.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

// Records returns a copy of everything written so far.
func (r *MemoryRepository) Records() []nlquery.AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]nlquery.AuditRecord, len(r.records))
	copy(out, r.records)
	return out
}

var _ nlquery.AuditRepository = (*MemoryRepository)(nil)
