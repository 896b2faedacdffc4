// Package memory provides an in-memory audit log for tests and ephemeral
// runs.
package memory

import (
	"context"
	"sync"

	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/core/ports/driven"
)

// Ensure AuditLog implements the interface.
var _ driven.AuditLog = (*AuditLog)(nil)

// AuditLog is an in-memory implementation of driven.AuditLog.
type AuditLog struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

// NewAuditLog creates a new in-memory audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Record appends an audit record.
func (l *AuditLog) Record(_ context.Context, rec domain.AuditRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// Records returns a copy of everything recorded so far.
func (l *AuditLog) Records() []domain.AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AuditRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Close releases resources.
func (l *AuditLog) Close() error {
	return nil
}
