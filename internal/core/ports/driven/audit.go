package driven

import (
	"context"

	"github.com/mortar-ai/mortar/internal/core/domain"
)

// AuditLog persists one record per terminal pipeline state.
// Records enable replay-based regression testing; full error detail goes
// here and never to the end user.
type AuditLog interface {
	// Record writes an audit record. A failure to record must not change
	// the user-visible response.
	Record(ctx context.Context, rec domain.AuditRecord) error

	// Close releases resources.
	Close() error
}
