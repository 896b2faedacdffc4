package services

import (
	"context"

	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/core/ports/driven"
	"github.com/mortar-ai/mortar/internal/core/ports/driving"
)

// Ensure HealthChecker implements the interface.
var _ driving.HealthService = (*HealthChecker)(nil)

// HealthChecker reports whether retrieval is serviceable.
type HealthChecker struct {
	indexStore driven.IndexStore
}

// NewHealthChecker creates a health service.
func NewHealthChecker(indexStore driven.IndexStore) *HealthChecker {
	return &HealthChecker{indexStore: indexStore}
}

// RetrievalHealth reports ok with the current snapshot version, or degraded
// when no snapshot can be bound.
func (s *HealthChecker) RetrievalHealth(_ context.Context) domain.Health {
	snap, err := s.indexStore.Snapshot()
	if err != nil {
		return domain.Health{Status: domain.HealthDegraded}
	}
	return domain.Health{
		Status:          domain.HealthOK,
		SnapshotVersion: snap.Version(),
	}
}
