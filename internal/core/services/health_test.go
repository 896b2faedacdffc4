package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortar-ai/mortar/internal/adapters/driven/index/memory"
	"github.com/mortar-ai/mortar/internal/core/domain"
)

func TestRetrievalHealthOK(t *testing.T) {
	store := memory.NewStore(&fakeEmbedder{})
	checker := NewHealthChecker(store)

	health := checker.RetrievalHealth(context.Background())

	assert.Equal(t, domain.HealthOK, health.Status)
	assert.NotEmpty(t, health.SnapshotVersion)
}

func TestRetrievalHealthDegradedWhenClosed(t *testing.T) {
	store := memory.NewStore(&fakeEmbedder{})
	require.NoError(t, store.Close())

	checker := NewHealthChecker(store)
	health := checker.RetrievalHealth(context.Background())

	assert.Equal(t, domain.HealthDegraded, health.Status)
	assert.Empty(t, health.SnapshotVersion)
}
