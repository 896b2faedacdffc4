package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortar-ai/mortar/internal/core/domain"
)

func TestHealthCmd_Ok(t *testing.T) {
	cleanup := setupTestServices(nil, nil, &fakeHealthService{
		health: domain.Health{Status: domain.HealthOK, SnapshotVersion: "v3"},
	})
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"health"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ok (snapshot v3)")
}

func TestHealthCmd_Degraded(t *testing.T) {
	cleanup := setupTestServices(nil, nil, &fakeHealthService{
		health: domain.Health{Status: domain.HealthDegraded},
	})
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"health"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, buf.String(), "degraded")
}
