package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JBAPI_SHARED_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 17000, cfg.DefaultEndpointIn)
	assert.Equal(t, 64, cfg.MaxContainers)
	assert.True(t, cfg.ScaleDownEnabled)
	assert.False(t, cfg.SelfTerminateOK)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRequiresSharedSecret(t *testing.T) {
	os.Unsetenv("JBAPI_SHARED_SECRET")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JBAPI_SHARED_SECRET", "test-secret")
	t.Setenv("JBAPI_MAX_CONTAINERS", "10")
	t.Setenv("JBAPI_LOG_JSON", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxContainers)
	assert.True(t, cfg.LogJSON)
}
