package observability

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDefaults(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Setup(ctx, Config{}, nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.Equal(t, DefaultServiceName, os.Getenv("OTEL_SERVICE_NAME"))

	assert.NoError(t, shutdown(ctx))
}

func TestSetupCustomConfig(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Setup(ctx, Config{
		Endpoint:    "collector.internal:4318",
		Environment: "staging",
		ServiceName: "studybuddy-staging",
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.Equal(t, "studybuddy-staging", os.Getenv("OTEL_SERVICE_NAME"))
	assert.Contains(t, os.Getenv("OTEL_RESOURCE_ATTRIBUTES"), "deployment.environment=staging")

	assert.NoError(t, shutdown(ctx))
}

func TestSetupCollectorUnavailable(t *testing.T) {
	ctx := context.Background()

	// Exporter creation does not dial; an unreachable collector must not
	// fail startup, spans are just dropped.
	shutdown, err := Setup(ctx, Config{Endpoint: "localhost:1"}, nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(ctx))
}
