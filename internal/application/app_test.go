package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/bulkimport/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Store:      config.StoreConfig{Endpoint: "http://store.invalid/graphql", PageSize: 200},
		Import:     config.ImportConfig{MaxConcurrent: 2, DateLocation: "UTC"},
		Checkpoint: config.CheckpointConfig{Backend: config.CheckpointMemory},
	}
}

func TestNew_WithoutDatabase(t *testing.T) {
	app, err := New(context.Background(), baseConfig())
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Service)
	assert.Nil(t, app.History)
	assert.Nil(t, app.Admin)
	assert.Equal(t, 2, app.Service.Running().Limiter.MaxConcurrent)

	assert.NoError(t, app.StartBackground(context.Background()), "returns at once without history")
}

func TestNew_PostgresCheckpointsNeedDatabase(t *testing.T) {
	cfg := baseConfig()
	cfg.Checkpoint.Backend = config.CheckpointPostgres

	_, err := New(context.Background(), cfg)

	assert.ErrorIs(t, err, ErrNoDatabase)
}
