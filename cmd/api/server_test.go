package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aoideee/locallibrary/internal/data"
	"github.com/aoideee/locallibrary/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartStore_ConnectsAndStops(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := docstore.NewMemory()
	store := docstore.NewManager(func(ctx context.Context) (docstore.Store, error) {
		return mem, nil
	}, docstore.ManagerConfig{PingInterval: time.Hour}, logger)

	app := &applicationDependencies{logger: logger, models: data.NewModels(store), store: store}

	stop := app.startStore()
	require.Eventually(t, store.Available, time.Second, 5*time.Millisecond)

	stop()
	assert.Equal(t, docstore.Disconnected, store.State())
	assert.False(t, store.Available())

	_, err := store.Count(context.Background(), "genres", nil)
	assert.ErrorIs(t, err, docstore.ErrUnavailable)
}
