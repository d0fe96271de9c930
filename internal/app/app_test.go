package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/barter-backend/internal/config"
	"github.com/ignatzorin/barter-backend/internal/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Env:           "test",
		StorageDriver: config.StorageDriverMemory,
		Swap: config.SwapConfig{
			DisputeWindow:     24 * time.Hour,
			CodeAttemptLimit:  5,
			CodeAttemptPeriod: 15 * time.Minute,
			CodeHashCost:      4,
		},
		MultiSwap: config.MultiSwapConfig{TTL: time.Hour},
	}
}

func TestNew_MemoryStorage(t *testing.T) {
	logger.Silence()

	a, err := New(context.Background(), memoryConfig(), Options{Realtime: true})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	assert.NotNil(t, a.Storage.Memory)
	assert.Nil(t, a.Storage.DB)
	assert.NotNil(t, a.Hub)
	assert.NotNil(t, a.Swap.Limiter)
	assert.Equal(t, time.Hour, a.Multi.TTL)
	assert.Equal(t, 2, a.Engine.Config().MinLength)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestSweep_EmptyStore(t *testing.T) {
	logger.Silence()

	a, err := New(context.Background(), memoryConfig(), Options{})
	require.NoError(t, err)

	res, expired, err := a.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.ExpiredDropOffs)
	assert.Zero(t, res.ReleasedHolds)
	assert.Zero(t, expired)
}
