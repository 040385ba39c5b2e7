package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleserve/scaleserve/internal/async"
	"github.com/scaleserve/scaleserve/internal/cache"
	"github.com/scaleserve/scaleserve/internal/entity"
	"github.com/scaleserve/scaleserve/internal/health"
	"github.com/scaleserve/scaleserve/internal/source"
)

func newAdminFixture(t *testing.T) (*AdminService, *cache.Facade, *async.BackgroundQueue) {
	t.Helper()
	facade := cache.NewFacade(cache.NewMemoryVariantCache(), cache.NewMemoryInfoCache())
	queue := async.NewBackgroundQueue()
	t.Cleanup(queue.Shutdown)
	registry := async.NewTaskRegistry(queue)
	checker := health.NewChecker(source.NewUsage(), facade, async.NewHighConcurrencyPool(8), time.Second)
	return NewAdminService(facade, registry, checker, nil, nil), facade, queue
}

func TestAdminEvictIdentifier(t *testing.T) {
	ctx := context.Background()
	admin, facade, _ := newAdminFixture(t)
	require.NoError(t, facade.InfoTier().Put(ctx, "doc.tif", entity.NewInfo(10, 10)))

	require.NoError(t, admin.EvictIdentifier(ctx, "doc.tif"))
	_, err := facade.InfoTier().Get(ctx, "doc.tif")
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
}

func TestAdminSubmitPurgeTask(t *testing.T) {
	ctx := context.Background()
	admin, facade, _ := newAdminFixture(t)
	require.NoError(t, facade.InfoTier().Put(ctx, "doc.tif", entity.NewInfo(10, 10)))

	task, err := admin.SubmitTask(TaskPurgeInfoCache, "")
	require.NoError(t, err)
	assert.Eventually(t, task.Terminal, time.Second, time.Millisecond)
	assert.Equal(t, async.StatusSucceeded, task.Status())

	_, err = facade.InfoTier().Get(ctx, "doc.tif")
	assert.ErrorIs(t, err, entity.ErrCacheMiss)

	// The task remains pollable by UUID after completion.
	got, ok := admin.Task(task.ID())
	require.True(t, ok)
	assert.Equal(t, task.ID(), got.ID())
}

func TestAdminSubmitTaskValidation(t *testing.T) {
	admin, _, _ := newAdminFixture(t)

	_, err := admin.SubmitTask("MakeCoffee", "")
	assert.Error(t, err)

	_, err = admin.SubmitTask(TaskPurgeIdentifier, "")
	assert.Error(t, err, "per-identifier purge requires an identifier")
}

func TestAdminHealth(t *testing.T) {
	admin, _, _ := newAdminFixture(t)
	h := admin.Health(context.Background(), false)
	assert.Equal(t, entity.HealthGreen, h.Color())

	h = admin.Health(context.Background(), true)
	assert.Equal(t, entity.HealthGreen, h.Color())
}
