package repository

import (
	"context"
	"testing"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

func TestCachedTemplateRepository_Integration(t *testing.T) {
	_ = godotenv.Load("../../../.env")

	rdb := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_HOST", "localhost") + ":" + getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", "secret_redis_pass_local"),
		DB:       2,
	})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	require.NoError(t, rdb.FlushDB(ctx).Err())

	next := NewInMemoryTemplateRepository()
	repo := NewCachedTemplateRepository(next, rdb)
	habits := []domain.Habit{{ID: "water", Name: "Water", Order: 1, IsActive: true, Type: domain.TaskType()}}

	tpl, err := domain.NewRoutineTemplate("cache-user", "Morning", habits, nil, false)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tpl))

	t.Run("Success: List fills the cache", func(t *testing.T) {
		list, err := repo.ListByUserID(ctx, "cache-user")
		require.NoError(t, err)
		require.Len(t, list, 1)

		exists, err := rdb.Exists(ctx, "templates:cache-user").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})

	t.Run("Success: Writes invalidate", func(t *testing.T) {
		second, err := domain.NewRoutineTemplate("cache-user", "Evening", habits, nil, false)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, second))

		list, err := repo.ListByUserID(ctx, "cache-user")
		require.NoError(t, err)
		assert.Len(t, list, 2)

		require.NoError(t, repo.Delete(ctx, second.ID))
		list, err = repo.ListByUserID(ctx, "cache-user")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("Success: Corrupted entry falls back to the store", func(t *testing.T) {
		require.NoError(t, rdb.Set(ctx, "templates:cache-user", "{not json", 0).Err())

		list, err := repo.ListByUserID(ctx, "cache-user")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}
