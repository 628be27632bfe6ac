package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-routines/internal/config"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testRedisConfig() config.RedisConfig {
	return config.RedisConfig{
		Enabled:  true,
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", "secret_redis_pass_local"),
		DB:       1,
	}
}

func TestRedisClient_Disabled(t *testing.T) {
	cfg := testRedisConfig()
	cfg.Enabled = false

	rdb, err := NewRedisClient(cfg)
	assert.Error(t, err)
	assert.Nil(t, rdb)
}

func TestRedisClient_Integration(t *testing.T) {
	_ = godotenv.Load("../../../.env")

	rdb, err := NewRedisClient(testRedisConfig())
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	defer rdb.Close()

	ctx := context.Background()

	t.Run("Connection Ping", func(t *testing.T) {
		pong, err := rdb.Ping(ctx).Result()
		assert.NoError(t, err)
		assert.Equal(t, "PONG", pong)
	})

	t.Run("Set and Get Value", func(t *testing.T) {
		key := "kanso:test:cache"
		require.NoError(t, rdb.Set(ctx, key, "hello redis", time.Minute).Err())

		val, err := rdb.Get(ctx, key).Result()
		assert.NoError(t, err)
		assert.Equal(t, "hello redis", val)

		rdb.Del(ctx, key)
	})
}

func TestRedisClient_Unreachable(t *testing.T) {
	cfg := testRedisConfig()
	cfg.Port = "1"

	_, err := NewRedisClient(cfg)
	assert.Error(t, err)
}
