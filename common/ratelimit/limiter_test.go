package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fieldsense/audioingest/common/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDeviceLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	limiter := NewRateLimiter(rdb, logger.Discard())
	device := "rl-test-" + uuid.NewString()[:8]
	defer limiter.ResetLimit(context.Background(), DeviceKey(device))

	for i := 1; i <= 3; i++ {
		res, err := limiter.CheckDeviceLimit(ctx, device, 3, 60)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(i), res.CurrentCount)
	}

	res, err := limiter.CheckDeviceLimit(ctx, device, 3, 60)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(4), res.CurrentCount)
	assert.Positive(t, res.RetryAfterSeconds)
	assert.LessOrEqual(t, res.RetryAfterSeconds, int64(60))
}
