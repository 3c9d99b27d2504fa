//go:build integration

package disposable

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/pkg/testutil/containers"
)

func TestCached_StoresVerdicts(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	var calls atomic.Int32
	next := DetectorFunc(func(_ context.Context, domain string) (bool, error) {
		calls.Add(1)
		return domain == "mailinator.com", nil
	})
	obs := &countingObserver{}
	c := NewCached(next, rc.Client, time.Minute, nil, obs)

	for range 3 {
		blocked, err := c.IsDisposable(ctx, "mailinator.com")
		require.NoError(t, err)
		assert.True(t, blocked)
	}
	blocked, err := c.IsDisposable(ctx, "gmail.com")
	require.NoError(t, err)
	assert.False(t, blocked)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"miss", "hit", "hit", "miss"}, obs.cache)

	ttl, err := rc.Client.TTL(ctx, cacheKeyPrefix+"gmail.com").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
