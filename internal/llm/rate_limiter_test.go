package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterLocalPacing(t *testing.T) {
	// generous rate so the burst clears instantly
	limiter := NewRateLimiter(6000)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Wait(ctx, 1000))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateLimiterRespectsContextCancel(t *testing.T) {
	// one request per minute with a burst of one, so the second call blocks
	limiter := NewRateLimiter(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, limiter.Wait(ctx, 100))
	err := limiter.Wait(ctx, 100)
	require.Error(t, err)
}

func TestRateLimiterDefaultsOnBadInput(t *testing.T) {
	limiter := NewRateLimiter(0)
	require.NotNil(t, limiter.local)
	assert.NoError(t, limiter.Wait(context.Background(), 10))
}

func TestClientDisabledWithoutKey(t *testing.T) {
	client := &Client{provider: ProviderNone}
	assert.False(t, client.IsEnabled())

	_, err := client.Complete(context.Background(), "system", "user")
	require.Error(t, err)
}

func TestCostAccounting(t *testing.T) {
	client := &Client{provider: ProviderOpenAI, enabled: true}

	client.recordUsage("gpt-4o-mini", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.75, client.CostUSD(), 1e-9)
	assert.Equal(t, int64(2_000_000), client.TotalTokens())

	// unknown models fall back to the cheapest pricing row
	client.recordUsage("mystery-model", 1_000_000, 0)
	assert.InDelta(t, 0.90, client.CostUSD(), 1e-9)
}
