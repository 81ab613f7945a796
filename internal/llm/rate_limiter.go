package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
)

// Provider free-tier quota defaults
const (
	DefaultRPM = 1000
	DefaultTPM = 1_000_000
	DefaultRPD = 10_000
)

// RateLimiter paces provider calls. A local token bucket smooths bursts
// inside one process; optional Redis counters enforce the shared quota
// across concurrent investigations.
type RateLimiter struct {
	local    *rate.Limiter
	redis    *redis.Client
	rpmLimit int64
	tpmLimit int64
	rpdLimit int64
}

// NewRateLimiter creates a process-local limiter at the given requests
// per minute
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		local:    rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute/6+1),
		rpmLimit: DefaultRPM,
		tpmLimit: DefaultTPM,
		rpdLimit: DefaultRPD,
	}
}

// WithRedis attaches a shared Redis quota tracker
func (r *RateLimiter) WithRedis(client *redis.Client) *RateLimiter {
	r.redis = client
	return r
}

// Wait blocks until the call may proceed, charging the shared quota
// counters when Redis is attached
func (r *RateLimiter) Wait(ctx context.Context, estimatedTokens int64) error {
	if err := r.local.Wait(ctx); err != nil {
		return err
	}
	if r.redis == nil {
		return nil
	}
	return r.checkAndIncrement(ctx, estimatedTokens)
}

// checkAndIncrement bumps the global per-minute and per-day counters
// atomically and throttles when a window approaches 90% of its limit
func (r *RateLimiter) checkAndIncrement(ctx context.Context, estimatedTokens int64) error {
	now := time.Now()
	minuteKey := fmt.Sprintf("llm:rpm:%s", now.Format("2006-01-02T15:04"))
	tpmKey := fmt.Sprintf("llm:tpm:%s", now.Format("2006-01-02T15:04"))
	dayKey := fmt.Sprintf("llm:rpd:%s", now.Format("2006-01-02"))

	script := redis.NewScript(`
		local rpm_key = KEYS[1]
		local tpm_key = KEYS[2]
		local rpd_key = KEYS[3]
		local rpm_limit = tonumber(ARGV[1])
		local tpm_limit = tonumber(ARGV[2])
		local rpd_limit = tonumber(ARGV[3])
		local tokens = tonumber(ARGV[4])

		local rpm = redis.call('INCR', rpm_key)
		local tpm = redis.call('INCRBY', tpm_key, tokens)
		local rpd = redis.call('INCR', rpd_key)

		if rpm == 1 then redis.call('EXPIRE', rpm_key, 70) end
		if tpm == tokens then redis.call('EXPIRE', tpm_key, 70) end
		if rpd == 1 then redis.call('EXPIRE', rpd_key, 86400) end

		if rpm >= rpm_limit * 0.9 then
			return {-1, 'RPM', rpm, rpm_limit}
		end
		if tpm >= tpm_limit * 0.9 then
			return {-2, 'TPM', tpm, tpm_limit}
		end
		if rpd >= rpd_limit then
			return {-3, 'RPD', rpd, rpd_limit}
		end

		return {0, 'OK', rpm, tpm, rpd}
	`)

	result, err := script.Run(ctx, r.redis,
		[]string{minuteKey, tpmKey, dayKey},
		r.rpmLimit, r.tpmLimit, r.rpdLimit, estimatedTokens).Result()
	if err != nil {
		return fmt.Errorf("rate limiter redis operation failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 2 {
		return fmt.Errorf("invalid rate limiter response format")
	}

	code := resultSlice[0].(int64)
	if code >= 0 {
		return nil
	}

	limitType := resultSlice[1].(string)
	current := resultSlice[2].(int64)
	limit := resultSlice[3].(int64)

	if code == -3 {
		tomorrow := now.Add(24 * time.Hour)
		midnight := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, tomorrow.Location())
		return fmt.Errorf("daily quota exceeded: %d/%d requests (resets in %ds)",
			current, limit, int(midnight.Sub(now).Seconds()))
	}

	waitTime := 60 - now.Second()
	if waitTime <= 0 {
		waitTime = 1
	}
	logging.Warn("provider quota window nearly exhausted",
		"window", limitType, "current", current, "limit", limit, "wait_s", waitTime)

	select {
	case <-time.After(time.Duration(waitTime) * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Usage returns the current shared counters, zero when Redis is not
// attached
func (r *RateLimiter) Usage(ctx context.Context) (rpm, tpm, rpd int64, err error) {
	if r.redis == nil {
		return 0, 0, 0, nil
	}

	now := time.Now()
	minuteKey := fmt.Sprintf("llm:rpm:%s", now.Format("2006-01-02T15:04"))
	tpmKey := fmt.Sprintf("llm:tpm:%s", now.Format("2006-01-02T15:04"))
	dayKey := fmt.Sprintf("llm:rpd:%s", now.Format("2006-01-02"))

	pipe := r.redis.Pipeline()
	rpmCmd := pipe.Get(ctx, minuteKey)
	tpmCmd := pipe.Get(ctx, tpmKey)
	rpdCmd := pipe.Get(ctx, dayKey)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, 0, fmt.Errorf("failed to get usage stats: %w", err)
	}

	rpm, _ = rpmCmd.Int64()
	tpm, _ = tpmCmd.Int64()
	rpd, _ = rpdCmd.Int64()
	return rpm, tpm, rpd, nil
}
