package sink

import (
	"context"
	"math"
	"time"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/cache"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/graph"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/outcome"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// sessionCounterTTL keeps session counters alive across a working day
const sessionCounterTTL = 24 * time.Hour

// CachedSink mirrors progress updates into Redis so dashboards can poll
// them without touching the primary store, and bumps the session run
// counter on every persisted outcome. Cache failures are logged and
// swallowed; the wrapped sink stays authoritative.
type CachedSink struct {
	inner     graph.ResultSink
	cache     *cache.Client
	sessionID string
	ttl       time.Duration
}

// NewCachedSink wraps a sink with Redis progress caching
func NewCachedSink(inner graph.ResultSink, client *cache.Client, sessionID string, ttl time.Duration) *CachedSink {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedSink{inner: inner, cache: client, sessionID: sessionID, ttl: ttl}
}

// Persist delegates to the wrapped sink, then bumps session counters and
// drops the now stale progress entry
func (s *CachedSink) Persist(ctx context.Context, investigationID string, o *outcome.CanonicalFinalOutcome, raw *state.InvestigationState) error {
	if err := s.inner.Persist(ctx, investigationID, o, raw); err != nil {
		return err
	}

	if _, err := s.cache.Increment(ctx, cache.SessionRunsKey(s.sessionID), sessionCounterTTL); err != nil {
		logging.Warn("session run counter update failed", "error", err)
	}
	if err := s.cache.Delete(ctx, cache.ProgressKey(investigationID)); err != nil {
		logging.Debug("progress cache cleanup failed",
			"investigation_id", investigationID, "error", err)
	}
	return nil
}

// UpdateProgress writes through to the wrapped sink and caches the
// snapshot for pollers
func (s *CachedSink) UpdateProgress(ctx context.Context, investigationID string, p graph.Progress) error {
	if err := s.inner.UpdateProgress(ctx, investigationID, p); err != nil {
		return err
	}
	if err := s.cache.SetWithTTL(ctx, cache.ProgressKey(investigationID), p, s.ttl); err != nil {
		logging.Warn("progress cache update failed",
			"investigation_id", investigationID, "error", err)
	}
	return nil
}

// StoreTransactionScores passes through untouched
func (s *CachedSink) StoreTransactionScores(ctx context.Context, investigationID string, scores map[string]float64) error {
	return s.inner.StoreTransactionScores(ctx, investigationID, scores)
}

// RecordSpend adds to the session cost counter, in integer cents
func (s *CachedSink) RecordSpend(ctx context.Context, usd float64) {
	cents := int64(math.Round(usd * 100))
	if cents <= 0 {
		return
	}
	if _, err := s.cache.IncrementCostCents(ctx, cache.SessionCostKey(s.sessionID), cents, sessionCounterTTL); err != nil {
		logging.Warn("session cost counter update failed", "error", err)
	}
}
