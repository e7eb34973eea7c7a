package calendar_provider

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flohub/flohub/internal/cache"
	log "github.com/sirupsen/logrus"
)

// ResultCache keeps aggregation results per user and window. A zero TTL
// disables it.
type ResultCache struct {
	store cache.Cache
	ttl   time.Duration
}

func NewResultCache(store cache.Cache, ttl time.Duration) *ResultCache {
	return &ResultCache{store: store, ttl: ttl}
}

func (c *ResultCache) enabled() bool {
	return c != nil && c.store != nil && c.ttl > 0
}

func (c *ResultCache) Get(ctx context.Context, key string) (AggregateResult, bool) {
	if !c.enabled() {
		return AggregateResult{}, false
	}
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warnf("failed to read aggregation cache: %v", err)
		return AggregateResult{}, false
	}
	if !ok {
		return AggregateResult{}, false
	}
	var result AggregateResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.Warnf("discarding unreadable aggregation cache entry %s: %v", key, err)
		return AggregateResult{}, false
	}
	return result, true
}

func (c *ResultCache) Put(ctx context.Context, key string, result AggregateResult) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		log.Warnf("failed to encode aggregation result: %v", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		log.Warnf("failed to write aggregation cache: %v", err)
	}
}

// InvalidateUser drops every cached window of a user.
func (c *ResultCache) InvalidateUser(ctx context.Context, userId int) error {
	if !c.enabled() {
		return nil
	}
	return c.store.DeletePrefix(ctx, userPrefix(userId))
}

func userPrefix(userId int) string {
	return fmt.Sprintf("aggregate:%d:", userId)
}

func resultKey(userId int, timeMin, timeMax time.Time, opts AggregateOptions) string {
	var b strings.Builder
	b.WriteString(userPrefix(userId))
	b.WriteString(timeMin.UTC().Format(time.RFC3339))
	b.WriteByte(':')
	b.WriteString(timeMax.UTC().Format(time.RFC3339))
	switch {
	case opts.UseSources:
		b.WriteString(":sources")
	case opts.isLegacyQuery():
		// webhook URLs carry credentials, keep them out of cache keys
		sum := sha1.Sum([]byte(strings.Join(opts.CalendarIds, ",") + "|" + opts.O365Url))
		b.WriteString(":legacy:")
		b.WriteString(hex.EncodeToString(sum[:8]))
	}
	return b.String()
}
