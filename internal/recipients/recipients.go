package recipients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fastandpray/promo-dispatch/internal/domain"
	"github.com/fastandpray/promo-dispatch/internal/kvstore"
	"github.com/fastandpray/promo-dispatch/internal/pkg/logger"
)

// Source resolves a campaign's targeting configuration into an ordered,
// deduplicated recipient list. Implementations own the targeting semantics
// (override list, church/fast filters, opt-out exclusion); the dispatcher
// only needs the resulting list to be stably ordered, so that a numeric
// resume offset means the same recipients on every invocation.
type Source interface {
	Resolve(ctx context.Context, c *domain.Campaign) ([]domain.Recipient, error)
}

// DefaultCacheTTL keeps a resolved list alive long enough for a campaign to
// drain across many paused batches without re-running the targeting query.
const DefaultCacheTTL = 24 * time.Hour

// Cache wraps a Source with a campaign-scoped cached copy of the resolved
// list. One campaign resumes against one frozen ordering for the lifetime
// of the cache entry. If the entry expires mid-campaign the list is
// recomputed against the live targeting predicate, which can skip or repeat
// recipients if the predicate drifted; the TTL is sized to make that rare.
type Cache struct {
	store  kvstore.Store
	source Source
	ttl    time.Duration
}

// NewCache creates a recipient cache. A non-positive ttl uses DefaultCacheTTL.
func NewCache(store kvstore.Store, source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{store: store, source: source, ttl: ttl}
}

func cacheKey(campaignID string) string {
	return fmt.Sprintf("recipients:%s", campaignID)
}

// GetOrCompute returns the campaign's recipient list, resolving and caching
// it on a miss. A corrupt cache entry is deleted and treated as a miss.
func (c *Cache) GetOrCompute(ctx context.Context, campaign *domain.Campaign) ([]domain.Recipient, error) {
	key := cacheKey(campaign.ID)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read recipient cache: %w", err)
	}
	if ok {
		var cached []domain.Recipient
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
		logger.Error("corrupt recipient cache entry, recomputing",
			"campaign_id", campaign.ID)
		if err := c.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("drop corrupt recipient cache: %w", err)
		}
	}

	resolved, err := c.source.Resolve(ctx, campaign)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	resolved = dedupe(resolved)

	encoded, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("encode recipient list: %w", err)
	}
	if err := c.store.Set(ctx, key, string(encoded), c.ttl); err != nil {
		return nil, fmt.Errorf("write recipient cache: %w", err)
	}

	logger.Info("resolved recipient list",
		"campaign_id", campaign.ID, "count", len(resolved))
	return resolved, nil
}

// Invalidate drops the cached list. Called on campaign completion and on
// the unhandled-error path so a retried campaign starts from a fresh
// resolution.
func (c *Cache) Invalidate(ctx context.Context, campaignID string) error {
	return c.store.Delete(ctx, cacheKey(campaignID))
}

// dedupe removes repeated recipient IDs, keeping first occurrence order.
// Sources are expected to deduplicate already; this guards the resume-index
// invariant against ones that don't.
func dedupe(in []domain.Recipient) []domain.Recipient {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, r := range in {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
