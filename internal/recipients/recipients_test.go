package recipients

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fastandpray/promo-dispatch/internal/domain"
	"github.com/fastandpray/promo-dispatch/internal/kvstore"
)

// stubSource returns a fixed list and counts resolutions.
type stubSource struct {
	list  []domain.Recipient
	calls int
}

func (s *stubSource) Resolve(_ context.Context, _ *domain.Campaign) ([]domain.Recipient, error) {
	s.calls++
	return s.list, nil
}

func setupCache(t *testing.T, source Source) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCache(kvstore.NewRedis(client), source, time.Hour), mr
}

func testCampaign() *domain.Campaign {
	return &domain.Campaign{ID: "promo-1", Status: domain.CampaignSending}
}

func TestCache_ResolvesOncePerEntry(t *testing.T) {
	source := &stubSource{list: []domain.Recipient{
		{ID: "1", Email: "a@example.com", Active: true},
		{ID: "2", Email: "b@example.com", Active: true},
	}}
	cache, _ := setupCache(t, source)
	ctx := context.Background()

	first, err := cache.GetOrCompute(ctx, testCampaign())
	if err != nil {
		t.Fatalf("GetOrCompute() error: %v", err)
	}
	second, err := cache.GetOrCompute(ctx, testCampaign())
	if err != nil {
		t.Fatalf("GetOrCompute() error: %v", err)
	}

	if source.calls != 1 {
		t.Errorf("source resolved %d times, want 1", source.calls)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("list lengths = %d, %d, want 2, 2", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("cached ordering diverged at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestCache_InvalidateForcesRecompute(t *testing.T) {
	source := &stubSource{list: []domain.Recipient{{ID: "1", Email: "a@example.com", Active: true}}}
	cache, _ := setupCache(t, source)
	ctx := context.Background()

	cache.GetOrCompute(ctx, testCampaign())
	if err := cache.Invalidate(ctx, "promo-1"); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	cache.GetOrCompute(ctx, testCampaign())

	if source.calls != 2 {
		t.Errorf("source resolved %d times after invalidation, want 2", source.calls)
	}
}

func TestCache_CorruptEntryRecovery(t *testing.T) {
	source := &stubSource{list: []domain.Recipient{{ID: "1", Email: "a@example.com", Active: true}}}
	cache, mr := setupCache(t, source)
	ctx := context.Background()

	mr.Set("recipients:promo-1", "not json")

	got, err := cache.GetOrCompute(ctx, testCampaign())
	if err != nil {
		t.Fatalf("GetOrCompute() on corrupt entry error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
	if source.calls != 1 {
		t.Errorf("source resolved %d times, want 1", source.calls)
	}

	// The bad entry must have been replaced with the recomputed list.
	raw, _ := mr.Get("recipients:promo-1")
	if raw == "not json" {
		t.Error("corrupt entry still present after recovery")
	}
}

func TestCache_ExpiryRecomputes(t *testing.T) {
	source := &stubSource{list: []domain.Recipient{{ID: "1", Email: "a@example.com", Active: true}}}
	cache, mr := setupCache(t, source)
	ctx := context.Background()

	cache.GetOrCompute(ctx, testCampaign())
	mr.FastForward(2 * time.Hour)
	cache.GetOrCompute(ctx, testCampaign())

	if source.calls != 2 {
		t.Errorf("source resolved %d times after TTL expiry, want 2", source.calls)
	}
}

func TestDedupePreservesOrder(t *testing.T) {
	in := []domain.Recipient{
		{ID: "2", Email: "b@example.com"},
		{ID: "1", Email: "a@example.com"},
		{ID: "2", Email: "b@example.com"},
		{ID: "3", Email: "c@example.com"},
	}
	out := dedupe(in)
	want := []string{"2", "1", "3"}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i, id := range want {
		if out[i].ID != id {
			t.Errorf("out[%d].ID = %s, want %s", i, out[i].ID, id)
		}
	}
}
