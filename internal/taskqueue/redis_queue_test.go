package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisQueue(client)
}

func TestRedisQueue_ImmediateRoundTrip(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	in := Job{CampaignID: "promo-1", StartIndex: 3}
	if err := q.Enqueue(ctx, in, 0); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	out, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if out.CampaignID != "promo-1" || out.StartIndex != 3 {
		t.Errorf("Dequeue() = %+v, want campaign promo-1 at index 3", out)
	}
	if out.ID == "" {
		t.Error("Enqueue should assign a job ID")
	}
}

func TestRedisQueue_FIFOOrder(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, Job{CampaignID: "promo-1", StartIndex: i}, 0); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() error: %v", err)
		}
		if job.StartIndex != i {
			t.Errorf("Dequeue() #%d StartIndex = %d, want %d", i, job.StartIndex, i)
		}
	}
}

func TestRedisQueue_DelayedJobNotReadyUntilPromoted(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Job{CampaignID: "promo-1", StartIndex: 5}, time.Hour); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	// Not yet due: nothing promoted, nothing ready.
	n, err := q.PromoteDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("PromoteDue() error: %v", err)
	}
	if n != 0 {
		t.Errorf("PromoteDue() before due time = %d, want 0", n)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Dequeue() before due time error = %v, want ErrEmpty", err)
	}

	// Past the cooldown, the job becomes ready.
	n, err = q.PromoteDue(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("PromoteDue() error: %v", err)
	}
	if n != 1 {
		t.Errorf("PromoteDue() after due time = %d, want 1", n)
	}

	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() after promotion error: %v", err)
	}
	if job.CampaignID != "promo-1" || job.StartIndex != 5 {
		t.Errorf("Dequeue() = %+v, want campaign promo-1 at index 5", job)
	}
}

func TestRedisQueue_MalformedPayloadDropped(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	if err := q.client.LPush(ctx, readyKey, "not json").Err(); err != nil {
		t.Fatalf("seed payload: %v", err)
	}

	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Dequeue() of malformed payload error = %v, want ErrEmpty", err)
	}

	// The payload is gone, not stuck at the head of the list.
	if n, _ := q.client.LLen(ctx, readyKey).Result(); n != 0 {
		t.Errorf("ready list length = %d, want 0", n)
	}
}
