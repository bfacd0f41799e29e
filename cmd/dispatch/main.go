package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/fastandpray/promo-dispatch/internal/config"
	"github.com/fastandpray/promo-dispatch/internal/kvstore"
	"github.com/fastandpray/promo-dispatch/internal/taskqueue"
)

// Enqueues a dispatch job for one campaign. Intended for operators: the
// worker process picks the job up and does the actual sending.
func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	campaignID := flag.String("campaign", "", "campaign ID to dispatch (required)")
	startIndex := flag.Int("start", 0, "recipient index to resume from")
	delay := flag.Duration("delay", 0, "optional enqueue delay, e.g. 30m")
	flag.Parse()

	if *campaignID == "" {
		log.Fatal("-campaign is required")
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	kv, err := kvstore.NewRedisFromURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer kv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queue := taskqueue.NewRedisQueue(kv.Client())
	job := taskqueue.Job{CampaignID: *campaignID, StartIndex: *startIndex}
	if err := queue.Enqueue(ctx, job, *delay); err != nil {
		log.Fatalf("Failed to enqueue dispatch job: %v", err)
	}

	if *delay > 0 {
		log.Printf("Dispatch for campaign %s queued with %s delay (start index %d)", *campaignID, *delay, *startIndex)
	} else {
		log.Printf("Dispatch for campaign %s queued (start index %d)", *campaignID, *startIndex)
	}
}
