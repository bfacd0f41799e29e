package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/fastandpray/promo-dispatch/internal/api"
	"github.com/fastandpray/promo-dispatch/internal/config"
	"github.com/fastandpray/promo-dispatch/internal/dispatch"
	"github.com/fastandpray/promo-dispatch/internal/kvstore"
	"github.com/fastandpray/promo-dispatch/internal/mailer"
	"github.com/fastandpray/promo-dispatch/internal/pkg/distlock"
	"github.com/fastandpray/promo-dispatch/internal/pkg/logger"
	"github.com/fastandpray/promo-dispatch/internal/ratelimit"
	"github.com/fastandpray/promo-dispatch/internal/recipients"
	"github.com/fastandpray/promo-dispatch/internal/repository/postgres"
	"github.com/fastandpray/promo-dispatch/internal/taskqueue"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	log.Println("Starting promo dispatch worker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	kv, err := kvstore.NewRedisFromURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer kv.Close()
	log.Println("Connected to Redis")

	sender, err := buildSender(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to build mail sender: %v", err)
	}
	log.Printf("Mail sender initialized (provider: %s)", cfg.Mailer.Provider)

	campaigns := postgres.NewCampaignRepo(db)
	recipientCache := recipients.NewCache(kv, postgres.NewRecipientRepo(db), cfg.Dispatch.RecipientCacheTTL())
	limiter := ratelimit.New(kv, cfg.Limits.SendCeiling, cfg.Limits.Window())
	queue := taskqueue.NewRedisQueue(kv.Client())

	dispatcher := dispatch.New(
		campaigns,
		recipientCache,
		limiter,
		sender,
		queue,
		distlock.NewFactory(kv.Client(), db, cfg.Dispatch.LockTTL()),
		dispatch.Config{
			ThrottleCooldown: cfg.Dispatch.ThrottleCooldown(),
			LockTTL:          cfg.Dispatch.LockTTL(),
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go queue.RunPump(ctx, cfg.Dispatch.PumpInterval())

	pool := dispatch.NewWorker(queue, dispatcher, cfg.Dispatch.Workers)
	if err := pool.Start(); err != nil {
		log.Fatalf("Failed to start worker pool: %v", err)
	}
	logger.Info("worker pool started", "workers", cfg.Dispatch.Workers)

	server := api.NewServer(campaigns, queue, limiter)
	go func() {
		addr := cfg.Server.Addr()
		log.Printf("Operational API listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err.Error() != "http: Server closed" {
			log.Printf("API server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("API shutdown error: %v", err)
	}

	pool.Stop()
	log.Println("Worker stopped")
}

func buildSender(ctx context.Context, cfg *config.Config) (mailer.Sender, error) {
	switch cfg.Mailer.Provider {
	case "ses":
		return mailer.NewSESSender(ctx, mailer.SESConfig{
			Region:    cfg.SES.Region,
			AccessKey: cfg.SES.AccessKey,
			SecretKey: cfg.SES.SecretKey,
			FromName:  cfg.Mailer.FromName,
			From:      cfg.Mailer.From,
		})
	default:
		return mailer.NewMailgunSender(mailer.MailgunConfig{
			APIKey:   cfg.Mailgun.APIKey,
			Domain:   cfg.Mailgun.Domain,
			BaseURL:  cfg.Mailgun.BaseURL,
			FromName: cfg.Mailer.FromName,
			From:     cfg.Mailer.From,
		}), nil
	}
}
