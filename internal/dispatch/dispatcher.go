package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fastandpray/promo-dispatch/internal/domain"
	"github.com/fastandpray/promo-dispatch/internal/mailer"
	"github.com/fastandpray/promo-dispatch/internal/pkg/distlock"
	"github.com/fastandpray/promo-dispatch/internal/pkg/logger"
	"github.com/fastandpray/promo-dispatch/internal/ratelimit"
	"github.com/fastandpray/promo-dispatch/internal/recipients"
	"github.com/fastandpray/promo-dispatch/internal/taskqueue"
)

// Config holds the dispatcher's timing policy.
type Config struct {
	// ThrottleCooldown is the reschedule delay after a provider-level
	// rate-limit rejection. Much longer than the window cooldown: the
	// provider has told us to back off, and resuming at window pace would
	// just burn more rejections.
	ThrottleCooldown time.Duration

	// LockTTL bounds a campaign lock's lifetime as the crash-recovery
	// backstop.
	LockTTL time.Duration
}

// DefaultConfig returns the production timing policy.
func DefaultConfig() Config {
	return Config{
		ThrottleCooldown: 2 * time.Hour,
		LockTTL:          time.Hour,
	}
}

// Dispatcher runs promotional campaign batches. Each Dispatch invocation is
// an independent unit of work: it holds no state between invocations beyond
// the externally threaded start index and the shared store, so any worker
// can pick up a continuation after a pause or a restart.
type Dispatcher struct {
	campaigns  CampaignStore
	recipients *recipients.Cache
	limiter    *ratelimit.Limiter
	sender     mailer.Sender
	queue      taskqueue.Queue
	newLock    distlock.Factory
	cfg        Config
}

// New creates a dispatcher.
func New(
	campaigns CampaignStore,
	recips *recipients.Cache,
	limiter *ratelimit.Limiter,
	sender mailer.Sender,
	queue taskqueue.Queue,
	newLock distlock.Factory,
	cfg Config,
) *Dispatcher {
	if cfg.ThrottleCooldown <= 0 {
		cfg.ThrottleCooldown = 2 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Hour
	}
	return &Dispatcher{
		campaigns:  campaigns,
		recipients: recips,
		limiter:    limiter,
		sender:     sender,
		queue:      queue,
		newLock:    newLock,
		cfg:        cfg,
	}
}

// Dispatch processes one batch of the campaign starting at startIndex.
//
// Duplicate task delivery is expected: the per-campaign lock turns a
// concurrent duplicate into a logged no-op, and the terminal-status guard
// turns a late duplicate into one. Errors inside the batch are handled
// here rather than returned, so the queue never retries this path on its
// own. A campaign that failed hard stays failed until an operator
// re-dispatches it.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID string, startIndex int) error {
	lock := d.newLock(campaignID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire campaign lock: %w", err)
	}
	if !acquired {
		logger.Info("dispatch skipped, campaign locked by another worker",
			"campaign_id", campaignID, "start_index", startIndex)
		return nil
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Error("campaign lock release failed", "campaign_id", campaignID, "error", err)
		}
	}()

	if err := d.runBatch(ctx, campaignID, startIndex); err != nil {
		logger.Error("campaign batch failed",
			"campaign_id", campaignID, "start_index", startIndex, "error", err)
		if invErr := d.recipients.Invalidate(ctx, campaignID); invErr != nil {
			logger.Error("recipient cache invalidation failed", "campaign_id", campaignID, "error", invErr)
		}
		d.failIfStillSending(ctx, campaignID)
	}
	return nil
}

// runBatch is the batch loop proper. Any returned error is the
// "unhandled" path: Dispatch cleans up and marks the campaign failed.
func (d *Dispatcher) runBatch(ctx context.Context, campaignID string, startIndex int) error {
	c, err := d.campaigns.Get(ctx, campaignID)
	if err != nil {
		if errors.Is(err, ErrCampaignNotFound) {
			logger.Error("dispatch for unknown campaign", "campaign_id", campaignID)
			return nil
		}
		return fmt.Errorf("load campaign: %w", err)
	}

	// Terminal campaigns are done; a late or duplicate job is a no-op.
	// This is also where external cancellation takes effect, at the next
	// batch boundary.
	if c.IsTerminal() {
		logger.Info("dispatch skipped, campaign in terminal status",
			"campaign_id", campaignID, "status", c.Status)
		return nil
	}

	if c.Status != domain.CampaignSending {
		if err := d.campaigns.UpdateStatus(ctx, campaignID, domain.CampaignSending); err != nil {
			return fmt.Errorf("transition to sending: %w", err)
		}
	}

	recips, err := d.recipients.GetOrCompute(ctx, c)
	if err != nil {
		return err
	}

	if len(recips) == 0 {
		logger.Warn("no eligible recipients", "campaign_id", campaignID, "title", c.Title)
		if err := d.campaigns.UpdateStatus(ctx, campaignID, domain.CampaignFailed); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		return nil
	}

	// A start index past the end means a prior invocation already covered
	// the whole list; the completion write just didn't stick or the job
	// was delivered twice.
	if startIndex >= len(recips) {
		logger.Info("batch start beyond recipient list, campaign already complete",
			"campaign_id", campaignID, "start_index", startIndex, "total", len(recips))
		if err := d.campaigns.MarkSent(ctx, campaignID, time.Now().UTC()); err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		if err := d.recipients.Invalidate(ctx, campaignID); err != nil {
			logger.Warn("recipient cache invalidation failed", "campaign_id", campaignID, "error", err)
		}
		return nil
	}

	var successCount, failureCount int
	paused := false

	for i := startIndex; i < len(recips); i++ {
		r := recips[i]

		if r.Email == "" || !r.Active {
			logger.Debug("skipping unusable recipient",
				"campaign_id", campaignID, "recipient_id", r.ID, "active", r.Active)
			failureCount++
			continue
		}

		// Re-check the shared window before every send: other campaigns
		// and workers drain the same budget.
		atCeiling, err := d.limiter.AtCeiling(ctx)
		if err != nil {
			return fmt.Errorf("rate limit check: %w", err)
		}
		if atCeiling {
			logger.Info("send window exhausted, pausing batch",
				"campaign_id", campaignID, "next_index", i, "sent", successCount)
			if err := d.reschedule(ctx, campaignID, i, d.limiter.Window()); err != nil {
				return err
			}
			paused = true
			break
		}

		msg := mailer.Message{
			To:       r.Email,
			Subject:  c.Subject,
			HTMLBody: c.HTMLContent,
			TextBody: c.PlainContent,
		}
		if err := d.sender.Send(ctx, msg); err != nil {
			if mailer.IsThrottle(err) {
				logger.Warn("provider throttling detected, pausing batch",
					"campaign_id", campaignID, "next_index", i, "error", err)
				if err := d.reschedule(ctx, campaignID, i, d.cfg.ThrottleCooldown); err != nil {
					return err
				}
				paused = true
				break
			}
			logger.Error("send failed", "campaign_id", campaignID, "recipient", r.Email, "error", err)
			failureCount++
			continue
		}

		if _, err := d.limiter.Increment(ctx); err != nil {
			// Counter trouble must not lose an already-sent message's
			// accounting; worst case the window under-counts.
			logger.Warn("send counter increment failed", "campaign_id", campaignID, "error", err)
		}
		successCount++
	}

	if successCount > 0 || failureCount > 0 {
		if err := d.campaigns.RecordStats(ctx, campaignID, successCount, failureCount); err != nil {
			return fmt.Errorf("record stats: %w", err)
		}
	}

	if paused {
		// Deliberately left in sending status: the enqueued continuation
		// owns driving the campaign to a terminal state.
		return nil
	}

	// The loop covered the rest of the list.
	if successCount == 0 && failureCount > 0 {
		logger.Error("campaign completed with no successful sends",
			"campaign_id", campaignID, "failures", failureCount)
		if err := d.campaigns.UpdateStatus(ctx, campaignID, domain.CampaignFailed); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
	} else {
		logger.Info("campaign completed",
			"campaign_id", campaignID, "sent", successCount, "failed", failureCount)
		if err := d.campaigns.MarkSent(ctx, campaignID, time.Now().UTC()); err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
	}

	if err := d.recipients.Invalidate(ctx, campaignID); err != nil {
		logger.Warn("recipient cache invalidation failed", "campaign_id", campaignID, "error", err)
	}
	return nil
}

// reschedule enqueues the continuation batch for this campaign.
func (d *Dispatcher) reschedule(ctx context.Context, campaignID string, nextIndex int, cooldown time.Duration) error {
	job := taskqueue.Job{CampaignID: campaignID, StartIndex: nextIndex}
	if err := d.queue.Enqueue(ctx, job, cooldown); err != nil {
		return fmt.Errorf("reschedule batch: %w", err)
	}
	logger.Info("batch continuation enqueued",
		"campaign_id", campaignID, "start_index", nextIndex, "cooldown", cooldown)
	return nil
}

// failIfStillSending marks the campaign failed, but only if it is still in
// sending status. A terminal status written by a later invocation must not
// be clobbered.
func (d *Dispatcher) failIfStillSending(ctx context.Context, campaignID string) {
	c, err := d.campaigns.Get(ctx, campaignID)
	if err != nil {
		logger.Error("status check after batch failure failed", "campaign_id", campaignID, "error", err)
		return
	}
	if c.Status != domain.CampaignSending {
		return
	}
	if err := d.campaigns.UpdateStatus(ctx, campaignID, domain.CampaignFailed); err != nil {
		logger.Error("failed-status write failed", "campaign_id", campaignID, "error", err)
	}
}
