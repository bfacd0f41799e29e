package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fastandpray/promo-dispatch/internal/dispatch"
	"github.com/fastandpray/promo-dispatch/internal/domain"
)

// CampaignRepo implements dispatch.CampaignStore against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign store.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, subject,
		       COALESCE(html_content,''), COALESCE(plain_content,''),
		       status, all_users, church_id, fast_id, exclude_unsubscribed,
		       COALESCE(override_emails, '{}'),
		       success_count, failure_count,
		       scheduled_at, sent_at, created_at, updated_at
		FROM promo_campaigns
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Title, &c.Subject,
		&c.HTMLContent, &c.PlainContent,
		&c.Status, &c.AllUsers, &c.ChurchID, &c.FastID, &c.ExcludeUnsubscribed,
		pq.Array(&c.OverrideEmails),
		&c.SuccessCount, &c.FailureCount,
		&c.ScheduledAt, &c.SentAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE promo_campaigns SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dispatch.ErrCampaignNotFound
	}
	return nil
}

func (r *CampaignRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE promo_campaigns
		SET status = $2, sent_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, domain.CampaignSent, sentAt)
	if err != nil {
		return fmt.Errorf("mark campaign sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dispatch.ErrCampaignNotFound
	}
	return nil
}

func (r *CampaignRepo) RecordStats(ctx context.Context, id string, success, failure int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE promo_campaigns
		SET success_count = success_count + $2,
		    failure_count = failure_count + $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, success, failure)
	if err != nil {
		return fmt.Errorf("record campaign stats: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dispatch.ErrCampaignNotFound
	}
	return nil
}
