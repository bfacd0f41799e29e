package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/fastandpray/promo-dispatch/internal/domain"
)

// RecipientRepo resolves a campaign's targeting into a recipient list. The
// list is ordered by user ID so that repeated resolutions of the same
// campaign produce the same sequence, which resumed batches rely on.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient source.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

func (r *RecipientRepo) Resolve(ctx context.Context, c *domain.Campaign) ([]domain.Recipient, error) {
	if len(c.OverrideEmails) > 0 {
		return r.resolveOverride(ctx, c.OverrideEmails)
	}
	return r.resolveTargeted(ctx, c)
}

// resolveOverride looks up the explicitly listed addresses. Addresses with
// no matching account are dropped.
func (r *RecipientRepo) resolveOverride(ctx context.Context, emails []string) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, is_active
		FROM users
		WHERE email = ANY($1)
		ORDER BY id
	`, pq.Array(emails))
	if err != nil {
		return nil, fmt.Errorf("resolve override recipients: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

func (r *RecipientRepo) resolveTargeted(ctx context.Context, c *domain.Campaign) ([]domain.Recipient, error) {
	q := `
		SELECT DISTINCT u.id, u.email, u.is_active
		FROM users u
		JOIN user_profiles p ON p.user_id = u.id`

	var args []interface{}
	where := " WHERE 1=1"
	idx := 1

	if !c.AllUsers {
		if c.ChurchID != nil {
			where += fmt.Sprintf(" AND p.church_id = $%d", idx)
			args = append(args, *c.ChurchID)
			idx++
		}
		if c.FastID != nil {
			where += fmt.Sprintf(" AND p.fast_id = $%d", idx)
			args = append(args, *c.FastID)
			idx++
		}
	}
	if c.ExcludeUnsubscribed {
		where += " AND p.receive_promotional_emails = TRUE"
	}

	q += where + " ORDER BY u.id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve targeted recipients: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

func scanRecipients(rows *sql.Rows) ([]domain.Recipient, error) {
	var out []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.Active); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return out, nil
}
