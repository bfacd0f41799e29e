package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a promotional campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCanceled  CampaignStatus = "canceled"
)

// Campaign represents one promotional email send job. The dispatcher reads
// content and targeting and writes status, timestamps and send statistics;
// everything else is owned by the authoring side.
type Campaign struct {
	ID           string         `json:"id" db:"id"`
	Title        string         `json:"title" db:"title"`
	Subject      string         `json:"subject" db:"subject"`
	HTMLContent  string         `json:"html_content" db:"html_content"`
	PlainContent string         `json:"plain_content" db:"plain_content"`
	Status       CampaignStatus `json:"status" db:"status"`

	// Targeting. OverrideEmails, when non-empty, bypasses the filter-based
	// targeting entirely.
	AllUsers            bool     `json:"all_users" db:"all_users"`
	ChurchID            *string  `json:"church_id" db:"church_id"`
	FastID              *string  `json:"fast_id" db:"fast_id"`
	ExcludeUnsubscribed bool     `json:"exclude_unsubscribed" db:"exclude_unsubscribed"`
	OverrideEmails      []string `json:"override_emails" db:"override_emails"`

	SuccessCount int `json:"success_count" db:"success_count"`
	FailureCount int `json:"failure_count" db:"failure_count"`

	ScheduledAt *time.Time `json:"scheduled_at" db:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at" db:"sent_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state. Dispatch
// invocations against a terminal campaign are no-ops.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignFailed || c.Status == CampaignCanceled
}

// Recipient is one resolved delivery target. Active mirrors the account
// state at resolution time; inactive recipients are skipped by the batch
// loop and counted as failures.
type Recipient struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}
