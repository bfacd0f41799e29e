package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/fastandpray/promo-dispatch/internal/domain"
)

// ErrCampaignNotFound is returned by CampaignStore.Get for an unknown ID.
var ErrCampaignNotFound = errors.New("campaign not found")

// CampaignStore is the persistence boundary for campaign lifecycle state.
// The dispatcher decides every transition; implementations only write what
// they are told. Implementations must be safe for concurrent use.
type CampaignStore interface {
	// Get returns a single campaign. Returns ErrCampaignNotFound if it
	// doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// UpdateStatus writes a new lifecycle status.
	UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error

	// MarkSent writes the sent status together with the completion
	// timestamp.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// RecordStats adds a batch's success and failure counts to the
	// campaign's running totals.
	RecordStats(ctx context.Context, id string, success, failure int) error
}
