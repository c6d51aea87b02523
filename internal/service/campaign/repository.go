package campaign

import (
	"context"
	"time"

	"github.com/almanara/newsletter/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter plus the total count,
	// ordered by created_at DESC. Search matches both subject variants
	// case-insensitively.
	List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// Update modifies a draft campaign. Only non-nil fields are applied.
	// Returns ErrInvalidTransition when the campaign is past draft.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a campaign. Only draft/cancelled campaigns can be
	// deleted; returns ErrInvalidTransition otherwise.
	Delete(ctx context.Context, id string) error

	// TransitionStatus atomically moves a campaign from one of the given
	// statuses to the target status in a single conditional update,
	// stamping cancelled_at when the target is cancelled, and reports
	// which from status actually matched so callers can restore it on a
	// later failure. Returns ErrInvalidTransition when the campaign
	// exists but its current status is not in from; ErrNotFound when it
	// doesn't exist. The conditional write closes the check-then-act race
	// between concurrent senders.
	TransitionStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (domain.CampaignStatus, error)

	// Schedule atomically moves a draft campaign to scheduled, stamping
	// scheduled_at.
	Schedule(ctx context.Context, id string, at time.Time) error

	// SetRecipientCount overwrites metrics.recipient_count. Called once per
	// dispatch, right after recipient resolution.
	SetRecipientCount(ctx context.Context, id string, n int) error

	// MarkSent atomically moves a sending campaign to sent, stamping
	// sent_at and overwriting metrics.sent_count with the successful-send
	// total.
	MarkSent(ctx context.Context, id string, sentCount int, at time.Time) error

	// IncrementMetrics applies each non-zero delta field as an atomic
	// increment. Concurrent webhook events must never lose updates to a
	// last-write-wins overwrite.
	IncrementMetrics(ctx context.Context, id string, d domain.MetricsDelta) error

	// Totals returns raw aggregate sums across all sent campaigns.
	Totals(ctx context.Context) (*Totals, error)

	// ListDue returns scheduled campaigns whose scheduled_at has passed.
	ListDue(ctx context.Context, now time.Time) ([]domain.Campaign, error)
}

// ListFilter controls filtering, search and pagination for campaign lists.
type ListFilter struct {
	Status domain.CampaignStatus
	Search string
	Page   int
	Limit  int
	Sort   string
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Subject       *domain.LocalizedText
	Preheader     *domain.LocalizedText
	Content       *domain.LocalizedText
	RecipientType *domain.RecipientType
	RecipientTags *[]string
	RecipientIDs  *[]string
	UpdatedBy     string
}

// Totals holds raw aggregate sums over sent campaigns.
type Totals struct {
	SentCampaigns   int
	TotalRecipients int
	TotalSent       int
	TotalOpens      int
	TotalClicks     int
}
