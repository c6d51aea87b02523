package subscriber

import (
	"context"

	"github.com/almanara/newsletter/internal/domain"
)

// Repository defines the data access contract for subscribers.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetByEmail returns the subscriber with the given email, compared
	// case-insensitively. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error)

	// GetByID returns a single subscriber. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*domain.Subscriber, error)

	// GetByVerificationToken returns the pending subscriber holding the
	// given verification token. Returns ErrNotFound if no pending
	// subscriber matches.
	GetByVerificationToken(ctx context.Context, token string) (*domain.Subscriber, error)

	// List returns subscribers matching the filter plus the total count,
	// ordered by subscribed_at DESC.
	List(ctx context.Context, f Filter) ([]domain.Subscriber, int, error)

	// ListActive returns every active subscriber; when tags is non-empty,
	// only those whose tag set intersects it.
	ListActive(ctx context.Context, tags []string) ([]domain.Subscriber, error)

	// ListActiveByIDs returns the active subscribers among the given ids.
	// Ids referring to inactive subscribers are silently excluded.
	ListActiveByIDs(ctx context.Context, ids []string) ([]domain.Subscriber, error)

	// Create inserts a new subscriber. Returns ErrDuplicate when the email
	// already exists in any status.
	Create(ctx context.Context, s *domain.Subscriber) error

	// Update persists all mutable fields of an existing subscriber.
	Update(ctx context.Context, s *domain.Subscriber) error

	// BulkUpdateStatus sets the status for all given ids in one statement
	// and returns the number of rows changed. A transition to unsubscribed
	// also stamps unsubscribed_at.
	BulkUpdateStatus(ctx context.Context, ids []string, status domain.SubscriberStatus) (int, error)

	// AllTags returns the distinct tag values across all subscribers,
	// alphabetically sorted.
	AllTags(ctx context.Context) ([]string, error)

	// Stats returns aggregate subscriber counts.
	Stats(ctx context.Context) (*Stats, error)

	// ExportAll returns every subscriber matching the filter, without
	// pagination. Intended for full-set CSV export.
	ExportAll(ctx context.Context, f Filter) ([]domain.Subscriber, error)
}

// Filter controls filtering, search and pagination for subscriber lists.
type Filter struct {
	Status domain.SubscriberStatus
	Source domain.SubscriberSource
	Tags   []string // any-of match
	Search string   // case-insensitive against email or name
	Page   int
	Limit  int
	Sort   string
}

// Stats is the aggregate view shown on the admin dashboard.
type Stats struct {
	Total    int                 `json:"total"`
	ByStatus map[string]int      `json:"by_status"`
	BySource map[string]int      `json:"by_source"`
	Recent   []domain.Subscriber `json:"recent"` // 5 most recently subscribed
}
