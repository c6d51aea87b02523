package domain

import "time"

// SubscriberStatus enumerates the states a subscriber can be in.
type SubscriberStatus string

const (
	SubscriberPending      SubscriberStatus = "pending"
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberBounced      SubscriberStatus = "bounced"
)

// SubscriberSource records how a subscriber entered the list. Immutable
// after creation.
type SubscriberSource string

const (
	SourceWebsite SubscriberSource = "website"
	SourceImport  SubscriberSource = "import"
	SourceManual  SubscriberSource = "manual"
	SourceAPI     SubscriberSource = "api"
)

// Locale selects which campaign content variant a recipient sees.
type Locale string

const (
	LocaleArabic  Locale = "ar"
	LocaleEnglish Locale = "en"
)

// Subscriber represents a single newsletter recipient. Email is the identity
// key: unique across all subscribers regardless of status, stored lowercased.
type Subscriber struct {
	ID     string           `json:"id" db:"id"`
	Email  string           `json:"email" db:"email"`
	Name   string           `json:"name" db:"name"`
	Status SubscriberStatus `json:"status" db:"status"`
	Source SubscriberSource `json:"source" db:"source"`
	Tags   []string         `json:"tags" db:"tags"`
	Locale Locale           `json:"locale" db:"locale"`

	// UnsubscribeToken authorizes the public self-service unsubscribe link.
	// Regenerated every time the subscriber (re)becomes active so that stale
	// links stop working after a re-subscribe.
	UnsubscribeToken string `json:"-" db:"unsubscribe_token"`

	// VerificationToken is consumed once on pending -> active confirmation.
	VerificationToken string `json:"-" db:"verification_token"`

	SubscribedAt   time.Time  `json:"subscribed_at" db:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at" db:"unsubscribed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the subscriber is eligible to receive campaigns.
func (s *Subscriber) IsActive() bool {
	return s.Status == SubscriberActive
}

// HasAnyTag reports whether the subscriber's tag set intersects the given
// tags. An empty filter matches every subscriber.
func (s *Subscriber) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, want := range tags {
		for _, have := range s.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}
