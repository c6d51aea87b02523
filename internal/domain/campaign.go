package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
// Valid transitions: draft -> scheduled -> sending -> sent, plus
// draft -> sending (immediate send) and scheduled -> cancelled.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignCancelled CampaignStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignSent || s == CampaignCancelled
}

// RecipientType selects how a campaign's recipient list is resolved.
type RecipientType string

const (
	RecipientsAll      RecipientType = "all"
	RecipientsTags     RecipientType = "tags"
	RecipientsSpecific RecipientType = "specific"
)

// LocalizedText is a bilingual string pair. The site serves Arabic and
// English audiences; every campaign carries both variants.
type LocalizedText struct {
	AR string `json:"ar"`
	EN string `json:"en"`
}

// Pick returns the variant for the given locale. Arabic is the default for
// unset or unknown locales.
func (t LocalizedText) Pick(l Locale) string {
	if l == LocaleEnglish {
		return t.EN
	}
	return t.AR
}

// Empty reports whether both variants are blank.
func (t LocalizedText) Empty() bool {
	return t.AR == "" && t.EN == ""
}

// CampaignMetrics holds per-campaign delivery counters. Open, click, bounce
// and unsubscribe counts only ever grow; recipient and sent counts are
// recomputed (overwritten) at dispatch time.
type CampaignMetrics struct {
	RecipientCount   int `json:"recipient_count" db:"recipient_count"`
	SentCount        int `json:"sent_count" db:"sent_count"`
	OpenCount        int `json:"open_count" db:"open_count"`
	ClickCount       int `json:"click_count" db:"click_count"`
	BounceCount      int `json:"bounce_count" db:"bounce_count"`
	UnsubscribeCount int `json:"unsubscribe_count" db:"unsubscribe_count"`
}

// MetricsDelta carries increments to apply to a campaign's counters. Zero
// fields are left untouched. Applied atomically at the store layer so
// concurrent webhook events never clobber each other.
type MetricsDelta struct {
	OpenCount        int `json:"open_count"`
	ClickCount       int `json:"click_count"`
	BounceCount      int `json:"bounce_count"`
	UnsubscribeCount int `json:"unsubscribe_count"`
}

// IsZero reports whether the delta carries no increments.
func (d MetricsDelta) IsZero() bool {
	return d.OpenCount == 0 && d.ClickCount == 0 && d.BounceCount == 0 && d.UnsubscribeCount == 0
}

// Campaign represents a single bulk-email send definition with bilingual
// content and a targeting rule.
type Campaign struct {
	ID        string        `json:"id" db:"id"`
	Subject   LocalizedText `json:"subject"`
	Preheader LocalizedText `json:"preheader"`
	Content   LocalizedText `json:"content"`

	Status CampaignStatus `json:"status" db:"status"`

	RecipientType RecipientType `json:"recipient_type" db:"recipient_type"`
	RecipientTags []string      `json:"recipient_tags" db:"recipient_tags"`
	RecipientIDs  []string      `json:"recipient_ids" db:"recipient_ids"`

	Metrics CampaignMetrics `json:"metrics"`

	// Each timestamp is set exactly once, on the corresponding transition,
	// and never cleared afterwards.
	ScheduledAt *time.Time `json:"scheduled_at" db:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at" db:"sent_at"`
	CancelledAt *time.Time `json:"cancelled_at" db:"cancelled_at"`

	CreatedBy string    `json:"created_by" db:"created_by"`
	UpdatedBy string    `json:"updated_by" db:"updated_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
