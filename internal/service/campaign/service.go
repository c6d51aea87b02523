package campaign

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/almanara/newsletter/internal/domain"
	"github.com/almanara/newsletter/internal/mailer"
)

// SubscriberSource provides the active-subscriber queries needed for
// recipient resolution. Satisfied by the subscriber repository.
type SubscriberSource interface {
	ListActive(ctx context.Context, tags []string) ([]domain.Subscriber, error)
	ListActiveByIDs(ctx context.Context, ids []string) ([]domain.Subscriber, error)
}

// Throttle bounds outbound send rate. Wait blocks until the next send for
// the given campaign is allowed, or the context is done.
type Throttle interface {
	Wait(ctx context.Context, campaignID string) error
}

// DispatchOptions tunes the send loop.
type DispatchOptions struct {
	// Workers is the number of concurrent senders per dispatch.
	Workers int
	// SendTimeout bounds each individual delivery attempt.
	SendTimeout time.Duration
	// MaxAttempts is the total number of delivery attempts per recipient,
	// with exponential backoff between them.
	MaxAttempts int
	// Throttle, when set, paces sends (e.g. a Redis rate limit).
	Throttle Throttle
}

// Service implements campaign business logic and the dispatch engine.
type Service struct {
	repo     Repository
	subs     SubscriberSource
	mailer   mailer.Mailer
	renderer *mailer.Renderer
	baseURL  string
	opts     DispatchOptions
}

// NewService creates a campaign service. baseURL is the public site base
// used for per-recipient unsubscribe links.
func NewService(repo Repository, subs SubscriberSource, m mailer.Mailer, baseURL string, opts DispatchOptions) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 2
	}
	return &Service{
		repo:     repo,
		subs:     subs,
		mailer:   m,
		renderer: mailer.NewRenderer(),
		baseURL:  baseURL,
		opts:     opts,
	}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// CampaignPage is one page of a campaign listing.
type CampaignPage struct {
	Campaigns []domain.Campaign `json:"campaigns"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	Pages     int               `json:"pages"`
	Limit     int               `json:"limit"`
}

// List returns campaigns matching the filter with page metadata.
func (s *Service) List(ctx context.Context, f ListFilter) (*CampaignPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}

	campaigns, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &CampaignPage{
		Campaigns: campaigns,
		Total:     total,
		Page:      f.Page,
		Pages:     (total + f.Limit - 1) / f.Limit,
		Limit:     f.Limit,
	}, nil
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Subject       domain.LocalizedText `json:"subject"`
	Preheader     domain.LocalizedText `json:"preheader"`
	Content       domain.LocalizedText `json:"content"`
	RecipientType domain.RecipientType `json:"recipient_type"`
	RecipientTags []string             `json:"recipient_tags"`
	RecipientIDs  []string             `json:"recipient_ids"`
	CreatedBy     string               `json:"created_by"`
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	c := &domain.Campaign{
		ID:            uuid.New().String(),
		Subject:       input.Subject,
		Preheader:     input.Preheader,
		Content:       input.Content,
		Status:        domain.CampaignDraft,
		RecipientType: input.RecipientType,
		RecipientTags: input.RecipientTags,
		RecipientIDs:  input.RecipientIDs,
		CreatedBy:     input.CreatedBy,
		UpdatedBy:     input.CreatedBy,
	}

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

func validateInput(input CreateInput) error {
	if input.Subject.AR == "" || input.Subject.EN == "" {
		return fmt.Errorf("%w: both subject variants are required", ErrValidation)
	}
	if input.Content.AR == "" || input.Content.EN == "" {
		return fmt.Errorf("%w: both content variants are required", ErrValidation)
	}
	switch input.RecipientType {
	case domain.RecipientsAll:
	case domain.RecipientsTags:
		if len(input.RecipientTags) == 0 {
			return fmt.Errorf("%w: recipient tags are required for tag targeting", ErrValidation)
		}
	case domain.RecipientsSpecific:
		if len(input.RecipientIDs) == 0 {
			return fmt.Errorf("%w: recipient ids are required for specific targeting", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown recipient type %q", ErrValidation, input.RecipientType)
	}
	return nil
}

// Update modifies a draft campaign. Campaigns past draft are immutable.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	return s.repo.Update(ctx, id, u)
}

// Delete removes a draft or cancelled campaign.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Schedule moves a draft campaign to scheduled for the given time. Only
// valid from draft; any other state fails with ErrInvalidTransition.
func (s *Service) Schedule(ctx context.Context, id string, at time.Time) error {
	if at.IsZero() || !at.After(time.Now()) {
		return fmt.Errorf("%w: scheduled time must be in the future", ErrValidation)
	}
	return s.repo.Schedule(ctx, id, at)
}

// Cancel moves a scheduled campaign to cancelled, stamping cancelled_at.
// Only valid from scheduled.
func (s *Service) Cancel(ctx context.Context, id string) error {
	_, err := s.repo.TransitionStatus(ctx, id,
		[]domain.CampaignStatus{domain.CampaignScheduled}, domain.CampaignCancelled)
	return err
}

// IncrementMetrics applies open/click/bounce/unsubscribe increments from
// asynchronous delivery events.
func (s *Service) IncrementMetrics(ctx context.Context, id string, d domain.MetricsDelta) error {
	if d.IsZero() {
		return nil
	}
	return s.repo.IncrementMetrics(ctx, id, d)
}

// Stats is the aggregate view across all sent campaigns.
type Stats struct {
	SentCampaigns    int `json:"sent_campaigns"`
	TotalRecipients  int `json:"total_recipients"`
	TotalSent        int `json:"total_sent"`
	TotalOpens       int `json:"total_opens"`
	TotalClicks      int `json:"total_clicks"`
	AverageOpenRate  int `json:"average_open_rate"`  // percent
	AverageClickRate int `json:"average_click_rate"` // percent, of opens
}

// Stats aggregates metrics across all sent campaigns. Rates are rounded
// percentages and zero whenever their denominator is zero.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	t, err := s.repo.Totals(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		SentCampaigns:   t.SentCampaigns,
		TotalRecipients: t.TotalRecipients,
		TotalSent:       t.TotalSent,
		TotalOpens:      t.TotalOpens,
		TotalClicks:     t.TotalClicks,
	}
	if t.TotalSent > 0 {
		st.AverageOpenRate = int(math.Round(float64(t.TotalOpens) / float64(t.TotalSent) * 100))
	}
	if t.TotalOpens > 0 {
		st.AverageClickRate = int(math.Round(float64(t.TotalClicks) / float64(t.TotalOpens) * 100))
	}
	return st, nil
}

// DueCampaigns returns scheduled campaigns whose send time has passed.
// Used by the background scheduler.
func (s *Service) DueCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	return s.repo.ListDue(ctx, time.Now())
}
