package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"

	"github.com/almanara/newsletter/internal/domain"
	"github.com/almanara/newsletter/internal/mailer"
	"github.com/almanara/newsletter/internal/pkg/logger"
)

// Service implements subscriber lifecycle business logic.
type Service struct {
	repo    Repository
	mailer  mailer.Mailer
	baseURL string // public site base URL for unsubscribe links
}

// NewService creates a subscriber service backed by the given repository.
// The mailer is used for the transactional welcome email only.
func NewService(repo Repository, m mailer.Mailer, baseURL string) *Service {
	return &Service{repo: repo, mailer: m, baseURL: baseURL}
}

// SubscribeInput holds the fields accepted from the public subscribe form.
type SubscribeInput struct {
	Email  string                  `json:"email"`
	Name   string                  `json:"name"`
	Locale domain.Locale           `json:"locale"`
	Source domain.SubscriberSource `json:"source"`
	Tags   []string                `json:"tags"`
}

// Subscribe creates or reactivates a subscriber. The returned bool reports
// whether a new record was created.
//
// Calling Subscribe for an already-active email is an idempotent no-op, not
// an error: the existing record is returned unchanged. An inactive record
// (unsubscribed, bounced, or still pending) is reactivated with a fresh
// unsubscribe token so that previously issued unsubscribe links stop
// working.
func (s *Service) Subscribe(ctx context.Context, in SubscribeInput) (*domain.Subscriber, bool, error) {
	email := normalizeEmail(in.Email)
	if err := checkmail.ValidateFormat(email); err != nil {
		return nil, false, ErrInvalidEmail
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.IsActive() {
			return existing, false, nil
		}
		if err := s.reactivate(ctx, existing, in); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	now := time.Now()
	source := in.Source
	if source == "" {
		source = domain.SourceWebsite
	}
	locale := in.Locale
	if locale == "" {
		locale = domain.LocaleArabic
	}

	sub := &domain.Subscriber{
		ID:               uuid.New().String(),
		Email:            email,
		Name:             strings.TrimSpace(in.Name),
		Status:           domain.SubscriberActive,
		Source:           source,
		Tags:             dedupeTags(in.Tags),
		Locale:           locale,
		UnsubscribeToken: newToken(),
		SubscribedAt:     now,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, false, err
	}

	// Welcome delivery is best-effort: a failure is logged and swallowed,
	// never surfaced to the subscriber or rolled back.
	s.sendWelcomeAsync(sub)

	return sub, true, nil
}

func (s *Service) reactivate(ctx context.Context, sub *domain.Subscriber, in SubscribeInput) error {
	sub.Status = domain.SubscriberActive
	sub.SubscribedAt = time.Now()
	sub.UnsubscribedAt = nil
	sub.UnsubscribeToken = newToken()
	sub.VerificationToken = ""
	if name := strings.TrimSpace(in.Name); name != "" {
		sub.Name = name
	}
	if in.Locale != "" {
		sub.Locale = in.Locale
	}
	if len(in.Tags) > 0 {
		sub.Tags = dedupeTags(append(sub.Tags, in.Tags...))
	}
	return s.repo.Update(ctx, sub)
}

func (s *Service) sendWelcomeAsync(sub *domain.Subscriber) {
	cp := *sub
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		unsub := mailer.UnsubscribeURL(s.baseURL, cp.Email, cp.UnsubscribeToken)
		if err := s.mailer.Send(ctx, mailer.WelcomeMessage(&cp, unsub)); err != nil {
			log.Printf("[Subscriber] welcome email to %s failed: %v", logger.RedactEmail(cp.Email), err)
		}
	}()
}

// Unsubscribe marks the subscriber unsubscribed when the token matches the
// stored unsubscribe token exactly. It returns false (without error) when
// the subscriber does not exist or the token does not match; the public
// endpoint must not reveal which.
func (s *Service) Unsubscribe(ctx context.Context, email, token string) (bool, error) {
	sub, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if token == "" || sub.UnsubscribeToken != token {
		return false, nil
	}
	if sub.Status == domain.SubscriberUnsubscribed {
		return true, nil
	}

	now := time.Now()
	sub.Status = domain.SubscriberUnsubscribed
	sub.UnsubscribedAt = &now
	if err := s.repo.Update(ctx, sub); err != nil {
		return false, err
	}
	return true, nil
}

// VerifyEmail confirms a pending subscriber. The verification token is
// single use: it only matches pending subscribers and is cleared on
// success. Activation issues a fresh unsubscribe token.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*domain.Subscriber, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	sub, err := s.repo.GetByVerificationToken(ctx, token)
	if err != nil {
		return nil, err
	}

	sub.Status = domain.SubscriberActive
	sub.VerificationToken = ""
	sub.UnsubscribeToken = newToken()
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// GetByEmail returns a single subscriber by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	return s.repo.GetByEmail(ctx, normalizeEmail(email))
}

// Page is one page of a subscriber listing.
type Page struct {
	Subscribers []domain.Subscriber `json:"subscribers"`
	Total       int                 `json:"total"`
	Page        int                 `json:"page"`
	Pages       int                 `json:"pages"`
	Limit       int                 `json:"limit"`
}

// List returns subscribers matching the filter with page metadata.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}

	subs, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &Page{
		Subscribers: subs,
		Total:       total,
		Page:        f.Page,
		Pages:       (total + f.Limit - 1) / f.Limit,
		Limit:       f.Limit,
	}, nil
}

// BulkUpdateStatus sets the status for all given ids and returns the number
// of rows changed.
func (s *Service) BulkUpdateStatus(ctx context.Context, ids []string, status domain.SubscriberStatus) (int, error) {
	switch status {
	case domain.SubscriberPending, domain.SubscriberActive,
		domain.SubscriberUnsubscribed, domain.SubscriberBounced:
	default:
		return 0, fmt.Errorf("invalid subscriber status %q", status)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.repo.BulkUpdateStatus(ctx, ids, status)
}

// AllTags returns the distinct tags across all subscribers, sorted.
func (s *Service) AllTags(ctx context.Context) ([]string, error) {
	return s.repo.AllTags(ctx)
}

// Stats returns aggregate subscriber counts for the dashboard.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
