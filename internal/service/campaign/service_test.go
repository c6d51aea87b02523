package campaign_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/almanara/newsletter/internal/domain"
	"github.com/almanara/newsletter/internal/mailer"
	"github.com/almanara/newsletter/internal/service/campaign"
)

// memRepo is an in-memory campaign repository for unit testing.
type memRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign // keyed by id
}

func newMemRepo() *memRepo {
	return &memRepo{campaigns: make(map[string]*domain.Campaign)}
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memRepo) Create(_ context.Context, c *domain.Campaign) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		return "", fmt.Errorf("id required")
	}
	cp := *c
	m.campaigns[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memRepo) Update(_ context.Context, id string, u campaign.UpdateFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != domain.CampaignDraft {
		return fmt.Errorf("%w: campaign is %s", campaign.ErrInvalidTransition, c.Status)
	}
	if u.Subject != nil {
		c.Subject = *u.Subject
	}
	if u.Content != nil {
		c.Content = *u.Content
	}
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignCancelled {
		return fmt.Errorf("%w: campaign is %s", campaign.ErrInvalidTransition, c.Status)
	}
	delete(m.campaigns, id)
	return nil
}

func (m *memRepo) TransitionStatus(_ context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (domain.CampaignStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return "", campaign.ErrNotFound
	}
	for _, f := range from {
		if c.Status == f {
			prev := c.Status
			c.Status = to
			if to == domain.CampaignCancelled {
				now := time.Now()
				c.CancelledAt = &now
			}
			return prev, nil
		}
	}
	return "", fmt.Errorf("%w: campaign is %s", campaign.ErrInvalidTransition, c.Status)
}

func (m *memRepo) Schedule(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != domain.CampaignDraft {
		return fmt.Errorf("%w: campaign is %s", campaign.ErrInvalidTransition, c.Status)
	}
	c.Status = domain.CampaignScheduled
	c.ScheduledAt = &at
	return nil
}

func (m *memRepo) SetRecipientCount(_ context.Context, id string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	c.Metrics.RecipientCount = n
	return nil
}

func (m *memRepo) MarkSent(_ context.Context, id string, sentCount int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != domain.CampaignSending {
		return fmt.Errorf("%w: campaign is %s", campaign.ErrInvalidTransition, c.Status)
	}
	c.Status = domain.CampaignSent
	c.Metrics.SentCount = sentCount
	c.SentAt = &at
	return nil
}

func (m *memRepo) IncrementMetrics(_ context.Context, id string, d domain.MetricsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	c.Metrics.OpenCount += d.OpenCount
	c.Metrics.ClickCount += d.ClickCount
	c.Metrics.BounceCount += d.BounceCount
	c.Metrics.UnsubscribeCount += d.UnsubscribeCount
	return nil
}

func (m *memRepo) Totals(_ context.Context) (*campaign.Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &campaign.Totals{}
	for _, c := range m.campaigns {
		if c.Status != domain.CampaignSent {
			continue
		}
		t.SentCampaigns++
		t.TotalRecipients += c.Metrics.RecipientCount
		t.TotalSent += c.Metrics.SentCount
		t.TotalOpens += c.Metrics.OpenCount
		t.TotalClicks += c.Metrics.ClickCount
	}
	return t, nil
}

func (m *memRepo) ListDue(_ context.Context, now time.Time) ([]domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.Status == domain.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

// memSubs is a fixed set of subscribers playing the subscriber repository.
type memSubs struct {
	subs []domain.Subscriber
}

func (m *memSubs) ListActive(_ context.Context, tags []string) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	for _, s := range m.subs {
		if s.Status != domain.SubscriberActive {
			continue
		}
		if len(tags) > 0 && !s.HasAnyTag(tags) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memSubs) ListActiveByIDs(_ context.Context, ids []string) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	for _, id := range ids {
		for _, s := range m.subs {
			if s.ID == id && s.Status == domain.SubscriberActive {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// flakyMailer fails every send to an address in its fail set.
type flakyMailer struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []string
}

func (m *flakyMailer) Send(_ context.Context, msg *mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, msg.To)
	return nil
}

func activeSub(id, email string, tags ...string) domain.Subscriber {
	return domain.Subscriber{
		ID:               id,
		Email:            email,
		Status:           domain.SubscriberActive,
		Tags:             tags,
		Locale:           domain.LocaleArabic,
		UnsubscribeToken: "token-" + id,
	}
}

func validInput() campaign.CreateInput {
	return campaign.CreateInput{
		Subject:       domain.LocalizedText{AR: "نشرة يناير", EN: "January newsletter"},
		Content:       domain.LocalizedText{AR: "مرحبا {{ name }}", EN: "Hello {{ name }}"},
		RecipientType: domain.RecipientsAll,
	}
}

func newTestService(repo *memRepo, subs campaign.SubscriberSource, m mailer.Mailer, opts campaign.DispatchOptions) *campaign.Service {
	return campaign.NewService(repo, subs, m, "https://almanara.example", opts)
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newTestService(newMemRepo(), &memSubs{}, &flakyMailer{}, campaign.DispatchOptions{})
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*campaign.CreateInput)
	}{
		{"missing english subject", func(in *campaign.CreateInput) { in.Subject.EN = "" }},
		{"missing arabic content", func(in *campaign.CreateInput) { in.Content.AR = "" }},
		{"tags targeting without tags", func(in *campaign.CreateInput) { in.RecipientType = domain.RecipientsTags }},
		{"specific targeting without ids", func(in *campaign.CreateInput) { in.RecipientType = domain.RecipientsSpecific }},
		{"unknown recipient type", func(in *campaign.CreateInput) { in.RecipientType = "everyone" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if _, err := svc.Create(ctx, in); !errors.Is(err, campaign.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateStartsInDraft(t *testing.T) {
	svc := newTestService(newMemRepo(), &memSubs{}, &flakyMailer{}, campaign.DispatchOptions{})

	c, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if c.Status != domain.CampaignDraft {
		t.Errorf("expected draft, got %s", c.Status)
	}
	if c.ID == "" {
		t.Error("expected an id")
	}
}

func TestScheduleRejectsPastTime(t *testing.T) {
	svc := newTestService(newMemRepo(), &memSubs{}, &flakyMailer{}, campaign.DispatchOptions{})
	ctx := context.Background()

	c, _ := svc.Create(ctx, validInput())
	err := svc.Schedule(ctx, c.ID, time.Now().Add(-time.Hour))
	if !errors.Is(err, campaign.ErrValidation) {
		t.Errorf("expected ErrValidation for past time, got %v", err)
	}
}

func TestScheduleThenCancel(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &memSubs{}, &flakyMailer{}, campaign.DispatchOptions{})
	ctx := context.Background()

	c, _ := svc.Create(ctx, validInput())
	if err := svc.Schedule(ctx, c.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	got, _ := svc.Get(ctx, c.ID)
	if got.Status != domain.CampaignScheduled || got.ScheduledAt == nil {
		t.Fatalf("expected scheduled with scheduled_at, got %s", got.Status)
	}

	if err := svc.Cancel(ctx, c.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	got, _ = svc.Get(ctx, c.ID)
	if got.Status != domain.CampaignCancelled || got.CancelledAt == nil {
		t.Errorf("expected cancelled with cancelled_at, got %s", got.Status)
	}

	// Cancel is only valid from scheduled.
	if err := svc.Cancel(ctx, c.ID); !errors.Is(err, campaign.ErrInvalidTransition) {
		t.Errorf("cancelling a cancelled campaign must fail, got %v", err)
	}
}

func TestCancelDraftRejected(t *testing.T) {
	svc := newTestService(newMemRepo(), &memSubs{}, &flakyMailer{}, campaign.DispatchOptions{})
	ctx := context.Background()

	c, _ := svc.Create(ctx, validInput())
	if err := svc.Cancel(ctx, c.ID); !errors.Is(err, campaign.ErrInvalidTransition) {
		t.Errorf("cancelling a draft must fail with ErrInvalidTransition, got %v", err)
	}
}

func TestIncrementMetricsAccumulates(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &memSubs{}, &flakyMailer{}, campaign.DispatchOptions{})
	ctx := context.Background()

	c, _ := svc.Create(ctx, validInput())

	for i := 0; i < 3; i++ {
		if err := svc.IncrementMetrics(ctx, c.ID, domain.MetricsDelta{OpenCount: 2, ClickCount: 1}); err != nil {
			t.Fatalf("IncrementMetrics failed: %v", err)
		}
	}
	// Zero delta is a no-op, not an error.
	if err := svc.IncrementMetrics(ctx, c.ID, domain.MetricsDelta{}); err != nil {
		t.Fatalf("zero delta failed: %v", err)
	}

	got, _ := svc.Get(ctx, c.ID)
	if got.Metrics.OpenCount != 6 || got.Metrics.ClickCount != 3 {
		t.Errorf("expected opens=6 clicks=3, got %+v", got.Metrics)
	}
}

func TestStatsRates(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &memSubs{}, &flakyMailer{}, campaign.DispatchOptions{})
	ctx := context.Background()

	now := time.Now()
	repo.campaigns["c1"] = &domain.Campaign{
		ID:     "c1",
		Status: domain.CampaignSent,
		SentAt: &now,
		Metrics: domain.CampaignMetrics{
			RecipientCount: 100, SentCount: 100, OpenCount: 40, ClickCount: 10,
		},
	}
	// Draft campaigns must not contribute to totals.
	repo.campaigns["c2"] = &domain.Campaign{
		ID:      "c2",
		Status:  domain.CampaignDraft,
		Metrics: domain.CampaignMetrics{OpenCount: 999},
	}

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.SentCampaigns != 1 || st.TotalSent != 100 {
		t.Errorf("unexpected totals: %+v", st)
	}
	if st.AverageOpenRate != 40 {
		t.Errorf("expected open rate 40, got %d", st.AverageOpenRate)
	}
	if st.AverageClickRate != 25 {
		t.Errorf("expected click rate 25 (of opens), got %d", st.AverageClickRate)
	}
}

func TestStatsZeroDenominators(t *testing.T) {
	svc := newTestService(newMemRepo(), &memSubs{}, &flakyMailer{}, campaign.DispatchOptions{})

	st, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.AverageOpenRate != 0 || st.AverageClickRate != 0 {
		t.Errorf("rates must be zero with no sends, got %+v", st)
	}
}
