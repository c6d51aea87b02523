package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/almanara/newsletter/internal/domain"
	"github.com/almanara/newsletter/internal/service/campaign"
)

const campaignCols = `id, subject_ar, subject_en, preheader_ar, preheader_en,
	content_ar, content_en, status, recipient_type, recipient_tags, recipient_ids,
	recipient_count, sent_count, open_count, click_count, bounce_count, unsubscribe_count,
	scheduled_at, sent_at, cancelled_at,
	COALESCE(created_by,''), COALESCE(updated_by,''), created_at, updated_at`

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var scheduledAt, sentAt, cancelledAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.Subject.AR, &c.Subject.EN, &c.Preheader.AR, &c.Preheader.EN,
		&c.Content.AR, &c.Content.EN, &c.Status, &c.RecipientType,
		pq.Array(&c.RecipientTags), pq.Array(&c.RecipientIDs),
		&c.Metrics.RecipientCount, &c.Metrics.SentCount, &c.Metrics.OpenCount,
		&c.Metrics.ClickCount, &c.Metrics.BounceCount, &c.Metrics.UnsubscribeCount,
		&scheduledAt, &sentAt, &cancelledAt,
		&c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		c.ScheduledAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		c.SentAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		c.CancelledAt = &t
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+campaignCols+" FROM newsletter_campaigns WHERE id = $1", id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (LOWER(subject_ar) LIKE $%d OR LOWER(subject_en) LIKE $%d)", idx, idx)
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
		idx++
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM newsletter_campaigns "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	order := " ORDER BY created_at DESC"
	if f.Sort == "oldest" {
		order = " ORDER BY created_at ASC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if f.Page > 1 {
		offset = (f.Page - 1) * limit
	}

	q := "SELECT " + campaignCols + " FROM newsletter_campaigns " + where + order +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	out, err := collectCampaigns(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func collectCampaigns(rows *sql.Rows) ([]domain.Campaign, error) {
	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_campaigns
			(id, subject_ar, subject_en, preheader_ar, preheader_en,
			 content_ar, content_en, status, recipient_type, recipient_tags,
			 recipient_ids, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
	`, c.ID, c.Subject.AR, c.Subject.EN, c.Preheader.AR, c.Preheader.EN,
		c.Content.AR, c.Content.EN, c.Status, c.RecipientType,
		textArray(c.RecipientTags), textArray(c.RecipientIDs), c.CreatedBy, c.UpdatedBy)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

func (r *CampaignRepo) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	set := []string{"updated_at = NOW()"}
	args := []interface{}{id}
	idx := 2

	add := func(col string, v interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, v)
		idx++
	}

	if u.Subject != nil {
		add("subject_ar", u.Subject.AR)
		add("subject_en", u.Subject.EN)
	}
	if u.Preheader != nil {
		add("preheader_ar", u.Preheader.AR)
		add("preheader_en", u.Preheader.EN)
	}
	if u.Content != nil {
		add("content_ar", u.Content.AR)
		add("content_en", u.Content.EN)
	}
	if u.RecipientType != nil {
		add("recipient_type", *u.RecipientType)
	}
	if u.RecipientTags != nil {
		add("recipient_tags", textArray(*u.RecipientTags))
	}
	if u.RecipientIDs != nil {
		add("recipient_ids", textArray(*u.RecipientIDs))
	}
	if u.UpdatedBy != "" {
		add("updated_by", u.UpdatedBy)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_campaigns SET `+strings.Join(set, ", ")+`
		WHERE id = $1 AND status = 'draft'
	`, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM newsletter_campaigns
		WHERE id = $1 AND status IN ('draft', 'cancelled')
	`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// TransitionStatus performs the conditional status move in one UPDATE.
// The WHERE guard makes concurrent transitions safe: exactly one of two
// racing calls observes a matching row. The locking subselect returns the
// status the row actually held, so the caller knows what to restore on a
// later failure.
func (r *CampaignRepo) TransitionStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (domain.CampaignStatus, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	set := "status = $2, updated_at = NOW()"
	if to == domain.CampaignCancelled {
		set = "status = $2, cancelled_at = NOW(), updated_at = NOW()"
	}
	q := `
		UPDATE newsletter_campaigns c
		SET ` + set + `
		FROM (
			SELECT id, status AS prev
			FROM newsletter_campaigns
			WHERE id = $1 AND status = ANY($3)
			FOR UPDATE
		) p
		WHERE c.id = p.id
		RETURNING p.prev
	`

	var prev string
	err := r.db.QueryRowContext(ctx, q, id, to, pq.Array(fromStrs)).Scan(&prev)
	if err == sql.ErrNoRows {
		return "", r.transitionError(ctx, id)
	}
	if err != nil {
		return "", fmt.Errorf("transition campaign status: %w", err)
	}
	return domain.CampaignStatus(prev), nil
}

func (r *CampaignRepo) Schedule(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_campaigns
		SET status = 'scheduled', scheduled_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'draft'
	`, id, at)
	if err != nil {
		return fmt.Errorf("schedule campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

func (r *CampaignRepo) SetRecipientCount(ctx context.Context, id string, n int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_campaigns
		SET recipient_count = $2, updated_at = NOW()
		WHERE id = $1
	`, id, n)
	if err != nil {
		return fmt.Errorf("set recipient count: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) MarkSent(ctx context.Context, id string, sentCount int, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_campaigns
		SET status = 'sent', sent_count = $2, sent_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`, id, sentCount, at)
	if err != nil {
		return fmt.Errorf("mark campaign sent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// IncrementMetrics builds "col = col + $n" fragments for the non-zero
// deltas so concurrent event batches accumulate instead of clobbering.
func (r *CampaignRepo) IncrementMetrics(ctx context.Context, id string, d domain.MetricsDelta) error {
	set := []string{}
	args := []interface{}{id}
	idx := 2

	add := func(col string, n int) {
		if n == 0 {
			return
		}
		set = append(set, fmt.Sprintf("%s = %s + $%d", col, col, idx))
		args = append(args, n)
		idx++
	}
	add("open_count", d.OpenCount)
	add("click_count", d.ClickCount)
	add("bounce_count", d.BounceCount)
	add("unsubscribe_count", d.UnsubscribeCount)

	if len(set) == 0 {
		return nil
	}
	set = append(set, "updated_at = NOW()")

	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_campaigns SET `+strings.Join(set, ", ")+`
		WHERE id = $1
	`, args...)
	if err != nil {
		return fmt.Errorf("increment campaign metrics: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Totals(ctx context.Context) (*campaign.Totals, error) {
	t := &campaign.Totals{}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(recipient_count), 0),
			COALESCE(SUM(sent_count), 0),
			COALESCE(SUM(open_count), 0),
			COALESCE(SUM(click_count), 0)
		FROM newsletter_campaigns
		WHERE status = 'sent'
	`).Scan(&t.SentCampaigns, &t.TotalRecipients, &t.TotalSent, &t.TotalOpens, &t.TotalClicks)
	if err != nil {
		return nil, fmt.Errorf("campaign totals: %w", err)
	}
	return t, nil
}

func (r *CampaignRepo) ListDue(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignCols+`
		FROM newsletter_campaigns
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

// transitionError distinguishes a missing campaign from one in the wrong
// state after a conditional update matched no rows.
func (r *CampaignRepo) transitionError(ctx context.Context, id string) error {
	var status string
	err := r.db.QueryRowContext(ctx,
		"SELECT status FROM newsletter_campaigns WHERE id = $1", id).Scan(&status)
	if err == sql.ErrNoRows {
		return campaign.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check campaign status: %w", err)
	}
	return fmt.Errorf("%w: campaign is %s", campaign.ErrInvalidTransition, status)
}
