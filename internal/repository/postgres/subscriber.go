// Package postgres implements the service repository interfaces against
// PostgreSQL using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/almanara/newsletter/internal/domain"
	"github.com/almanara/newsletter/internal/service/subscriber"
)

const subscriberCols = `id, email, COALESCE(name,''), status, source, tags, locale,
	unsubscribe_token, COALESCE(verification_token,''),
	subscribed_at, unsubscribed_at, created_at, updated_at`

// textArray adapts a tag/id slice for a NOT NULL text[] column. A nil
// slice would bind as SQL NULL and violate the column constraint, so it
// is coalesced to an empty array first.
func textArray(s []string) interface {
	driver.Valuer
	sql.Scanner
} {
	if s == nil {
		s = []string{}
	}
	return pq.Array(s)
}

// SubscriberRepo implements subscriber.Repository against PostgreSQL.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

func scanSubscriber(row interface{ Scan(...interface{}) error }) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	var unsubAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.Email, &s.Name, &s.Status, &s.Source, pq.Array(&s.Tags), &s.Locale,
		&s.UnsubscribeToken, &s.VerificationToken,
		&s.SubscribedAt, &unsubAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if unsubAt.Valid {
		t := unsubAt.Time
		s.UnsubscribedAt = &t
	}
	return s, nil
}

func (r *SubscriberRepo) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+subscriberCols+`
		FROM newsletter_subscribers
		WHERE LOWER(email) = LOWER($1)
	`, email)
	s, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, subscriber.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber by email: %w", err)
	}
	return s, nil
}

func (r *SubscriberRepo) GetByID(ctx context.Context, id string) (*domain.Subscriber, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+subscriberCols+`
		FROM newsletter_subscribers
		WHERE id = $1
	`, id)
	s, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, subscriber.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return s, nil
}

func (r *SubscriberRepo) GetByVerificationToken(ctx context.Context, token string) (*domain.Subscriber, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+subscriberCols+`
		FROM newsletter_subscribers
		WHERE verification_token = $1 AND verification_token <> '' AND status = 'pending'
	`, token)
	s, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, subscriber.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber by token: %w", err)
	}
	return s, nil
}

// whereClause builds the shared filter predicate for List and ExportAll.
func whereClause(f subscriber.Filter) (string, []interface{}) {
	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Source != "" {
		where += fmt.Sprintf(" AND source = $%d", idx)
		args = append(args, f.Source)
		idx++
	}
	if len(f.Tags) > 0 {
		where += fmt.Sprintf(" AND tags && $%d", idx)
		args = append(args, pq.Array(f.Tags))
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (LOWER(email) LIKE $%d OR LOWER(COALESCE(name,'')) LIKE $%d)", idx, idx)
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
		idx++
	}
	return where, args
}

func orderBy(sort string) string {
	if sort == "oldest" {
		return " ORDER BY subscribed_at ASC"
	}
	return " ORDER BY subscribed_at DESC"
}

func (r *SubscriberRepo) List(ctx context.Context, f subscriber.Filter) ([]domain.Subscriber, int, error) {
	where, args := whereClause(f)

	var total int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM newsletter_subscribers "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count subscribers: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if f.Page > 1 {
		offset = (f.Page - 1) * limit
	}

	q := "SELECT " + subscriberCols + " FROM newsletter_subscribers " + where + orderBy(f.Sort) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	out, err := collectSubscribers(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *SubscriberRepo) ListActive(ctx context.Context, tags []string) ([]domain.Subscriber, error) {
	q := "SELECT " + subscriberCols + " FROM newsletter_subscribers WHERE status = 'active'"
	args := []interface{}{}
	if len(tags) > 0 {
		q += " AND tags && $1"
		args = append(args, pq.Array(tags))
	}
	q += " ORDER BY subscribed_at"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list active subscribers: %w", err)
	}
	defer rows.Close()
	return collectSubscribers(rows)
}

func (r *SubscriberRepo) ListActiveByIDs(ctx context.Context, ids []string) ([]domain.Subscriber, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriberCols+`
		FROM newsletter_subscribers
		WHERE status = 'active' AND id = ANY($1)
		ORDER BY subscribed_at
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list subscribers by ids: %w", err)
	}
	defer rows.Close()
	return collectSubscribers(rows)
}

func collectSubscribers(rows *sql.Rows) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SubscriberRepo) Create(ctx context.Context, s *domain.Subscriber) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_subscribers
			(id, email, name, status, source, tags, locale,
			 unsubscribe_token, verification_token, subscribed_at, created_at, updated_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`, s.ID, s.Email, s.Name, s.Status, s.Source, textArray(s.Tags), s.Locale,
		s.UnsubscribeToken, s.VerificationToken, s.SubscribedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return subscriber.ErrDuplicate
		}
		return fmt.Errorf("create subscriber: %w", err)
	}
	return nil
}

func (r *SubscriberRepo) Update(ctx context.Context, s *domain.Subscriber) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_subscribers SET
			name = $2, status = $3, tags = $4, locale = $5,
			unsubscribe_token = $6, verification_token = $7,
			subscribed_at = $8, unsubscribed_at = $9, updated_at = NOW()
		WHERE id = $1
	`, s.ID, s.Name, s.Status, textArray(s.Tags), s.Locale,
		s.UnsubscribeToken, s.VerificationToken, s.SubscribedAt, s.UnsubscribedAt)
	if err != nil {
		return fmt.Errorf("update subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return subscriber.ErrNotFound
	}
	return nil
}

func (r *SubscriberRepo) BulkUpdateStatus(ctx context.Context, ids []string, status domain.SubscriberStatus) (int, error) {
	q := `
		UPDATE newsletter_subscribers
		SET status = $1, updated_at = NOW()
		WHERE id = ANY($2) AND status <> $1
	`
	if status == domain.SubscriberUnsubscribed {
		q = `
		UPDATE newsletter_subscribers
		SET status = $1, unsubscribed_at = NOW(), updated_at = NOW()
		WHERE id = ANY($2) AND status <> $1
	`
	}
	res, err := r.db.ExecContext(ctx, q, status, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("bulk update status: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *SubscriberRepo) AllTags(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT unnest(tags) AS tag FROM newsletter_subscribers ORDER BY tag
	`)
	if err != nil {
		return nil, fmt.Errorf("all tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (r *SubscriberRepo) Stats(ctx context.Context) (*subscriber.Stats, error) {
	st := &subscriber.Stats{
		ByStatus: map[string]int{},
		BySource: map[string]int{},
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM newsletter_subscribers`).Scan(&st.Total); err != nil {
		return nil, fmt.Errorf("count subscribers: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM newsletter_subscribers GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		st.ByStatus[k] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srcRows, err := r.db.QueryContext(ctx, `
		SELECT source, COUNT(*) FROM newsletter_subscribers GROUP BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var k string
		var n int
		if err := srcRows.Scan(&k, &n); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		st.BySource[k] = n
	}
	if err := srcRows.Err(); err != nil {
		return nil, err
	}

	recentRows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriberCols+`
		FROM newsletter_subscribers
		ORDER BY subscribed_at DESC
		LIMIT 5
	`)
	if err != nil {
		return nil, fmt.Errorf("recent subscribers: %w", err)
	}
	defer recentRows.Close()
	st.Recent, err = collectSubscribers(recentRows)
	if err != nil {
		return nil, err
	}

	return st, nil
}

func (r *SubscriberRepo) ExportAll(ctx context.Context, f subscriber.Filter) ([]domain.Subscriber, error) {
	where, args := whereClause(f)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+subscriberCols+" FROM newsletter_subscribers "+where+orderBy(f.Sort), args...)
	if err != nil {
		return nil, fmt.Errorf("export subscribers: %w", err)
	}
	defer rows.Close()
	return collectSubscribers(rows)
}
