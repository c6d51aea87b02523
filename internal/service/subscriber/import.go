package subscriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"

	"github.com/almanara/newsletter/internal/domain"
)

// ImportRow is one row of a bulk subscriber import.
type ImportRow struct {
	Email  string        `json:"email"`
	Name   string        `json:"name"`
	Locale domain.Locale `json:"locale"`
	Tags   []string      `json:"tags"`
}

// ImportOptions applies to every row of an import batch.
type ImportOptions struct {
	// Tags are merged into each imported subscriber's tag set.
	Tags []string `json:"tags"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Total      int      `json:"total"`
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Invalid    int      `json:"invalid"`
	Errors     []string `json:"errors"`
}

// Import creates subscribers from the given rows. Rows with a malformed
// email are counted as invalid; rows whose email already exists in any
// status are counted as duplicates. Row-level failures are accumulated and
// never abort the batch.
func (s *Service) Import(ctx context.Context, rows []ImportRow, opts ImportOptions) (*ImportResult, error) {
	res := &ImportResult{Total: len(rows)}

	for i, row := range rows {
		email := normalizeEmail(row.Email)
		if err := checkmail.ValidateFormat(email); err != nil {
			res.Invalid++
			continue
		}

		_, err := s.repo.GetByEmail(ctx, email)
		if err == nil {
			res.Duplicates++
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d (%s): %v", i+1, email, err))
			continue
		}

		locale := row.Locale
		if locale == "" {
			locale = domain.LocaleArabic
		}
		sub := &domain.Subscriber{
			ID:               uuid.New().String(),
			Email:            email,
			Name:             strings.TrimSpace(row.Name),
			Status:           domain.SubscriberActive,
			Source:           domain.SourceImport,
			Tags:             dedupeTags(append(append([]string{}, row.Tags...), opts.Tags...)),
			Locale:           locale,
			UnsubscribeToken: newToken(),
			SubscribedAt:     time.Now(),
		}

		if err := s.repo.Create(ctx, sub); err != nil {
			if errors.Is(err, ErrDuplicate) {
				res.Duplicates++
				continue
			}
			res.Errors = append(res.Errors, fmt.Sprintf("row %d (%s): %v", i+1, email, err))
			continue
		}
		res.Imported++
	}

	return res, nil
}

// ExportRow is the flat projection produced for CSV export.
type ExportRow struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Tags         string `json:"tags"`          // comma-joined
	SubscribedAt string `json:"subscribed_at"` // RFC 3339
}

// Export returns a flat projection of every subscriber matching the filter,
// without pagination.
func (s *Service) Export(ctx context.Context, f Filter) ([]ExportRow, error) {
	subs, err := s.repo.ExportAll(ctx, f)
	if err != nil {
		return nil, err
	}

	rows := make([]ExportRow, 0, len(subs))
	for _, sub := range subs {
		rows = append(rows, ExportRow{
			Email:        sub.Email,
			Name:         sub.Name,
			Status:       string(sub.Status),
			Tags:         strings.Join(sub.Tags, ","),
			SubscribedAt: sub.SubscribedAt.Format(time.RFC3339),
		})
	}
	return rows, nil
}
