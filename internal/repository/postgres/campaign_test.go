package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/almanara/newsletter/internal/domain"
	"github.com/almanara/newsletter/internal/service/campaign"
)

func newCampaignMock(t *testing.T) (*CampaignRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCampaignRepo(db), mock
}

func TestCreateBindsEmptyArraysForNilRecipientLists(t *testing.T) {
	repo, mock := newCampaignMock(t)

	mock.ExpectExec(`INSERT INTO newsletter_campaigns`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), notNull{}, notNull{}, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.Create(context.Background(), &domain.Campaign{
		ID:            "c1",
		Subject:       domain.LocalizedText{AR: "عنوان", EN: "Subject"},
		Content:       domain.LocalizedText{AR: "محتوى", EN: "Content"},
		Status:        domain.CampaignDraft,
		RecipientType: domain.RecipientsAll,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTransitionStatusReturnsMatchedStatus(t *testing.T) {
	repo, mock := newCampaignMock(t)

	mock.ExpectQuery(`(?s)UPDATE newsletter_campaigns c\s+SET status = \$2, updated_at = NOW\(\).+WHERE id = \$1 AND status = ANY\(\$3\).+RETURNING p\.prev`).
		WithArgs("c1", domain.CampaignSending, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"prev"}).AddRow("scheduled"))

	prev, err := repo.TransitionStatus(context.Background(), "c1",
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled},
		domain.CampaignSending)
	if err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	if prev != domain.CampaignScheduled {
		t.Errorf("expected matched status scheduled, got %s", prev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTransitionStatusStampsCancelledAt(t *testing.T) {
	repo, mock := newCampaignMock(t)

	mock.ExpectQuery(`SET status = \$2, cancelled_at = NOW\(\)`).
		WithArgs("c1", domain.CampaignCancelled, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"prev"}).AddRow("scheduled"))

	_, err := repo.TransitionStatus(context.Background(), "c1",
		[]domain.CampaignStatus{domain.CampaignScheduled}, domain.CampaignCancelled)
	if err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTransitionStatusWrongState(t *testing.T) {
	repo, mock := newCampaignMock(t)

	mock.ExpectQuery(`UPDATE newsletter_campaigns`).
		WillReturnRows(sqlmock.NewRows([]string{"prev"}))
	mock.ExpectQuery(`SELECT status FROM newsletter_campaigns WHERE id = \$1`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("sent"))

	_, err := repo.TransitionStatus(context.Background(), "c1",
		[]domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignSending)
	if !errors.Is(err, campaign.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionStatusMissingCampaign(t *testing.T) {
	repo, mock := newCampaignMock(t)

	mock.ExpectQuery(`UPDATE newsletter_campaigns`).
		WillReturnRows(sqlmock.NewRows([]string{"prev"}))
	mock.ExpectQuery(`SELECT status FROM newsletter_campaigns WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err := repo.TransitionStatus(context.Background(), "missing",
		[]domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignSending)
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkSentOnlyFromSending(t *testing.T) {
	repo, mock := newCampaignMock(t)

	at := time.Now()
	mock.ExpectExec(`(?s)SET status = 'sent', sent_count = \$2, sent_at = \$3.+WHERE id = \$1 AND status = 'sending'`).
		WithArgs("c1", 42, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkSent(context.Background(), "c1", 42, at); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestIncrementMetricsBuildsAtomicIncrements(t *testing.T) {
	repo, mock := newCampaignMock(t)

	// Only the non-zero deltas appear, each as col = col + $n.
	mock.ExpectExec(`SET open_count = open_count \+ \$2, bounce_count = bounce_count \+ \$3, updated_at = NOW\(\)`).
		WithArgs("c1", 3, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.IncrementMetrics(context.Background(), "c1",
		domain.MetricsDelta{OpenCount: 3, BounceCount: 1})
	if err != nil {
		t.Fatalf("IncrementMetrics failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestIncrementMetricsZeroDeltaSkipsQuery(t *testing.T) {
	repo, mock := newCampaignMock(t)

	if err := repo.IncrementMetrics(context.Background(), "c1", domain.MetricsDelta{}); err != nil {
		t.Fatalf("zero delta must be a no-op: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestScheduleFromDraftOnly(t *testing.T) {
	repo, mock := newCampaignMock(t)

	at := time.Now().Add(time.Hour)
	mock.ExpectExec(`(?s)SET status = 'scheduled', scheduled_at = \$2.+WHERE id = \$1 AND status = 'draft'`).
		WithArgs("c1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM newsletter_campaigns`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("sending"))

	err := repo.Schedule(context.Background(), "c1", at)
	if !errors.Is(err, campaign.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTotalsSumsSentOnly(t *testing.T) {
	repo, mock := newCampaignMock(t)

	mock.ExpectQuery(`FROM newsletter_campaigns\s+WHERE status = 'sent'`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"count", "recipients", "sent", "opens", "clicks"}).
			AddRow(2, 300, 290, 120, 30))

	totals, err := repo.Totals(context.Background())
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.SentCampaigns != 2 || totals.TotalSent != 290 || totals.TotalClicks != 30 {
		t.Errorf("unexpected totals: %+v", totals)
	}
}
