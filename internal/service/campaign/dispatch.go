package campaign

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/almanara/newsletter/internal/domain"
	"github.com/almanara/newsletter/internal/mailer"
	"github.com/almanara/newsletter/internal/pkg/logger"
)

// SendReport summarizes a completed dispatch. The operation reports success
// at the campaign level even when individual sends failed; callers inspect
// SentCount and Errors to detect partial failure.
type SendReport struct {
	CampaignID string `json:"campaign_id"`
	Recipients int    `json:"recipients"`
	SentCount  int    `json:"sent_count"`
	Errors     int    `json:"errors"`
}

// Send dispatches a campaign to its resolved recipient list.
//
// The status write sequence is strictly ordered: the campaign is moved to
// sending before any email leaves the system, recipient_count is persisted
// right after resolution, and the campaign is marked sent only after every
// recipient has been processed. The sending transition is a single atomic
// conditional update, so two concurrent Send calls cannot both pass the
// draft/scheduled precondition.
//
// Delivery is best-effort per recipient: a failed send is counted and the
// batch continues. A bounced address must never prevent delivery to the
// remaining recipients.
func (s *Service) Send(ctx context.Context, id string) (*SendReport, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// prev is the status the conditional update actually matched, not the
	// status read above: another operator may have moved the campaign
	// between the read and the transition, and a failure rollback must
	// restore the true prior state.
	prev, err := s.repo.TransitionStatus(ctx, id,
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled},
		domain.CampaignSending)
	if err != nil {
		return nil, err
	}

	recipients, err := s.resolveRecipients(ctx, c)
	if err != nil {
		s.rollback(ctx, id, prev)
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	if err := s.repo.SetRecipientCount(ctx, id, len(recipients)); err != nil {
		s.rollback(ctx, id, prev)
		return nil, fmt.Errorf("persist recipient count: %w", err)
	}

	log.Printf("[Dispatch] Campaign %s: sending to %d recipients", id, len(recipients))

	sent, failed := s.deliverAll(ctx, c, recipients)

	if err := s.repo.MarkSent(ctx, id, sent, time.Now()); err != nil {
		return nil, fmt.Errorf("mark sent: %w", err)
	}

	log.Printf("[Dispatch] Campaign %s: done (sent=%d errors=%d)", id, sent, failed)

	return &SendReport{
		CampaignID: id,
		Recipients: len(recipients),
		SentCount:  sent,
		Errors:     failed,
	}, nil
}

// deliverAll fans recipients out to a bounded pool of sender workers and
// returns the success/failure tallies once every recipient is processed.
func (s *Service) deliverAll(ctx context.Context, c *domain.Campaign, recipients []domain.Subscriber) (sent, failed int) {
	if len(recipients) == 0 {
		return 0, 0
	}

	var okCount, errCount atomic.Int64
	jobs := make(chan domain.Subscriber)

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				if err := s.deliverOne(ctx, c, &sub); err != nil {
					errCount.Add(1)
					log.Printf("[Dispatch] Campaign %s: send to %s failed: %v",
						c.ID, logger.RedactEmail(sub.Email), err)
				} else {
					okCount.Add(1)
				}
			}
		}()
	}

	for _, sub := range recipients {
		jobs <- sub
	}
	close(jobs)
	wg.Wait()

	return int(okCount.Load()), int(errCount.Load())
}

// deliverOne renders and delivers the campaign to a single recipient,
// retrying transient failures with exponential backoff. Errors are returned
// to the worker for counting, never propagated past it.
func (s *Service) deliverOne(ctx context.Context, c *domain.Campaign, sub *domain.Subscriber) error {
	if t := s.opts.Throttle; t != nil {
		if err := t.Wait(ctx, c.ID); err != nil {
			return fmt.Errorf("throttle: %w", err)
		}
	}

	msg, err := s.buildMessage(c, sub)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
		lastErr = s.mailer.Send(sendCtx, msg)
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// buildMessage renders the localized campaign content for one recipient,
// including the per-recipient unsubscribe link.
func (s *Service) buildMessage(c *domain.Campaign, sub *domain.Subscriber) (*mailer.Message, error) {
	unsubURL := mailer.UnsubscribeURL(s.baseURL, sub.Email, sub.UnsubscribeToken)

	vars := map[string]interface{}{
		"name":            sub.Name,
		"email":           sub.Email,
		"unsubscribe_url": unsubURL,
	}

	subject, err := s.renderer.Render(c.Subject.Pick(sub.Locale), vars)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	body, err := s.renderer.Render(c.Content.Pick(sub.Locale), vars)
	if err != nil {
		return nil, fmt.Errorf("render content: %w", err)
	}

	body += unsubscribeFooter(sub.Locale, unsubURL)

	return &mailer.Message{
		To:      sub.Email,
		Subject: subject,
		HTML:    mailer.BuildHTML(body, c.Preheader.Pick(sub.Locale)),
	}, nil
}

func unsubscribeFooter(l domain.Locale, unsubURL string) string {
	label := "إلغاء الاشتراك"
	if l == domain.LocaleEnglish {
		label = "Unsubscribe"
	}
	return fmt.Sprintf(
		`<p style="font-size:12px;color:#888;margin-top:24px;"><a href="%s">%s</a></p>`,
		unsubURL, label)
}

// rollback restores a campaign to its pre-dispatch status after a failure
// between the sending transition and the first delivery.
func (s *Service) rollback(ctx context.Context, id string, to domain.CampaignStatus) {
	_, err := s.repo.TransitionStatus(ctx, id,
		[]domain.CampaignStatus{domain.CampaignSending}, to)
	if err != nil {
		log.Printf("[Dispatch] Campaign %s: rollback to %s failed: %v", id, to, err)
	}
}
