package campaign

import (
	"context"
	"fmt"

	"github.com/almanara/newsletter/internal/domain"
)

// resolveRecipients turns a campaign's targeting rule into the concrete
// list of eligible subscribers. The result never contains a non-active
// subscriber and never contains duplicates (subscriber emails are unique).
//
// For specific targeting, ids referring to inactive subscribers are
// silently excluded rather than reported: the subscriber may have
// unsubscribed between campaign creation and dispatch, and that must not
// block the send.
func (s *Service) resolveRecipients(ctx context.Context, c *domain.Campaign) ([]domain.Subscriber, error) {
	switch c.RecipientType {
	case domain.RecipientsAll:
		return s.subs.ListActive(ctx, nil)
	case domain.RecipientsTags:
		return s.subs.ListActive(ctx, c.RecipientTags)
	case domain.RecipientsSpecific:
		return s.subs.ListActiveByIDs(ctx, c.RecipientIDs)
	default:
		return nil, fmt.Errorf("%w: unknown recipient type %q", ErrValidation, c.RecipientType)
	}
}
