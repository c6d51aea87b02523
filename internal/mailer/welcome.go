package mailer

import (
	"fmt"
	"html"

	"github.com/almanara/newsletter/internal/domain"
)

// WelcomeMessage builds the transactional welcome email sent to a new
// subscriber, in the subscriber's locale.
func WelcomeMessage(sub *domain.Subscriber, unsubscribeURL string) *Message {
	var subject, hello, body, unsubLabel string

	if sub.Locale == domain.LocaleEnglish {
		name := sub.Name
		if name == "" {
			name = "there"
		}
		subject = "Welcome to our newsletter"
		hello = fmt.Sprintf("Hello %s,", html.EscapeString(name))
		body = "Thank you for subscribing to our newsletter."
		unsubLabel = "Unsubscribe"
	} else {
		name := sub.Name
		if name == "" {
			name = "عزيزنا القارئ"
		}
		subject = "أهلاً بك في نشرتنا البريدية"
		hello = fmt.Sprintf("أهلاً %s،", html.EscapeString(name))
		body = "شكراً لاشتراكك في نشرتنا البريدية."
		unsubLabel = "إلغاء الاشتراك"
	}

	htmlBody := fmt.Sprintf(
		`<p>%s</p><p>%s</p><p style="font-size:12px;color:#888;"><a href="%s">%s</a></p>`,
		hello, body, unsubscribeURL, unsubLabel)

	return &Message{
		To:      sub.Email,
		Subject: subject,
		HTML:    htmlBody,
	}
}
