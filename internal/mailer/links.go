package mailer

import (
	"net/url"
	"strings"
)

// UnsubscribeURL builds the public self-service unsubscribe link for a
// subscriber. The embedded token is the sole authorization for the action.
func UnsubscribeURL(baseURL, email, token string) string {
	v := url.Values{}
	v.Set("email", email)
	v.Set("token", token)
	return strings.TrimRight(baseURL, "/") + "/newsletter/unsubscribe?" + v.Encode()
}
