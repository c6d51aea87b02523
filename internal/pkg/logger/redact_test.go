package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"reader@example.com", "re***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@example.com", "***@example.com"},
		{"not-an-email", "[redacted]"},
		{"@example.com", "[redacted]"},
		{"reader@", "[redacted]"},
		{"a@b@c", "[redacted]"},
		{"", "[redacted]"},
	}
	for _, c := range cases {
		if got := RedactEmail(c.in); got != c.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
