package mailer

import (
	"context"
	"strings"
)

// Message is one outbound email. Content is opaque to the dispatcher;
// rendering happens upstream of this package.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender transmits a single message. A nil return means the provider
// accepted the message; errors carry enough text for IsThrottle to
// classify them.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// IsThrottle reports whether a send error looks like provider-level rate
// limiting rather than a per-recipient failure. Throttling pauses the whole
// batch while any other error only costs the one recipient, so ambiguous
// errors lean toward the throttle classification.
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "420", "rate limit", "too many requests", "throttl"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
