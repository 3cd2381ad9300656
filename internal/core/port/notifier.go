package port

import "context"

// Notifier delivers an out-of-band message to a destination (an email
// address). Errors are opaque to callers beyond success or failure.
type Notifier interface {
	Deliver(ctx context.Context, destination, subject, body string) error
}
