package notify

import (
	"context"
	"log"
)

// Notifier delivers a rendered message to a recipient over some external
// channel (email, SMS, push). Implementations must be safe for concurrent
// use.
type Notifier interface {
	Notify(ctx context.Context, recipient, subject, body string) error
}

// ConsoleNotifier writes deliveries to the process log. It stands in for a
// real provider in development and in tests.
type ConsoleNotifier struct{}

func (ConsoleNotifier) Notify(_ context.Context, recipient, subject, body string) error {
	log.Printf("notify %s: %s: %s", recipient, subject, body)
	return nil
}
