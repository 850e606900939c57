package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/areassist/apiserver/internal/mq"
	"github.com/areassist/apiserver/internal/services"
	"github.com/areassist/apiserver/types"
)

// UserDirectory resolves recipients for outbound deliveries.
type UserDirectory interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// Consumer drains broker channels and turns events into deliveries through a
// Notifier. It runs in its own process so a slow or flaky provider never
// backs up the API.
type Consumer struct {
	broker   *mq.MQ
	users    UserDirectory
	notifier Notifier
}

func NewConsumer(broker *mq.MQ, users UserDirectory, notifier Notifier) *Consumer {
	return &Consumer{broker: broker, users: users, notifier: notifier}
}

// Run subscribes to every delivery channel and blocks until ctx is done or a
// subscription fails. A subscription holds its goroutine for the life of the
// context, so each channel gets its own; a single blocking Subscribe must
// never starve the others.
func (c *Consumer) Run(ctx context.Context) error {
	channels := map[string]mq.Handler{
		services.ChannelIssueCreated:   c.handleIssue("Your report was received"),
		services.ChannelIssueProgress:  c.handleIssue("Your report is being worked on"),
		services.ChannelIssueAnnotated: c.handleIssue("A volunteer left an update"),
		services.ChannelIssueResolved:  c.handleIssue("Your report was resolved"),
		services.ChannelIssueReopened:  c.handleIssue("Your report was reopened"),
		services.ChannelOTPDeliver:     c.handleOTP,
	}
	g, ctx := errgroup.WithContext(ctx)
	for channel, handler := range channels {
		channel, handler := channel, handler
		g.Go(func() error {
			err := c.broker.Subscribe(ctx, channel, handler)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("subscribe %s: %w", channel, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Consumer) handleIssue(subject string) mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		var event services.IssueEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			// A malformed payload will never parse on redelivery.
			log.Printf("notify: drop malformed issue event: %v", err)
			return nil
		}

		reporter, err := c.users.GetByID(ctx, event.ReporterID)
		if err != nil {
			return fmt.Errorf("load reporter %d: %w", event.ReporterID, err)
		}

		body := fmt.Sprintf("%q is now %s.", event.Title, event.Status)
		if event.Note != "" {
			body = fmt.Sprintf("%q is now %s. Volunteer note: %s", event.Title, event.Status, event.Note)
		}
		return c.notifier.Notify(ctx, reporter.Email, subject, body)
	}
}

func (c *Consumer) handleOTP(ctx context.Context, msg mq.Message) error {
	var delivery services.OTPDelivery
	if err := json.Unmarshal(msg.Data, &delivery); err != nil {
		log.Printf("notify: drop malformed otp delivery: %v", err)
		return nil
	}
	body := fmt.Sprintf("Your verification code is %s. It expires in a few minutes.", delivery.Code)
	return c.notifier.Notify(ctx, delivery.Destination, "Your verification code", body)
}
