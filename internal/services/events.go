package services

import (
	"context"
	"encoding/json"
	"log"
)

// Broker channels carrying lifecycle and delivery events. The in-row
// notification committed with the issue mutation is the source of truth;
// these events only feed external delivery channels (SMS/email gateways,
// dashboards) and are published best-effort after commit.
const (
	ChannelIssueCreated   = "issue.created"
	ChannelIssueProgress  = "issue.progress"
	ChannelIssueAnnotated = "issue.annotated"
	ChannelIssueResolved  = "issue.resolved"
	ChannelIssueReopened  = "issue.reopened"
	ChannelOTPDeliver     = "otp.deliver"
)

// Publisher sends a payload to a named broker channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// IssueEvent is the payload published on issue lifecycle channels.
type IssueEvent struct {
	IssueID     int    `json:"issue_id"`
	ReporterID  int    `json:"reporter_id"`
	VolunteerID int    `json:"volunteer_id,omitempty"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Note        string `json:"note,omitempty"`
}

// OTPDelivery is the payload published for the external SMS/email gateway.
type OTPDelivery struct {
	Channel     string `json:"channel"`
	Destination string `json:"destination"`
	Code        string `json:"code"`
	ExpiresAt   int64  `json:"expires_at"`
}

// publishEvent marshals and publishes without failing the caller; a broker
// outage must not undo a committed transition.
func publishEvent(ctx context.Context, pub Publisher, channel string, payload any) {
	if pub == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("events: marshal %s: %v", channel, err)
		return
	}
	if _, err := pub.Publish(ctx, channel, data, nil); err != nil {
		log.Printf("events: publish %s: %v", channel, err)
	}
}
