package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/areassist/apiserver/internal/store"
	"github.com/areassist/apiserver/types"
)

type fakeOTPRepo struct {
	challenges []types.OTPChallenge
	nextID     int
}

func (r *fakeOTPRepo) Create(_ context.Context, challenge types.OTPChallenge) (types.OTPChallenge, error) {
	// A new code supersedes anything still live for the destination.
	for i := range r.challenges {
		if r.challenges[i].Channel == challenge.Channel && r.challenges[i].Destination == challenge.Destination {
			r.challenges[i].Used = true
		}
	}
	r.nextID++
	challenge.ID = r.nextID
	challenge.CreatedAt = time.Now()
	r.challenges = append(r.challenges, challenge)
	return challenge, nil
}

func (r *fakeOTPRepo) Consume(_ context.Context, channel types.OTPChannel, destination, code string) (types.OTPChallenge, error) {
	for i := range r.challenges {
		c := r.challenges[i]
		if c.Channel == channel && c.Destination == destination && c.Code == code && !c.Used && !c.Expired(time.Now()) {
			r.challenges[i].Used = true
			return r.challenges[i], nil
		}
	}
	return types.OTPChallenge{}, store.ErrNotFound
}

type capturingPublisher struct {
	channels []string
	payloads [][]byte
}

func (p *capturingPublisher) Publish(_ context.Context, channel string, data []byte, _ map[string]string) (string, error) {
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, data)
	return "1", nil
}

func TestRequestIssuesSixDigitCode(t *testing.T) {
	repo := &fakeOTPRepo{}
	events := &capturingPublisher{}
	svc := NewOTPService(repo, events, time.Minute)

	challenge, err := svc.Request(context.Background(), 1, types.ChannelEmail, "user@example.com")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if challenge.ID == 0 {
		t.Fatalf("expected challenge to be stored")
	}

	stored := repo.challenges[0]
	if len(stored.Code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", stored.Code)
	}
	for _, c := range stored.Code {
		if c < '0' || c > '9' {
			t.Fatalf("expected numeric code, got %q", stored.Code)
		}
	}

	if len(events.channels) != 1 || events.channels[0] != ChannelOTPDeliver {
		t.Fatalf("unexpected channels: %v", events.channels)
	}
	var delivery OTPDelivery
	if err := json.Unmarshal(events.payloads[0], &delivery); err != nil {
		t.Fatalf("unmarshal delivery: %v", err)
	}
	if delivery.Code != stored.Code || delivery.Destination != "user@example.com" {
		t.Fatalf("unexpected delivery: %+v", delivery)
	}
}

func TestRequestSupersedesPriorCode(t *testing.T) {
	repo := &fakeOTPRepo{}
	svc := NewOTPService(repo, nil, time.Minute)

	first, err := svc.Request(context.Background(), 1, types.ChannelPhone, "+15550100")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := svc.Request(context.Background(), 1, types.ChannelPhone, "+15550100")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if _, err := svc.Verify(context.Background(), types.ChannelPhone, "+15550100", first.Code); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("superseded code must not verify, got %v", err)
	}
	if _, err := svc.Verify(context.Background(), types.ChannelPhone, "+15550100", second.Code); err != nil {
		t.Fatalf("latest code should verify: %v", err)
	}
}

func TestVerifyIsSingleUse(t *testing.T) {
	repo := &fakeOTPRepo{}
	svc := NewOTPService(repo, nil, time.Minute)

	challenge, err := svc.Request(context.Background(), 1, types.ChannelEmail, "user@example.com")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := svc.Verify(context.Background(), types.ChannelEmail, "user@example.com", challenge.Code); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := svc.Verify(context.Background(), types.ChannelEmail, "user@example.com", challenge.Code); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second verify must fail, got %v", err)
	}
}

func TestVerifyRejectsExpiredCode(t *testing.T) {
	repo := &fakeOTPRepo{}
	svc := NewOTPService(repo, nil, time.Minute)

	challenge, err := svc.Request(context.Background(), 1, types.ChannelEmail, "user@example.com")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	repo.challenges[0].ExpiresAt = time.Now().Add(-time.Second)

	if _, err := svc.Verify(context.Background(), types.ChannelEmail, "user@example.com", challenge.Code); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired code must not verify even when correct, got %v", err)
	}
}

func TestRequestValidatesInput(t *testing.T) {
	svc := NewOTPService(&fakeOTPRepo{}, nil, time.Minute)

	_, err := svc.Request(context.Background(), 1, "carrier-pigeon", "somewhere")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = svc.Request(context.Background(), 1, types.ChannelEmail, "  ")
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
