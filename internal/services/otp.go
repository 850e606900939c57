package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/areassist/apiserver/types"
)

// OTPRepository persists one-time verification codes.
type OTPRepository interface {
	Create(ctx context.Context, challenge types.OTPChallenge) (types.OTPChallenge, error)
	Consume(ctx context.Context, channel types.OTPChannel, destination, code string) (types.OTPChallenge, error)
}

// OTPService issues and verifies short-lived one-time codes for email and
// phone ownership checks.
type OTPService struct {
	repo   OTPRepository
	events Publisher
	ttl    time.Duration
}

func NewOTPService(repo OTPRepository, events Publisher, ttl time.Duration) *OTPService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OTPService{repo: repo, events: events, ttl: ttl}
}

// Request generates a fresh six-digit code for the destination and hands it
// to the delivery channel. Any earlier live code for the same destination is
// invalidated, so at most one code is redeemable at a time.
func (s *OTPService) Request(ctx context.Context, userID int, channel types.OTPChannel, destination string) (types.OTPChallenge, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		verr := newValidationError()
		verr.Fields["destination"] = "destination is required"
		return types.OTPChallenge{}, verr
	}
	switch channel {
	case types.ChannelEmail, types.ChannelPhone:
	default:
		verr := newValidationError()
		verr.Fields["channel"] = "channel must be email or phone"
		return types.OTPChallenge{}, verr
	}

	code, err := generateCode()
	if err != nil {
		return types.OTPChallenge{}, fmt.Errorf("generate code: %w", err)
	}

	challenge, err := s.repo.Create(ctx, types.OTPChallenge{
		UserID:      userID,
		Channel:     channel,
		Destination: destination,
		Code:        code,
		ExpiresAt:   time.Now().Add(s.ttl),
	})
	if err != nil {
		return types.OTPChallenge{}, err
	}

	publishEvent(ctx, s.events, ChannelOTPDeliver, OTPDelivery{
		Channel:     string(channel),
		Destination: destination,
		Code:        code,
		ExpiresAt:   challenge.ExpiresAt.Unix(),
	})
	return challenge, nil
}

// Verify redeems a code. Consumption marks the code used and flags the
// matching user contact point as verified in a single transaction; a wrong,
// expired, or already-used code reports not found.
func (s *OTPService) Verify(ctx context.Context, channel types.OTPChannel, destination, code string) (types.OTPChallenge, error) {
	destination = strings.TrimSpace(destination)
	code = strings.TrimSpace(code)
	if destination == "" || code == "" {
		verr := newValidationError()
		if destination == "" {
			verr.Fields["destination"] = "destination is required"
		}
		if code == "" {
			verr.Fields["code"] = "code is required"
		}
		return types.OTPChallenge{}, verr
	}
	return s.repo.Consume(ctx, channel, destination, code)
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
