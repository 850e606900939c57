package types

import "time"

// OTPChallenge is a short-lived numeric code bound to a (user, channel,
// destination) tuple. A challenge is single-use: it is consumed on successful
// verification and superseded when a newer code is requested for the same
// destination.
type OTPChallenge struct {
	ID          int        `json:"id" db:"id"`
	UserID      int        `json:"user_id" db:"user_id"`
	Channel     OTPChannel `json:"channel" db:"channel"`
	Destination string     `json:"destination" db:"destination"`
	Code        string     `json:"-" db:"code"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	Used        bool       `json:"used" db:"used"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the challenge is past its validity window.
func (c OTPChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
