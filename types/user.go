package types

import "time"

// Role identifies a user's authorization level within the platform.
type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleVolunteer Role = "volunteer"
	RoleAdmin     Role = "admin"
)

// OTPChannel is a contact channel that can be verified with a one-time code.
type OTPChannel string

const (
	ChannelEmail OTPChannel = "email"
	ChannelPhone OTPChannel = "phone"
)

// User represents an account in the system.
// It contains identity, role, contact-verification state, and the
// volunteer profile fields required before a volunteer may act on issues.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address. Unique across accounts.
	Email string `json:"email" db:"email"`

	// Role indicates whether the account is a citizen, volunteer, or admin.
	Role Role `json:"role" db:"role"`

	// District is a free-text regional tag used for filtering and matching.
	District string `json:"district" db:"district"`

	// ExternalID is the subject of a federated identity provider for
	// accounts created through external sign-in. Empty for local accounts.
	ExternalID string `json:"-" db:"external_id"`

	// PasswordHash stores the hashed representation of the user's password.
	// Empty for federated-only accounts; never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// ProfilePicture is an optional URL supplied by the identity provider.
	ProfilePicture string `json:"profile_picture,omitempty" db:"profile_picture"`

	// Phone is the user's phone number, verified via OTP.
	Phone string `json:"phone,omitempty" db:"phone"`

	// EmailVerified and PhoneVerified are flipped by successful OTP
	// verification on the corresponding channel.
	EmailVerified bool `json:"email_verified" db:"email_verified"`
	PhoneVerified bool `json:"phone_verified" db:"phone_verified"`

	// Volunteer profile fields. All of them must be filled before
	// ProfileCompleted is set and volunteer actions are permitted.
	Skills           string `json:"skills,omitempty" db:"skills"`
	Availability     string `json:"availability,omitempty" db:"availability"`
	Experience       string `json:"experience,omitempty" db:"experience"`
	Transportation   string `json:"transportation,omitempty" db:"transportation"`
	EmergencyContact string `json:"emergency_contact,omitempty" db:"emergency_contact"`
	EmergencyPhone   string `json:"emergency_phone,omitempty" db:"emergency_phone"`

	// ProfileCompleted gates volunteer-only mutations server-side.
	ProfileCompleted bool `json:"profile_completed" db:"profile_completed"`

	// Verified is set by an admin after reviewing a volunteer account.
	Verified bool `json:"verified" db:"verified"`

	// LastLogin is the timestamp of the most recent successful sign-in.
	LastLogin *time.Time `json:"last_login,omitempty" db:"last_login"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
