package services

import (
	"context"
	"strings"

	"github.com/areassist/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByExternalID(ctx context.Context, externalID string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	ListByRole(ctx context.Context, role types.Role) ([]types.User, error)
	LinkExternalID(ctx context.Context, id int, externalID string) error
	TouchLastLogin(ctx context.Context, id int) error
	SetVerified(ctx context.Context, id int, verified bool) error
}

// VolunteerProfile is the extra detail a volunteer must file before they may
// work on issues.
type VolunteerProfile struct {
	Skills           string `json:"skills"`
	Availability     string `json:"availability"`
	Experience       string `json:"experience"`
	Transportation   string `json:"transportation"`
	EmergencyContact string `json:"emergency_contact"`
	EmergencyPhone   string `json:"emergency_phone"`
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	return s.repo.Create(ctx, user)
}

func (s *UserService) ListByRole(ctx context.Context, role types.Role) ([]types.User, error) {
	return s.repo.ListByRole(ctx, role)
}

// CompleteProfile records a volunteer's profile details. All fields are
// mandatory; the account is only marked profile-complete once every field is
// filled, which is what unlocks issue work for the volunteer.
func (s *UserService) CompleteProfile(ctx context.Context, userID int, profile VolunteerProfile) (types.User, error) {
	verr := newValidationError()
	check := func(field, value string) string {
		value = strings.TrimSpace(value)
		if value == "" {
			verr.Fields[field] = field + " is required"
		}
		return value
	}
	profile.Skills = check("skills", profile.Skills)
	profile.Availability = check("availability", profile.Availability)
	profile.Experience = check("experience", profile.Experience)
	profile.Transportation = check("transportation", profile.Transportation)
	profile.EmergencyContact = check("emergency_contact", profile.EmergencyContact)
	profile.EmergencyPhone = check("emergency_phone", profile.EmergencyPhone)
	if len(verr.Fields) > 0 {
		return types.User{}, verr
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}
	if user.Role != types.RoleVolunteer {
		verr := newValidationError()
		verr.Fields["role"] = "only volunteers have a work profile"
		return types.User{}, verr
	}

	user.Skills = profile.Skills
	user.Availability = profile.Availability
	user.Experience = profile.Experience
	user.Transportation = profile.Transportation
	user.EmergencyContact = profile.EmergencyContact
	user.EmergencyPhone = profile.EmergencyPhone
	user.ProfileCompleted = true
	return s.repo.Update(ctx, user)
}

// SetVerified flips an admin's approval flag on a volunteer account.
func (s *UserService) SetVerified(ctx context.Context, id int, verified bool) error {
	return s.repo.SetVerified(ctx, id, verified)
}
