package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/areassist/apiserver/internal/store"
	"github.com/areassist/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
)

// ErrBadIdentityToken reports a provider token that failed verification.
var ErrBadIdentityToken = errors.New("invalid identity token")

// Identity is the verified payload of a federated provider token.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// IdentityVerifier checks a provider-issued token and extracts the identity
// it asserts.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// identityClaims carries the profile claims providers attach beside the
// registered set.
type identityClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// JWTVerifier verifies HS256 provider tokens against a shared secret and an
// expected issuer.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (Identity, error) {
	claims := identityClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrBadIdentityToken, err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, ErrBadIdentityToken
	}
	return Identity{
		Subject: claims.Subject,
		Email:   strings.ToLower(strings.TrimSpace(claims.Email)),
		Name:    strings.TrimSpace(claims.Name),
		Picture: claims.Picture,
	}, nil
}

// IdentityService reconciles federated sign-ins with local accounts.
type IdentityService struct {
	users    UserRepository
	verifier IdentityVerifier
}

func NewIdentityService(users UserRepository, verifier IdentityVerifier) *IdentityService {
	return &IdentityService{users: users, verifier: verifier}
}

// Sync resolves a provider token to a local account, creating or linking one
// as needed. Resolution order: by provider subject, then by email (linking
// the subject to the match), then a fresh account. selectedRole only applies
// to accounts created here; an existing account never changes role on
// sign-in.
func (s *IdentityService) Sync(ctx context.Context, token string, selectedRole types.Role) (types.User, error) {
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return types.User{}, err
	}
	if identity.Email == "" {
		return types.User{}, fmt.Errorf("%w: missing email claim", ErrBadIdentityToken)
	}

	user, err := s.users.GetByExternalID(ctx, identity.Subject)
	switch {
	case err == nil:
		return s.touch(ctx, user)
	case !errors.Is(err, store.ErrNotFound):
		return types.User{}, err
	}

	user, err = s.users.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		if linkErr := s.users.LinkExternalID(ctx, user.ID, identity.Subject); linkErr != nil {
			return types.User{}, linkErr
		}
		user.ExternalID = identity.Subject
		return s.touch(ctx, user)
	case !errors.Is(err, store.ErrNotFound):
		return types.User{}, err
	}

	role := selectedRole
	switch role {
	case types.RoleCitizen, types.RoleVolunteer:
	default:
		role = types.RoleCitizen
	}

	user, err = s.users.Create(ctx, types.User{
		Name:           identity.Name,
		Email:          identity.Email,
		Role:           role,
		ExternalID:     identity.Subject,
		ProfilePicture: identity.Picture,
		EmailVerified:  true,
	})
	if err != nil {
		return types.User{}, err
	}
	return s.touch(ctx, user)
}

func (s *IdentityService) touch(ctx context.Context, user types.User) (types.User, error) {
	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		return types.User{}, err
	}
	return user, nil
}
