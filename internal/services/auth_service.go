package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"zines/internal/identity"
	"zines/internal/models"
	"zines/internal/repositories"
)

// CreatorSearchLimit caps the creators returned by a search.
const CreatorSearchLimit = 20

// AuthService handles business logic for sign-in and user accounts.
type AuthService struct {
	repo     repositories.Repository
	verifier identity.Verifier
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo repositories.Repository, verifier identity.Verifier) *AuthService {
	return &AuthService{
		repo:     repo,
		verifier: verifier,
	}
}

// ProfileInput carries the editable profile fields. Nil fields are left
// unchanged.
type ProfileInput struct {
	DisplayName        *string
	Bio                *string
	Website            *string
	EmailNotifications *bool
}

// Login verifies an identity token and returns the matching user, creating
// one on first sign-in.
func (s *AuthService) Login(ctx context.Context, token string) (*models.User, error) {
	principal, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return s.LoginPrincipal(ctx, principal)
}

// Authenticate verifies an identity token and returns the registered user
// behind it. It never creates users.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	principal, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := s.repo.GetUserByExternalID(ctx, principal.ExternalID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	return user, err
}

// LoginPrincipal finds the user for a verified principal. Known users get
// their email, display name and, when given, avatar refreshed. Unknown users
// are created with a username derived from their email or name.
func (s *AuthService) LoginPrincipal(ctx context.Context, principal *identity.Principal) (*models.User, error) {
	if principal == nil || principal.ExternalID == "" {
		return nil, ErrUnauthorized
	}

	user, err := s.repo.GetUserByExternalID(ctx, principal.ExternalID)
	switch {
	case err == nil:
		user.Email = principal.Email
		user.DisplayName = principal.DisplayName
		if principal.PictureURL != "" {
			user.AvatarURL = principal.PictureURL
		}
		if err := s.repo.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to refresh user: %w", err)
		}
		return user, nil
	case errors.Is(err, repositories.ErrNotFound):
		return s.register(ctx, principal)
	default:
		return nil, err
	}
}

func (s *AuthService) register(ctx context.Context, principal *identity.Principal) (*models.User, error) {
	base := UsernameBase(principal.Email, principal.DisplayName)
	for n := 0; n < MaxUsernameAttempts; n++ {
		candidate := usernameCandidate(base, n)
		_, err := s.repo.GetUserByUsername(ctx, candidate)
		if err == nil {
			continue
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}

		user := &models.User{
			ExternalID:         principal.ExternalID,
			Username:           candidate,
			Email:              principal.Email,
			DisplayName:        principal.DisplayName,
			AvatarURL:          principal.PictureURL,
			EmailNotifications: true,
		}
		err = s.repo.CreateUser(ctx, user)
		if err == nil {
			log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user registered")
			return user, nil
		}
		if !errors.Is(err, repositories.ErrConflict) {
			return nil, fmt.Errorf("failed to register user: %w", err)
		}
		// A concurrent sign-in of the same identity wins the race.
		if existing, lookupErr := s.repo.GetUserByExternalID(ctx, principal.ExternalID); lookupErr == nil {
			return existing, nil
		}
		if _, lookupErr := s.repo.GetUserByEmail(ctx, principal.Email); lookupErr == nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: no free username for %q", repositories.ErrConflict, base)
}

// CheckUsername validates a username and reports whether it is free.
func (s *AuthService) CheckUsername(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return false, err
	}
	_, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, repositories.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// UpdateUsername renames the caller.
func (s *AuthService) UpdateUsername(ctx context.Context, callerID, username string) (*models.User, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if user.Username == username {
		return user, nil
	}
	existing, err := s.repo.GetUserByUsername(ctx, username)
	if err == nil && existing.ID != callerID {
		return nil, fmt.Errorf("%w: username is already taken", repositories.ErrConflict)
	}
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	user.Username = username
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile edits the caller's profile.
func (s *AuthService) UpdateProfile(ctx context.Context, callerID string, in ProfileInput) (*models.User, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.repo.GetUserByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if in.DisplayName != nil {
		user.DisplayName = strings.TrimSpace(*in.DisplayName)
	}
	if in.Bio != nil {
		user.Bio = *in.Bio
	}
	if in.Website != nil {
		user.Website = strings.TrimSpace(*in.Website)
	}
	if in.EmailNotifications != nil {
		user.EmailNotifications = *in.EmailNotifications
	}
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetProfile returns a user by username.
func (s *AuthService) GetProfile(ctx context.Context, username string) (*models.User, error) {
	return s.repo.GetUserByUsername(ctx, username)
}

// GetUser returns a user by id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// SearchCreators matches users by username or bio.
func (s *AuthService) SearchCreators(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}
	return s.repo.SearchUsers(ctx, query, CreatorSearchLimit)
}
