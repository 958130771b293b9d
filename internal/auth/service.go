package auth

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/expenseflow/internal"
	"github.com/frahmantamala/expenseflow/internal/core/common/validation"
)

type Options struct {
	// DemoMode accepts any non-empty email and password, provisioning
	// unknown users on first login.
	DemoMode           bool
	BCryptCost         int
	DefaultPermissions []string
}

// Service is the main auth service with dependencies
type Service struct {
	repo        RepositoryAPI
	tokens      TokenGenerator
	revocations RevocationStore
	opts        Options
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, tokens TokenGenerator, revocations RevocationStore, opts Options, logger *slog.Logger) *Service {
	if revocations == nil {
		revocations = NewMemoryRevocationStore()
	}
	if opts.BCryptCost == 0 {
		opts.BCryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		tokens:      tokens,
		revocations: revocations,
		opts:        opts,
		logger:      logger,
	}
}

// Authenticate validates credentials and returns tokens for the user.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (*LoginResponse, error) {
	dto.Email = strings.ToLower(strings.TrimSpace(dto.Email))
	if appErr := validation.Struct(&dto); appErr != nil {
		return nil, appErr
	}

	creds, err := s.repo.GetCredentials(ctx, dto.Email)
	if err != nil {
		return nil, internal.NewInternalError("failed to load credentials", err)
	}

	var userID int64
	switch {
	case creds == nil && s.opts.DemoMode:
		userID, err = s.provision(ctx, dto)
		if err != nil {
			return nil, err
		}
	case creds == nil:
		s.logger.Warn("login failed: unknown email", "email", dto.Email)
		return nil, internal.ErrInvalidCredentials
	case !creds.IsActive:
		return nil, internal.ErrUserInactive
	default:
		if !s.opts.DemoMode {
			if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(dto.Password)); err != nil {
				s.logger.Warn("login failed: wrong password", "user_id", creds.UserID)
				return nil, internal.ErrInvalidCredentials
			}
		}
		userID = creds.UserID
	}

	user, active, err := s.repo.GetUserWithPermissions(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if user == nil {
		return nil, internal.ErrInvalidCredentials
	}
	if !active {
		return nil, internal.ErrUserInactive
	}

	tokens, err := s.issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "demo_mode", s.opts.DemoMode)
	return &LoginResponse{AuthTokens: *tokens, User: user}, nil
}

func (s *Service) provision(ctx context.Context, dto LoginDTO) (int64, error) {
	hash, err := s.HashPassword(dto.Password)
	if err != nil {
		return 0, internal.NewInternalError("failed to hash password", err)
	}

	id, err := s.repo.CreateUser(ctx, NewAccount{
		Email:        dto.Email,
		Name:         displayName(dto.Email),
		PasswordHash: hash,
		Permissions:  s.opts.DefaultPermissions,
	})
	if err != nil {
		return 0, internal.NewInternalError("failed to provision demo user", err)
	}

	s.logger.Info("demo user provisioned", "user_id", id, "permissions", s.opts.DefaultPermissions)
	return id, nil
}

// displayName derives a readable name from the local part of an email.
func displayName(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		local = email[:i]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	for i, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToUpper(r)) + p[size:]
	}
	if len(parts) == 0 {
		return email
	}
	return strings.Join(parts, " ")
}

// RefreshTokens rotates a refresh token: the presented one is revoked
// and a fresh pair is returned.
func (s *Service) RefreshTokens(ctx context.Context, dto RefreshTokenDTO) (*AuthTokens, error) {
	if appErr := validation.Struct(&dto); appErr != nil {
		return nil, appErr
	}

	claims, err := s.tokens.ValidateRefreshToken(dto.RefreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotRevoked(ctx, claims); err != nil {
		return nil, err
	}

	user, active, err := s.repo.GetUserWithPermissions(ctx, claims.UserID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if user == nil {
		return nil, internal.ErrInvalidToken
	}
	if !active {
		return nil, internal.ErrUserInactive
	}

	if err := s.revocations.Revoke(ctx, claims.ID, claims.Remaining()); err != nil {
		return nil, internal.NewInternalError("failed to revoke refresh token", err)
	}

	return s.issue(user.ID, user.Email)
}

// Logout revokes the access token and, when given, the refresh token.
func (s *Service) Logout(ctx context.Context, accessToken string, dto LogoutDTO) error {
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return err
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.Remaining()); err != nil {
		return internal.NewInternalError("failed to revoke token", err)
	}

	if dto.RefreshToken != "" {
		refresh, err := s.tokens.ValidateRefreshToken(dto.RefreshToken)
		if err == nil && refresh.UserID == claims.UserID {
			if err := s.revocations.Revoke(ctx, refresh.ID, refresh.Remaining()); err != nil {
				return internal.NewInternalError("failed to revoke token", err)
			}
		}
	}

	s.logger.Info("user logged out", "user_id", claims.UserID)
	return nil
}

// Authorize resolves an access token into the request principal.
func (s *Service) Authorize(ctx context.Context, accessToken string) (*internal.User, *Claims, error) {
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, nil, err
	}
	if err := s.ensureNotRevoked(ctx, claims); err != nil {
		return nil, nil, err
	}

	user, active, err := s.repo.GetUserWithPermissions(ctx, claims.UserID)
	if err != nil {
		return nil, nil, internal.NewInternalError("failed to load user", err)
	}
	if user == nil {
		return nil, nil, internal.ErrInvalidToken
	}
	if !active {
		return nil, nil, internal.ErrUserInactive
	}
	return user, claims, nil
}

func (s *Service) ensureNotRevoked(ctx context.Context, claims *Claims) error {
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return internal.NewInternalError("failed to check token revocation", err)
	}
	if revoked {
		return internal.ErrTokenRevoked
	}
	return nil
}

func (s *Service) issue(userID int64, email string) (*AuthTokens, error) {
	accessToken, accessClaims, err := s.tokens.GenerateAccessToken(userID, email)
	if err != nil {
		return nil, internal.NewInternalError("failed to sign access token", err)
	}

	refreshToken, _, err := s.tokens.GenerateRefreshToken(userID, email)
	if err != nil {
		return nil, internal.NewInternalError("failed to sign refresh token", err)
	}

	return &AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessClaims.Remaining().Seconds() + 0.5),
	}, nil
}

// HashPassword creates a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BCryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
