package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/expenseflow/internal"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

// mockRepository keeps accounts in memory
type mockRepository struct {
	nextID        int64
	byEmail       map[string]*Credentials
	users         map[int64]*internal.User
	returnError   bool
	errorToReturn error
}

func newMockRepository() *mockRepository {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct_password"), bcrypt.MinCost)

	return &mockRepository{
		nextID: 3,
		byEmail: map[string]*Credentials{
			"user@example.com":     {UserID: 1, Email: "user@example.com", PasswordHash: string(hash), IsActive: true},
			"inactive@example.com": {UserID: 2, Email: "inactive@example.com", PasswordHash: string(hash), IsActive: false},
			"manager@example.com":  {UserID: 3, Email: "manager@example.com", PasswordHash: string(hash), IsActive: true},
		},
		users: map[int64]*internal.User{
			1: {ID: 1, Email: "user@example.com", Permissions: []string{internal.PermissionViewExpenses}},
			2: {ID: 2, Email: "inactive@example.com"},
			3: {ID: 3, Email: "manager@example.com", Permissions: []string{internal.PermissionApproveExpenses}},
		},
	}
}

func (m *mockRepository) GetCredentials(_ context.Context, email string) (*Credentials, error) {
	if m.returnError {
		return nil, m.errorToReturn
	}
	return m.byEmail[email], nil
}

func (m *mockRepository) CreateUser(_ context.Context, account NewAccount) (int64, error) {
	if m.returnError {
		return 0, m.errorToReturn
	}
	m.nextID++
	m.byEmail[account.Email] = &Credentials{UserID: m.nextID, Email: account.Email, PasswordHash: account.PasswordHash, IsActive: true}
	m.users[m.nextID] = &internal.User{ID: m.nextID, Email: account.Email, Name: account.Name, Permissions: account.Permissions}
	return m.nextID, nil
}

func (m *mockRepository) GetUserWithPermissions(_ context.Context, userID int64) (*internal.User, bool, error) {
	if m.returnError {
		return nil, false, m.errorToReturn
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, false, nil
	}
	creds := m.byEmail[u.Email]
	return u, creds.IsActive, nil
}

func (m *mockRepository) setError(err error) {
	m.returnError = true
	m.errorToReturn = err
}

func appCode(err error) internal.ErrorCode {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		return ""
	}
	return appErr.Code
}

var _ = ginkgo.Describe("AuthService", func() {
	var (
		ctx      context.Context
		service  *Service
		mockRepo *mockRepository
		tokenGen *JWTTokenGenerator
		opts     Options
	)

	newService := func() *Service {
		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
		return NewService(mockRepo, tokenGen, NewMemoryRevocationStore(), opts, quiet)
	}

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		mockRepo = newMockRepository()
		tokenGen = NewJWTTokenGenerator("test-access-secret-0123", "test-refresh-secret-0123", 15*time.Minute, 24*time.Hour)
		opts = Options{BCryptCost: bcrypt.MinCost, DefaultPermissions: []string{internal.PermissionCreateExpenses}}
	})

	ginkgo.Describe("Authenticate without demo mode", func() {
		ginkgo.BeforeEach(func() {
			service = newService()
		})

		ginkgo.It("should return distinct access and refresh tokens for valid credentials", func() {
			// When
			resp, err := service.Authenticate(ctx, LoginDTO{Email: "User@Example.com ", Password: "correct_password"})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(resp.AccessToken).ToNot(gomega.BeEmpty())
			gomega.Expect(resp.RefreshToken).ToNot(gomega.Equal(resp.AccessToken))
			gomega.Expect(resp.TokenType).To(gomega.Equal("Bearer"))
			gomega.Expect(resp.ExpiresIn).To(gomega.BeNumerically("~", 900, 1))
			gomega.Expect(resp.User.ID).To(gomega.Equal(int64(1)))
		})

		ginkgo.It("should reject a wrong password", func() {
			_, err := service.Authenticate(ctx, LoginDTO{Email: "user@example.com", Password: "wrong"})
			gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeInvalidCredentials))
		})

		ginkgo.It("should reject an unknown email", func() {
			_, err := service.Authenticate(ctx, LoginDTO{Email: "ghost@example.com", Password: "x"})
			gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeInvalidCredentials))
		})

		ginkgo.It("should reject inactive users", func() {
			_, err := service.Authenticate(ctx, LoginDTO{Email: "inactive@example.com", Password: "correct_password"})
			gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeUserInactive))
		})

		ginkgo.It("should wrap repository failures as internal errors", func() {
			mockRepo.setError(errors.New("db down"))
			_, err := service.Authenticate(ctx, LoginDTO{Email: "user@example.com", Password: "correct_password"})
			gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeInternal))
		})
	})

	ginkgo.Describe("Authenticate in demo mode", func() {
		ginkgo.BeforeEach(func() {
			opts.DemoMode = true
			service = newService()
		})

		ginkgo.It("should provision an unknown user with default permissions", func() {
			resp, err := service.Authenticate(ctx, LoginDTO{Email: "jane.doe@example.com", Password: "anything"})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(resp.User.Name).To(gomega.Equal("Jane Doe"))
			gomega.Expect(resp.User.Permissions).To(gomega.ConsistOf(internal.PermissionCreateExpenses))
		})

		ginkgo.It("should capitalize non-ASCII names by rune", func() {
			resp, err := service.Authenticate(ctx, LoginDTO{Email: "élise.dupont@example.com", Password: "anything"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(resp.User.Name).To(gomega.Equal("Élise Dupont"))

			gomega.Expect(displayName("名前@example.com")).To(gomega.Equal("名前"))
			gomega.Expect(utf8.ValidString(displayName("ünal_öz@example.com"))).To(gomega.BeTrue())
			gomega.Expect(displayName("ünal_öz@example.com")).To(gomega.Equal("Ünal Öz"))
		})

		ginkgo.It("should accept any password for an existing user", func() {
			resp, err := service.Authenticate(ctx, LoginDTO{Email: "user@example.com", Password: "not-the-password"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(resp.User.ID).To(gomega.Equal(int64(1)))
		})

		ginkgo.It("should keep the bcrypt password limit", func() {
			_, err := service.Authenticate(ctx, LoginDTO{Email: "jane.doe@example.com", Password: strings.Repeat("p", 73)})
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(400))

			_, err = service.Authenticate(ctx, LoginDTO{Email: "jane.doe@example.com", Password: strings.Repeat("p", 72)})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})

		ginkgo.It("should still reject empty credentials", func() {
			_, err := service.Authenticate(ctx, LoginDTO{Email: "", Password: ""})
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(400))
			gomega.Expect(appErr.GetDetailedMessage()).To(gomega.ContainSubstring("email is a required field"))
		})
	})

	ginkgo.Describe("Authorize and Logout", func() {
		ginkgo.BeforeEach(func() {
			service = newService()
		})

		ginkgo.It("should resolve a fresh access token into the principal", func() {
			resp, err := service.Authenticate(ctx, LoginDTO{Email: "manager@example.com", Password: "correct_password"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			user, claims, err := service.Authorize(ctx, resp.AccessToken)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(user.IsManager()).To(gomega.BeTrue())
			gomega.Expect(claims.TokenType).To(gomega.Equal(TokenTypeAccess))
		})

		ginkgo.It("should refuse a refresh token used as an access token", func() {
			resp, _ := service.Authenticate(ctx, LoginDTO{Email: "user@example.com", Password: "correct_password"})

			_, _, err := service.Authorize(ctx, resp.RefreshToken)
			gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeInvalidToken))
		})

		ginkgo.It("should reject tokens after logout", func() {
			resp, _ := service.Authenticate(ctx, LoginDTO{Email: "user@example.com", Password: "correct_password"})

			gomega.Expect(service.Logout(ctx, resp.AccessToken, LogoutDTO{RefreshToken: resp.RefreshToken})).To(gomega.Succeed())

			_, _, err := service.Authorize(ctx, resp.AccessToken)
			gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeTokenRevoked))

			_, err = service.RefreshTokens(ctx, RefreshTokenDTO{RefreshToken: resp.RefreshToken})
			gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeTokenRevoked))
		})
	})

	ginkgo.Describe("RefreshTokens", func() {
		ginkgo.BeforeEach(func() {
			service = newService()
		})

		ginkgo.It("should rotate the refresh token", func() {
			resp, _ := service.Authenticate(ctx, LoginDTO{Email: "user@example.com", Password: "correct_password"})

			rotated, err := service.RefreshTokens(ctx, RefreshTokenDTO{RefreshToken: resp.RefreshToken})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rotated.RefreshToken).ToNot(gomega.Equal(resp.RefreshToken))

			_, err = service.RefreshTokens(ctx, RefreshTokenDTO{RefreshToken: resp.RefreshToken})
			gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeTokenRevoked))
		})

		ginkgo.It("should reject an access token presented for refresh", func() {
			resp, _ := service.Authenticate(ctx, LoginDTO{Email: "user@example.com", Password: "correct_password"})

			_, err := service.RefreshTokens(ctx, RefreshTokenDTO{RefreshToken: resp.AccessToken})
			gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeInvalidToken))
		})

		ginkgo.It("should require the refresh token", func() {
			_, err := service.RefreshTokens(ctx, RefreshTokenDTO{})
			gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeValidationFailed))
		})
	})
})

var _ = ginkgo.Describe("JWTTokenGenerator", func() {
	ginkgo.It("should report expired tokens as TOKEN_EXPIRED", func() {
		gen := NewJWTTokenGenerator("test-access-secret-0123", "test-refresh-secret-0123", -time.Minute, time.Hour)
		token, _, err := gen.GenerateAccessToken(1, "a@b.c")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = gen.ValidateAccessToken(token)
		gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeTokenExpired))
	})

	ginkgo.It("should reject tokens signed with another secret", func() {
		other := NewJWTTokenGenerator("another-access-secret-99", "another-refresh-secret-9", time.Minute, time.Hour)
		token, _, _ := other.GenerateAccessToken(1, "a@b.c")

		gen := NewJWTTokenGenerator("test-access-secret-0123", "test-refresh-secret-0123", time.Minute, time.Hour)
		_, err := gen.ValidateAccessToken(token)
		gomega.Expect(appCode(err)).To(gomega.Equal(internal.ErrCodeInvalidToken))
	})
})

var _ = ginkgo.Describe("MemoryRevocationStore", func() {
	ginkgo.It("should forget revocations after their ttl", func() {
		store := NewMemoryRevocationStore()
		now := time.Now()
		store.now = func() time.Time { return now }

		gomega.Expect(store.Revoke(context.Background(), "jti", time.Minute)).To(gomega.Succeed())
		revoked, _ := store.IsRevoked(context.Background(), "jti")
		gomega.Expect(revoked).To(gomega.BeTrue())

		now = now.Add(2 * time.Minute)
		revoked, _ = store.IsRevoked(context.Background(), "jti")
		gomega.Expect(revoked).To(gomega.BeFalse())
	})

	ginkgo.It("should ignore non-positive ttls", func() {
		store := NewMemoryRevocationStore()
		gomega.Expect(store.Revoke(context.Background(), "jti", 0)).To(gomega.Succeed())
		revoked, _ := store.IsRevoked(context.Background(), "jti")
		gomega.Expect(revoked).To(gomega.BeFalse())
	})
})
