package auth

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutDTO optionally carries the refresh token so both tokens die together.
type LogoutDTO struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}
