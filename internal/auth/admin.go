package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/charlesng35/linkcard/pkg/crypto"
)

// ErrInvalidCredentials indicates a username or password mismatch.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// ErrAdminDisabled indicates that no admin password hash is configured.
var ErrAdminDisabled = errors.New("auth: admin login disabled")

// AdminConfig holds the single administrator account.
type AdminConfig struct {
	Username     string
	PasswordHash string
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
}

// AdminAuthenticator checks the configured admin credentials and issues tokens.
type AdminAuthenticator struct {
	username     string
	passwordHash string
	tokens       *JWTService
}

// NewAdminAuthenticator wires the admin account to the token service.
func NewAdminAuthenticator(cfg AdminConfig, tokens *JWTService) (*AdminAuthenticator, error) {
	if tokens == nil {
		return nil, errors.New("auth: jwt service is required")
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "admin"
	}
	return &AdminAuthenticator{
		username:     username,
		passwordHash: strings.TrimSpace(cfg.PasswordHash),
		tokens:       tokens,
	}, nil
}

// Enabled reports whether a password hash is configured.
func (a *AdminAuthenticator) Enabled() bool {
	return a.passwordHash != ""
}

// Login verifies username and password and returns a signed token.
func (a *AdminAuthenticator) Login(username, password string) (*LoginResult, error) {
	if !a.Enabled() {
		return nil, ErrAdminDisabled
	}

	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(a.username)) == 1
	passOK := crypto.VerifyPassword(a.passwordHash, password)
	if !userOK || !passOK {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := a.tokens.GenerateAccessToken(AccessTokenInput{Username: a.username, Role: RoleAdmin})
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Username: a.username}, nil
}

// Validate parses token and requires the admin role.
func (a *AdminAuthenticator) Validate(token string) (*Claims, error) {
	claims, err := a.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
