package app

import (
	"strings"

	"github.com/charlesng35/linkcard/internal/auth"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// AdminConfig converts AuthConfig into the admin authenticator parameters.
func (c AuthConfig) AdminConfig() auth.AdminConfig {
	return auth.AdminConfig{
		Username:     strings.TrimSpace(c.Admin.Username),
		PasswordHash: strings.TrimSpace(c.Admin.PasswordHash),
	}
}
