package admission

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of a validated token the rest of the layer consumes.
type Claims interface {
	UserID() string
	RoleNames() []string
	HasRole(role string) bool
	Expires() time.Time
	Issued() time.Time
}

// JWTClaims carries the registered claim set plus the role names granted to
// the subject at issue time. Roles in a token are a snapshot: the gate
// re-reads them from the identity store on every request.
type JWTClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

func (c *JWTClaims) UserID() string {
	return c.Subject
}

func (c *JWTClaims) RoleNames() []string {
	return c.Roles
}

func (c *JWTClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

func (c *JWTClaims) Issued() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}
