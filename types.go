package admission

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityStore is the lookup capability the admission layer requires from
// persistent user storage. The layer never caches results: every
// authenticated request performs a fresh lookup so role revocation takes
// effect on the very next request.
type IdentityStore interface {
	ByID(ctx context.Context, id uuid.UUID) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	GetOrCreate(ctx context.Context, record *User) (*User, error)
}

// Config holds admission options
type Config interface {
	GetSigningKey() string
	GetTokenTTLSeconds() int
	GetIssuer() string
	GetAudience() []string
	GetContextKey() string
	GetCookieName() string
	GetCookieSecure() bool
	GetCookieSameSite() string
	GetRateLimitWindowSeconds() int
	GetRateLimitMax() int
	GetExcludedPaths() []string
	GetCSRFExemptPaths() []string
	GetAllowedOrigin() string
	GetWebhookPath() string
	GetAPIPathPrefix() string
	GetAdminPathPrefix() string
	GetFrontendURL() string
	GetLoginPath() string
}

// DefaultLogger returns the fallback printf logger used when a component is
// built without one.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ADMISSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ADMISSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ADMISSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ADMISSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
