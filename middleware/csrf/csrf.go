package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	ErrTokenMismatch = errors.New("CSRF token mismatch")
	ErrTokenMissing  = errors.New("CSRF token missing")
)

// DefaultTokenLength is the byte length of generated tokens
const DefaultTokenLength = 32

// DefaultCookieName is the script readable cookie carrying the token. The
// cookie is intentionally not HttpOnly: the client reads it and echoes the
// value back in the request header, which is the whole point of the
// double submit scheme.
const DefaultCookieName = "XSRF-TOKEN"

// DefaultHeaderName is the header the client echoes the cookie value in
const DefaultHeaderName = "X-CSRF-Token"

// DefaultContextKey is the key for storing the token in context
const DefaultContextKey = "csrf_token"

// Config defines the configuration for CSRF middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(router.Context) bool

	// ExemptPrefixes are path prefixes excluded from validation, such as
	// webhook endpoints authenticated by signature.
	ExemptPrefixes []string

	// TokenLength defines the byte length of generated tokens
	TokenLength int

	// CookieName is the script readable cookie the token lives in
	CookieName string

	// HeaderName is the request header checked against the cookie
	HeaderName string

	// ContextKey defines the key for storing the token in context
	ContextKey string

	// CookieSecure marks the issued cookie Secure
	CookieSecure bool

	// CookieExpiration is the issued cookie lifetime
	CookieExpiration time.Duration

	// SafeMethods defines HTTP methods that don't require validation
	SafeMethods []string

	// ErrorHandler defines the error handler
	ErrorHandler router.ErrorHandler

	// SuccessHandler defines the success handler
	SuccessHandler router.HandlerFunc
}

// New creates double submit CSRF middleware. A random token is issued in a
// script readable cookie; state changing requests must echo it back in the
// configured header, and the two are compared in constant time.
func New(config ...Config) router.MiddlewareFunc {
	cfg := configDefault(config...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			token := ctx.Cookies(cfg.CookieName)
			if token == "" {
				generated, err := generateToken(cfg.TokenLength)
				if err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
				token = generated
				setTokenCookie(ctx, cfg, token)
			}

			ctx.Locals(cfg.ContextKey, token)

			method := strings.ToUpper(ctx.Method())
			if slices.Contains(cfg.SafeMethods, method) {
				return cfg.SuccessHandler(ctx)
			}

			if pathExempt(ctx.Path(), cfg.ExemptPrefixes) {
				return cfg.SuccessHandler(ctx)
			}

			received := ctx.Header(cfg.HeaderName)
			if received == "" {
				return cfg.ErrorHandler(ctx, ErrTokenMissing)
			}

			if subtle.ConstantTimeCompare([]byte(received), []byte(token)) != 1 {
				return cfg.ErrorHandler(ctx, ErrTokenMismatch)
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

func configDefault(config ...Config) Config {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenLength <= 0 {
		cfg.TokenLength = DefaultTokenLength
	}

	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.CookieExpiration <= 0 {
		cfg.CookieExpiration = 12 * time.Hour
	}

	if len(cfg.SafeMethods) == 0 {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			return ctx.Status(router.StatusForbidden).SendString("CSRF validation failed")
		}
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	return cfg
}

func setTokenCookie(ctx router.Context, cfg Config, token string) {
	ctx.Cookie(&router.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(cfg.CookieExpiration),
		HTTPOnly: false,
		Secure:   cfg.CookieSecure,
		SameSite: "Lax",
	})
}

func pathExempt(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// generateToken generates a cryptographically secure random token
func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
