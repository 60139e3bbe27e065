package gate

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup = "header:" + router.HeaderAuthorization + ",cookie:admission"
	ErrTokenMissing    = errors.New("missing bearer token")
)

// DefaultCookieName is the session cookie inspected when no bearer header
// is present
const DefaultCookieName = "admission"

// DefaultContextKey is the locals slot the resolved principal is stored
// under
const DefaultContextKey = "principal"

// Claims mirrors the validated token surface of the root package without
// importing it
type Claims interface {
	UserID() string
	RoleNames() []string
	HasRole(role string) bool
}

// TokenValidator validates a raw token and returns its claims
type TokenValidator interface {
	Validate(raw string) (Claims, error)
}

// PrincipalResolver turns a token subject into the identity attached to the
// request. Returning an error leaves the request anonymous.
type PrincipalResolver interface {
	Resolve(ctx context.Context, subject string) (any, error)
}

// Logger mirrors the logging surface of the root package
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type Config struct {
	// Filter skips the middleware entirely when it returns true
	Filter func(router.Context) bool

	// ExcludedPrefixes are path prefixes that bypass token extraction,
	// for endpoints verified by other means such as webhook signatures.
	ExcludedPrefixes []string

	// TokenValidator is required
	TokenValidator TokenValidator

	// Resolver loads the live principal for a validated subject. Optional;
	// without it only claims are attached.
	Resolver PrincipalResolver

	// TokenLookup defines where to look for the token, in precedence
	// order. Format: "header:Authorization,cookie:admission"
	TokenLookup string

	// AuthScheme is the header scheme stripped from the header value
	AuthScheme string

	// ContextKey is the locals slot for the resolved principal
	ContextKey string

	// ClaimsContextKey is the locals slot for the raw claims
	ClaimsContextKey string

	// ContextEnricher propagates the identity into the standard context so
	// handlers below router level can read it.
	ContextEnricher func(c context.Context, claims Claims, principal any) context.Context

	// OnMalformed is invoked when a presented token fails structural
	// validation. The request still proceeds anonymously.
	OnMalformed func(ctx router.Context, err error)

	// IsExpired classifies validation errors as normal expiry. Defaults
	// to message sniffing on "token is expired".
	IsExpired func(error) bool

	Logger Logger

	SuccessHandler router.HandlerFunc
}

// New creates the authentication gate. It never rejects: a request with no
// token, a stale token, or a broken token proceeds anonymously and the
// authorization layer decides what anonymous may reach.
func New(config ...Config) router.MiddlewareFunc {
	cfg := configDefault(config...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			if pathExcluded(ctx.Path(), cfg.ExcludedPrefixes) {
				return cfg.SuccessHandler(ctx)
			}

			raw, err := extractRawToken(ctx, cfg)
			if err != nil || raw == "" {
				return cfg.SuccessHandler(ctx)
			}

			claims, err := cfg.TokenValidator.Validate(raw)
			if err != nil {
				if cfg.IsExpired(err) {
					cfg.Logger.Debug("expired token presented on %s", ctx.Path())
				} else {
					cfg.Logger.Warn("malformed token presented on %s: %v", ctx.Path(), err)
					if cfg.OnMalformed != nil {
						cfg.OnMalformed(ctx, err)
					}
				}
				return cfg.SuccessHandler(ctx)
			}

			var principal any
			if cfg.Resolver != nil {
				principal, err = cfg.Resolver.Resolve(ctx.Context(), claims.UserID())
				if err != nil {
					cfg.Logger.Debug("principal resolution failed for subject %s: %v", claims.UserID(), err)
					return cfg.SuccessHandler(ctx)
				}
			}

			ctx.Locals(cfg.ClaimsContextKey, claims)
			if principal != nil {
				ctx.Locals(cfg.ContextKey, principal)
			}

			if cfg.ContextEnricher != nil {
				stdCtx := cfg.ContextEnricher(ctx.Context(), claims, principal)
				ctx.SetContext(stdCtx)
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

	if cfg.TokenValidator == nil {
		panic("ADMISSION: gate middleware configuration: TokenValidator is required.")
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.ClaimsContextKey == "" {
		cfg.ClaimsContextKey = cfg.ContextKey + "_claims"
	}

	if cfg.IsExpired == nil {
		cfg.IsExpired = func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "token is expired")
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	return cfg
}

func pathExcluded(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// TokenExtractor pulls a raw token out of the request
type TokenExtractor func(c router.Context) (string, error)

func extractRawToken(ctx router.Context, cfg Config) (string, error) {
	var raw string
	var err error

	for _, extractor := range getExtractors(cfg.TokenLookup, cfg.AuthScheme) {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func getExtractors(tokenLookup, authScheme string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	// header:Authorization,cookie:admission
	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, tokenFromHeader(parts[1], authScheme))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(parts[1]))
		case "query":
			extractors = append(extractors, tokenFromQuery(parts[1]))
		}
	}

	return extractors
}

// tokenFromHeader returns a function that extracts the token from the
// request header.
func tokenFromHeader(header string, authScheme string) TokenExtractor {
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		l := len(authScheme)
		if l == 0 {
			return "", ErrTokenMissing
		}
		authScheme = strings.TrimSpace(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrTokenMissing
	}
}

// tokenFromCookie returns a function that extracts the token from the named
// cookie.
func tokenFromCookie(name string) TokenExtractor {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissing
		}
		return token, nil
	}
}

// tokenFromQuery returns a function that extracts the token from the query
// string.
func tokenFromQuery(param string) TokenExtractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrTokenMissing
		}
		return token, nil
	}
}
