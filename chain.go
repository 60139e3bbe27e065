package admission

import (
	"context"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-admission/middleware/cors"
	"github.com/goliatone/go-admission/middleware/csrf"
	"github.com/goliatone/go-admission/middleware/gate"
	"github.com/goliatone/go-admission/middleware/ratelimit"
	"github.com/goliatone/go-router"
)

type accessKind int

const (
	accessPublic accessKind = iota
	accessAuthenticated
	accessRole
)

// Access is the admission requirement attached to a path rule.
type Access struct {
	kind accessKind
	role string
}

// AccessPublic admits everyone, anonymous included.
var AccessPublic = Access{kind: accessPublic}

// AccessAuthenticated admits any request with a resolved principal.
var AccessAuthenticated = Access{kind: accessAuthenticated}

// AccessRole admits principals carrying the given role.
func AccessRole(role string) Access {
	return Access{kind: accessRole, role: role}
}

// Rule binds a path prefix to an access requirement.
type Rule struct {
	Prefix string
	Access Access
}

// Policy is an ordered decision table over path prefixes. First match wins;
// paths matching no rule fall back to the default, which requires
// authentication unless configured otherwise.
type Policy struct {
	Rules   []Rule
	Default Access
}

// Evaluate decides whether principal may reach path. A nil result admits
// the request; otherwise the error distinguishes missing identity from
// missing role.
func (p Policy) Evaluate(path string, principal *Principal) error {
	access := p.Default
	for _, rule := range p.Rules {
		if rule.Prefix == "" || strings.HasPrefix(path, rule.Prefix) {
			access = rule.Access
			break
		}
	}

	switch access.kind {
	case accessPublic:
		return nil
	case accessAuthenticated:
		if principal == nil {
			return ErrUnauthenticated
		}
		return nil
	case accessRole:
		if principal == nil {
			return ErrUnauthenticated
		}
		if !principal.HasRole(access.role) {
			return ErrForbidden
		}
		return nil
	}

	return ErrUnauthenticated
}

// ChainConfig collects everything the two admission pipelines share.
type ChainConfig struct {
	Tokens   TokenService
	Resolver PrincipalResolver
	Limiter  *ratelimit.Limiter
	Logger   Logger

	// CookieName is the session cookie the gate falls back to when no
	// bearer header is present
	CookieName string

	// CookieSecure marks issued cookies Secure
	CookieSecure bool

	// AllowedOrigin is the single credentialed origin for browser calls
	AllowedOrigin string

	// WebhookPath receives provider callbacks verified by signature; it
	// bypasses CSRF and rate limiting and gets wildcard CORS without
	// credentials.
	WebhookPath string

	// LoginPath is where the web pipeline sends unauthenticated browsers
	LoginPath string

	// ExcludedPrefixes bypass token extraction in the gate
	ExcludedPrefixes []string

	// CSRFExemptPrefixes skip the double submit check in addition to the
	// webhook path, e.g. the login entry points posted to from other
	// origins.
	CSRFExemptPrefixes []string

	// Rules is the shared authorization decision table
	Rules []Rule

	// DefaultAccess applies to paths matching no rule. Zero value is
	// public, so most callers want AccessAuthenticated here.
	DefaultAccess Access

	// ContextKey is the locals slot for the resolved principal
	ContextKey string
}

// Validate checks the configuration is complete enough to build pipelines.
func (c ChainConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Tokens, validation.Required),
		validation.Field(&c.AllowedOrigin, validation.Required),
		validation.Field(&c.LoginPath, validation.Required),
	)
}

// ChainConfigFrom maps an application config onto a ChainConfig. Rules are
// derived from the configured prefixes: excluded paths and the login path
// stay public, the admin prefix requires the admin role, the API prefix
// requires authentication, and unmatched paths default to authenticated.
func ChainConfigFrom(appCfg Config, tokens TokenService, resolver PrincipalResolver, logger Logger) ChainConfig {
	rules := []Rule{}
	for _, prefix := range appCfg.GetExcludedPaths() {
		rules = append(rules, Rule{Prefix: prefix, Access: AccessPublic})
	}
	if login := appCfg.GetLoginPath(); login != "" {
		rules = append(rules, Rule{Prefix: login, Access: AccessPublic})
	}
	if admin := appCfg.GetAdminPathPrefix(); admin != "" {
		rules = append(rules, Rule{Prefix: admin, Access: AccessRole(RoleAdmin)})
	}
	if api := appCfg.GetAPIPathPrefix(); api != "" {
		rules = append(rules, Rule{Prefix: api, Access: AccessAuthenticated})
	}

	var limiter *ratelimit.Limiter
	if appCfg.GetRateLimitMax() > 0 {
		limiter = ratelimit.NewLimiter(
			time.Duration(appCfg.GetRateLimitWindowSeconds())*time.Second,
			appCfg.GetRateLimitMax(),
		)
	}

	return ChainConfig{
		Tokens:             tokens,
		Resolver:           resolver,
		Limiter:            limiter,
		Logger:             logger,
		CookieName:         appCfg.GetCookieName(),
		CookieSecure:       appCfg.GetCookieSecure(),
		AllowedOrigin:      appCfg.GetAllowedOrigin(),
		WebhookPath:        appCfg.GetWebhookPath(),
		LoginPath:          appCfg.GetLoginPath(),
		ExcludedPrefixes:   appCfg.GetExcludedPaths(),
		CSRFExemptPrefixes: appCfg.GetCSRFExemptPaths(),
		Rules:              rules,
		DefaultAccess:      AccessAuthenticated,
		ContextKey:         appCfg.GetContextKey(),
	}
}

// Chains builds the two middleware pipelines of the admission layer: an
// API pipeline answering failures with status codes and a web pipeline
// steering browsers to the login flow.
type Chains struct {
	cfg    ChainConfig
	policy Policy
	logger Logger
}

func NewChains(cfg ChainConfig) (*Chains, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewLimiter(0, 0)
	}

	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	return &Chains{
		cfg: cfg,
		policy: Policy{
			Rules:   cfg.Rules,
			Default: cfg.DefaultAccess,
		},
		logger: cfg.Logger,
	}, nil
}

// Policy exposes the decision table the pipelines enforce.
func (c *Chains) Policy() Policy {
	return c.policy
}

// StartSweeper launches the limiter's background reclaim loop.
func (c *Chains) StartSweeper(ctx context.Context) {
	c.cfg.Limiter.Start(ctx)
}

// StopSweeper halts the limiter's background reclaim loop.
func (c *Chains) StopSweeper() {
	c.cfg.Limiter.Stop()
}

// API returns the pipeline for programmatic clients: rate limiting, CORS,
// CSRF, the authentication gate, then authorization answering with plain
// status codes.
func (c *Chains) API() []router.MiddlewareFunc {
	return []router.MiddlewareFunc{
		c.rateLimit(),
		c.cors(),
		c.csrf(),
		c.gate(),
		c.Authorize(c.apiDenied),
	}
}

// Web returns the pipeline for browser traffic: same admission steps minus
// CSRF, with unauthenticated requests redirected to the login flow.
func (c *Chains) Web() []router.MiddlewareFunc {
	return []router.MiddlewareFunc{
		c.rateLimit(),
		c.cors(),
		c.gate(),
		c.Authorize(c.webDenied),
	}
}

func (c *Chains) rateLimit() router.MiddlewareFunc {
	return ratelimit.New(ratelimit.Config{
		Limiter: c.cfg.Limiter,
		Logger:  c.cfg.Logger,
		Skip: func(ctx router.Context) bool {
			return c.cfg.WebhookPath != "" && strings.HasPrefix(ctx.Path(), c.cfg.WebhookPath)
		},
	})
}

func (c *Chains) cors() router.MiddlewareFunc {
	rules := []cors.Rule{}
	if c.cfg.WebhookPath != "" {
		rules = append(rules, cors.Rule{
			PathPrefix:   c.cfg.WebhookPath,
			AllowOrigins: []string{"*"},
		})
	}
	rules = append(rules, cors.Rule{
		AllowOrigins:     []string{c.cfg.AllowedOrigin},
		AllowCredentials: true,
		MaxAge:           int((12 * time.Hour).Seconds()),
	})

	return cors.New(cors.Config{Rules: rules})
}

func (c *Chains) csrf() router.MiddlewareFunc {
	exempt := []string{}
	if c.cfg.WebhookPath != "" {
		exempt = append(exempt, c.cfg.WebhookPath)
	}
	exempt = append(exempt, c.cfg.CSRFExemptPrefixes...)

	return csrf.New(csrf.Config{
		ExemptPrefixes: exempt,
		CookieSecure:   c.cfg.CookieSecure,
	})
}

func (c *Chains) gate() router.MiddlewareFunc {
	return gate.New(gate.Config{
		TokenValidator:   gateValidator{tokens: c.cfg.Tokens},
		Resolver:         gateResolver{resolver: c.cfg.Resolver},
		TokenLookup:      "header:" + router.HeaderAuthorization + ",cookie:" + c.cfg.CookieName,
		ContextKey:       c.cfg.ContextKey,
		ExcludedPrefixes: c.cfg.ExcludedPrefixes,
		Logger:           c.cfg.Logger,
		IsExpired:        IsTokenExpiredError,
		ContextEnricher: func(stdCtx context.Context, claims gate.Claims, principal any) context.Context {
			if p, ok := principal.(*Principal); ok {
				stdCtx = WithPrincipal(stdCtx, p)
			}
			if cl, ok := claims.(Claims); ok {
				stdCtx = WithClaims(stdCtx, cl)
			}
			return stdCtx
		},
	})
}

// Authorize enforces the decision table against the principal the gate
// attached. The denied handler shapes the refusal.
func (c *Chains) Authorize(denied func(ctx router.Context, err error) error) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			principal, _ := RouterPrincipal(ctx, c.cfg.ContextKey)

			if err := c.policy.Evaluate(ctx.Path(), principal); err != nil {
				return denied(ctx, err)
			}

			return ctx.Next()
		}
	}
}

func (c *Chains) apiDenied(ctx router.Context, err error) error {
	if IsForbiddenError(err) {
		return ctx.Status(router.StatusForbidden).JSON(router.StatusForbidden, map[string]any{
			"error": ErrForbidden.Message,
		})
	}

	return ctx.Status(router.StatusUnauthorized).JSON(router.StatusUnauthorized, map[string]any{
		"error": ErrUnauthenticated.Message,
	})
}

func (c *Chains) webDenied(ctx router.Context, err error) error {
	if IsForbiddenError(err) {
		return ctx.Status(router.StatusForbidden).SendString("insufficient permissions")
	}

	return ctx.Redirect(c.cfg.LoginPath, http.StatusFound)
}

// gateValidator adapts the TokenService to the gate's validator interface.
type gateValidator struct {
	tokens TokenService
}

func (v gateValidator) Validate(raw string) (gate.Claims, error) {
	claims, err := v.tokens.Validate(raw)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// gateResolver adapts the PrincipalResolver to the gate's interface.
type gateResolver struct {
	resolver PrincipalResolver
}

func (r gateResolver) Resolve(ctx context.Context, subject string) (any, error) {
	if r.resolver == nil {
		return nil, nil
	}
	return r.resolver.Resolve(ctx, subject)
}
