package cors

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-router"
)

// Rule scopes a CORS policy to a path prefix. Rules are evaluated in
// order; the first prefix match wins.
type Rule struct {
	// PathPrefix the rule applies to. An empty prefix matches everything.
	PathPrefix string

	// AllowOrigins is the set of permitted origins. A single "*" entry
	// allows any origin and forces AllowCredentials off on the wire:
	// browsers reject the wildcard and credentials combination.
	AllowOrigins []string

	// AllowCredentials lets the browser send cookies cross origin
	AllowCredentials bool

	// AllowMethods advertised on preflight
	AllowMethods []string

	// AllowHeaders advertised on preflight
	AllowHeaders []string

	// ExposeHeaders the browser may read off actual responses
	ExposeHeaders []string

	// MaxAge is how long in seconds the browser may cache the preflight
	MaxAge int
}

// Config defines the configuration for the CORS middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(router.Context) bool

	// Rules evaluated in order against the request path
	Rules []Rule
}

var defaultMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
var defaultHeaders = []string{"Content-Type", "Authorization", "X-CSRF-Token"}
var defaultExposeHeaders = []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}

// New creates CORS middleware. Requests without an Origin header pass
// straight through; preflights are answered here and never reach handlers.
func New(config ...Config) router.MiddlewareFunc {
	cfg := configDefault(config...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			origin := ctx.Header("Origin")
			if origin == "" {
				return ctx.Next()
			}

			rule, ok := matchRule(cfg.Rules, ctx.Path())
			if !ok {
				return ctx.Next()
			}

			allowed, wildcard := originAllowed(rule, origin)
			if allowed {
				if wildcard {
					ctx.SetHeader("Access-Control-Allow-Origin", "*")
				} else {
					ctx.SetHeader("Access-Control-Allow-Origin", origin)
					ctx.SetHeader("Vary", "Origin")
					if rule.AllowCredentials {
						ctx.SetHeader("Access-Control-Allow-Credentials", "true")
					}
				}
			}

			if strings.ToUpper(ctx.Method()) == "OPTIONS" {
				if allowed {
					ctx.SetHeader("Access-Control-Allow-Methods", strings.Join(rule.AllowMethods, ", "))
					ctx.SetHeader("Access-Control-Allow-Headers", strings.Join(rule.AllowHeaders, ", "))
					if rule.MaxAge > 0 {
						ctx.SetHeader("Access-Control-Max-Age", strconv.Itoa(rule.MaxAge))
					}
				}
				return ctx.Status(204).SendString("")
			}

			if allowed && len(rule.ExposeHeaders) > 0 {
				ctx.SetHeader("Access-Control-Expose-Headers", strings.Join(rule.ExposeHeaders, ", "))
			}

			return ctx.Next()
		}
	}
}

func configDefault(config ...Config) Config {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	for i := range cfg.Rules {
		if len(cfg.Rules[i].AllowMethods) == 0 {
			cfg.Rules[i].AllowMethods = defaultMethods
		}
		if len(cfg.Rules[i].AllowHeaders) == 0 {
			cfg.Rules[i].AllowHeaders = defaultHeaders
		}
		if len(cfg.Rules[i].ExposeHeaders) == 0 {
			cfg.Rules[i].ExposeHeaders = defaultExposeHeaders
		}
	}

	return cfg
}

func matchRule(rules []Rule, path string) (Rule, bool) {
	for _, rule := range rules {
		if rule.PathPrefix == "" || strings.HasPrefix(path, rule.PathPrefix) {
			return rule, true
		}
	}
	return Rule{}, false
}

func originAllowed(rule Rule, origin string) (allowed bool, wildcard bool) {
	for _, o := range rule.AllowOrigins {
		if o == "*" {
			return true, true
		}
		if strings.EqualFold(o, origin) {
			return true, false
		}
	}
	return false, false
}
