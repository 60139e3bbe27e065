package admission

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

// Profile is the identity a provider vouches for after the code exchange.
type Profile struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// Provider is an external OAuth identity provider.
type Provider interface {
	Name() string
	// AuthURL builds the provider redirect carrying the signed state.
	AuthURL(state string) string
	// Exchange trades the callback code for the provider profile.
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// LoginConfig configures the login controller.
type LoginConfig struct {
	// CookieName for storing the session token
	CookieName string

	// CookieSecure sets the Secure flag on cookies
	CookieSecure bool

	// CookieSameSite sets the SameSite attribute (e.g. "Lax", "Strict")
	CookieSameSite string

	// CookieTTL is the session cookie lifetime; defaults to the token TTL
	CookieTTL time.Duration

	// SuccessRedirect is the default redirect after successful auth,
	// typically the frontend callback page
	SuccessRedirect string

	// ErrorRedirect is the redirect for auth errors
	ErrorRedirect string

	Logger Logger
}

// LoginConfigFrom maps an application config onto a LoginConfig.
func LoginConfigFrom(appCfg Config, logger Logger) LoginConfig {
	return LoginConfig{
		CookieName:      appCfg.GetCookieName(),
		CookieSecure:    appCfg.GetCookieSecure(),
		CookieSameSite:  appCfg.GetCookieSameSite(),
		CookieTTL:       time.Duration(appCfg.GetTokenTTLSeconds()) * time.Second,
		SuccessRedirect: appCfg.GetFrontendURL(),
		Logger:          logger,
	}
}

// AccountRegistry is the slice of account storage the login flow needs.
type AccountRegistry interface {
	GetOrCreate(ctx context.Context, record *User) (*User, error)
	TrackLogin(ctx context.Context, user *User) error
}

// LoginController drives the provider login flow: it hands browsers to the
// provider, finishes the code exchange, mints the session token, and sets
// the cookie the gate reads on later requests.
type LoginController struct {
	providers map[string]Provider
	users     AccountRegistry
	tokens    TokenService
	states    StateManager
	config    LoginConfig
}

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

func NewLoginController(users AccountRegistry, tokens TokenService, states StateManager, cfg LoginConfig, providers ...Provider) *LoginController {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CookieSameSite == "" {
		cfg.CookieSameSite = "Lax"
	}
	if cfg.CookieTTL <= 0 {
		cfg.CookieTTL = DefaultTokenTTLSeconds * time.Second
	}
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}
	if cfg.ErrorRedirect == "" {
		cfg.ErrorRedirect = "/login?error=auth_failed"
	}
	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p != nil {
			byName[p.Name()] = p
		}
	}

	return &LoginController{
		providers: byName,
		users:     users,
		tokens:    tokens,
		states:    states,
		config:    cfg,
	}
}

// RegisterRoutes registers the login flow routes.
func (c *LoginController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/:provider/callback", c.Callback)
	group.Get("/:provider", c.BeginAuth)
	group.Post("/logout", c.Logout)
}

// BeginAuth starts the OAuth flow by bouncing the browser to the provider.
func (c *LoginController) BeginAuth(ctx router.Context) error {
	provider, ok := c.providers[ctx.Param("provider")]
	if !ok {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "unknown provider",
		})
	}

	redirectURL := ctx.Query("redirect_url", "")

	state, err := c.states.Encode(&OAuthState{
		Provider:    provider.Name(),
		RedirectURL: redirectURL,
	})
	if err != nil {
		c.config.Logger.Error("failed to encode OAuth state: %v", err)
		return ctx.Redirect(c.config.ErrorRedirect, http.StatusTemporaryRedirect)
	}

	return ctx.Redirect(provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback finishes the OAuth flow: verify state, exchange the code, load
// or create the account, mint the session token, and hand the browser back
// to the frontend.
func (c *LoginController) Callback(ctx router.Context) error {
	provider, ok := c.providers[ctx.Param("provider")]
	if !ok {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "unknown provider",
		})
	}

	if errCode := ctx.Query("error", ""); errCode != "" {
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "oauth_error", errCode)
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	code := ctx.Query("code", "")
	rawState := ctx.Query("state", "")
	if code == "" || rawState == "" {
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", "missing_params")
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	state, err := c.states.Decode(rawState)
	if err != nil || state.Provider != provider.Name() {
		c.config.Logger.Warn("OAuth state rejected for provider %s: %v", provider.Name(), err)
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", "invalid_state")
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	profile, err := provider.Exchange(ctx.Context(), code)
	if err != nil {
		c.config.Logger.Error("OAuth code exchange failed for provider %s: %v", provider.Name(), err)
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", "exchange_failed")
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	user, err := c.users.GetOrCreate(ctx.Context(), &User{
		Email:      profile.Email,
		Name:       profile.Name,
		Picture:    profile.Picture,
		Provider:   provider.Name(),
		ProviderID: profile.Subject,
	})
	if err != nil {
		c.config.Logger.Error("failed to load account for %s: %v", profile.Email, err)
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", "account_failed")
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	if err := c.users.TrackLogin(ctx.Context(), user); err != nil {
		c.config.Logger.Warn("failed to track login for %s: %v", user.ID, err)
	}

	token, err := c.tokens.Issue(PrincipalFromUser(user))
	if err != nil {
		c.config.Logger.Error("failed to issue session token for %s: %v", user.ID, err)
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", "token_failed")
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	c.setSessionCookie(ctx, token)

	redirectURL := state.RedirectURL
	if redirectURL == "" {
		redirectURL = c.config.SuccessRedirect
	}

	return ctx.Redirect(redirectURL, http.StatusFound)
}

// Logout clears the session cookie. Issued tokens stay valid until expiry;
// there is no server side revocation list.
func (c *LoginController) Logout(ctx router.Context) error {
	c.clearSessionCookie(ctx)
	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "logged_out",
	})
}

func (c *LoginController) setSessionCookie(ctx router.Context, token string) {
	ctx.Cookie(&router.Cookie{
		Name:     c.config.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(c.config.CookieTTL),
		HTTPOnly: true,
		Secure:   c.config.CookieSecure,
		SameSite: c.config.CookieSameSite,
	})
}

func (c *LoginController) clearSessionCookie(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     c.config.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   c.config.CookieSecure,
		SameSite: c.config.CookieSameSite,
	})
}

func appendQueryParam(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
	}

	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
