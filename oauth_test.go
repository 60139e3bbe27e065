package admission_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-admission"
	"github.com/google/uuid"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name        string
	profile     *admission.Profile
	exchangeErr error
	lastCode    string
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) AuthURL(state string) string {
	return "https://provider.example.com/authorize?state=" + state
}

func (p *stubProvider) Exchange(ctx context.Context, code string) (*admission.Profile, error) {
	p.lastCode = code
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.profile, nil
}

type stubRegistry struct {
	user        *admission.User
	created     *admission.User
	trackedIDs  []uuid.UUID
	getOrCreate error
}

func (r *stubRegistry) GetOrCreate(ctx context.Context, record *admission.User) (*admission.User, error) {
	if r.getOrCreate != nil {
		return nil, r.getOrCreate
	}
	if r.user != nil {
		return r.user, nil
	}
	record.ID = uuid.New()
	r.created = record
	return record, nil
}

func (r *stubRegistry) TrackLogin(ctx context.Context, user *admission.User) error {
	r.trackedIDs = append(r.trackedIDs, user.ID)
	return nil
}

func newLoginFixture(t *testing.T, registry *stubRegistry, provider *stubProvider) (*admission.LoginController, *admission.SignedStateManager) {
	t.Helper()
	states := newTestStateManager()
	controller := admission.NewLoginController(registry, newTestTokenService(t), states, admission.LoginConfig{
		SuccessRedirect: "https://app.example.com/callback",
		ErrorRedirect:   "/login?error=auth_failed",
	}, provider)
	return controller, states
}

func TestBeginAuth_RedirectsToProvider(t *testing.T) {
	provider := &stubProvider{name: "google"}
	controller, states := newLoginFixture(t, &stubRegistry{}, provider)

	var redirected string
	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "google"
	ctx.On("Redirect", mock.Anything, []int{http.StatusTemporaryRedirect}).Run(func(args mock.Arguments) {
		redirected = args.String(0)
	}).Return(nil)

	require.NoError(t, controller.BeginAuth(ctx))
	require.True(t, strings.HasPrefix(redirected, "https://provider.example.com/authorize?state="))

	rawState := strings.TrimPrefix(redirected, "https://provider.example.com/authorize?state=")
	state, err := states.Decode(rawState)
	require.NoError(t, err)
	assert.Equal(t, "google", state.Provider)
}

func TestBeginAuth_UnknownProvider(t *testing.T) {
	controller, _ := newLoginFixture(t, &stubRegistry{}, &stubProvider{name: "google"})

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "myspace"
	ctx.On("JSON", router.StatusBadRequest, mock.Anything).Return(nil)

	require.NoError(t, controller.BeginAuth(ctx))
}

func TestCallback_MintsSessionAndRedirects(t *testing.T) {
	userID := uuid.New()
	registry := &stubRegistry{
		user: &admission.User{
			ID:    userID,
			Email: "ada@example.com",
			Roles: []string{"member"},
		},
	}
	provider := &stubProvider{
		name: "google",
		profile: &admission.Profile{
			Subject: "google-sub-1",
			Email:   "ada@example.com",
			Name:    "Ada",
		},
	}
	controller, states := newLoginFixture(t, registry, provider)

	stateToken, err := states.Encode(&admission.OAuthState{Provider: "google"})
	require.NoError(t, err)

	var cookieValue string
	var redirected string

	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "google"
	ctx.QueriesM["code"] = "auth-code"
	ctx.QueriesM["state"] = stateToken
	ctx.On("Context").Return(context.Background())
	ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		cookieValue = c.Value
		return c.Name == admission.DefaultCookieName &&
			c.HTTPOnly &&
			c.Path == "/" &&
			c.Expires.After(time.Now())
	})).Return()
	ctx.On("Redirect", mock.Anything, []int{http.StatusFound}).Run(func(args mock.Arguments) {
		redirected = args.String(0)
	}).Return(nil)

	require.NoError(t, controller.Callback(ctx))

	assert.Equal(t, "auth-code", provider.lastCode)
	assert.Equal(t, "https://app.example.com/callback", redirected)
	assert.Equal(t, []uuid.UUID{userID}, registry.trackedIDs)

	// the cookie carries a token the service accepts for this account
	svc := newTestTokenService(t)
	ok, err := svc.IsValid(cookieValue, userID.String())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCallback_InvalidStateRedirectsToError(t *testing.T) {
	provider := &stubProvider{name: "google", profile: &admission.Profile{Email: "a@b.c"}}
	controller, _ := newLoginFixture(t, &stubRegistry{}, provider)

	var redirected string
	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "google"
	ctx.QueriesM["code"] = "auth-code"
	ctx.QueriesM["state"] = "tampered-state"
	ctx.On("Redirect", mock.Anything, []int{http.StatusTemporaryRedirect}).Run(func(args mock.Arguments) {
		redirected = args.String(0)
	}).Return(nil)

	require.NoError(t, controller.Callback(ctx))
	assert.Contains(t, redirected, "error=invalid_state")
	assert.Empty(t, provider.lastCode, "code must not be exchanged on bad state")
}

func TestCallback_StateProviderMismatch(t *testing.T) {
	provider := &stubProvider{name: "google", profile: &admission.Profile{Email: "a@b.c"}}
	controller, states := newLoginFixture(t, &stubRegistry{}, provider)

	stateToken, err := states.Encode(&admission.OAuthState{Provider: "github"})
	require.NoError(t, err)

	var redirected string
	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "google"
	ctx.QueriesM["code"] = "auth-code"
	ctx.QueriesM["state"] = stateToken
	ctx.On("Redirect", mock.Anything, []int{http.StatusTemporaryRedirect}).Run(func(args mock.Arguments) {
		redirected = args.String(0)
	}).Return(nil)

	require.NoError(t, controller.Callback(ctx))
	assert.Contains(t, redirected, "error=invalid_state")
}

func TestCallback_ProviderErrorShortCircuits(t *testing.T) {
	provider := &stubProvider{name: "google"}
	controller, _ := newLoginFixture(t, &stubRegistry{}, provider)

	var redirected string
	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "google"
	ctx.QueriesM["error"] = "access_denied"
	ctx.On("Redirect", mock.Anything, []int{http.StatusTemporaryRedirect}).Run(func(args mock.Arguments) {
		redirected = args.String(0)
	}).Return(nil)

	require.NoError(t, controller.Callback(ctx))
	assert.Contains(t, redirected, "oauth_error=access_denied")
}

func TestCallback_ExchangeFailure(t *testing.T) {
	provider := &stubProvider{name: "google", exchangeErr: errors.New("boom")}
	controller, states := newLoginFixture(t, &stubRegistry{}, provider)

	stateToken, err := states.Encode(&admission.OAuthState{Provider: "google"})
	require.NoError(t, err)

	var redirected string
	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "google"
	ctx.QueriesM["code"] = "auth-code"
	ctx.QueriesM["state"] = stateToken
	ctx.On("Context").Return(context.Background())
	ctx.On("Redirect", mock.Anything, []int{http.StatusTemporaryRedirect}).Run(func(args mock.Arguments) {
		redirected = args.String(0)
	}).Return(nil)

	require.NoError(t, controller.Callback(ctx))
	assert.Contains(t, redirected, "error=exchange_failed")
}

func TestCallback_RedirectTargetFromState(t *testing.T) {
	registry := &stubRegistry{}
	provider := &stubProvider{
		name:    "google",
		profile: &admission.Profile{Subject: "sub", Email: "new@example.com", Name: "New"},
	}
	controller, states := newLoginFixture(t, registry, provider)

	stateToken, err := states.Encode(&admission.OAuthState{
		Provider:    "google",
		RedirectURL: "https://app.example.com/welcome",
	})
	require.NoError(t, err)

	var redirected string
	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = "google"
	ctx.QueriesM["code"] = "auth-code"
	ctx.QueriesM["state"] = stateToken
	ctx.On("Context").Return(context.Background())
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Redirect", mock.Anything, []int{http.StatusFound}).Run(func(args mock.Arguments) {
		redirected = args.String(0)
	}).Return(nil)

	require.NoError(t, controller.Callback(ctx))
	assert.Equal(t, "https://app.example.com/welcome", redirected)
	require.NotNil(t, registry.created, "unknown email registers a new account")
	assert.Equal(t, "google", registry.created.Provider)
}

func TestLogout_ClearsCookie(t *testing.T) {
	controller, _ := newLoginFixture(t, &stubRegistry{}, &stubProvider{name: "google"})

	ctx := router.NewMockContext()
	ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == admission.DefaultCookieName &&
			c.Value == "" &&
			c.Expires.Before(time.Now())
	})).Return()
	ctx.On("JSON", router.StatusOK, mock.Anything).Return(nil)

	require.NoError(t, controller.Logout(ctx))
}
