package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubClaims struct {
	subject string
	roles   []string
}

func (c stubClaims) UserID() string      { return c.subject }
func (c stubClaims) RoleNames() []string { return c.roles }
func (c stubClaims) HasRole(role string) bool {
	for _, r := range c.roles {
		if r == role {
			return true
		}
	}
	return false
}

type stubValidator struct {
	claims map[string]Claims
	errs   map[string]error
}

func (v stubValidator) Validate(raw string) (Claims, error) {
	if err, ok := v.errs[raw]; ok {
		return nil, err
	}
	if claims, ok := v.claims[raw]; ok {
		return claims, nil
	}
	return nil, errors.New("token is malformed")
}

type stubResolver struct {
	principals map[string]any
}

func (r stubResolver) Resolve(ctx context.Context, subject string) (any, error) {
	if p, ok := r.principals[subject]; ok {
		return p, nil
	}
	return nil, errors.New("identity not found")
}

type principalRecord struct {
	ID string
}

func validatorWithToken(raw, subject string) stubValidator {
	return stubValidator{
		claims: map[string]Claims{
			raw: stubClaims{subject: subject, roles: []string{"member"}},
		},
	}
}

func TestGate_BearerHeaderHappyPath(t *testing.T) {
	resolver := stubResolver{principals: map[string]any{
		"user-1": &principalRecord{ID: "user-1"},
	}}

	handler := New(Config{
		TokenValidator: validatorWithToken("good-token", "user-1"),
		Resolver:       resolver,
	})(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("Path").Return("/api/things")
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer good-token")
	ctx.On("Context").Return(context.Background())
	ctx.On("SetContext", mock.Anything).Return().Maybe()
	ctx.On("Locals", DefaultContextKey+"_claims", mock.Anything).Return(nil)
	ctx.On("Locals", DefaultContextKey, mock.Anything).Return(nil)

	require.NoError(t, handler(ctx))
	require.True(t, ctx.NextCalled)

	principal, ok := ctx.LocalsMock[DefaultContextKey].(*principalRecord)
	require.True(t, ok)
	assert.Equal(t, "user-1", principal.ID)
}

func TestGate_HeaderTakesPrecedenceOverCookie(t *testing.T) {
	validator := stubValidator{
		claims: map[string]Claims{
			"header-token": stubClaims{subject: "header-user"},
			"cookie-token": stubClaims{subject: "cookie-user"},
		},
	}

	var seen []string
	handler := New(Config{
		TokenValidator: validator,
		Resolver: stubResolver{principals: map[string]any{
			"header-user": &principalRecord{ID: "header-user"},
			"cookie-user": &principalRecord{ID: "cookie-user"},
		}},
		ContextEnricher: func(c context.Context, claims Claims, principal any) context.Context {
			seen = append(seen, claims.UserID())
			return c
		},
	})(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("Path").Return("/api/things")
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer header-token")
	ctx.CookiesM[DefaultCookieName] = "cookie-token"
	ctx.On("Context").Return(context.Background())
	ctx.On("SetContext", mock.Anything).Return()
	ctx.On("Locals", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, handler(ctx))
	require.Equal(t, []string{"header-user"}, seen)
}

func TestGate_CookieFallback(t *testing.T) {
	handler := New(Config{
		TokenValidator: validatorWithToken("cookie-token", "user-1"),
		Resolver: stubResolver{principals: map[string]any{
			"user-1": &principalRecord{ID: "user-1"},
		}},
	})(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("Path").Return("/app/profile")
	ctx.On("GetString", router.HeaderAuthorization, "").Return("")
	ctx.CookiesM[DefaultCookieName] = "cookie-token"
	ctx.On("Context").Return(context.Background())
	ctx.On("Locals", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, handler(ctx))
	require.True(t, ctx.NextCalled)
	assert.NotNil(t, ctx.LocalsMock[DefaultContextKey])
}

func TestGate_NoTokenProceedsAnonymously(t *testing.T) {
	handler := New(Config{
		TokenValidator: validatorWithToken("tok", "user-1"),
	})(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("Path").Return("/api/things")
	ctx.On("GetString", router.HeaderAuthorization, "").Return("")

	require.NoError(t, handler(ctx))
	require.True(t, ctx.NextCalled)
	assert.Nil(t, ctx.LocalsMock[DefaultContextKey])
}

func TestGate_MalformedTokenDegradesSilently(t *testing.T) {
	var malformed []error
	handler := New(Config{
		TokenValidator: stubValidator{},
		OnMalformed: func(ctx router.Context, err error) {
			malformed = append(malformed, err)
		},
	})(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("Path").Return("/api/things")
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer broken")

	require.NoError(t, handler(ctx))
	require.True(t, ctx.NextCalled)
	assert.Nil(t, ctx.LocalsMock[DefaultContextKey])
	require.Len(t, malformed, 1)
}

func TestGate_ExpiredTokenIsNotMalformed(t *testing.T) {
	onMalformedCalled := false
	handler := New(Config{
		TokenValidator: stubValidator{
			errs: map[string]error{
				"stale": errors.New("token is expired"),
			},
		},
		OnMalformed: func(ctx router.Context, err error) {
			onMalformedCalled = true
		},
	})(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("Path").Return("/api/things")
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer stale")

	require.NoError(t, handler(ctx))
	require.True(t, ctx.NextCalled)
	assert.False(t, onMalformedCalled)
}

func TestGate_ExcludedPrefixSkipsExtraction(t *testing.T) {
	handler := New(Config{
		TokenValidator:   stubValidator{},
		ExcludedPrefixes: []string{"/webhooks/"},
	})(func(ctx router.Context) error { return nil })

	// no GetString or Cookies expectations: extraction must not happen
	ctx := router.NewMockContext()
	ctx.On("Path").Return("/webhooks/payments")

	require.NoError(t, handler(ctx))
	require.True(t, ctx.NextCalled)
}

func TestGate_ResolverFailureLeavesRequestAnonymous(t *testing.T) {
	handler := New(Config{
		TokenValidator: validatorWithToken("tok", "ghost"),
		Resolver:       stubResolver{},
	})(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("Path").Return("/api/things")
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer tok")
	ctx.On("Context").Return(context.Background())

	require.NoError(t, handler(ctx))
	require.True(t, ctx.NextCalled)
	assert.Nil(t, ctx.LocalsMock[DefaultContextKey])
}
