package admission

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// JWKSValidator validates tokens signed by an external identity provider
// against its published JWK set. Used to check provider ID tokens during
// the callback exchange; session tokens stay on the symmetric TokenService.
type JWKSValidator struct {
	keyfunc  jwt.Keyfunc
	issuer   string
	audience []string
	logger   Logger
}

type JWKSConfig struct {
	// URLs of the provider JWK sets, tried in order.
	URLs     []string
	Issuer   string
	Audience []string
	Logger   Logger
}

func NewJWKSValidator(cfg JWKSConfig) (*JWKSValidator, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.New("at least one JWK set URL is required", errors.CategoryBadInput)
	}

	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	kf, err := multiKeyfunc(cfg.URLs, cfg.Logger)
	if err != nil {
		return nil, err
	}

	return &JWKSValidator{
		keyfunc:  kf,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		logger:   cfg.Logger,
	}, nil
}

func (v *JWKSValidator) Validate(raw string) (Claims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if v.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.issuer))
	}
	if len(v.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(v.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &JWTClaims{}, v.keyfunc, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrTokenMalformed
}

func multiKeyfunc(urls []string, logger Logger) (jwt.Keyfunc, error) {
	opts := keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Warn("failed to do a background refresh of JWK set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}

	m := make(map[string]keyfunc.Options, len(urls))
	for _, url := range urls {
		m[url] = opts
	}

	multi, err := keyfunc.GetMultiple(m, keyfunc.MultipleOptions{
		KeySelector: keyfunc.KeySelectorFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get JWK set URLs: %w", err)
	}

	return multi.Keyfunc, nil
}
