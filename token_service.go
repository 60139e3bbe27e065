package admission

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

const minSigningKeyBytes = 32

// DefaultTokenTTLSeconds is one week, matching the session cookie lifetime.
const DefaultTokenTTLSeconds = 604800

// TokenService mints and validates the session tokens the gate consumes.
type TokenService interface {
	Issue(principal *Principal) (string, error)
	Validate(raw string) (Claims, error)
	Subject(raw string) (string, error)
	Roles(raw string) ([]string, error)
	// IsValid reports whether raw is a live token for the expected subject.
	// An expired token is a negative answer, not an error.
	IsValid(raw string, expectedID string) (bool, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	ttlSeconds int
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        func() time.Time
}

// NewTokenService creates a new TokenService instance. The signing key must
// carry at least 256 bits of material.
func NewTokenService(signingKey []byte, ttlSeconds int, issuer string, audience jwt.ClaimStrings, logger Logger) (*TokenServiceImpl, error) {
	if len(signingKey) < minSigningKeyBytes {
		return nil, ErrSigningKeyTooShort
	}

	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTokenTTLSeconds
	}

	if logger == nil {
		logger = defLogger{}
	}

	return &TokenServiceImpl{
		signingKey: signingKey,
		ttlSeconds: ttlSeconds,
		issuer:     issuer,
		audience:   audience,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// NewTokenServiceFromConfig builds the codec from an application config.
func NewTokenServiceFromConfig(cfg Config, logger Logger) (*TokenServiceImpl, error) {
	return NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetTokenTTLSeconds(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		logger,
	)
}

// Issue creates a signed token for the given principal
func (ts *TokenServiceImpl) Issue(principal *Principal) (string, error) {
	if principal == nil || principal.ID == "" {
		return "", errors.New("principal must carry an identifier", errors.CategoryBadInput)
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   principal.ID,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ts.ttlSeconds) * time.Second)),
		},
		Roles: append([]string{}, principal.Roles...),
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(raw string) (Claims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode claims")
	return nil, ErrTokenMalformed
}

// Subject returns the subject identifier of a valid token
func (ts *TokenServiceImpl) Subject(raw string) (string, error) {
	claims, err := ts.Validate(raw)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

// Roles returns the role names of a valid token
func (ts *TokenServiceImpl) Roles(raw string) ([]string, error) {
	claims, err := ts.Validate(raw)
	if err != nil {
		return nil, err
	}
	return claims.RoleNames(), nil
}

// IsValid reports whether raw is a live token belonging to expectedID.
// Expiry and subject mismatch yield (false, nil); structural failures
// propagate so callers can tell tampering apart from a stale session.
func (ts *TokenServiceImpl) IsValid(raw string, expectedID string) (bool, error) {
	claims, err := ts.Validate(raw)
	if err != nil {
		if IsTokenExpiredError(err) {
			return false, nil
		}
		return false, err
	}

	return claims.UserID() == expectedID, nil
}
