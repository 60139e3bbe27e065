package admission

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMalformed  = "admission_token_malformed"
	TextCodeTokenExpired    = "admission_token_expired"
	TextCodeIdentityMissing = "admission_identity_not_found"
	TextCodeRateLimited     = "admission_rate_limited"
	TextCodeForbidden       = "admission_forbidden"
	TextCodeUnauthenticated = "admission_unauthenticated"
	TextCodeBadSigningKey   = "admission_bad_signing_key"
)

// ErrTokenMalformed is returned for structurally invalid tokens or signature
// mismatches. Treated as a potential tampering signal: callers log it apart
// from normal expiry but never surface it as anything other than
// "unauthenticated".
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is the normal negative result for a well-formed token whose
// expiry has passed.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is returned when the identity store has no record for
// a subject id or email.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityMissing).
	WithCode(errors.CodeNotFound)

// ErrRateLimited is returned when a client exceeded its request ceiling for
// the current window.
var ErrRateLimited = errors.New("too many requests", errors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited)

// ErrForbidden is returned for an authenticated principal that lacks the
// role a path requires. Distinct from unauthenticated.
var ErrForbidden = errors.New("insufficient permissions", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrUnauthenticated is returned when a protected path is reached with no
// principal attached.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrSigningKeyTooShort is returned at construction for symmetric keys under
// 256 bits.
var ErrSigningKeyTooShort = errors.New("signing key must be at least 32 bytes", errors.CategoryBadInput).
	WithTextCode(TextCodeBadSigningKey).
	WithCode(errors.CodeBadRequest)

// IsForbiddenError will check for role denials
func IsForbiddenError(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeForbidden {
		return true
	}

	return false
}

// IsIdentityNotFoundError will check for missing identity records
func IsIdentityNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeIdentityMissing {
		return true
	}

	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}

	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for structurally invalid tokens
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}

	return strings.Contains(err.Error(), "token is malformed")
}
