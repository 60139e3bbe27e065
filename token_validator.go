package admission

// TokenValidator validates a raw token and returns its claims.
type TokenValidator interface {
	Validate(raw string) (Claims, error)
}

// TokenValidatorFunc adapts a function to the TokenValidator interface.
type TokenValidatorFunc func(raw string) (Claims, error)

func (f TokenValidatorFunc) Validate(raw string) (Claims, error) {
	return f(raw)
}

// MultiTokenValidator tries each validator in order and returns the first
// positive result. Expired beats malformed when reporting the failure: a
// stale session should not read as tampering just because a later validator
// also rejected it.
type MultiTokenValidator struct {
	validators []TokenValidator
}

func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	return &MultiTokenValidator{validators: validators}
}

func (m *MultiTokenValidator) Validate(raw string) (Claims, error) {
	var lastErr error

	for _, v := range m.validators {
		if v == nil {
			continue
		}

		claims, err := v.Validate(raw)
		if err == nil {
			return claims, nil
		}

		if lastErr == nil || IsTokenExpiredError(err) {
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = ErrTokenMalformed
	}

	return nil, lastErr
}
