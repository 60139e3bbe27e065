package admission_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/goliatone/go-admission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStateManager() *admission.SignedStateManager {
	return admission.NewSignedStateManager([]byte("state-hmac-key-for-tests"), 10*time.Minute)
}

func TestSignedState_RoundTrip(t *testing.T) {
	sm := newTestStateManager()

	token, err := sm.Encode(&admission.OAuthState{
		Provider:    "google",
		RedirectURL: "/after-login",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	state, err := sm.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "google", state.Provider)
	assert.Equal(t, "/after-login", state.RedirectURL)
	assert.NotEmpty(t, state.Nonce)
	assert.Greater(t, state.ExpiresAt, state.IssuedAt)
}

func TestSignedState_TamperDetection(t *testing.T) {
	sm := newTestStateManager()

	token, err := sm.Encode(&admission.OAuthState{Provider: "google"})
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(token)
	require.NoError(t, err)

	// flip a byte in the payload section, past the signature
	raw[len(raw)-1] ^= 0x01
	tampered := base64.URLEncoding.EncodeToString(raw)

	_, err = sm.Decode(tampered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid OAuth state")
}

func TestSignedState_WrongKey(t *testing.T) {
	sm := newTestStateManager()
	other := admission.NewSignedStateManager([]byte("a-different-hmac-key"), 10*time.Minute)

	token, err := other.Encode(&admission.OAuthState{Provider: "google"})
	require.NoError(t, err)

	_, err = sm.Decode(token)
	require.Error(t, err)
}

func TestSignedState_Expiry(t *testing.T) {
	sm := newTestStateManager()

	token, err := sm.Encode(&admission.OAuthState{
		Provider:  "google",
		IssuedAt:  time.Now().Add(-time.Hour).Unix(),
		ExpiresAt: time.Now().Add(-30 * time.Minute).Unix(),
	})
	require.NoError(t, err)

	_, err = sm.Decode(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestSignedState_GarbageInput(t *testing.T) {
	sm := newTestStateManager()

	for _, input := range []string{"", "not-base64!!", base64.URLEncoding.EncodeToString([]byte("short"))} {
		_, err := sm.Decode(input)
		require.Error(t, err, "input %q", input)
	}
}
