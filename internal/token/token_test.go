package token

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
)

func mustKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestParseChallenge(t *testing.T) {
	c, err := ParseChallenge("w1:2025-01-01T00:00:00+00:00")
	require.NoError(t, err)
	assert.Equal(t, "w1", c.WorkerID)
	assert.Equal(t, 2025, c.Timestamp.Year())
}

func TestParseChallengeRejectsMalformed(t *testing.T) {
	_, err := ParseChallenge("not-a-challenge")
	assert.Error(t, err)
	_, err = ParseChallenge("w1:not-a-timestamp")
	assert.Error(t, err)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key := mustKey(t)
	msg := "w1:2025-01-01T00:00:00+00:00"
	sig, err := Sign(key, msg)
	require.NoError(t, err)
	require.NoError(t, VerifySignature(&key.PublicKey, msg, sig))
}

func TestVerifySignatureFailsOnBitFlip(t *testing.T) {
	key := mustKey(t)
	msg := "w1:2025-01-01T00:00:00+00:00"
	sig, err := Sign(key, msg)
	require.NoError(t, err)
	assert.Error(t, VerifySignature(&key.PublicKey, msg+"x", sig))

	flipped := []byte(msg)
	flipped[len(flipped)-1] ^= 0x01
	assert.Error(t, VerifySignature(&key.PublicKey, string(flipped), sig))

	other := mustKey(t)
	assert.Error(t, VerifySignature(&other.PublicKey, msg, sig))
}

func TestCheckSkew(t *testing.T) {
	now := time.Now().UTC()
	assert.NoError(t, CheckSkew(now.Add(-30*time.Second), now, 60*time.Second))
	assert.Error(t, CheckSkew(now.Add(-90*time.Second), now, 60*time.Second))
}

func TestFingerprintDeterministic(t *testing.T) {
	key := mustKey(t)
	a, err := Fingerprint(&key.PublicKey)
	require.NoError(t, err)
	b, err := Fingerprint(&key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMintAndValidate(t *testing.T) {
	svc := NewService("shared-secret", time.Hour)
	tok, expiresIn, err := svc.Mint("w1")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), expiresIn)

	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "w1", claims.Subject)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestValidateExpiredToken(t *testing.T) {
	svc := NewService("shared-secret", -time.Minute)
	tok, _, err := svc.Mint("w1")
	require.NoError(t, err)

	_, err = svc.Validate(tok)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Token has expired.", appErr.Message)
}
