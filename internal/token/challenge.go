// Package token implements the worker authentication handshake (C3): RSA-PSS
// signature verification over a timestamped challenge, and minting/validation
// of short-lived HS256 bearer tokens.
package token

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
)

// Challenge is the parsed form of the "<worker_id>:<timestamp>" message.
type Challenge struct {
	WorkerID  string
	Timestamp time.Time
}

// ParseChallenge splits the handshake message into its worker id and
// timestamp. The timestamp must be ISO-8601 with an explicit UTC offset.
func ParseChallenge(message string) (Challenge, error) {
	parts := strings.SplitN(message, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Challenge{}, apperrors.NewValidation("challenge message must be \"<worker_id>:<timestamp>\"")
	}
	workerID := parts[0]
	tsStr := parts[1]
	ts, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return Challenge{}, apperrors.Wrap(err, apperrors.ValidationError, "challenge timestamp must be ISO-8601 with a UTC offset")
	}
	return Challenge{WorkerID: workerID, Timestamp: ts}, nil
}

// ParsePublicKeyPEM parses a PKCS#8 PEM-encoded RSA public key, the form the
// Worker row stores it in.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, apperrors.NewInternal("worker public key is not valid PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.InternalError, "failed to parse worker public key")
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, apperrors.NewInternal("worker public key is not RSA")
	}
	return rsaPub, nil
}

// VerifySignature checks an RSA-PSS-SHA256 signature (MGF1-SHA256, salt
// length equal to the digest length) over message, as delivered
// base64-standard encoded.
func VerifySignature(pub *rsa.PublicKey, message string, signatureB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ValidationError, "signature is not valid base64")
	}
	digest := sha256.Sum256([]byte(message))
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, opts); err != nil {
		return apperrors.NewAuth("signature verification failed")
	}
	return nil
}

// Sign produces the base64-standard-encoded RSA-PSS-SHA256 signature a
// worker would present alongside its challenge message. Exported for use by
// the worker manager and by tests.
func Sign(priv *rsa.PrivateKey, message string) (string, error) {
	digest := sha256.Sum256([]byte(message))
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], opts)
	if err != nil {
		return "", fmt.Errorf("sign challenge: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// CheckSkew reports whether ts is within validity of now, in either
// direction.
func CheckSkew(ts, now time.Time, validity time.Duration) error {
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > validity {
		return apperrors.NewAuth("handshake timestamp outside allowed skew")
	}
	return nil
}

// Fingerprint returns a hex-encoded SHA-256 digest of the DER-encoded public
// key, used for operator correlation at manager startup.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return fmt.Sprintf("%x", sum), nil
}
