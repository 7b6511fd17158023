// Package crypto encrypts and decrypts upstream OAuth access tokens at
// rest using AES-256-GCM, and verifies webhook HMAC-SHA256 signatures
// (spec.md §6.4/§9). The encryption key is derived once from a 32-byte
// environment secret via SHA-256 and held for the process lifetime.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenEncryptor encrypts and decrypts access tokens with a single
// process-global AES-256-GCM key.
type TokenEncryptor struct {
	key []byte // 32 bytes, derived via SHA-256
}

// NewTokenEncryptor derives a 32-byte key from secret via SHA-256. An empty
// secret is only tolerated by the caller's development fallback — see
// config.Config.Validate.
func NewTokenEncryptor(secret string) *TokenEncryptor {
	sum := sha256.Sum256([]byte(secret))
	return &TokenEncryptor{key: sum[:]}
}

// Encrypt returns the ciphertext in "nonce:tag:ciphertext" hex-colon format.
func (e *TokenEncryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	tagSize := gcm.Overhead()
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt reverses Encrypt. Returns an error on a failed authentication tag
// check. A two-colon string that isn't valid hex in any of its three parts
// is treated as a legacy token stored before encryption was introduced, and
// is returned unchanged rather than rejected.
func (e *TokenEncryptor) Decrypt(encoded string) (string, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed token encoding: expected 3 colon-separated parts, got %d", len(parts))
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return encoded, nil
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return encoded, nil
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return encoded, nil
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	sealed := append(append([]byte(nil), ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting token: %w", err)
	}
	return string(plaintext), nil
}

// VerifyWebhookSignature checks an HMAC-SHA256 webhook signature using a
// constant-time comparison, guarding against timing attacks (spec.md §7).
// signature is the hex-encoded HMAC digest.
func VerifyWebhookSignature(secret []byte, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
