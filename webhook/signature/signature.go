package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// SecretPrefix marks secrets generated by this service
	SecretPrefix = "whsec_"

	// Scheme prefixes every signature header value
	Scheme = "sha256="

	// MinSecretBytes is the minimum recommended secret size (192 bits)
	MinSecretBytes = 24

	// MaxSecretBytes is the maximum recommended secret size (512 bits)
	MaxSecretBytes = 64
)

// GenerateSecret creates a random secret of size bytes, base64 encoded with SecretPrefix
func GenerateSecret(size int) (string, error) {
	if size < MinSecretBytes || size > MaxSecretBytes {
		return "", fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	bytes := make([]byte, size)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return SecretPrefix + base64.StdEncoding.EncodeToString(bytes), nil
}

/* Sign computes the HMAC-SHA256 of the serialized payload keyed by secret
 * The secret is used as-is; any string an operator configured is a valid key
 */
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return Scheme + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value using constant-time comparison
func Verify(secret string, payload []byte, header string) bool {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, Scheme) {
		return false
	}

	got, err := hex.DecodeString(strings.TrimPrefix(header, Scheme))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
