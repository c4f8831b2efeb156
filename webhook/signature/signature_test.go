package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	t.Run("success - minimum size", func(t *testing.T) {
		secret, err := GenerateSecret(MinSecretBytes)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(secret, SecretPrefix))
	})

	t.Run("error - too small", func(t *testing.T) {
		_, err := GenerateSecret(MinSecretBytes - 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret size must be between")
	})

	t.Run("error - too large", func(t *testing.T) {
		_, err := GenerateSecret(MaxSecretBytes + 1)
		require.Error(t, err)
	})

	t.Run("randomness - generates different secrets", func(t *testing.T) {
		secret1, err1 := GenerateSecret(32)
		secret2, err2 := GenerateSecret(32)
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.NotEqual(t, secret1, secret2)
	})
}

func TestSign(t *testing.T) {
	payload := []byte(`{"event":"payment.approved","data":{"amount":100}}`)

	t.Run("known vector", func(t *testing.T) {
		// echo -n 'The quick brown fox jumps over the lazy dog' | openssl dgst -sha256 -hmac key
		sig := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
		assert.Equal(t, "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", sig)
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, Sign("abc", payload), Sign("abc", payload))
	})

	t.Run("depends on secret", func(t *testing.T) {
		assert.NotEqual(t, Sign("abc", payload), Sign("abd", payload))
	})

	t.Run("depends on payload", func(t *testing.T) {
		assert.NotEqual(t, Sign("abc", payload), Sign("abc", append(payload, ' ')))
	})
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"event":"custom","data":{"test":true}}`)
	sig := Sign("abc", payload)

	assert.True(t, Verify("abc", payload, sig))
	assert.True(t, Verify("abc", payload, "  "+sig+" "))
	assert.False(t, Verify("wrong", payload, sig))
	assert.False(t, Verify("abc", []byte(`{}`), sig))
	assert.False(t, Verify("abc", payload, strings.TrimPrefix(sig, Scheme)))
	assert.False(t, Verify("abc", payload, Scheme+"zz"))
	assert.False(t, Verify("abc", payload, ""))
}
