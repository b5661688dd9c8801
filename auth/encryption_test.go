package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCipherRequiresSecret(t *testing.T) {
	_, err := NewCipher("")
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher("unit-test-secret")
	require.NoError(t, err)

	for _, plain := range []string{"api-key-1", "", "key with spaces", "émoji ✓"} {
		sealed, err := c.Encrypt(plain)
		require.NoError(t, err)

		got, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	c, err := NewCipher("unit-test-secret")
	require.NoError(t, err)

	a, err := c.Encrypt("same input")
	require.NoError(t, err)
	b, err := c.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	// both still open to the same plaintext
	pa, err := c.Decrypt(a)
	require.NoError(t, err)
	pb, err := c.Decrypt(b)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestDecryptMalformedInput(t *testing.T) {
	c, err := NewCipher("unit-test-secret")
	require.NoError(t, err)

	for _, in := range []string{"", "no-separator", "zz:zz", "abcd:00ff", "00ff:zz"} {
		_, err := c.Decrypt(in)
		assert.ErrorIs(t, err, ErrMalformedCiphertext, "input %q", in)
	}
}

func TestDecryptRejectsForeignCiphertext(t *testing.T) {
	a, err := NewCipher("secret-a")
	require.NoError(t, err)
	b, err := NewCipher("secret-b")
	require.NoError(t, err)

	sealed, err := a.Encrypt("api-key-1")
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	c, err := NewCipher("unit-test-secret")
	require.NoError(t, err)

	fp := c.Fingerprint("api-key-1")
	assert.Len(t, fp, 32)
	assert.Equal(t, fp, c.Fingerprint("api-key-1"))
	assert.NotEqual(t, fp, c.Fingerprint("api-key-2"))

	other, err := NewCipher("another-secret")
	require.NoError(t, err)
	assert.NotEqual(t, fp, other.Fingerprint("api-key-1"))
}
