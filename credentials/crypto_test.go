package credentials

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundtrip(t *testing.T) {
	box, err := NewCipherBox(deriveKey("test-passphrase"))
	require.NoError(t, err)

	plaintext := []byte(`{"api_key": "secret-value"}`)
	sealed, err := box.Seal(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	// Nonces are random, two seals of the same plaintext differ.
	sealed2, err := box.Seal(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2)
}

func TestOpenRejectsTampering(t *testing.T) {
	box, err := NewCipherBox(deriveKey("test-passphrase"))
	require.NoError(t, err)

	sealed, err := box.Seal([]byte("secret"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = box.Open(sealed)
	assert.Error(t, err)

	_, err = box.Open([]byte("short"))
	assert.Error(t, err)

	other, err := NewCipherBox(deriveKey("different-passphrase"))
	require.NoError(t, err)
	good, err := box.Seal([]byte("secret"))
	require.NoError(t, err)
	_, err = other.Open(good)
	assert.Error(t, err)
}

func TestDeriveKeyForms(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	assert.Equal(t, raw, deriveKey(hex.EncodeToString(raw)))
	assert.Equal(t, raw, deriveKey(base64.StdEncoding.EncodeToString(raw)))

	sum := sha256.Sum256([]byte("just a passphrase"))
	assert.Equal(t, sum[:], deriveKey("just a passphrase"))

	// Always 32 bytes, whatever comes in.
	for _, input := range []string{"short", hex.EncodeToString(raw), "zz" + hex.EncodeToString(raw)[2:62] + "zz"} {
		assert.Len(t, deriveKey(input), 32, input)
	}
}

func TestNewCipherBoxFromEnv(t *testing.T) {
	t.Setenv("CREDENTIALS_ENCRYPTION_KEY", "")
	_, err := NewCipherBoxFromEnv()
	assert.ErrorIs(t, err, ErrNoEncryptionKey)

	t.Setenv("CREDENTIALS_ENCRYPTION_KEY", "a passphrase with spaces")
	box, err := NewCipherBoxFromEnv()
	require.NoError(t, err)
	require.NotNil(t, box)
}

func TestHashConfigStable(t *testing.T) {
	a := hashConfig([]byte(`{"k": 1}`))
	b := hashConfig([]byte(`{"k": 1}`))
	c := hashConfig([]byte(`{"k": 2}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
