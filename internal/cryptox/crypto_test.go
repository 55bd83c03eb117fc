package cryptox

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveMasterKey(t *testing.T) {
	k1 := DeriveMasterKey([]byte("secret-password"), []byte("fixed-salt"))
	k2 := DeriveMasterKey([]byte("secret-password"), []byte("fixed-salt"))
	k3 := DeriveMasterKey([]byte("secret-password"), []byte("other-salt"))

	require.Len(t, k1, 32)
	assert.True(t, bytes.Equal(k1, k2))
	assert.False(t, bytes.Equal(k1, k3))
}

func newCodec(t *testing.T) *AESCodec {
	t.Helper()
	c, err := NewPassphraseCodec("passphrase", "storekeeper-test")
	require.NoError(t, err)
	return c
}

func TestAESCodec_RoundTrip(t *testing.T) {
	c := newCodec(t)

	enc, err := c.Encrypt("https://api.example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, CipherPrefix))
	assert.NotContains(t, enc, "example")

	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", dec)
}

func TestAESCodec_NonceIsRandom(t *testing.T) {
	c := newCodec(t)

	a, err := c.Encrypt("token")
	require.NoError(t, err)
	b, err := c.Encrypt("token")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAESCodec_PlaintextPassesThrough(t *testing.T) {
	c := newCodec(t)

	v, err := c.Decrypt("legacy-plain-value")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plain-value", v)
}

func TestAESCodec_NoDoubleEncryption(t *testing.T) {
	c := newCodec(t)

	enc, err := c.Encrypt("x")
	require.NoError(t, err)

	again, err := c.Encrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, enc, again)

	empty, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}

func TestAESCodec_PrefixedPlaintextIsSealed(t *testing.T) {
	c := newCodec(t)
	plain := CipherPrefix + "not-really-ciphertext"

	enc, err := c.Encrypt(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, enc)
	assert.True(t, IsEncrypted(enc))

	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, plain, dec)

	// sealed by another key: not ours to pass through
	foreign, err := NewPassphraseCodec("other", "storekeeper-test")
	require.NoError(t, err)
	other, err := foreign.Encrypt("secret")
	require.NoError(t, err)

	enc, err = c.Encrypt(other)
	require.NoError(t, err)
	assert.NotEqual(t, other, enc)
	dec, err = c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, other, dec)
}

func TestAESCodec_WrongKeyFails(t *testing.T) {
	enc, err := newCodec(t).Encrypt("secret")
	require.NoError(t, err)

	other, err := NewPassphraseCodec("another", "storekeeper-test")
	require.NoError(t, err)

	_, err = other.Decrypt(enc)
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = other.Decrypt(CipherPrefix + "!!not-base64!!")
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = other.Decrypt(CipherPrefix + "AAAA")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestNewAESCodec_BadKey(t *testing.T) {
	_, err := NewAESCodec([]byte("short"))
	require.Error(t, err)
}
