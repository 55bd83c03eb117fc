// Package cryptox holds the symmetric primitives used for secrets at rest.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// CipherPrefix marks values produced by AESCodec. Anything without it is
// treated as legacy plaintext.
const CipherPrefix = "enc:v1:"

var ErrDecrypt = errors.New("cannot decrypt value")

// SecretCodec encrypts and decrypts individual string values.
type SecretCodec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

// DeriveMasterKey stretches a passphrase into a 32-byte AES key with argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// AESCodec is a SecretCodec backed by AES-256-GCM.
//
// Output format is CipherPrefix + base64(nonce || ciphertext).
type AESCodec struct {
	aead cipher.AEAD
}

// NewAESCodec builds a codec from a raw 16, 24 or 32 byte key.
func NewAESCodec(key []byte) (*AESCodec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESCodec{aead: aead}, nil
}

// NewPassphraseCodec derives the key from passphrase and salt.
func NewPassphraseCodec(passphrase, salt string) (*AESCodec, error) {
	return NewAESCodec(DeriveMasterKey([]byte(passphrase), []byte(salt)))
}

// IsEncrypted reports whether v carries the codec prefix.
func IsEncrypted(v string) bool {
	return strings.HasPrefix(v, CipherPrefix)
}

// Encrypt seals plaintext. Empty strings and values this codec already
// sealed are returned unchanged; a plaintext that merely starts with the
// prefix is sealed like any other.
func (c *AESCodec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}
	if IsEncrypted(plaintext) {
		if _, err := c.Decrypt(plaintext); err == nil {
			return plaintext, nil
		}
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return CipherPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values without the prefix are
// returned as they are.
func (c *AESCodec) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, CipherPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	plaintext, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}
