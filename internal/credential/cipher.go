// Package credential protects secrets at rest and stores AI provider keys.
package credential

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/koustreak/qgenie/internal/errs"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Cipher encrypts short secrets with XChaCha20-Poly1305. Ciphertexts are
// base64(nonce || sealed) so they fit a TEXT column.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a base64 encoded 32-byte key.
func NewCipher(encodedKey string) (*Cipher, error) {
	if encodedKey == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "credential key is not configured").WithCode(errs.CodeNoValue)
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "credential key is not valid base64", err)
	}
	if len(key) != KeySize {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "credential key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to initialise cipher", err)
	}
	return &Cipher{aead: aead}, nil
}

// GenerateKey returns a fresh base64 encoded key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("read random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt seals plaintext under a random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errs.Wrap(errs.ErrKindUnknown, "failed to generate nonce", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or foreign ciphertexts fail.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "ciphertext is not valid base64", err).WithCode(errs.CodeFailDecrypt)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", errs.New(errs.ErrKindInvalidInput, "ciphertext is too short").WithCode(errs.CodeFailDecrypt)
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "failed to decrypt secret", err).WithCode(errs.CodeFailDecrypt)
	}
	return string(plain), nil
}
