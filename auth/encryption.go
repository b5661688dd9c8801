package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 100_000
	kdfKeyLen     = 32
	// application-level salt; the derived key must be stable across restarts
	// so previously sealed credentials stay readable
	kdfSalt = "captchad.credential.v1"
)

// ErrMalformedCiphertext is returned for input Decrypt cannot parse.
var ErrMalformedCiphertext = errors.New("auth: malformed ciphertext")

// Cipher seals and opens credential strings with AES-GCM. The key is derived
// from the configured secret via PBKDF2 so the raw secret never acts as the
// cipher key directly.
type Cipher struct {
	aead    cipher.AEAD
	hmacKey []byte
}

// NewCipher derives the cipher from secret.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("auth: credential secret must not be empty")
	}
	key := pbkdf2.Key([]byte(secret), []byte(kdfSalt), kdfIterations, kdfKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	mac := pbkdf2.Key([]byte(secret), []byte(kdfSalt+".mac"), kdfIterations, kdfKeyLen, sha256.New)
	return &Cipher{aead: aead, hmacKey: mac}, nil
}

// Encrypt seals plaintext under a fresh random nonce; two calls on the same
// input never produce the same output. The result is hex nonce and ciphertext
// joined by ':'.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt, authenticating the ciphertext in the process.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	parts := strings.SplitN(encoded, ":", 2)
	if len(parts) != 2 {
		return "", ErrMalformedCiphertext
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrMalformedCiphertext
	}
	sealed, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}

// Fingerprint returns a deterministic, non-reversible identifier for a
// credential, usable as a storage key without exposing the credential itself.
func (c *Cipher) Fingerprint(credential string) string {
	mac := hmac.New(sha256.New, c.hmacKey)
	mac.Write([]byte(credential))
	return hex.EncodeToString(mac.Sum(nil)[:16])
}
