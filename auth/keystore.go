package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/edgekit/captchad/utils"
)

// KeyStore holds API credentials only in encrypted form. Construction seals
// each configured key immediately and retains no plaintext copy; membership
// tests reconstruct each entry on the fly.
type KeyStore struct {
	cipher *Cipher
	sealed []string
}

// NewKeyStore seals the given keys. Blank entries are ignored.
func NewKeyStore(c *Cipher, keys []string) (*KeyStore, error) {
	ks := &KeyStore{cipher: c}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		sealed, err := c.Encrypt(k)
		if err != nil {
			return nil, fmt.Errorf("seal credential: %w", err)
		}
		ks.sealed = append(ks.sealed, sealed)
	}
	return ks, nil
}

// Len reports the number of stored credentials.
func (s *KeyStore) Len() int {
	return len(s.sealed)
}

// IsValid reports whether candidate matches a stored credential. The scan
// decrypts entries until a match is found or the set is exhausted; an entry
// that fails to decrypt is logged and treated as a non-match.
func (s *KeyStore) IsValid(candidate string) bool {
	for _, sealed := range s.sealed {
		plain, err := s.cipher.Decrypt(sealed)
		if err != nil {
			utils.Sugar.Warnf("credential entry undecryptable: %v", err)
			continue
		}
		if subtle.ConstantTimeCompare([]byte(plain), []byte(candidate)) == 1 {
			return true
		}
	}
	return false
}

// Fingerprint exposes the cipher's credential fingerprint for keying
// per-credential stored settings.
func (s *KeyStore) Fingerprint(credential string) string {
	return s.cipher.Fingerprint(credential)
}
