package captcha

import (
	"crypto/rand"
	"math/big"
)

const (
	// CodeLength is the fixed number of characters in every challenge code.
	CodeLength = 6

	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateCode returns a challenge code drawn uniformly from the uppercase
// alphanumeric alphabet. Each character is an independent crypto/rand draw;
// an unusable random source is fatal rather than degrading to a weaker one.
func GenerateCode() string {
	buf := make([]byte, CodeLength)
	limit := big.NewInt(int64(len(codeCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic("captcha: crypto rand unavailable: " + err.Error())
		}
		buf[i] = codeCharset[n.Int64()]
	}
	return string(buf)
}
