package sessions

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	// TokenLength is the length of a share token.
	TokenLength = 8
)

// NewShareToken returns a random share token of TokenLength characters from [a-z0-9].
func NewShareToken() (string, error) {
	b := make([]byte, TokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate share token: %w", err)
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b), nil
}

// ValidToken reports whether s has the shape of a share token. Lookups skip the store for anything else.
func ValidToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
