package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

var decimal = big.NewInt(10)

// newCode returns a uniformly random numeric code of n digits; leading zeros are allowed.
func newCode(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		d, err := rand.Int(rand.Reader, decimal)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b[i] = byte('0' + d.Int64())
	}
	return string(b), nil
}

func hashCode(code string, cost int) ([]byte, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}
	return h, nil
}

// codeMatches compares in constant time with respect to the stored hash.
func codeMatches(hash []byte, code string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(code)) == nil
}
