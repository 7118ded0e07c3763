package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// StateLength is the length of generated OAuth state values
const StateLength = 32

const stateAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateState returns a cryptographically random anti-forgery state value of
// StateLength characters drawn from ASCII letters and digits.
func GenerateState() (string, error) {
	return GenerateRandomString(StateLength)
}

// GenerateRandomString returns n characters drawn uniformly from ASCII letters and digits.
func GenerateRandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", n)
	}

	max := big.NewInt(int64(len(stateAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		buf[i] = stateAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
