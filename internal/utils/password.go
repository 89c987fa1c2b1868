package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Ambiguous characters (0/O, 1/l/I) are left out so the password can be read aloud.
const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateTemporaryPassword returns a random password for accounts created by an admin.
func GenerateTemporaryPassword(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid password length %d", length)
	}

	max := big.NewInt(int64(len(passwordAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}

	return string(buf), nil
}
