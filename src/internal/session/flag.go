package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const flagAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateFlag returns a random alphanumeric secret of the given length,
// drawn from crypto/rand. The value must stay unguessable for the whole
// session lifetime, so a seeded PRNG is not acceptable here.
func GenerateFlag(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("flag length must be positive, got %d", length)
	}

	max := big.NewInt(int64(len(flagAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		buf[i] = flagAlphabet[n.Int64()]
	}

	return string(buf), nil
}
