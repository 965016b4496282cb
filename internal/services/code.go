package services

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

// generateCode returns a uniformly random decimal code of exactly digits
// digits whose first digit is non-zero (1000..9999 for four digits).
func generateCode(digits int) (string, error) {
	if digits < 1 || digits > 18 {
		return "", validationf("code length %d out of range", digits)
	}
	lo := int64(1)
	for i := 1; i < digits; i++ {
		lo *= 10
	}
	span := big.NewInt(9 * lo)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(lo+n.Int64(), 10), nil
}
