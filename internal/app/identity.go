package app

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// AccountIdentityGenerator produces candidate account numbers and IBANs for new accounts.
// Uniqueness is enforced by the store; callers retry on collision.
type AccountIdentityGenerator interface {
	AccountNumber() (string, error)
	Iban() (string, error)
}

// RandomIdentityGenerator draws identities from crypto/rand.
type RandomIdentityGenerator struct{}

// AccountNumber returns 10 zero-padded decimal digits.
func (RandomIdentityGenerator) AccountNumber() (string, error) {
	return randomDigits(10)
}

// Iban returns "DE" followed by 20 decimal digits.
func (RandomIdentityGenerator) Iban() (string, error) {
	digits, err := randomDigits(20)
	if err != nil {
		return "", err
	}
	return "DE" + digits, nil
}

func randomDigits(n int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate random digits: %w", err)
	}
	s := v.String()
	return strings.Repeat("0", n-len(s)) + s, nil
}
