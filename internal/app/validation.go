package app

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidIban           = errors.New("invalid iban")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrSameAccountTransfer   = errors.New("cannot transfer to the same account")
	ErrRecipientAlreadySaved = errors.New("recipient already saved")
	ErrRateLimited           = errors.New("rate limit exceeded")
	ErrInvalidAccountHolder  = errors.New("first name and last name are required")
	ErrMovementNotRecorded   = errors.New("balance changed but transaction record was not saved")
)

var ibanPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{1,30}$`)

const (
	germanIbanLength = 22
	// amountScale matches the NUMERIC(19,2) columns; finer amounts would be rounded on write.
	amountScale = 2
)

// NormalizeIban strips all whitespace and upper-cases the input.
func NormalizeIban(iban string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, iban))
}

// ValidateIban checks the structural shape of an IBAN. German IBANs must be exactly
// 22 characters long. No checksum is verified.
func ValidateIban(iban string) bool {
	normalized := NormalizeIban(iban)
	if normalized == "" || !ibanPattern.MatchString(normalized) {
		return false
	}
	if strings.HasPrefix(normalized, "DE") && len(normalized) != germanIbanLength {
		return false
	}
	return true
}

// ValidateAmount reports whether amount is strictly positive and has at most two
// significant decimal places. Trailing zeros ("1.000") are fine.
func ValidateAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(amountScale))
}

// ValidateDistinctAccounts reports whether the two IBANs differ textually.
func ValidateDistinctAccounts(fromIban, toIban string) bool {
	return fromIban != toIban
}
