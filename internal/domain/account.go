/**
 * @description
 * This file defines the Account domain model for the ledger. An account is identified
 * by its IBAN and its account number, both assigned once at opening time and never
 * changed afterwards.
 *
 * @notes
 * - Balances use shopspring/decimal so that money is compared and summed exactly.
 * - SavedRecipientIbans behaves as an ordered set; helpers below keep it duplicate-free.
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountStatusActive = "ACTIVE"
)

// OpeningBalance is credited to every newly opened account.
var OpeningBalance = decimal.RequireFromString("1000.00")

// Account is a customer account holding a single balance.
type Account struct {
	ID                  string          `json:"id"`
	Iban                string          `json:"iban"`
	AccountNumber       string          `json:"accountNumber"`
	FirstName           string          `json:"firstName"`
	LastName            string          `json:"lastName"`
	Balance             decimal.Decimal `json:"balance"`
	Status              string          `json:"status"`
	SavedRecipientIbans []string        `json:"savedRecipientIbans"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// HolderName returns "First Last" as stored on the account.
func (a Account) HolderName() string {
	return a.FirstName + " " + a.LastName
}

// HasSavedRecipient reports whether iban is already in the saved recipient list.
func (a Account) HasSavedRecipient(iban string) bool {
	for _, saved := range a.SavedRecipientIbans {
		if saved == iban {
			return true
		}
	}
	return false
}

// WithoutSavedRecipient returns a copy of the saved recipient list with iban removed.
func (a Account) WithoutSavedRecipient(iban string) []string {
	out := make([]string, 0, len(a.SavedRecipientIbans))
	for _, saved := range a.SavedRecipientIbans {
		if saved != iban {
			out = append(out, saved)
		}
	}
	return out
}

// Clone returns a deep copy so callers can never alias a store's internal slice.
func (a Account) Clone() Account {
	cp := a
	if a.SavedRecipientIbans != nil {
		cp.SavedRecipientIbans = append([]string(nil), a.SavedRecipientIbans...)
	}
	return cp
}
