package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger record.
type TransactionType string

const (
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
)

// TransactionStatus is the lifecycle state of a ledger record. A record is created
// PENDING and flipped to COMPLETED once, after both balance mutations succeeded.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
)

// Transaction is the auditable record of one money movement.
//
// ToFirstName/ToLastName hold the recipient name as claimed by the caller, which is
// not necessarily the real account holder; Warning is set when the two differ.
type Transaction struct {
	ID                string            `json:"id"`
	FromIban          string            `json:"fromIban,omitempty"`
	ToIban            string            `json:"toIban,omitempty"`
	FromFirstName     string            `json:"fromFirstName,omitempty"`
	FromLastName      string            `json:"fromLastName,omitempty"`
	ToFirstName       string            `json:"toFirstName,omitempty"`
	ToLastName        string            `json:"toLastName,omitempty"`
	FromAccountNumber string            `json:"fromAccountNumber,omitempty"`
	ToAccountNumber   string            `json:"toAccountNumber,omitempty"`
	Amount            decimal.Decimal   `json:"amount"`
	TransactionType   TransactionType   `json:"transactionType"`
	Status            TransactionStatus `json:"status"`
	Description       string            `json:"description,omitempty"`
	Warning           string            `json:"warning,omitempty"`
	TransactionDate   time.Time         `json:"transactionDate"`
}

// IsCompleted reports whether the record has reached its terminal state.
func (t Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// TransferRequest is the inbound instruction for Service.Transfer.
type TransferRequest struct {
	FromIban    string          `json:"fromIban"`
	ToIban      string          `json:"toIban"`
	ToFirstName string          `json:"toFirstName"`
	ToLastName  string          `json:"toLastName"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}
