package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys published on the ledger events exchange.
const (
	RoutingKeyTransferCompleted   = "ledger.transfer.completed"
	RoutingKeyDepositCompleted    = "ledger.deposit.completed"
	RoutingKeyWithdrawalCompleted = "ledger.withdrawal.completed"
)

// Routing keys consumed for cash movements initiated outside the HTTP boundary.
const (
	RoutingKeyCashDeposit    = "cash.deposit"
	RoutingKeyCashWithdrawal = "cash.withdrawal"
)

// LedgerEvent is emitted after a ledger record has been committed.
type LedgerEvent struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	TransactionID     string          `json:"transaction_id"`
	FromIban          string          `json:"from_iban,omitempty"`
	ToIban            string          `json:"to_iban,omitempty"`
	FromAccountNumber string          `json:"from_account_number,omitempty"`
	ToAccountNumber   string          `json:"to_account_number,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Warning           string          `json:"warning,omitempty"`
	OccurredAt        time.Time       `json:"occurred_at"`
}

// CashMovementEvent is a deposit or withdrawal instruction received over AMQP.
type CashMovementEvent struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference"`
}
