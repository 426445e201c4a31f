/**
 * @description
 * This file defines the storage contracts of the ledger: AccountStore holds customer
 * accounts and their balances, TransactionStore holds the ledger records. Business logic
 * depends only on these interfaces, so the PostgreSQL and in-memory implementations are
 * interchangeable.
 *
 * @notes
 * - Lookups return (value, found, err). found=false is the not-found outcome; err is
 *   reserved for infrastructure faults.
 * - Withdraw and Deposit are atomic per account: load, check, apply and persist happen
 *   without any other mutation of the same account in between.
 */

package store

import (
	"context"
	"errors"

	"github.com/nilijoski/banking-app/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateAccount     = errors.New("account already exists")
	ErrTransactionImmutable = errors.New("completed transaction cannot be modified")
)

// AccountStore persists accounts and applies balance mutations.
type AccountStore interface {
	GetByIban(ctx context.Context, iban string) (domain.Account, bool, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (domain.Account, bool, error)
	GetByID(ctx context.Context, id string) (domain.Account, bool, error)
	List(ctx context.Context) ([]domain.Account, error)

	// Create inserts a new account, assigning an id when empty.
	Create(ctx context.Context, account domain.Account) (domain.Account, error)
	// Save upserts an account. Iban and account number of an existing record are kept.
	Save(ctx context.Context, account domain.Account) (domain.Account, error)

	Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (domain.Account, error)
	Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) (domain.Account, error)
}

// TransactionStore persists ledger records. Records are returned in insertion order.
type TransactionStore interface {
	// Save assigns an id when empty. Overwriting a COMPLETED record fails with
	// ErrTransactionImmutable.
	Save(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
	FindByID(ctx context.Context, id string) (domain.Transaction, bool, error)
	FindByAccountNumber(ctx context.Context, accountNumber string) ([]domain.Transaction, error)
	FindByIban(ctx context.Context, iban string) ([]domain.Transaction, error)
	// DistinctRecipientIbans lists the ToIban values of records sent from fromIban,
	// first-seen order, without duplicates or empty values.
	DistinctRecipientIbans(ctx context.Context, fromIban string) ([]string, error)
	List(ctx context.Context) ([]domain.Transaction, error)
}
