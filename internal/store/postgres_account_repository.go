/**
 * @description
 * This file provides the PostgreSQL implementation of AccountStore. Balance mutations
 * run inside a single database transaction that locks the account row with
 * SELECT ... FOR UPDATE, so concurrent withdrawals and deposits on the same account are
 * serialized by the database itself.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 * - github.com/shopspring/decimal: exact balances (NUMERIC columns).
 * - github.com/google/uuid: account ids.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nilijoski/banking-app/internal/domain"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

const accountColumns = `id::text, iban, account_number, first_name, last_name, balance, status,
	saved_recipient_ibans, created_at, updated_at`

// PostgresAccountRepository is the PostgreSQL AccountStore.
type PostgresAccountRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewPostgresAccountRepository creates a new instance of PostgresAccountRepository.
func NewPostgresAccountRepository(db *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db, now: time.Now}
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.Iban,
		&account.AccountNumber,
		&account.FirstName,
		&account.LastName,
		&account.Balance,
		&account.Status,
		&account.SavedRecipientIbans,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	return account, err
}

func (r *PostgresAccountRepository) getOne(ctx context.Context, where string, arg any) (domain.Account, bool, error) {
	query := "SELECT " + accountColumns + " FROM accounts WHERE " + where
	account, err := scanAccount(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, false, nil
		}
		return domain.Account{}, false, err
	}
	return account, true, nil
}

// GetByIban looks an account up by IBAN.
func (r *PostgresAccountRepository) GetByIban(ctx context.Context, iban string) (domain.Account, bool, error) {
	return r.getOne(ctx, "iban = $1", iban)
}

// GetByAccountNumber looks an account up by account number.
func (r *PostgresAccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (domain.Account, bool, error) {
	return r.getOne(ctx, "account_number = $1", accountNumber)
}

// GetByID looks an account up by id. Ids that are not UUIDs can never match.
func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, bool, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.Account{}, false, nil
	}
	return r.getOne(ctx, "id = $1", parsed)
}

// List returns every account ordered by creation time.
func (r *PostgresAccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// Create inserts a new account. IBAN or account number collisions yield ErrDuplicateAccount.
func (r *PostgresAccountRepository) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	query := `
		INSERT INTO accounts (id, iban, account_number, first_name, last_name, balance, status,
			saved_recipient_ibans, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + accountColumns
	created, err := scanAccount(r.db.QueryRow(ctx, query,
		account.ID,
		account.Iban,
		account.AccountNumber,
		account.FirstName,
		account.LastName,
		account.Balance,
		account.Status,
		nonNilStrings(account.SavedRecipientIbans),
		account.CreatedAt,
		account.UpdatedAt,
	))
	if err != nil {
		return domain.Account{}, accountWriteError(err, account)
	}
	return created, nil
}

// Save upserts an account. For an existing record only the holder name, status and
// saved recipients are updated; balances move exclusively through Withdraw and Deposit.
func (r *PostgresAccountRepository) Save(ctx context.Context, account domain.Account) (domain.Account, error) {
	if account.ID == "" {
		return r.Create(ctx, account)
	}
	now := r.now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}

	query := `
		INSERT INTO accounts (id, iban, account_number, first_name, last_name, balance, status,
			saved_recipient_ibans, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			status = EXCLUDED.status,
			saved_recipient_ibans = EXCLUDED.saved_recipient_ibans,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + accountColumns
	saved, err := scanAccount(r.db.QueryRow(ctx, query,
		account.ID,
		account.Iban,
		account.AccountNumber,
		account.FirstName,
		account.LastName,
		account.Balance,
		account.Status,
		nonNilStrings(account.SavedRecipientIbans),
		account.CreatedAt,
		now,
	))
	if err != nil {
		return domain.Account{}, accountWriteError(err, account)
	}
	return saved, nil
}

// Withdraw debits amount from the account, refusing to go below zero.
func (r *PostgresAccountRepository) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (domain.Account, error) {
	return r.mutateBalance(ctx, accountNumber, func(balance decimal.Decimal) (decimal.Decimal, error) {
		if balance.LessThan(amount) {
			return balance, fmt.Errorf("%w: account %s", ErrInsufficientFunds, accountNumber)
		}
		return balance.Sub(amount), nil
	})
}

// Deposit credits amount to the account.
func (r *PostgresAccountRepository) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) (domain.Account, error) {
	return r.mutateBalance(ctx, accountNumber, func(balance decimal.Decimal) (decimal.Decimal, error) {
		return balance.Add(amount), nil
	})
}

func (r *PostgresAccountRepository) mutateBalance(ctx context.Context, accountNumber string, apply func(decimal.Decimal) (decimal.Decimal, error)) (domain.Account, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback(ctx)

	// Lock the row until commit so no other mutation interleaves.
	query := "SELECT " + accountColumns + " FROM accounts WHERE account_number = $1 FOR UPDATE"
	account, err := scanAccount(tx.QueryRow(ctx, query, accountNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountNumber)
		}
		return domain.Account{}, err
	}

	next, err := apply(account.Balance)
	if err != nil {
		return domain.Account{}, err
	}

	err = tx.QueryRow(ctx,
		"UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3 RETURNING balance, updated_at",
		next, r.now().UTC(), account.ID,
	).Scan(&account.Balance, &account.UpdatedAt)
	if err != nil {
		return domain.Account{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

// accountWriteError maps a unique index violation on iban or account_number to
// ErrDuplicateAccount.
func accountWriteError(err error, account domain.Account) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: iban=%s account_number=%s", ErrDuplicateAccount, account.Iban, account.AccountNumber)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
