package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nilijoski/banking-app/internal/domain"
)

const transactionColumns = `id::text, from_iban, to_iban, from_first_name, from_last_name,
	to_first_name, to_last_name, from_account_number, to_account_number, amount,
	transaction_type, status, description, warning, transaction_date`

// PostgresTransactionRepository is the PostgreSQL TransactionStore.
type PostgresTransactionRepository struct {
	db *pgxpool.Pool
}

// NewPostgresTransactionRepository creates a new instance of PostgresTransactionRepository.
func NewPostgresTransactionRepository(db *pgxpool.Pool) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.FromIban,
		&tx.ToIban,
		&tx.FromFirstName,
		&tx.FromLastName,
		&tx.ToFirstName,
		&tx.ToLastName,
		&tx.FromAccountNumber,
		&tx.ToAccountNumber,
		&tx.Amount,
		&tx.TransactionType,
		&tx.Status,
		&tx.Description,
		&tx.Warning,
		&tx.TransactionDate,
	)
	return tx, err
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()
	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Save inserts the record or updates a still-pending one. The transaction date and
// insertion position of an existing record never change.
func (r *PostgresTransactionRepository) Save(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	} else if _, err := uuid.Parse(tx.ID); err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid transaction id %q: %w", tx.ID, err)
	}

	query := `
		INSERT INTO transactions (id, from_iban, to_iban, from_first_name, from_last_name,
			to_first_name, to_last_name, from_account_number, to_account_number, amount,
			transaction_type, status, description, warning, transaction_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			from_iban = EXCLUDED.from_iban,
			to_iban = EXCLUDED.to_iban,
			from_first_name = EXCLUDED.from_first_name,
			from_last_name = EXCLUDED.from_last_name,
			to_first_name = EXCLUDED.to_first_name,
			to_last_name = EXCLUDED.to_last_name,
			from_account_number = EXCLUDED.from_account_number,
			to_account_number = EXCLUDED.to_account_number,
			amount = EXCLUDED.amount,
			transaction_type = EXCLUDED.transaction_type,
			status = EXCLUDED.status,
			description = EXCLUDED.description,
			warning = EXCLUDED.warning
		WHERE transactions.status <> 'COMPLETED'
		RETURNING ` + transactionColumns

	saved, err := scanTransaction(r.db.QueryRow(ctx, query,
		tx.ID,
		tx.FromIban,
		tx.ToIban,
		tx.FromFirstName,
		tx.FromLastName,
		tx.ToFirstName,
		tx.ToLastName,
		tx.FromAccountNumber,
		tx.ToAccountNumber,
		tx.Amount,
		string(tx.TransactionType),
		string(tx.Status),
		tx.Description,
		tx.Warning,
		tx.TransactionDate.UTC(),
	))
	if err != nil {
		return domain.Transaction{}, transactionSaveError(err, tx.ID)
	}
	return saved, nil
}

// transactionSaveError maps an upsert that returned no row to ErrTransactionImmutable:
// the conflict branch was filtered out because the stored record is COMPLETED.
func transactionSaveError(err error, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrTransactionImmutable, id)
	}
	return err
}

// FindByID looks a record up by id.
func (r *PostgresTransactionRepository) FindByID(ctx context.Context, id string) (domain.Transaction, bool, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.Transaction{}, false, nil
	}
	tx, err := scanTransaction(r.db.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1", parsed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, false, nil
		}
		return domain.Transaction{}, false, err
	}
	return tx, true, nil
}

// FindByAccountNumber returns records with accountNumber on either side.
func (r *PostgresTransactionRepository) FindByAccountNumber(ctx context.Context, accountNumber string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE from_account_number = $1 OR to_account_number = $1 ORDER BY seq",
		accountNumber,
	)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// FindByIban returns records with iban on either side.
func (r *PostgresTransactionRepository) FindByIban(ctx context.Context, iban string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE from_iban = $1 OR to_iban = $1 ORDER BY seq",
		iban,
	)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// DistinctRecipientIbans returns each recipient of fromIban once, in first-seen order.
func (r *PostgresTransactionRepository) DistinctRecipientIbans(ctx context.Context, fromIban string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT to_iban
		FROM transactions
		WHERE from_iban = $1 AND to_iban <> ''
		GROUP BY to_iban
		ORDER BY MIN(seq)`,
		fromIban,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ibans := []string{}
	for rows.Next() {
		var iban string
		if err := rows.Scan(&iban); err != nil {
			return nil, err
		}
		ibans = append(ibans, iban)
	}
	return ibans, rows.Err()
}

// List returns every record in insertion order.
func (r *PostgresTransactionRepository) List(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, "SELECT "+transactionColumns+" FROM transactions ORDER BY seq")
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}
