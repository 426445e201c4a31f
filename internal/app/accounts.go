package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/nilijoski/banking-app/internal/domain"
	"github.com/nilijoski/banking-app/internal/store"
	"github.com/shopspring/decimal"
)

const maxIdentityAttempts = 5

// OpenAccount creates an ACTIVE account with the opening balance and freshly drawn
// account number and IBAN. Collisions are retried a bounded number of times.
func (s *Service) OpenAccount(ctx context.Context, firstName, lastName string) (*domain.Account, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, ErrInvalidAccountHolder
	}

	var lastErr error
	for attempt := 1; attempt <= maxIdentityAttempts; attempt++ {
		accountNumber, err := s.identities.AccountNumber()
		if err != nil {
			return nil, err
		}
		iban, err := s.identities.Iban()
		if err != nil {
			return nil, err
		}

		now := s.now().UTC()
		created, err := s.accounts.Create(ctx, domain.Account{
			Iban:                iban,
			AccountNumber:       accountNumber,
			FirstName:           firstName,
			LastName:            lastName,
			Balance:             domain.OpeningBalance,
			Status:              domain.AccountStatusActive,
			SavedRecipientIbans: []string{},
			CreatedAt:           now,
			UpdatedAt:           now,
		})
		if err == nil {
			log.Printf("level=info component=accounts msg=\"account opened\" account_id=%s account_number=%s", created.ID, created.AccountNumber)
			return &created, nil
		}
		if !errors.Is(err, store.ErrDuplicateAccount) {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
		lastErr = err
		log.Printf("level=warn component=accounts msg=\"identity collision; retrying\" attempt=%d", attempt)
	}
	return nil, fmt.Errorf("failed to allocate unique account identity after %d attempts: %w", maxIdentityAttempts, lastErr)
}

// Deposit credits amount to the account and records a DEPOSIT transaction.
func (s *Service) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Transaction, error) {
	if !ValidateAmount(amount) {
		return nil, fmt.Errorf("%w: amount must be positive with at most two decimal places", ErrInvalidAmount)
	}
	if err := s.deposit(ctx, accountNumber, amount); err != nil {
		return nil, err
	}
	record, err := s.RecordDeposit(context.WithoutCancel(ctx), accountNumber, amount)
	if err != nil {
		log.Printf("level=error component=accounts msg=\"deposit applied but not recorded\" account_number=%s amount=%s err=%v",
			accountNumber, amount.StringFixed(2), err)
		return nil, fmt.Errorf("%w: %w", ErrMovementNotRecorded, err)
	}
	s.publishLedgerEvent(ctx, domain.RoutingKeyDepositCompleted, *record)
	return record, nil
}

// Withdraw debits amount from the account and records a WITHDRAWAL transaction.
func (s *Service) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Transaction, error) {
	if !ValidateAmount(amount) {
		return nil, fmt.Errorf("%w: amount must be positive with at most two decimal places", ErrInvalidAmount)
	}
	if err := s.withdraw(ctx, accountNumber, amount); err != nil {
		return nil, err
	}
	record, err := s.RecordWithdrawal(context.WithoutCancel(ctx), accountNumber, amount)
	if err != nil {
		log.Printf("level=error component=accounts msg=\"withdrawal applied but not recorded\" account_number=%s amount=%s err=%v",
			accountNumber, amount.StringFixed(2), err)
		return nil, fmt.Errorf("%w: %w", ErrMovementNotRecorded, err)
	}
	s.publishLedgerEvent(ctx, domain.RoutingKeyWithdrawalCompleted, *record)
	return record, nil
}

func (s *Service) GetAccountByIban(ctx context.Context, iban string) (*domain.Account, error) {
	account, found, err := s.accounts.GetByIban(ctx, iban)
	return foundAccount(account, found, err, "IBAN "+iban)
}

func (s *Service) GetAccountByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	account, found, err := s.accounts.GetByAccountNumber(ctx, accountNumber)
	return foundAccount(account, found, err, "account number "+accountNumber)
}

func (s *Service) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	account, found, err := s.accounts.GetByID(ctx, id)
	return foundAccount(account, found, err, "id "+id)
}

func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.accounts.List(ctx)
}

func foundAccount(account domain.Account, found bool, err error, lookup string) (*domain.Account, error) {
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, lookup)
	}
	return &account, nil
}

// AddSavedRecipient appends iban to the account's saved recipients.
func (s *Service) AddSavedRecipient(ctx context.Context, accountID, iban string) (*domain.Account, error) {
	iban = NormalizeIban(iban)
	if !ValidateIban(iban) {
		return nil, fmt.Errorf("%w: invalid IBAN format", ErrInvalidIban)
	}

	var updated domain.Account
	err := s.locker.WithLock(ctx, recipientsLockKey(accountID), func(ctx context.Context) error {
		account, err := s.GetAccountByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account.HasSavedRecipient(iban) {
			return ErrRecipientAlreadySaved
		}
		account.SavedRecipientIbans = append(account.SavedRecipientIbans, iban)
		updated, err = s.accounts.Save(ctx, *account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListSavedRecipients resolves the saved IBANs to accounts, skipping unknown ones.
func (s *Service) ListSavedRecipients(ctx context.Context, accountID string) ([]domain.Account, error) {
	account, err := s.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	recipients := []domain.Account{}
	for _, iban := range account.SavedRecipientIbans {
		recipient, found, err := s.accounts.GetByIban(ctx, iban)
		if err != nil {
			return nil, err
		}
		if found {
			recipients = append(recipients, recipient)
		}
	}
	return recipients, nil
}

// RemoveSavedRecipient drops iban from the account's saved recipients. Removing an
// IBAN that is not saved is a no-op.
func (s *Service) RemoveSavedRecipient(ctx context.Context, accountID, iban string) (*domain.Account, error) {
	iban = NormalizeIban(iban)

	var updated domain.Account
	err := s.locker.WithLock(ctx, recipientsLockKey(accountID), func(ctx context.Context) error {
		account, err := s.GetAccountByID(ctx, accountID)
		if err != nil {
			return err
		}
		account.SavedRecipientIbans = account.WithoutSavedRecipient(iban)
		updated, err = s.accounts.Save(ctx, *account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func recipientsLockKey(accountID string) string {
	return "recipients:" + accountID
}

// GetTransaction returns the record with the given id.
func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, found, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", store.ErrTransactionNotFound, id)
	}
	return &tx, nil
}

func (s *Service) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.transactions.List(ctx)
}

func (s *Service) TransactionsByAccountNumber(ctx context.Context, accountNumber string) ([]domain.Transaction, error) {
	return s.transactions.FindByAccountNumber(ctx, accountNumber)
}

func (s *Service) TransactionsByIban(ctx context.Context, iban string) ([]domain.Transaction, error) {
	return s.transactions.FindByIban(ctx, iban)
}

// RecipientIbans lists every IBAN fromIban has sent money to, first-seen order.
func (s *Service) RecipientIbans(ctx context.Context, fromIban string) ([]string, error) {
	return s.transactions.DistinctRecipientIbans(ctx, fromIban)
}
