/**
 * @description
 * In-memory implementations of AccountStore and TransactionStore. They back the
 * service when no database is configured and are used throughout the tests.
 *
 * @notes
 * - Balance mutations hold the per-account lock from internal/lock for the whole
 *   load/check/apply/persist sequence; the map mutex only guards the maps themselves.
 * - Values are cloned on the way in and out so callers never share slices with the store.
 */

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nilijoski/banking-app/internal/domain"
	"github.com/nilijoski/banking-app/internal/lock"
	"github.com/shopspring/decimal"
)

// MemoryAccountStore is an AccountStore kept in process memory.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	byID     map[string]domain.Account
	byIban   map[string]string
	byNumber map[string]string
	order    []string

	locks *lock.KeyedMutex
	now   func() time.Time
}

// NewMemoryAccountStore returns an empty store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		byID:     make(map[string]domain.Account),
		byIban:   make(map[string]string),
		byNumber: make(map[string]string),
		locks:    lock.NewKeyedMutex(),
		now:      time.Now,
	}
}

func (s *MemoryAccountStore) getByIndex(index map[string]string, key string) (domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := index[key]
	if !ok {
		return domain.Account{}, false
	}
	return s.byID[id].Clone(), true
}

func (s *MemoryAccountStore) GetByIban(_ context.Context, iban string) (domain.Account, bool, error) {
	account, ok := s.getByIndex(s.byIban, iban)
	return account, ok, nil
}

func (s *MemoryAccountStore) GetByAccountNumber(_ context.Context, accountNumber string) (domain.Account, bool, error) {
	account, ok := s.getByIndex(s.byNumber, accountNumber)
	return account, ok, nil
}

func (s *MemoryAccountStore) GetByID(_ context.Context, id string) (domain.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.byID[id]
	if !ok {
		return domain.Account{}, false, nil
	}
	return account.Clone(), true, nil
}

func (s *MemoryAccountStore) List(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out, nil
}

func (s *MemoryAccountStore) Create(_ context.Context, account domain.Account) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(account)
}

func (s *MemoryAccountStore) insertLocked(account domain.Account) (domain.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if _, exists := s.byID[account.ID]; exists {
		return domain.Account{}, fmt.Errorf("%w: id=%s", ErrDuplicateAccount, account.ID)
	}
	if _, exists := s.byIban[account.Iban]; exists {
		return domain.Account{}, fmt.Errorf("%w: iban=%s", ErrDuplicateAccount, account.Iban)
	}
	if _, exists := s.byNumber[account.AccountNumber]; exists {
		return domain.Account{}, fmt.Errorf("%w: account_number=%s", ErrDuplicateAccount, account.AccountNumber)
	}

	now := s.now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	if account.SavedRecipientIbans == nil {
		account.SavedRecipientIbans = []string{}
	}

	stored := account.Clone()
	s.byID[stored.ID] = stored
	s.byIban[stored.Iban] = stored.ID
	s.byNumber[stored.AccountNumber] = stored.ID
	s.order = append(s.order, stored.ID)
	return stored.Clone(), nil
}

// Save upserts an account. Existing records keep their IBAN, account number, balance
// and creation time.
func (s *MemoryAccountStore) Save(_ context.Context, account domain.Account) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[account.ID]
	if !ok {
		return s.insertLocked(account)
	}

	existing.FirstName = account.FirstName
	existing.LastName = account.LastName
	existing.Status = account.Status
	existing.SavedRecipientIbans = append([]string{}, account.SavedRecipientIbans...)
	existing.UpdatedAt = s.now().UTC()
	s.byID[existing.ID] = existing
	return existing.Clone(), nil
}

func (s *MemoryAccountStore) Withdraw(_ context.Context, accountNumber string, amount decimal.Decimal) (domain.Account, error) {
	return s.mutateBalance(accountNumber, func(balance decimal.Decimal) (decimal.Decimal, error) {
		if balance.LessThan(amount) {
			return balance, fmt.Errorf("%w: account %s", ErrInsufficientFunds, accountNumber)
		}
		return balance.Sub(amount), nil
	})
}

func (s *MemoryAccountStore) Deposit(_ context.Context, accountNumber string, amount decimal.Decimal) (domain.Account, error) {
	return s.mutateBalance(accountNumber, func(balance decimal.Decimal) (decimal.Decimal, error) {
		return balance.Add(amount), nil
	})
}

func (s *MemoryAccountStore) mutateBalance(accountNumber string, apply func(decimal.Decimal) (decimal.Decimal, error)) (domain.Account, error) {
	unlock := s.locks.Lock(accountNumber)
	defer unlock()

	account, ok := s.getByIndex(s.byNumber, accountNumber)
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountNumber)
	}

	next, err := apply(account.Balance)
	if err != nil {
		return domain.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.byID[account.ID]
	stored.Balance = next
	stored.UpdatedAt = s.now().UTC()
	s.byID[stored.ID] = stored
	return stored.Clone(), nil
}

// MemoryTransactionStore is a TransactionStore kept in process memory.
type MemoryTransactionStore struct {
	mu      sync.RWMutex
	records []domain.Transaction
	index   map[string]int
}

// NewMemoryTransactionStore returns an empty store.
func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{index: make(map[string]int)}
}

func (s *MemoryTransactionStore) Save(_ context.Context, tx domain.Transaction) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	pos, exists := s.index[tx.ID]
	if !exists {
		s.index[tx.ID] = len(s.records)
		s.records = append(s.records, tx)
		return tx, nil
	}

	current := s.records[pos]
	if current.IsCompleted() {
		return domain.Transaction{}, fmt.Errorf("%w: %s", ErrTransactionImmutable, tx.ID)
	}
	tx.TransactionDate = current.TransactionDate
	s.records[pos] = tx
	return tx, nil
}

func (s *MemoryTransactionStore) FindByID(_ context.Context, id string) (domain.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return domain.Transaction{}, false, nil
	}
	return s.records[pos], true, nil
}

func (s *MemoryTransactionStore) filter(match func(domain.Transaction) bool) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Transaction{}
	for _, tx := range s.records {
		if match(tx) {
			out = append(out, tx)
		}
	}
	return out
}

func (s *MemoryTransactionStore) FindByAccountNumber(_ context.Context, accountNumber string) ([]domain.Transaction, error) {
	return s.filter(func(tx domain.Transaction) bool {
		return tx.FromAccountNumber == accountNumber || tx.ToAccountNumber == accountNumber
	}), nil
}

func (s *MemoryTransactionStore) FindByIban(_ context.Context, iban string) ([]domain.Transaction, error) {
	return s.filter(func(tx domain.Transaction) bool {
		return tx.FromIban == iban || tx.ToIban == iban
	}), nil
}

func (s *MemoryTransactionStore) DistinctRecipientIbans(_ context.Context, fromIban string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	out := []string{}
	for _, tx := range s.records {
		if tx.FromIban != fromIban || tx.ToIban == "" {
			continue
		}
		if _, dup := seen[tx.ToIban]; dup {
			continue
		}
		seen[tx.ToIban] = struct{}{}
		out = append(out, tx.ToIban)
	}
	return out, nil
}

func (s *MemoryTransactionStore) List(_ context.Context) ([]domain.Transaction, error) {
	return s.filter(func(domain.Transaction) bool { return true }), nil
}
