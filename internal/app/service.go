/**
 * @description
 * This file contains the transfer engine of the ledger. The `Service` struct validates a
 * transfer instruction, moves the funds between the two accounts and records the
 * auditable transaction, then announces the result on the message broker.
 *
 * Key features:
 * - Ordered validation: recipient IBAN format, amount, self-transfer, sender existence,
 *   recipient existence. Nothing is mutated before all checks pass.
 * - The sender debit runs under the sender's account lock, held only for that single
 *   mutation. Opposite-direction transfers cannot deadlock.
 * - Once the debit is committed, the recipient credit and any compensation go straight to
 *   the store, whose Deposit is atomic per account.
 * - If the recipient deposit fails after the sender was debited, the sender is credited
 *   back before the error is returned.
 *
 * @dependencies
 * - internal/domain, internal/store, internal/lock: models, persistence and per-account locks.
 * - pkg/rabbitmq: event publishing.
 * - github.com/shopspring/decimal: money amounts.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nilijoski/banking-app/internal/domain"
	"github.com/nilijoski/banking-app/internal/lock"
	"github.com/nilijoski/banking-app/internal/store"
	"github.com/nilijoski/banking-app/pkg/rabbitmq"
	"github.com/shopspring/decimal"
)

const defaultEventsExchange = "ledger.events"

// Service provides the ledger's business operations.
type Service struct {
	accounts     store.AccountStore
	transactions store.TransactionStore
	locker       lock.Locker
	identities   AccountIdentityGenerator
	publisher    rabbitmq.Publisher
	exchange     string
	now          func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithLocker replaces the default in-process account lock registry.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithPublisher enables event publishing to exchange.
func WithPublisher(p rabbitmq.Publisher, exchange string) Option {
	return func(s *Service) {
		s.publisher = p
		if strings.TrimSpace(exchange) != "" {
			s.exchange = exchange
		}
	}
}

// WithClock overrides the time source used for transaction dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIdentityGenerator overrides how new account numbers and IBANs are drawn.
func WithIdentityGenerator(g AccountIdentityGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.identities = g
		}
	}
}

// NewService creates a new ledger service instance.
func NewService(accounts store.AccountStore, transactions store.TransactionStore, opts ...Option) *Service {
	s := &Service{
		accounts:     accounts,
		transactions: transactions,
		locker:       lock.NewKeyedMutex(),
		identities:   RandomIdentityGenerator{},
		exchange:     defaultEventsExchange,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transfer moves req.Amount from the account owning req.FromIban to the account owning
// req.ToIban and returns the COMPLETED transaction record.
func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transaction, error) {
	if !ValidateIban(req.ToIban) {
		return nil, fmt.Errorf("%w: invalid IBAN format", ErrInvalidIban)
	}
	if !ValidateAmount(req.Amount) {
		return nil, fmt.Errorf("%w: amount must be positive with at most two decimal places", ErrInvalidAmount)
	}
	if !ValidateDistinctAccounts(req.FromIban, req.ToIban) {
		return nil, ErrSameAccountTransfer
	}

	sender, found, err := s.accounts.GetByIban(ctx, req.FromIban)
	if err != nil {
		return nil, fmt.Errorf("failed to find sender: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: sender account %s", store.ErrAccountNotFound, req.FromIban)
	}

	recipient, found, err := s.accounts.GetByIban(ctx, req.ToIban)
	if err != nil {
		return nil, fmt.Errorf("failed to find recipient: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: recipient IBAN not found", ErrInvalidIban)
	}

	record := domain.Transaction{
		FromIban:          sender.Iban,
		ToIban:            recipient.Iban,
		FromFirstName:     sender.FirstName,
		FromLastName:      sender.LastName,
		ToFirstName:       req.ToFirstName,
		ToLastName:        req.ToLastName,
		FromAccountNumber: sender.AccountNumber,
		ToAccountNumber:   recipient.AccountNumber,
		Amount:            req.Amount,
		TransactionType:   domain.TransactionTypeTransfer,
		Status:            domain.TransactionStatusPending,
		Description:       req.Description,
		TransactionDate:   s.now().UTC(),
	}
	record.Warning = nameMismatchWarning(recipient, req.ToFirstName, req.ToLastName)

	if err := s.withdraw(ctx, sender.AccountNumber, req.Amount); err != nil {
		return nil, fmt.Errorf("failed to debit sender: %w", err)
	}

	// From here on the sender has been debited; finish regardless of caller cancellation.
	settleCtx := context.WithoutCancel(ctx)

	if err := s.credit(settleCtx, recipient.AccountNumber, req.Amount); err != nil {
		return nil, s.compensate(settleCtx, sender, req.Amount, err)
	}

	record.Status = domain.TransactionStatusCompleted
	saved, err := s.transactions.Save(settleCtx, record)
	if err != nil {
		log.Printf("level=error component=ledger msg=\"transaction save failed after settlement\" from=%s to=%s amount=%s err=%v",
			sender.AccountNumber, recipient.AccountNumber, req.Amount.StringFixed(2), err)
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}

	log.Printf("level=info component=ledger msg=\"transfer completed\" transaction_id=%s from=%s to=%s amount=%s name_mismatch=%t",
		saved.ID, saved.FromAccountNumber, saved.ToAccountNumber, saved.Amount.StringFixed(2), saved.Warning != "")
	s.publishLedgerEvent(settleCtx, domain.RoutingKeyTransferCompleted, saved)

	return &saved, nil
}

// RecordDeposit stores a COMPLETED DEPOSIT record for accountNumber. Balances are not touched.
func (s *Service) RecordDeposit(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Transaction, error) {
	saved, err := s.transactions.Save(ctx, domain.Transaction{
		ToAccountNumber: accountNumber,
		Amount:          amount,
		TransactionType: domain.TransactionTypeDeposit,
		Status:          domain.TransactionStatusCompleted,
		TransactionDate: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}
	return &saved, nil
}

// RecordWithdrawal stores a COMPLETED WITHDRAWAL record for accountNumber. Balances are not touched.
func (s *Service) RecordWithdrawal(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Transaction, error) {
	saved, err := s.transactions.Save(ctx, domain.Transaction{
		FromAccountNumber: accountNumber,
		Amount:            amount,
		TransactionType:   domain.TransactionTypeWithdrawal,
		Status:            domain.TransactionStatusCompleted,
		TransactionDate:   s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record withdrawal: %w", err)
	}
	return &saved, nil
}

func nameMismatchWarning(holder domain.Account, claimedFirst, claimedLast string) string {
	if strings.EqualFold(holder.FirstName, claimedFirst) && strings.EqualFold(holder.LastName, claimedLast) {
		return ""
	}
	return "Name mismatch: Account holder is " + holder.HolderName()
}

func (s *Service) withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) error {
	return s.locker.WithLock(ctx, accountNumber, func(ctx context.Context) error {
		_, err := s.accounts.Withdraw(ctx, accountNumber, amount)
		return err
	})
}

func (s *Service) deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) error {
	return s.locker.WithLock(ctx, accountNumber, func(ctx context.Context) error {
		_, err := s.accounts.Deposit(ctx, accountNumber, amount)
		return err
	})
}

// credit deposits without the engine lock. It runs after the sender was debited, where a
// lock outage must not block settlement; the store serializes the balance update itself.
func (s *Service) credit(ctx context.Context, accountNumber string, amount decimal.Decimal) error {
	_, err := s.accounts.Deposit(ctx, accountNumber, amount)
	return err
}

// compensate credits a debited sender back after the recipient deposit failed.
func (s *Service) compensate(ctx context.Context, sender domain.Account, amount decimal.Decimal, depositErr error) error {
	log.Printf("level=warn component=ledger msg=\"recipient deposit failed; crediting sender back\" account_number=%s amount=%s err=%v",
		sender.AccountNumber, amount.StringFixed(2), depositErr)

	wrapped := fmt.Errorf("failed to credit recipient: %w", depositErr)
	if err := s.credit(ctx, sender.AccountNumber, amount); err != nil {
		log.Printf("level=error component=ledger msg=\"compensation failed\" account_number=%s amount=%s err=%v",
			sender.AccountNumber, amount.StringFixed(2), err)
		return errors.Join(wrapped, fmt.Errorf("failed to credit sender back: %w", err))
	}
	return wrapped
}

func (s *Service) publishLedgerEvent(ctx context.Context, routingKey string, tx domain.Transaction) {
	if s.publisher == nil {
		return
	}
	event := domain.LedgerEvent{
		EventID:           uuid.NewString(),
		EventType:         routingKey,
		TransactionID:     tx.ID,
		FromIban:          tx.FromIban,
		ToIban:            tx.ToIban,
		FromAccountNumber: tx.FromAccountNumber,
		ToAccountNumber:   tx.ToAccountNumber,
		Amount:            tx.Amount,
		Warning:           tx.Warning,
		OccurredAt:        tx.TransactionDate,
	}
	if err := s.publisher.Publish(ctx, s.exchange, routingKey, event); err != nil {
		log.Printf("level=warn component=ledger msg=\"event publish failed\" routing_key=%s transaction_id=%s err=%v", routingKey, tx.ID, err)
	}
}
