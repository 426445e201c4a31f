package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/nilijoski/banking-app/internal/domain"
	"github.com/nilijoski/banking-app/internal/store"
	"github.com/shopspring/decimal"
)

// CashMovements is the subset of Service the cash consumer needs.
type CashMovements interface {
	Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Transaction, error)
	Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (*domain.Transaction, error)
}

// CashMovementConsumer applies deposit and withdrawal instructions received over AMQP.
type CashMovementConsumer struct {
	ledger  CashMovements
	timeout time.Duration
}

func NewCashMovementConsumer(ledger CashMovements) *CashMovementConsumer {
	return &CashMovementConsumer{ledger: ledger, timeout: 15 * time.Second}
}

// Bindings maps routing keys to handlers for rabbitmq.Consumer.ConsumeWithBindings.
func (c *CashMovementConsumer) Bindings() map[string]func([]byte) bool {
	return map[string]func([]byte) bool{
		domain.RoutingKeyCashDeposit:    c.HandleDeposit,
		domain.RoutingKeyCashWithdrawal: c.HandleWithdrawal,
	}
}

func (c *CashMovementConsumer) HandleDeposit(body []byte) bool {
	return c.handle(body, domain.RoutingKeyCashDeposit, c.ledger.Deposit)
}

func (c *CashMovementConsumer) HandleWithdrawal(body []byte) bool {
	return c.handle(body, domain.RoutingKeyCashWithdrawal, c.ledger.Withdraw)
}

// handle returns true to ack and false to re-queue. Malformed payloads, business
// rejections and movements that were applied but not recorded are acked; only failures
// that left the balance untouched are retried.
func (c *CashMovementConsumer) handle(
	body []byte,
	routingKey string,
	apply func(context.Context, string, decimal.Decimal) (*domain.Transaction, error),
) bool {
	var event domain.CashMovementEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=cash_consumer msg=\"failed to unmarshal payload; dropping\" routing_key=%s err=%v", routingKey, err)
		return true
	}

	accountNumber := strings.TrimSpace(event.AccountNumber)
	if accountNumber == "" {
		log.Printf("level=warn component=cash_consumer msg=\"missing account number; dropping\" routing_key=%s reference=%s", routingKey, event.Reference)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	tx, err := apply(ctx, accountNumber, event.Amount)
	if err != nil {
		if errors.Is(err, ErrMovementNotRecorded) {
			// The balance already moved; a redelivery would apply it twice.
			log.Printf("level=error component=cash_consumer msg=\"cash movement applied without record; acking\" routing_key=%s account_number=%s reference=%s err=%v",
				routingKey, accountNumber, event.Reference, err)
			return true
		}
		if isBusinessRejection(err) {
			log.Printf("level=warn component=cash_consumer msg=\"cash movement rejected\" routing_key=%s account_number=%s reference=%s err=%v",
				routingKey, accountNumber, event.Reference, err)
			return true
		}
		log.Printf("level=error component=cash_consumer msg=\"cash movement failed; re-queuing\" routing_key=%s account_number=%s reference=%s err=%v",
			routingKey, accountNumber, event.Reference, err)
		return false
	}

	log.Printf("level=info component=cash_consumer msg=\"cash movement applied\" routing_key=%s transaction_id=%s account_number=%s amount=%s reference=%s",
		routingKey, tx.ID, accountNumber, event.Amount.StringFixed(2), event.Reference)
	return true
}

func isBusinessRejection(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, store.ErrAccountNotFound) ||
		errors.Is(err, store.ErrInsufficientFunds)
}
