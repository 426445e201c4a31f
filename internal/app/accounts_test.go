package app

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/nilijoski/banking-app/internal/domain"
	"github.com/nilijoski/banking-app/internal/store"
)

// sequenceIdentityGenerator hands out predefined identities in order.
type sequenceIdentityGenerator struct {
	numbers []string
	ibans   []string
}

func (g *sequenceIdentityGenerator) AccountNumber() (string, error) {
	if len(g.numbers) == 0 {
		return "", errors.New("no account numbers left")
	}
	n := g.numbers[0]
	g.numbers = g.numbers[1:]
	return n, nil
}

func (g *sequenceIdentityGenerator) Iban() (string, error) {
	if len(g.ibans) == 0 {
		return "", errors.New("no ibans left")
	}
	i := g.ibans[0]
	g.ibans = g.ibans[1:]
	return i, nil
}

func TestOpenAccountSetsOpeningBalanceAndStatus(t *testing.T) {
	f := newLedgerFixture(t)

	account, err := f.svc.OpenAccount(context.Background(), " Max ", "Mustermann")
	if err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	if !account.Balance.Equal(domain.OpeningBalance) || account.Balance.StringFixed(2) != "1000.00" {
		t.Fatalf("unexpected opening balance %s", account.Balance)
	}
	if account.Status != domain.AccountStatusActive || account.FirstName != "Max" {
		t.Fatalf("unexpected account %+v", account)
	}
	if len(account.AccountNumber) != 10 || len(account.Iban) != 22 || !ValidateIban(account.Iban) {
		t.Fatalf("unexpected identity %s / %s", account.AccountNumber, account.Iban)
	}
}

func TestOpenAccountRetriesOnIdentityCollision(t *testing.T) {
	gen := &sequenceIdentityGenerator{
		numbers: []string{"1000000001", "1000000001", "1000000002"},
		ibans:   []string{ibanAlice, ibanBob, ibanCarol},
	}
	f := newLedgerFixture(t, WithIdentityGenerator(gen))

	first, err := f.svc.OpenAccount(context.Background(), "Alice", "Meyer")
	if err != nil {
		t.Fatalf("first OpenAccount: %v", err)
	}
	second, err := f.svc.OpenAccount(context.Background(), "Bob", "Schulz")
	if err != nil {
		t.Fatalf("second OpenAccount: %v", err)
	}
	if first.AccountNumber == second.AccountNumber {
		t.Fatalf("collision was not retried")
	}
	if second.AccountNumber != "1000000002" || second.Iban != ibanCarol {
		t.Fatalf("unexpected identity for second account: %s / %s", second.AccountNumber, second.Iban)
	}
}

func TestOpenAccountGivesUpAfterBoundedAttempts(t *testing.T) {
	gen := &sequenceIdentityGenerator{}
	for i := 0; i < maxIdentityAttempts+1; i++ {
		gen.numbers = append(gen.numbers, "1000000001")
		gen.ibans = append(gen.ibans, ibanAlice)
	}
	f := newLedgerFixture(t, WithIdentityGenerator(gen))

	if _, err := f.svc.OpenAccount(context.Background(), "Alice", "Meyer"); err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	if _, err := f.svc.OpenAccount(context.Background(), "Bob", "Schulz"); !errors.Is(err, store.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount after exhausting attempts, got %v", err)
	}
}

func TestOpenAccountRequiresNames(t *testing.T) {
	f := newLedgerFixture(t)
	if _, err := f.svc.OpenAccount(context.Background(), "", "Meyer"); !errors.Is(err, ErrInvalidAccountHolder) {
		t.Fatalf("expected ErrInvalidAccountHolder, got %v", err)
	}
}

func TestSavedRecipientsLifecycle(t *testing.T) {
	f := newLedgerFixture(t)
	owner := f.seed(t, ibanAlice, "1000000001", "Alice", "Meyer", "1000.00")
	f.seed(t, ibanBob, "1000000002", "Bob", "Schulz", "1000.00")
	ctx := context.Background()

	if _, err := f.svc.AddSavedRecipient(ctx, owner.ID, "de75 5121 0800 1245 1261 99"); err != nil {
		t.Fatalf("AddSavedRecipient: %v", err)
	}
	if _, err := f.svc.AddSavedRecipient(ctx, owner.ID, ibanBob); !errors.Is(err, ErrRecipientAlreadySaved) {
		t.Fatalf("expected ErrRecipientAlreadySaved, got %v", err)
	}
	if _, err := f.svc.AddSavedRecipient(ctx, owner.ID, "not-an-iban"); !errors.Is(err, ErrInvalidIban) {
		t.Fatalf("expected ErrInvalidIban, got %v", err)
	}
	// Valid shape but no such account: kept, but skipped when listing.
	updated, err := f.svc.AddSavedRecipient(ctx, owner.ID, ibanCarol)
	if err != nil {
		t.Fatalf("AddSavedRecipient: %v", err)
	}
	if !reflect.DeepEqual(updated.SavedRecipientIbans, []string{ibanBob, ibanCarol}) {
		t.Fatalf("unexpected saved recipients %v", updated.SavedRecipientIbans)
	}

	recipients, err := f.svc.ListSavedRecipients(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListSavedRecipients: %v", err)
	}
	if len(recipients) != 1 || recipients[0].Iban != ibanBob {
		t.Fatalf("unexpected recipients %+v", recipients)
	}

	after, err := f.svc.RemoveSavedRecipient(ctx, owner.ID, ibanBob)
	if err != nil {
		t.Fatalf("RemoveSavedRecipient: %v", err)
	}
	if !reflect.DeepEqual(after.SavedRecipientIbans, []string{ibanCarol}) {
		t.Fatalf("unexpected saved recipients after removal %v", after.SavedRecipientIbans)
	}

	if _, err := f.svc.ListSavedRecipients(ctx, "missing"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountLookups(t *testing.T) {
	f := newLedgerFixture(t)
	seeded := f.seed(t, ibanAlice, "1000000001", "Alice", "Meyer", "1000.00")
	ctx := context.Background()

	if a, err := f.svc.GetAccountByIban(ctx, ibanAlice); err != nil || a.ID != seeded.ID {
		t.Fatalf("GetAccountByIban = %+v, %v", a, err)
	}
	if a, err := f.svc.GetAccountByAccountNumber(ctx, "1000000001"); err != nil || a.ID != seeded.ID {
		t.Fatalf("GetAccountByAccountNumber = %+v, %v", a, err)
	}
	if _, err := f.svc.GetAccountByIban(ctx, ibanBob); !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	all, err := f.svc.ListAccounts(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListAccounts = %d, %v", len(all), err)
	}
}
