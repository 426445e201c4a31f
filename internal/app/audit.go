/**
 * @description
 * Periodic ledger audit. Every run recomputes the total money held by all accounts and
 * compares it against what the ledger records explain: the opening balance of every
 * account plus recorded deposits minus recorded withdrawals. Transfers move money
 * between accounts and never change the total.
 *
 * @notes
 * - A transfer that is in flight between its withdraw and deposit makes a single run
 *   report a transient shortfall; persistent mismatches are the ones worth chasing.
 */
package app

import (
	"context"
	"log"
	"time"

	"github.com/nilijoski/banking-app/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// AuditReport summarizes one audit run.
type AuditReport struct {
	Accounts         int
	TotalBalance     decimal.Decimal
	ExpectedBalance  decimal.Decimal
	NegativeAccounts []string
}

// Balanced reports whether the totals match and no account is negative.
func (r AuditReport) Balanced() bool {
	return r.TotalBalance.Equal(r.ExpectedBalance) && len(r.NegativeAccounts) == 0
}

// AuditLedger computes an AuditReport from the current stores.
func (s *Service) AuditLedger(ctx context.Context) (AuditReport, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return AuditReport{}, err
	}
	records, err := s.transactions.List(ctx)
	if err != nil {
		return AuditReport{}, err
	}

	report := AuditReport{
		Accounts:        len(accounts),
		TotalBalance:    decimal.Zero,
		ExpectedBalance: domain.OpeningBalance.Mul(decimal.NewFromInt(int64(len(accounts)))),
	}
	for _, account := range accounts {
		report.TotalBalance = report.TotalBalance.Add(account.Balance)
		if account.Balance.IsNegative() {
			report.NegativeAccounts = append(report.NegativeAccounts, account.AccountNumber)
		}
	}
	for _, tx := range records {
		if !tx.IsCompleted() {
			continue
		}
		switch tx.TransactionType {
		case domain.TransactionTypeDeposit:
			report.ExpectedBalance = report.ExpectedBalance.Add(tx.Amount)
		case domain.TransactionTypeWithdrawal:
			report.ExpectedBalance = report.ExpectedBalance.Sub(tx.Amount)
		}
	}
	return report, nil
}

// AuditScheduler runs AuditLedger on a cron schedule.
type AuditScheduler struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	timeout  time.Duration
}

// NewAuditScheduler creates a scheduler; Start registers the job.
func NewAuditScheduler(service *Service, schedule string) *AuditScheduler {
	cronLogger := cron.PrintfLogger(log.Default())
	return &AuditScheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		service:  service,
		schedule: schedule,
		timeout:  time.Minute,
	}
}

// Start registers the audit job and starts the cron scheduler.
func (a *AuditScheduler) Start() error {
	if _, err := a.cron.AddFunc(a.schedule, a.run); err != nil {
		log.Printf("level=error component=ledger_audit msg=\"failed to schedule audit job\" schedule=%q err=%v", a.schedule, err)
		return err
	}
	log.Printf("level=info component=ledger_audit msg=\"scheduled audit job\" schedule=%q", a.schedule)
	a.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (a *AuditScheduler) Stop() context.Context {
	return a.cron.Stop()
}

func (a *AuditScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	report, err := a.service.AuditLedger(ctx)
	if err != nil {
		log.Printf("level=error component=ledger_audit msg=\"audit failed\" err=%v", err)
		return
	}
	if !report.Balanced() {
		log.Printf("level=error component=ledger_audit msg=\"ledger imbalance detected\" accounts=%d total=%s expected=%s negative_accounts=%v",
			report.Accounts, report.TotalBalance.StringFixed(2), report.ExpectedBalance.StringFixed(2), report.NegativeAccounts)
		return
	}
	log.Printf("level=info component=ledger_audit msg=\"ledger balanced\" accounts=%d total=%s", report.Accounts, report.TotalBalance.StringFixed(2))
}
