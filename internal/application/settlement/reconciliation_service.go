package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// MismatchType classifies a reconciliation finding
type MismatchType string

const (
	// MismatchTypeChain means hash or sequence verification failed
	MismatchTypeChain MismatchType = "CHAIN_INTEGRITY"
	// MismatchTypeBalance means the cached snapshot drifted from ledger truth
	MismatchTypeBalance MismatchType = "BALANCE_DRIFT"
	// MismatchTypePendingHold means pending does not match the open payout holds
	MismatchTypePendingHold MismatchType = "PENDING_HOLD_DRIFT"
)

// Mismatch is one reconciliation finding. Findings are data, not errors:
// reconciliation reports drift, it never repairs it.
type Mismatch struct {
	BalanceID uuid.UUID    `json:"balance_id"`
	SellerID  uuid.UUID    `json:"seller_id"`
	Type      MismatchType `json:"type"`
	Expected  string       `json:"expected"`
	Actual    string       `json:"actual"`
	Detail    string       `json:"detail,omitempty"`
}

// BalanceReconciliationReport is the outcome of reconciling one balance
type BalanceReconciliationReport struct {
	BalanceID  uuid.UUID                       `json:"balance_id"`
	SellerID   uuid.UUID                       `json:"seller_id"`
	Chain      settlement.ChainVerification    `json:"chain"`
	Balance    *settlement.BalanceVerification `json:"balance,omitempty"`
	Mismatches []Mismatch                      `json:"mismatches"`
	CheckedAt  time.Time                       `json:"checked_at"`
}

// Clean returns true when no mismatch was found
func (r *BalanceReconciliationReport) Clean() bool {
	return len(r.Mismatches) == 0
}

// SystemReconciliationReport aggregates a full sweep across all balances
type SystemReconciliationReport struct {
	BalancesChecked int        `json:"balances_checked"`
	CleanBalances   int        `json:"clean_balances"`
	Mismatches      []Mismatch `json:"mismatches"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at"`
}

// ReconciliationService independently re-derives every balance from its
// ledger chain and compares three views that must agree: the recomputed
// chain, the cached balance snapshot, and the sum of payouts that currently
// hold funds. It only ever reads and reports.
type ReconciliationService struct {
	scope  TransactionScope
	events shared.EventPublisher
	audit  AuditRecorder
	logger *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	scope TransactionScope,
	events shared.EventPublisher,
	audit AuditRecorder,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		scope:  scope,
		events: events,
		audit:  audit,
		logger: logger,
	}
}

// ReconcileBalance verifies one balance: full chain replay, snapshot versus
// ledger-derived total, and pending versus the sum of fund-holding payouts.
func (s *ReconciliationService) ReconcileBalance(ctx context.Context, balanceID uuid.UUID) (*BalanceReconciliationReport, error) {
	report := &BalanceReconciliationReport{
		BalanceID:  balanceID,
		Mismatches: []Mismatch{},
		CheckedAt:  time.Now(),
	}

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		balance, err := repos.Balances().FindByID(ctx, balanceID)
		if err != nil {
			return err
		}
		report.SellerID = balance.SellerID

		entries, err := repos.Ledger().FindAllByBalance(ctx, balanceID)
		if err != nil {
			return err
		}

		report.Chain = settlement.VerifyChain(balanceID, entries)
		if !report.Chain.Valid {
			report.Mismatches = append(report.Mismatches, Mismatch{
				BalanceID: balanceID,
				SellerID:  balance.SellerID,
				Type:      MismatchTypeChain,
				Detail:    report.Chain.Discrepancy,
			})
			// A broken chain makes the derived balance meaningless; skip the
			// downstream comparisons rather than report noise.
			return nil
		}

		summary := settlement.SummarizeLedger(entries)
		verification := balance.VerifyAgainstLedger(summary)
		report.Balance = &verification
		if !verification.Valid {
			report.Mismatches = append(report.Mismatches, Mismatch{
				BalanceID: balanceID,
				SellerID:  balance.SellerID,
				Type:      MismatchTypeBalance,
				Expected:  verification.Expected.StringFixed(2),
				Actual:    verification.Actual.StringFixed(2),
			})
		}

		held, err := repos.Payouts().SumHeldByBalance(ctx, balanceID, []settlement.PayoutStatus{
			settlement.PayoutStatusPending,
			settlement.PayoutStatusApproved,
			settlement.PayoutStatusProcessing,
		})
		if err != nil {
			return err
		}
		if !balance.Pending.Equal(held) {
			report.Mismatches = append(report.Mismatches, Mismatch{
				BalanceID: balanceID,
				SellerID:  balance.SellerID,
				Type:      MismatchTypePendingHold,
				Expected:  held.StringFixed(2),
				Actual:    balance.Pending.StringFixed(2),
				Detail:    "pending bucket does not match open payout holds; failed payouts awaiting review also hold funds",
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.report(ctx, report)
	return report, nil
}

// RunSystemWideReconciliation sweeps every balance. Per-balance errors are
// logged and counted as findings rather than aborting the sweep; a scheduled
// run must always produce a report.
func (s *ReconciliationService) RunSystemWideReconciliation(ctx context.Context) (*SystemReconciliationReport, error) {
	report := &SystemReconciliationReport{
		Mismatches: []Mismatch{},
		StartedAt:  time.Now(),
	}

	var ids []uuid.UUID
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		ids, err = repos.Balances().ListIDs(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		balanceReport, err := s.ReconcileBalance(ctx, id)
		if err != nil {
			s.logger.Error("balance reconciliation failed",
				zap.String("balance_id", id.String()),
				zap.Error(err))
			report.Mismatches = append(report.Mismatches, Mismatch{
				BalanceID: id,
				Type:      MismatchTypeChain,
				Detail:    "reconciliation aborted: " + err.Error(),
			})
			continue
		}
		report.BalancesChecked++
		if balanceReport.Clean() {
			report.CleanBalances++
		} else {
			report.Mismatches = append(report.Mismatches, balanceReport.Mismatches...)
		}
	}
	report.FinishedAt = time.Now()

	s.logger.Info("system-wide reconciliation finished",
		zap.Int("balances_checked", report.BalancesChecked),
		zap.Int("clean_balances", report.CleanBalances),
		zap.Int("mismatches", len(report.Mismatches)))

	s.audit.Record(ctx, AuditEntry{
		Actor:        "system",
		Action:       "reconciliation.sweep",
		ResourceType: "SellerBalance",
		ResourceID:   "*",
		After:        report,
		Risk:         RiskLevelLow,
		Success:      true,
	})
	return report, nil
}

// report logs findings and emits a mismatch event per drifted balance
func (s *ReconciliationService) report(ctx context.Context, r *BalanceReconciliationReport) {
	if r.Clean() {
		return
	}

	for _, m := range r.Mismatches {
		s.logger.Warn("reconciliation mismatch",
			zap.String("balance_id", m.BalanceID.String()),
			zap.String("type", string(m.Type)),
			zap.String("expected", m.Expected),
			zap.String("actual", m.Actual),
			zap.String("detail", m.Detail))
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:        "system",
		Action:       "reconciliation.mismatch",
		ResourceType: "SellerBalance",
		ResourceID:   r.BalanceID.String(),
		After:        r.Mismatches,
		Risk:         RiskLevelHigh,
		Success:      true,
	})

	if r.Balance != nil && !r.Balance.Valid {
		event := settlement.NewReconciliationMismatchEvent(r.BalanceID, *r.Balance)
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn("mismatch event dispatch failed", zap.Error(err))
		}
	}
}
