package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementService orchestrates the multi-step money flows: escrow release,
// refunds and payout completion. Each flow composes the balance protocol,
// the commission calculator and the ledger inside one transaction; all side
// effects commit together or not at all.
type SettlementService struct {
	scope      TransactionScope
	calculator *settlement.CommissionCalculator
	events     shared.EventPublisher
	audit      AuditRecorder
	logger     *zap.Logger
}

// NewSettlementService creates a new SettlementService
func NewSettlementService(
	scope TransactionScope,
	calculator *settlement.CommissionCalculator,
	events shared.EventPublisher,
	audit AuditRecorder,
	logger *zap.Logger,
) *SettlementService {
	return &SettlementService{
		scope:      scope,
		calculator: calculator,
		events:     events,
		audit:      audit,
		logger:     logger,
	}
}

// EscrowReleaseResult is the outcome of releasing an escrowed transaction
type EscrowReleaseResult struct {
	Transaction *settlement.EscrowTransaction `json:"transaction"`
	Commission  *settlement.CommissionRecord  `json:"commission"`
	Credit      *BalanceOperationResult       `json:"credit"`
	Replayed    bool                          `json:"replayed"`
}

// ReleaseEscrowToSeller settles an escrowed transaction: computes the
// commission split, persists the write-once commission record, marks the
// transaction settled and credits the seller's net amount. Replays with the
// same idempotency state return the prior result without re-crediting.
func (s *SettlementService) ReleaseEscrowToSeller(ctx context.Context, transactionID uuid.UUID, idempotencyKey string) (*EscrowReleaseResult, error) {
	var (
		result EscrowReleaseResult
		events []shared.DomainEvent
	)

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		tx, err := repos.Transactions().FindByIDForUpdate(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("failed to load transaction: %w", err)
		}

		// Idempotent no-op: a commission record plus a matching escrow-release
		// ledger entry mean this transaction already settled.
		existing, err := repos.Commissions().FindByTransactionID(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("failed to check commission record: %w", err)
		}
		if existing != nil {
			entries, err := repos.Ledger().FindByTransaction(ctx, transactionID, settlement.LedgerSourceEscrowRelease)
			if err != nil {
				return fmt.Errorf("failed to check ledger: %w", err)
			}
			if len(entries) > 0 {
				result = EscrowReleaseResult{
					Transaction: tx,
					Commission:  existing,
					Credit:      &BalanceOperationResult{Entry: entries[0], Replayed: true},
					Replayed:    true,
				}
				return nil
			}
		}

		if !tx.IsEscrowed() {
			return shared.NewDomainError("NOT_ESCROWED",
				"Transaction is in "+tx.Status.String()+" status, expected ESCROWED")
		}

		breakdown, err := s.calculator.Calculate(tx.GrossAmount, tx.Currency, "SALE")
		if err != nil {
			return err
		}

		commission, err := settlement.NewCommissionRecord(transactionID, breakdown)
		if err != nil {
			return err
		}
		if err := repos.Commissions().Create(ctx, commission); err != nil {
			return fmt.Errorf("failed to persist commission record: %w", err)
		}

		if err := tx.MarkSettled(); err != nil {
			return err
		}
		if err := repos.Transactions().Save(ctx, tx); err != nil {
			return fmt.Errorf("failed to persist transaction: %w", err)
		}

		credit, err := ApplyLedgerOperation(ctx, repos, settlement.LedgerEntryTypeCredit, BalanceOperationRequest{
			SellerID:       tx.SellerID,
			Amount:         breakdown.NetAmount,
			Source:         settlement.LedgerSourceEscrowRelease,
			Description:    "Escrow release for transaction " + transactionID.String(),
			IdempotencyKey: idempotencyKey,
			TransactionID:  &transactionID,
		}, true)
		if err != nil {
			return err
		}

		result = EscrowReleaseResult{Transaction: tx, Commission: commission, Credit: credit}
		events = append(events, settlement.NewEscrowReleasedEvent(tx, breakdown.NetAmount))
		return nil
	})

	s.audit.Record(ctx, AuditEntry{
		Actor:        "system",
		Action:       "settlement.release_escrow",
		ResourceType: "EscrowTransaction",
		ResourceID:   transactionID.String(),
		Risk:         RiskLevelHigh,
		Success:      err == nil,
		Error:        errString(err),
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events...)
	return &result, nil
}

// RefundResult is the outcome of processing a refund
type RefundResult struct {
	Refund   *settlement.RefundRecord `json:"refund"`
	Debit    *BalanceOperationResult  `json:"debit,omitempty"`
	Replayed bool                     `json:"replayed"`
}

// ProcessRefund records a refund against a transaction. When the refund
// covers the full gross amount and fee reversal is requested, the previously
// charged platform fee is added back into the refund accounting. If the
// transaction had already been settled to the seller, the seller is debited
// amount minus reversed fee in the same transaction as the record write.
// Retries with the same idempotency key return the refund recorded the first
// time; reusing a key against a different transaction is a conflict.
func (s *SettlementService) ProcessRefund(ctx context.Context, transactionID uuid.UUID,
	amount decimal.Decimal, reason string, reversePlatformFee bool, idempotencyKey string) (*RefundResult, error) {

	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "process_refund")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTransactionID, transactionID.String(),
		telemetry.SpanAttrAmount, amount.String(),
		telemetry.SpanAttrIdempotencyKey, idempotencyKey,
	)

	var (
		result RefundResult
		events []shared.DomainEvent
	)

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		tx, err := repos.Transactions().FindByIDForUpdate(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("failed to load transaction: %w", err)
		}

		prior, err := repos.Refunds().FindByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return fmt.Errorf("failed to check refund idempotency: %w", err)
		}
		if prior != nil {
			if prior.TransactionID != transactionID {
				return settlement.NewIdempotencyConflictError(idempotencyKey, nil)
			}
			result = RefundResult{Refund: prior, Replayed: true}
			return nil
		}

		if amount.GreaterThan(tx.GrossAmount) {
			return shared.NewDomainError("INVALID_AMOUNT",
				"Refund amount exceeds transaction gross amount")
		}

		wasSettled := tx.IsSettled()

		reversedFee := decimal.Zero
		if reversePlatformFee && amount.Equal(tx.GrossAmount) {
			commission, err := repos.Commissions().FindByTransactionID(ctx, transactionID)
			if err != nil {
				return fmt.Errorf("failed to load commission record: %w", err)
			}
			if commission != nil {
				reversedFee = commission.PlatformFee
			}
		}

		refund, err := settlement.NewRefundRecord(transactionID, amount, tx.Currency, reason, reversePlatformFee, reversedFee, idempotencyKey)
		if err != nil {
			return err
		}
		if err := repos.Refunds().Create(ctx, refund); err != nil {
			return fmt.Errorf("failed to persist refund record: %w", err)
		}

		if amount.Equal(tx.GrossAmount) {
			if err := tx.MarkRefunded(); err != nil {
				return err
			}
			if err := repos.Transactions().Save(ctx, tx); err != nil {
				return fmt.Errorf("failed to persist transaction: %w", err)
			}
		}

		if wasSettled {
			debit, err := ApplyLedgerOperation(ctx, repos, settlement.LedgerEntryTypeDebit, BalanceOperationRequest{
				SellerID:       tx.SellerID,
				Amount:         refund.SellerDebit(),
				Source:         settlement.LedgerSourceRefundIssued,
				Description:    "Refund for transaction " + transactionID.String(),
				IdempotencyKey: idempotencyKey,
				TransactionID:  &transactionID,
			}, false)
			if err != nil {
				return err
			}
			result.Debit = debit
		}

		result.Refund = refund
		events = append(events, settlement.NewRefundProcessedEvent(refund))
		return nil
	})

	s.audit.Record(ctx, AuditEntry{
		Actor:        "system",
		Action:       "settlement.process_refund",
		ResourceType: "EscrowTransaction",
		ResourceID:   transactionID.String(),
		Risk:         RiskLevelHigh,
		Success:      err == nil,
		Error:        errString(err),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, events...)
	return &result, nil
}

// PayoutCompletionResult is the outcome of completing a payout
type PayoutCompletionResult struct {
	Payout   *settlement.PayoutRequest `json:"payout"`
	Debit    *BalanceOperationResult   `json:"debit,omitempty"`
	Replayed bool                      `json:"replayed"`
}

// CompletePayout debits the seller's held funds and transitions the payout to
// COMPLETED with the provider's reference. If the payout is already
// COMPLETED, the existing state and ledger entry are returned instead of
// re-debiting.
func (s *SettlementService) CompletePayout(ctx context.Context, payoutID uuid.UUID,
	providerPayoutID, providerResponse, idempotencyKey string) (*PayoutCompletionResult, error) {

	var (
		result PayoutCompletionResult
		events []shared.DomainEvent
	)

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		payout, err := repos.Payouts().FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return fmt.Errorf("failed to load payout: %w", err)
		}

		if payout.Status == settlement.PayoutStatusCompleted {
			entries, err := repos.Ledger().FindByTransaction(ctx, payoutID, settlement.LedgerSourcePayoutCompleted)
			if err == nil && len(entries) > 0 {
				result = PayoutCompletionResult{
					Payout:   payout,
					Debit:    &BalanceOperationResult{Entry: entries[0], Replayed: true},
					Replayed: true,
				}
				return nil
			}
			result = PayoutCompletionResult{Payout: payout, Replayed: true}
			return nil
		}

		debit, err := ApplyLedgerOperation(ctx, repos, settlement.LedgerEntryTypeDebit, BalanceOperationRequest{
			SellerID:       payout.SellerID,
			Amount:         payout.Amount,
			Source:         settlement.LedgerSourcePayoutCompleted,
			Description:    "Payout " + payoutID.String() + " completed",
			IdempotencyKey: idempotencyKey,
			PayoutID:       &payoutID,
		}, false)
		if err != nil {
			return err
		}

		if err := payout.Complete(providerPayoutID, providerResponse); err != nil {
			return err
		}
		if err := repos.Payouts().Save(ctx, payout); err != nil {
			return fmt.Errorf("failed to persist payout: %w", err)
		}

		result = PayoutCompletionResult{Payout: payout, Debit: debit}
		events = payout.GetDomainEvents()
		payout.ClearDomainEvents()
		return nil
	})

	s.audit.Record(ctx, AuditEntry{
		Actor:        "system",
		Action:       "settlement.complete_payout",
		ResourceType: "PayoutRequest",
		ResourceID:   payoutID.String(),
		Risk:         RiskLevelHigh,
		Success:      err == nil,
		Error:        errString(err),
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events...)
	return &result, nil
}

// RecordEscrow registers a marketplace transaction whose buyer funds are now
// held centrally. It is the entry point for the order flow; the transaction
// stays ESCROWED until released or refunded.
func (s *SettlementService) RecordEscrow(ctx context.Context, sellerID uuid.UUID,
	grossAmount decimal.Decimal, currency string) (*settlement.EscrowTransaction, error) {

	tx, err := settlement.NewEscrowTransaction(sellerID, grossAmount, currency)
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Transactions().Save(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("record escrow: %w", err)
	}

	s.audit.Record(ctx, AuditEntry{
		Action:       "escrow.record",
		ResourceType: "EscrowTransaction",
		ResourceID:   tx.ID.String(),
		Risk:         RiskLevelLow,
		Success:      true,
	})
	return tx, nil
}

// GetTransaction loads one escrow transaction
func (s *SettlementService) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*settlement.EscrowTransaction, error) {
	var tx *settlement.EscrowTransaction
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		tx, err = repos.Transactions().FindByID(ctx, transactionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// publish dispatches notification events after commit; failures are logged
// and never affect the already committed financial transaction.
func (s *SettlementService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Warn("notification dispatch failed", zap.Error(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
