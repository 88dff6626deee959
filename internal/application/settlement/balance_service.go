package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BalanceService executes the locked balance mutation protocol: every
// operation locks the seller's balance row, checks idempotent replay, mutates
// the aggregate, appends the justifying ledger entry and persists the new
// snapshot, all inside one transaction. If any step fails the whole
// transaction rolls back.
type BalanceService struct {
	scope       TransactionScope
	balanceRepo settlement.SellerBalanceRepository
	ledgerRepo  settlement.LedgerEntryRepository
	audit       AuditRecorder
	logger      *zap.Logger
}

// NewBalanceService creates a new BalanceService
func NewBalanceService(
	scope TransactionScope,
	balanceRepo settlement.SellerBalanceRepository,
	ledgerRepo settlement.LedgerEntryRepository,
	audit AuditRecorder,
	logger *zap.Logger,
) *BalanceService {
	return &BalanceService{
		scope:       scope,
		balanceRepo: balanceRepo,
		ledgerRepo:  ledgerRepo,
		audit:       audit,
		logger:      logger,
	}
}

// BalanceOperationRequest describes one balance mutation
type BalanceOperationRequest struct {
	SellerID       uuid.UUID
	Amount         decimal.Decimal
	Source         settlement.LedgerSource
	Description    string
	IdempotencyKey string
	TransactionID  *uuid.UUID
	PayoutID       *uuid.UUID
	Actor          string
}

// BalanceOperationResult carries the committed state back to the caller.
// Replayed is true when the idempotency key had already been applied and the
// prior result was returned without re-mutating.
type BalanceOperationResult struct {
	Balance  *settlement.SellerBalance `json:"balance"`
	Entry    *settlement.LedgerEntry   `json:"entry"`
	Replayed bool                      `json:"replayed"`
}

// Credit adds settled funds to the seller's available balance, creating the
// balance lazily on first credit.
func (s *BalanceService) Credit(ctx context.Context, req BalanceOperationRequest) (*BalanceOperationResult, error) {
	return s.apply(ctx, settlement.LedgerEntryTypeCredit, req, true)
}

// Debit removes funds from the seller's balance; the source decides whether
// the available or pending bucket pays.
func (s *BalanceService) Debit(ctx context.Context, req BalanceOperationRequest) (*BalanceOperationResult, error) {
	return s.apply(ctx, settlement.LedgerEntryTypeDebit, req, false)
}

// HoldFunds moves funds from available to pending
func (s *BalanceService) HoldFunds(ctx context.Context, req BalanceOperationRequest) (*BalanceOperationResult, error) {
	return s.apply(ctx, settlement.LedgerEntryTypeHold, req, false)
}

// ReleaseHeldFunds moves funds from pending back to available
func (s *BalanceService) ReleaseHeldFunds(ctx context.Context, req BalanceOperationRequest) (*BalanceOperationResult, error) {
	return s.apply(ctx, settlement.LedgerEntryTypeReleaseHold, req, false)
}

func (s *BalanceService) apply(ctx context.Context, entryType settlement.LedgerEntryType,
	req BalanceOperationRequest, createIfMissing bool) (*BalanceOperationResult, error) {

	if req.IdempotencyKey == "" {
		return nil, shared.NewDomainError("MISSING_IDEMPOTENCY_KEY",
			"Balance operations require an idempotency key")
	}

	var result *BalanceOperationResult
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		applied, err := ApplyLedgerOperation(ctx, repos, entryType, req, createIfMissing)
		if err != nil {
			return err
		}
		result = applied
		return nil
	})

	s.recordAudit(ctx, entryType, req, result, err)

	if err != nil {
		var integrityErr *settlement.LedgerIntegrityError
		if errors.As(err, &integrityErr) {
			s.logger.Error("ledger integrity violation, operation aborted",
				zap.String("seller_id", req.SellerID.String()),
				zap.String("operation", entryType.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if result.Replayed {
		s.logger.Info("idempotent replay detected, returning prior result",
			zap.String("seller_id", req.SellerID.String()),
			zap.String("idempotency_key", req.IdempotencyKey),
		)
	}

	return result, nil
}

// ApplyLedgerOperation runs one balance mutation against repositories that
// are already scoped to a transaction. The orchestrator uses it to compose
// balance moves with commission and payout writes in a single atomic unit.
func ApplyLedgerOperation(ctx context.Context, repos TransactionalRepositories,
	entryType settlement.LedgerEntryType, req BalanceOperationRequest,
	createIfMissing bool) (*BalanceOperationResult, error) {

	balance, err := repos.Balances().FindBySellerIDForUpdate(ctx, req.SellerID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	if balance == nil {
		if !createIfMissing {
			return nil, shared.ErrNotFound
		}
		balance, err = settlement.NewSellerBalance(req.SellerID, settlement.SupportedCurrency)
		if err != nil {
			return nil, err
		}
		if err := repos.Balances().Save(ctx, balance); err != nil {
			return nil, fmt.Errorf("failed to create balance: %w", err)
		}
	}

	if existing, err := repos.Ledger().FindByIdempotencyKey(ctx, balance.ID, req.IdempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	} else if existing != nil {
		// A replay must be the same operation; the same key in front of a
		// different type or amount is a caller bug, not a retry.
		if existing.Type != entryType || !existing.Amount.Equal(req.Amount) {
			return nil, settlement.NewIdempotencyConflictError(req.IdempotencyKey, existing)
		}
		return &BalanceOperationResult{Balance: balance, Entry: existing, Replayed: true}, nil
	}

	previous, err := repos.Ledger().FindLastByBalance(ctx, balance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain tail: %w", err)
	}

	entry, err := settlement.NewLedgerEntry(
		balance.ID, entryType, req.Source,
		req.Amount, balance.Currency,
		balance.Total(), previous,
		req.Description, req.IdempotencyKey,
	)
	if err != nil {
		return nil, err
	}
	if req.TransactionID != nil {
		entry.WithTransactionID(*req.TransactionID)
	}
	if req.PayoutID != nil {
		entry.WithPayoutID(*req.PayoutID)
	}

	switch entryType {
	case settlement.LedgerEntryTypeCredit:
		err = balance.Credit(req.Amount)
	case settlement.LedgerEntryTypeDebit:
		err = balance.Debit(req.Amount, req.Source)
	case settlement.LedgerEntryTypeHold:
		err = balance.HoldFunds(req.Amount)
	case settlement.LedgerEntryTypeReleaseHold:
		err = balance.ReleaseHeldFunds(req.Amount)
	}
	if err != nil {
		return nil, err
	}

	// The mutated snapshot and the chain must land on the same total.
	if !balance.Total().Equal(entry.BalanceAfter) {
		return nil, settlement.NewLedgerIntegrityError(balance.ID, entry.Sequence,
			"mutated balance total "+balance.Total().StringFixed(2)+
				" diverges from chain total "+entry.BalanceAfter.StringFixed(2))
	}

	if err := repos.Ledger().Append(ctx, entry); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, settlement.NewIdempotencyConflictError(req.IdempotencyKey, entry)
		}
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	if err := repos.Balances().Save(ctx, balance); err != nil {
		return nil, fmt.Errorf("failed to persist balance: %w", err)
	}

	return &BalanceOperationResult{Balance: balance, Entry: entry}, nil
}

// VerifyBalance compares the seller's cached available+pending total against
// the balance derived from the ledger chain.
func (s *BalanceService) VerifyBalance(ctx context.Context, sellerID uuid.UUID) (*settlement.BalanceVerification, error) {
	balance, err := s.balanceRepo.FindBySellerID(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, shared.ErrNotFound
	}

	entries, err := s.ledgerRepo.FindAllByBalance(ctx, balance.ID)
	if err != nil {
		return nil, err
	}

	verification := balance.VerifyAgainstLedger(settlement.SummarizeLedger(entries))
	if !verification.Valid {
		s.logger.Error("balance drift detected",
			zap.String("seller_id", sellerID.String()),
			zap.String("balance_id", balance.ID.String()),
			zap.String("discrepancy", verification.Discrepancy.String()),
		)
	}
	return &verification, nil
}

// GetBalance returns a seller's balance snapshot
func (s *BalanceService) GetBalance(ctx context.Context, sellerID uuid.UUID) (*settlement.SellerBalance, error) {
	balance, err := s.balanceRepo.FindBySellerID(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, shared.ErrNotFound
	}
	return balance, nil
}

// ListBalances returns a page of balances for the operator surface
func (s *BalanceService) ListBalances(ctx context.Context, filter shared.Filter) ([]*settlement.SellerBalance, int64, error) {
	return s.balanceRepo.List(ctx, filter)
}

func (s *BalanceService) recordAudit(ctx context.Context, entryType settlement.LedgerEntryType,
	req BalanceOperationRequest, result *BalanceOperationResult, err error) {

	entry := AuditEntry{
		Actor:        req.Actor,
		Action:       "balance." + string(entryType),
		ResourceType: "SellerBalance",
		ResourceID:   req.SellerID.String(),
		Risk:         RiskLevelMedium,
		Success:      err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if result != nil && result.Entry != nil {
		entry.After = map[string]string{
			"sequence":      fmt.Sprintf("%d", result.Entry.Sequence),
			"balance_after": result.Entry.BalanceAfter.StringFixed(2),
			"amount":        req.Amount.StringFixed(2),
		}
	}
	s.audit.Record(ctx, entry)
}
