package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// LedgerService exposes the read side of the ledger: chain verification,
// ground-truth aggregation and history listing. It never mutates; writes go
// through the BalanceService protocol.
type LedgerService struct {
	ledgerRepo settlement.LedgerEntryRepository
	logger     *zap.Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(ledgerRepo settlement.LedgerEntryRepository, logger *zap.Logger) *LedgerService {
	return &LedgerService{ledgerRepo: ledgerRepo, logger: logger}
}

// VerifyChainIntegrity replays a balance's chain from genesis, recomputing
// every hash and running balance, and reports the first divergence. Safe to
// run anytime.
func (s *LedgerService) VerifyChainIntegrity(ctx context.Context, balanceID uuid.UUID) (*settlement.ChainVerification, error) {
	entries, err := s.ledgerRepo.FindAllByBalance(ctx, balanceID)
	if err != nil {
		return nil, err
	}

	result := settlement.VerifyChain(balanceID, entries)
	if !result.Valid {
		s.logger.Error("ledger chain verification failed",
			zap.String("balance_id", balanceID.String()),
			zap.Int64p("broken_index", result.BrokenIndex),
			zap.String("discrepancy", result.Discrepancy),
		)
	}
	return &result, nil
}

// CalculateBalanceFromLedger sums CREDIT and DEBIT entries independently.
// The result is the ground truth against which the cached snapshot is checked.
func (s *LedgerService) CalculateBalanceFromLedger(ctx context.Context, balanceID uuid.UUID) (*settlement.LedgerSummary, error) {
	entries, err := s.ledgerRepo.FindAllByBalance(ctx, balanceID)
	if err != nil {
		return nil, err
	}

	summary := settlement.SummarizeLedger(entries)
	return &summary, nil
}

// ListEntries returns a page of a balance's history, newest first
func (s *LedgerService) ListEntries(ctx context.Context, balanceID uuid.UUID, filter shared.Filter) ([]*settlement.LedgerEntry, int64, error) {
	return s.ledgerRepo.ListByBalance(ctx, balanceID, filter)
}
