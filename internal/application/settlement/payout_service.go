package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PayoutService drives the payout lifecycle: request, review, and execution
// against the payment provider. State transitions and the associated fund
// holds always commit in one transaction; only the provider call itself runs
// outside, so a crash mid-execution leaves the payout visibly stuck in
// PROCESSING for the reconciler rather than silently double-paid.
type PayoutService struct {
	scope      TransactionScope
	settlement *SettlementService
	provider   settlement.PaymentProvider
	events     shared.EventPublisher
	audit      AuditRecorder
	logger     *zap.Logger
}

// NewPayoutService creates a new PayoutService
func NewPayoutService(
	scope TransactionScope,
	settlementSvc *SettlementService,
	provider settlement.PaymentProvider,
	events shared.EventPublisher,
	audit AuditRecorder,
	logger *zap.Logger,
) *PayoutService {
	return &PayoutService{
		scope:      scope,
		settlement: settlementSvc,
		provider:   provider,
		events:     events,
		audit:      audit,
		logger:     logger,
	}
}

// PayoutRequestInput carries a seller's withdrawal request
type PayoutRequestInput struct {
	SellerID       uuid.UUID       `json:"seller_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod  string          `json:"payment_method" binding:"required"`
	PaymentDetails string          `json:"payment_details" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key" binding:"required"`
}

// PayoutRequestResult carries the created (or replayed) payout back
type PayoutRequestResult struct {
	Payout   *settlement.PayoutRequest `json:"payout"`
	Replayed bool                      `json:"replayed"`
}

// RequestPayout creates a PENDING payout and moves the requested amount from
// the seller's available balance into pending in the same transaction, so
// the funds cannot be withdrawn twice while the request awaits review.
// Replays with the same idempotency key return the payout created the first
// time.
func (s *PayoutService) RequestPayout(ctx context.Context, input PayoutRequestInput) (*PayoutRequestResult, error) {
	var (
		result PayoutRequestResult
		events []shared.DomainEvent
	)

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		balance, err := repos.Balances().FindBySellerIDForUpdate(ctx, input.SellerID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("failed to lock balance: %w", err)
		}
		if balance == nil {
			return settlement.NewInsufficientFundsError(uuid.Nil, decimal.Zero, input.Amount)
		}

		prior, err := repos.Ledger().FindByIdempotencyKey(ctx, balance.ID, input.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("failed to check idempotency: %w", err)
		}
		if prior != nil {
			if prior.PayoutID == nil {
				return settlement.NewIdempotencyConflictError(input.IdempotencyKey, prior)
			}
			existing, err := repos.Payouts().FindByID(ctx, *prior.PayoutID)
			if err != nil {
				return fmt.Errorf("failed to load payout for replayed request: %w", err)
			}
			result = PayoutRequestResult{Payout: existing, Replayed: true}
			return nil
		}

		payout, err := settlement.NewPayoutRequest(input.SellerID, balance.ID, input.Amount,
			settlement.SupportedCurrency, input.PaymentMethod, input.PaymentDetails)
		if err != nil {
			return err
		}

		if _, err := ApplyLedgerOperation(ctx, repos, settlement.LedgerEntryTypeHold, BalanceOperationRequest{
			SellerID:       input.SellerID,
			Amount:         input.Amount,
			Source:         settlement.LedgerSourcePayoutHold,
			Description:    "Hold for payout request " + payout.ID.String(),
			IdempotencyKey: input.IdempotencyKey,
			PayoutID:       &payout.ID,
			Actor:          input.SellerID.String(),
		}, false); err != nil {
			return err
		}

		if err := repos.Payouts().Save(ctx, payout); err != nil {
			return fmt.Errorf("failed to persist payout request: %w", err)
		}

		result = PayoutRequestResult{Payout: payout}
		events = payout.GetDomainEvents()
		payout.ClearDomainEvents()
		return nil
	})

	resourceID := ""
	if result.Payout != nil {
		resourceID = result.Payout.ID.String()
	}
	s.audit.Record(ctx, AuditEntry{
		Actor:        input.SellerID.String(),
		Action:       "payout.request",
		ResourceType: "PayoutRequest",
		ResourceID:   resourceID,
		Risk:         RiskLevelMedium,
		Success:      err == nil,
		Error:        errString(err),
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events...)
	return &result, nil
}

// ApprovePayout moves a PENDING payout to APPROVED. Re-approval by the same
// admin is a no-op; any other transition fails with a PayoutStateError.
func (s *PayoutService) ApprovePayout(ctx context.Context, payoutID, adminID uuid.UUID) (*settlement.PayoutRequest, error) {
	payout, events, err := s.transition(ctx, payoutID, func(p *settlement.PayoutRequest) error {
		return p.Approve(adminID)
	})

	s.audit.Record(ctx, AuditEntry{
		Actor:        adminID.String(),
		Action:       "payout.approve",
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
	return payout, nil
}

// RejectPayout moves a PENDING payout to REJECTED and releases the held
// funds back to the seller's available balance in the same transaction.
func (s *PayoutService) RejectPayout(ctx context.Context, payoutID, adminID uuid.UUID, reason string) (*settlement.PayoutRequest, error) {
	var (
		payout *settlement.PayoutRequest
		events []shared.DomainEvent
	)

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		p, err := repos.Payouts().FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return fmt.Errorf("failed to load payout: %w", err)
		}
		if err := p.Reject(adminID, reason); err != nil {
			return err
		}

		if _, err := ApplyLedgerOperation(ctx, repos, settlement.LedgerEntryTypeReleaseHold, BalanceOperationRequest{
			SellerID:       p.SellerID,
			Amount:         p.Amount,
			Source:         settlement.LedgerSourcePayoutReleased,
			Description:    "Release hold for rejected payout " + payoutID.String(),
			IdempotencyKey: "payout-reject-" + payoutID.String(),
			PayoutID:       &payoutID,
			Actor:          adminID.String(),
		}, false); err != nil {
			return err
		}

		if err := repos.Payouts().Save(ctx, p); err != nil {
			return fmt.Errorf("failed to persist payout: %w", err)
		}
		payout = p
		events = p.GetDomainEvents()
		p.ClearDomainEvents()
		return nil
	})

	s.audit.Record(ctx, AuditEntry{
		Actor:        adminID.String(),
		Action:       "payout.reject",
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
	return payout, nil
}

// ProcessPayout executes an APPROVED payout against the payment provider.
// The PROCESSING transition commits before the provider call so a concurrent
// worker cannot pick up the same payout; the outcome is applied in a second
// transaction. A payout that is already PROCESSING or COMPLETED is returned
// as-is without touching the provider, so a retried process call can never
// pay twice. A definitive provider failure marks the payout FAILED and keeps
// the funds held for manual review; an ambiguous transport failure leaves it
// PROCESSING for the reconciler.
func (s *PayoutService) ProcessPayout(ctx context.Context, payoutID uuid.UUID) (*settlement.PayoutRequest, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payout", "process")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrPayoutID, payoutID.String())

	var (
		payout   *settlement.PayoutRequest
		inFlight bool
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		p, err := repos.Payouts().FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return fmt.Errorf("failed to load payout: %w", err)
		}
		if p.Status == settlement.PayoutStatusProcessing || p.Status == settlement.PayoutStatusCompleted {
			payout = p
			inFlight = true
			return nil
		}
		if err := p.MarkProcessing(); err != nil {
			return err
		}
		if err := repos.Payouts().Save(ctx, p); err != nil {
			return fmt.Errorf("failed to persist payout: %w", err)
		}
		payout = p
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if inFlight {
		return payout, nil
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSellerID, payout.SellerID.String(),
		telemetry.SpanAttrAmount, payout.Amount.String(),
	)

	resp, err := s.provider.ExecutePayout(ctx, &settlement.ExecutePayoutRequest{
		Amount:           payout.Amount,
		Currency:         payout.Currency,
		RecipientDetails: payout.PaymentDetails,
		Reference:        payout.ID.String(),
		Metadata: map[string]string{
			"seller_id": payout.SellerID.String(),
		},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, settlement.ErrProviderUnavailable) {
			s.logger.Error("payout provider unavailable, payout stays in processing",
				zap.String("payout_id", payoutID.String()),
				zap.Error(err))
			return payout, err
		}
		return s.failPayout(ctx, payoutID, err.Error(), "")
	}

	switch resp.Status {
	case settlement.PaymentStatusSuccess:
		result, err := s.settlement.CompletePayout(ctx, payoutID, resp.PayoutID, resp.RawResponse,
			"payout-complete-"+payoutID.String())
		if err != nil {
			return nil, err
		}
		return result.Payout, nil

	case settlement.PaymentStatusPending:
		// Provider settles asynchronously; record its reference and wait for
		// the webhook or the reconciler to resolve the payout.
		payout, _, err = s.transition(ctx, payoutID, func(p *settlement.PayoutRequest) error {
			p.SetProviderReference(resp.PayoutID, resp.RawResponse)
			return nil
		})
		return payout, err

	default:
		return s.failPayout(ctx, payoutID, "provider returned status "+string(resp.Status), resp.RawResponse)
	}
}

// GetPayout returns a payout request by ID
func (s *PayoutService) GetPayout(ctx context.Context, payoutID uuid.UUID) (*settlement.PayoutRequest, error) {
	var payout *settlement.PayoutRequest
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		p, err := repos.Payouts().FindByID(ctx, payoutID)
		if err != nil {
			return err
		}
		payout = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// ListPayouts returns a page of payout requests
func (s *PayoutService) ListPayouts(ctx context.Context, filter shared.Filter) ([]*settlement.PayoutRequest, int64, error) {
	var (
		payouts []*settlement.PayoutRequest
		total   int64
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		payouts, total, err = repos.Payouts().List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return payouts, total, nil
}

// ListPendingPayouts returns PENDING payouts oldest first, for review queues
func (s *PayoutService) ListPendingPayouts(ctx context.Context, limit int) ([]*settlement.PayoutRequest, error) {
	var payouts []*settlement.PayoutRequest
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		payouts, err = repos.Payouts().FindByStatus(ctx, []settlement.PayoutStatus{settlement.PayoutStatusPending}, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (s *PayoutService) failPayout(ctx context.Context, payoutID uuid.UUID, reason, rawResponse string) (*settlement.PayoutRequest, error) {
	payout, events, err := s.transition(ctx, payoutID, func(p *settlement.PayoutRequest) error {
		return p.Fail(reason, rawResponse)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("payout failed, funds remain held pending review",
		zap.String("payout_id", payoutID.String()),
		zap.String("reason", reason))
	s.publish(ctx, events...)
	return payout, nil
}

func (s *PayoutService) transition(ctx context.Context, payoutID uuid.UUID, apply func(*settlement.PayoutRequest) error) (*settlement.PayoutRequest, []shared.DomainEvent, error) {
	var (
		payout *settlement.PayoutRequest
		events []shared.DomainEvent
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		p, err := repos.Payouts().FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return fmt.Errorf("failed to load payout: %w", err)
		}
		if err := apply(p); err != nil {
			return err
		}
		if err := repos.Payouts().Save(ctx, p); err != nil {
			return fmt.Errorf("failed to persist payout: %w", err)
		}
		payout = p
		events = p.GetDomainEvents()
		p.ClearDomainEvents()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return payout, events, nil
}

func (s *PayoutService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Warn("notification dispatch failed", zap.Error(err))
	}
}
