package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AutomationConfig controls the auto-approval engine
type AutomationConfig struct {
	// Enabled is the kill switch; when false every run is a no-op
	Enabled bool `mapstructure:"enabled"`

	// DryRun evaluates and logs decisions without approving anything
	DryRun bool `mapstructure:"dry_run"`

	// AutoApproveThreshold is the maximum payout amount eligible for
	// auto-approval; larger requests always wait for a human
	AutoApproveThreshold decimal.Decimal `mapstructure:"auto_approve_threshold"`

	// MaxPerSellerPerHour caps auto-approvals for one seller per rolling hour
	MaxPerSellerPerHour int64 `mapstructure:"max_per_seller_per_hour"`

	// MaxPerHour caps auto-approvals across all sellers per rolling hour
	MaxPerHour int64 `mapstructure:"max_per_hour"`

	// MaxVolumePerSellerPerHour caps the total auto-approved amount for one
	// seller per rolling hour; zero disables the cap
	MaxVolumePerSellerPerHour decimal.Decimal `mapstructure:"max_volume_per_seller_per_hour"`

	// MaxVolumePerHour caps the total auto-approved amount across all
	// sellers per rolling hour; zero disables the cap
	MaxVolumePerHour decimal.Decimal `mapstructure:"max_volume_per_hour"`

	// BatchSize bounds how many pending payouts one run examines
	BatchSize int `mapstructure:"batch_size"`
}

// AutomationDecision records why one payout was or was not auto-approved
type AutomationDecision struct {
	PayoutID uuid.UUID       `json:"payout_id"`
	SellerID uuid.UUID       `json:"seller_id"`
	Amount   decimal.Decimal `json:"amount"`
	Approved bool            `json:"approved"`
	DryRun   bool            `json:"dry_run"`
	Reason   string          `json:"reason"`
}

// AutomationRunReport summarizes one auto-approval sweep
type AutomationRunReport struct {
	Examined   int                  `json:"examined"`
	Approved   int                  `json:"approved"`
	Processed  int                  `json:"processed"`
	Skipped    int                  `json:"skipped"`
	DryRun     bool                 `json:"dry_run"`
	Decisions  []AutomationDecision `json:"decisions"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// AutomationService auto-approves small pending payouts under rate caps.
// Caps live in a shared counter store so every instance of the service sees
// the same rolling-hour windows; approval and processing go through the same
// PayoutService path an admin uses, so the state machine and audit trail are
// identical either way. A payout whose balance fails reconciliation is never
// touched.
type AutomationService struct {
	payouts *PayoutService
	recon   *ReconciliationService
	counter RateCounter
	audit   AuditRecorder
	logger  *zap.Logger

	mu  sync.RWMutex
	cfg AutomationConfig
}

// AutomationActorID identifies the automation engine in approval records
var AutomationActorID = uuid.MustParse("00000000-0000-0000-0000-00000000a070")

const rateWindow = time.Hour

// NewAutomationService creates a new AutomationService
func NewAutomationService(
	payouts *PayoutService,
	recon *ReconciliationService,
	counter RateCounter,
	cfg AutomationConfig,
	audit AuditRecorder,
	logger *zap.Logger,
) *AutomationService {
	return &AutomationService{
		payouts: payouts,
		recon:   recon,
		counter: counter,
		cfg:     cfg,
		audit:   audit,
		logger:  logger,
	}
}

// Config returns the current automation configuration
func (s *AutomationService) Config() AutomationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetEnabled flips the kill switch at runtime
func (s *AutomationService) SetEnabled(ctx context.Context, enabled bool, actor string) {
	s.mu.Lock()
	s.cfg.Enabled = enabled
	s.mu.Unlock()

	s.logger.Info("automation kill switch flipped",
		zap.Bool("enabled", enabled),
		zap.String("actor", actor))
	s.audit.Record(ctx, AuditEntry{
		Actor:        actor,
		Action:       "automation.set_enabled",
		ResourceType: "AutomationConfig",
		ResourceID:   "kill_switch",
		After:        enabled,
		Risk:         RiskLevelHigh,
		Success:      true,
	})
}

// SetDryRun flips dry-run mode at runtime
func (s *AutomationService) SetDryRun(ctx context.Context, dryRun bool, actor string) {
	s.mu.Lock()
	s.cfg.DryRun = dryRun
	s.mu.Unlock()

	s.audit.Record(ctx, AuditEntry{
		Actor:        actor,
		Action:       "automation.set_dry_run",
		ResourceType: "AutomationConfig",
		ResourceID:   "dry_run",
		After:        dryRun,
		Risk:         RiskLevelMedium,
		Success:      true,
	})
}

// RunAutoApproval examines pending payouts oldest first and approves then
// processes those below the threshold, stopping at the global cap. A payout
// is skipped when its balance fails reconciliation or when a per-seller count
// or volume cap is reached; those skips do not consume the global budget. In
// dry-run mode every decision is evaluated and logged but nothing transitions.
func (s *AutomationService) RunAutoApproval(ctx context.Context) (*AutomationRunReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "automation", "run_auto_approval")
	defer span.End()

	cfg := s.Config()

	report := &AutomationRunReport{
		DryRun:    cfg.DryRun,
		Decisions: []AutomationDecision{},
		StartedAt: time.Now(),
	}

	if !cfg.Enabled {
		s.logger.Info("auto-approval disabled, skipping run")
		report.FinishedAt = time.Now()
		return report, nil
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	pending, err := s.payouts.ListPendingPayouts(ctx, batch)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	// Reconciliation is balance-wide, so one verdict per balance per run
	// is enough even when a seller has several pending payouts.
	cleanBalances := make(map[uuid.UUID]bool)

	for _, payout := range pending {
		report.Examined++

		decision := s.evaluate(ctx, cfg, payout, cleanBalances)
		report.Decisions = append(report.Decisions, decision)

		if !decision.Approved {
			report.Skipped++
			if decision.Reason == reasonGlobalCap {
				// The global window is exhausted; the rest of the batch would
				// be skipped for the same reason.
				break
			}
			continue
		}

		if cfg.DryRun {
			report.Approved++
			s.logger.Info("dry run: payout would be auto-approved",
				zap.String("payout_id", payout.ID.String()),
				zap.String("amount", payout.Amount.StringFixed(2)))
			continue
		}

		if _, err := s.payouts.ApprovePayout(ctx, payout.ID, AutomationActorID); err != nil {
			s.logger.Error("auto-approval failed",
				zap.String("payout_id", payout.ID.String()),
				zap.Error(err))
			report.Skipped++
			continue
		}
		report.Approved++

		// A processing failure leaves the payout APPROVED with funds still
		// held; the next sweep or an operator picks it up.
		if _, err := s.payouts.ProcessPayout(ctx, payout.ID); err != nil {
			s.logger.Warn("auto-approved payout could not be processed",
				zap.String("payout_id", payout.ID.String()),
				zap.Error(err))
			continue
		}
		report.Processed++
	}
	report.FinishedAt = time.Now()

	telemetry.SetAttributes(span,
		"examined", report.Examined,
		"approved", report.Approved,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"dry_run", report.DryRun,
	)

	s.audit.Record(ctx, AuditEntry{
		Actor:        AutomationActorID.String(),
		Action:       "automation.run",
		ResourceType: "PayoutRequest",
		ResourceID:   "*",
		After:        report,
		Risk:         RiskLevelMedium,
		Success:      true,
	})
	return report, nil
}

const (
	reasonApproved        = "below threshold and within rate caps"
	reasonThreshold       = "amount exceeds auto-approve threshold"
	reasonReconMismatch   = "balance failed reconciliation"
	reasonSellerCap       = "seller hourly auto-approval cap reached"
	reasonGlobalCap       = "global hourly auto-approval cap reached"
	reasonSellerVolumeCap = "seller hourly auto-approval volume cap reached"
	reasonGlobalVolumeCap = "global hourly auto-approval volume cap reached"
	reasonCounterError    = "rate counter unavailable"
)

// volumeUnits converts an amount to minor units so the shared integer
// counters can track approved volume.
func volumeUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

// evaluate applies the threshold, the reconciliation check and the rate caps
// to one payout. Counters are only consumed for payouts that pass every other
// check; in dry-run mode the caps are read without incrementing so rehearsals
// do not burn the budget. A reconciliation error counts as a mismatch.
func (s *AutomationService) evaluate(ctx context.Context, cfg AutomationConfig, payout *settlement.PayoutRequest, cleanBalances map[uuid.UUID]bool) AutomationDecision {
	decision := AutomationDecision{
		PayoutID: payout.ID,
		SellerID: payout.SellerID,
		Amount:   payout.Amount,
		DryRun:   cfg.DryRun,
	}

	if payout.Amount.GreaterThan(cfg.AutoApproveThreshold) {
		decision.Reason = reasonThreshold
		return decision
	}

	clean, checked := cleanBalances[payout.BalanceID]
	if !checked {
		report, err := s.recon.ReconcileBalance(ctx, payout.BalanceID)
		if err != nil {
			s.logger.Error("reconciliation check failed, skipping payout",
				zap.String("balance_id", payout.BalanceID.String()),
				zap.Error(err))
		}
		clean = err == nil && report.Clean()
		cleanBalances[payout.BalanceID] = clean
	}
	if !clean {
		decision.Reason = reasonReconMismatch
		return decision
	}

	sellerKey := "automation:approvals:seller:" + payout.SellerID.String()
	globalKey := "automation:approvals:global"
	sellerVolKey := "automation:volume:seller:" + payout.SellerID.String()
	globalVolKey := "automation:volume:global"

	units := volumeUnits(payout.Amount)
	sellerVolCap := volumeUnits(cfg.MaxVolumePerSellerPerHour)
	globalVolCap := volumeUnits(cfg.MaxVolumePerHour)

	if cfg.DryRun {
		sellerCount, err := s.counter.Current(ctx, sellerKey)
		if err != nil {
			decision.Reason = reasonCounterError
			return decision
		}
		globalCount, err := s.counter.Current(ctx, globalKey)
		if err != nil {
			decision.Reason = reasonCounterError
			return decision
		}
		sellerVol, err := s.counter.Current(ctx, sellerVolKey)
		if err != nil {
			decision.Reason = reasonCounterError
			return decision
		}
		globalVol, err := s.counter.Current(ctx, globalVolKey)
		if err != nil {
			decision.Reason = reasonCounterError
			return decision
		}
		switch {
		case sellerCount >= cfg.MaxPerSellerPerHour:
			decision.Reason = reasonSellerCap
		case globalCount >= cfg.MaxPerHour:
			decision.Reason = reasonGlobalCap
		case sellerVolCap > 0 && sellerVol+units > sellerVolCap:
			decision.Reason = reasonSellerVolumeCap
		case globalVolCap > 0 && globalVol+units > globalVolCap:
			decision.Reason = reasonGlobalVolumeCap
		default:
			decision.Approved = true
			decision.Reason = reasonApproved
		}
		return decision
	}

	sellerCount, err := s.counter.Increment(ctx, sellerKey, 1, rateWindow)
	if err != nil {
		// Fail closed: without a working shared counter the caps cannot be
		// enforced, so nothing gets auto-approved.
		s.logger.Error("rate counter unavailable, auto-approval suspended", zap.Error(err))
		decision.Reason = reasonCounterError
		return decision
	}
	if sellerCount > cfg.MaxPerSellerPerHour {
		decision.Reason = reasonSellerCap
		return decision
	}

	globalCount, err := s.counter.Increment(ctx, globalKey, 1, rateWindow)
	if err != nil {
		s.logger.Error("rate counter unavailable, auto-approval suspended", zap.Error(err))
		decision.Reason = reasonCounterError
		return decision
	}
	if globalCount > cfg.MaxPerHour {
		decision.Reason = reasonGlobalCap
		return decision
	}

	if sellerVolCap > 0 {
		sellerVol, err := s.counter.Increment(ctx, sellerVolKey, units, rateWindow)
		if err != nil {
			s.logger.Error("rate counter unavailable, auto-approval suspended", zap.Error(err))
			decision.Reason = reasonCounterError
			return decision
		}
		if sellerVol > sellerVolCap {
			decision.Reason = reasonSellerVolumeCap
			return decision
		}
	}

	if globalVolCap > 0 {
		globalVol, err := s.counter.Increment(ctx, globalVolKey, units, rateWindow)
		if err != nil {
			s.logger.Error("rate counter unavailable, auto-approval suspended", zap.Error(err))
			decision.Reason = reasonCounterError
			return decision
		}
		if globalVol > globalVolCap {
			decision.Reason = reasonGlobalVolumeCap
			return decision
		}
	}

	decision.Approved = true
	decision.Reason = reasonApproved
	return decision
}
