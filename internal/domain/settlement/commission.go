package settlement

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SupportedCurrency is the single currency the settlement engine operates in
const SupportedCurrency = "ETB"

// CommissionTier maps a contiguous gross-amount range to a platform fee rate.
// The last tier's upper bound is nil, meaning unbounded.
type CommissionTier struct {
	Lower decimal.Decimal
	Upper *decimal.Decimal
	Rate  decimal.Decimal
}

// Contains reports whether gross falls inside the tier's range
func (t CommissionTier) Contains(gross decimal.Decimal) bool {
	if gross.LessThan(t.Lower) {
		return false
	}
	if t.Upper != nil && gross.GreaterThan(*t.Upper) {
		return false
	}
	return true
}

// CommissionSchedule holds the tiered platform-fee schedule and processor fee
// terms. Tiers must be contiguous and non-overlapping.
type CommissionSchedule struct {
	Tiers            []CommissionTier
	ProcessorFeeRate decimal.Decimal
	ProcessorFeeFlat decimal.Decimal
}

// DefaultCommissionSchedule returns the platform's standard schedule:
// 0-10,000 at 5%, above 10,000 up to 50,000 at 3%, above 50,000 at 2%,
// with a processor fee of 2.5% plus a 5.00 flat charge.
func DefaultCommissionSchedule() CommissionSchedule {
	tier1Upper := decimal.NewFromInt(10000)
	tier2Upper := decimal.NewFromInt(50000)
	return CommissionSchedule{
		Tiers: []CommissionTier{
			{Lower: decimal.Zero, Upper: &tier1Upper, Rate: decimal.NewFromFloat(0.05)},
			{Lower: tier1Upper.Add(decimal.New(1, -2)), Upper: &tier2Upper, Rate: decimal.NewFromFloat(0.03)},
			{Lower: tier2Upper.Add(decimal.New(1, -2)), Upper: nil, Rate: decimal.NewFromFloat(0.02)},
		},
		ProcessorFeeRate: decimal.NewFromFloat(0.025),
		ProcessorFeeFlat: decimal.NewFromInt(5),
	}
}

// CommissionBreakdown is the result of a commission calculation
type CommissionBreakdown struct {
	GrossAmount    decimal.Decimal   `json:"gross_amount"`
	PlatformFee    decimal.Decimal   `json:"platform_fee"`
	PlatformFeePct decimal.Decimal   `json:"platform_fee_pct"`
	ProcessorFee   decimal.Decimal   `json:"processor_fee"`
	NetAmount      decimal.Decimal   `json:"net_amount"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
}

// CommissionCalculator computes the fee split for a settled transaction. It is
// a pure domain service: no side effects, and identical inputs always yield
// identical outputs. All arithmetic is exact decimal; floating point would
// drift and break the sum invariant.
type CommissionCalculator struct {
	schedule CommissionSchedule
}

// NewCommissionCalculator creates a calculator with the given schedule
func NewCommissionCalculator(schedule CommissionSchedule) *CommissionCalculator {
	return &CommissionCalculator{schedule: schedule}
}

// NewDefaultCommissionCalculator creates a calculator with the standard schedule
func NewDefaultCommissionCalculator() *CommissionCalculator {
	return &CommissionCalculator{schedule: DefaultCommissionSchedule()}
}

// Calculate splits a gross amount into platform fee, processor fee and net
// amount. It re-verifies net+platform+processor == gross before returning;
// a violation there is a defect in the calculator itself, not a recoverable
// condition, so it panics rather than returning an error.
func (c *CommissionCalculator) Calculate(gross decimal.Decimal, currency string, transactionType string) (*CommissionBreakdown, error) {
	if gross.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if currency != SupportedCurrency {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	tier, err := c.tierFor(gross)
	if err != nil {
		return nil, err
	}

	platformFee := gross.Mul(tier.Rate).Round(2)
	processorFee := gross.Mul(c.schedule.ProcessorFeeRate).Add(c.schedule.ProcessorFeeFlat).Round(2)
	net := gross.Sub(platformFee).Sub(processorFee)

	if !net.Add(platformFee).Add(processorFee).Equal(gross) {
		panic(fmt.Sprintf("commission split does not sum to gross: %s + %s + %s != %s",
			net, platformFee, processorFee, gross))
	}

	return &CommissionBreakdown{
		GrossAmount:    gross,
		PlatformFee:    platformFee,
		PlatformFeePct: tier.Rate,
		ProcessorFee:   processorFee,
		NetAmount:      net,
		Currency:       currency,
		Metadata: map[string]string{
			"transaction_type":   transactionType,
			"tier_rate":          tier.Rate.String(),
			"processor_fee_rate": c.schedule.ProcessorFeeRate.String(),
			"processor_fee_flat": c.schedule.ProcessorFeeFlat.StringFixed(2),
		},
	}, nil
}

func (c *CommissionCalculator) tierFor(gross decimal.Decimal) (CommissionTier, error) {
	for _, tier := range c.schedule.Tiers {
		if tier.Contains(gross) {
			return tier, nil
		}
	}
	return CommissionTier{}, shared.NewDomainError("NO_MATCHING_TIER",
		"No commission tier covers gross amount "+gross.StringFixed(2))
}

// CommissionRecord is the write-once record of a settled transaction's fee
// split. A transaction has at most one record; creation is idempotent on the
// transaction ID.
type CommissionRecord struct {
	shared.BaseEntity

	TransactionID     uuid.UUID         `json:"transaction_id"`
	GrossAmount       decimal.Decimal   `json:"gross_amount"`
	PlatformFee       decimal.Decimal   `json:"platform_fee"`
	PlatformFeePct    decimal.Decimal   `json:"platform_fee_pct"`
	ProcessorFee      decimal.Decimal   `json:"processor_fee"`
	NetAmount         decimal.Decimal   `json:"net_amount"`
	Currency          string            `json:"currency"`
	CalculationMethod string            `json:"calculation_method"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// CalculationMethodTiered identifies the tiered schedule calculation
const CalculationMethodTiered = "TIERED_SCHEDULE"

// NewCommissionRecord creates a record from a calculated breakdown
func NewCommissionRecord(transactionID uuid.UUID, breakdown *CommissionBreakdown) (*CommissionRecord, error) {
	if transactionID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TRANSACTION", "Transaction ID cannot be empty")
	}
	if breakdown == nil {
		return nil, shared.NewDomainError("INVALID_BREAKDOWN", "Commission breakdown cannot be nil")
	}

	return &CommissionRecord{
		BaseEntity:        shared.NewBaseEntity(),
		TransactionID:     transactionID,
		GrossAmount:       breakdown.GrossAmount,
		PlatformFee:       breakdown.PlatformFee,
		PlatformFeePct:    breakdown.PlatformFeePct,
		ProcessorFee:      breakdown.ProcessorFee,
		NetAmount:         breakdown.NetAmount,
		Currency:          breakdown.Currency,
		CalculationMethod: CalculationMethodTiered,
		Metadata:          breakdown.Metadata,
	}, nil
}

// CommissionVerification reports whether a stored record still matches a fresh
// calculation from the same inputs
type CommissionVerification struct {
	Valid       bool            `json:"valid"`
	StoredNet   decimal.Decimal `json:"stored_net"`
	ComputedNet decimal.Decimal `json:"computed_net"`
}

// Verify recomputes the commission for the record's gross amount and compares
// the net amount exactly. Mismatches are reported, never silently corrected.
func (r *CommissionRecord) Verify(calculator *CommissionCalculator) (*CommissionVerification, error) {
	breakdown, err := calculator.Calculate(r.GrossAmount, r.Currency, r.Metadata["transaction_type"])
	if err != nil {
		return nil, err
	}
	return &CommissionVerification{
		Valid:       breakdown.NetAmount.Equal(r.NetAmount),
		StoredNet:   r.NetAmount,
		ComputedNet: breakdown.NetAmount,
	}, nil
}
