package settlement

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// PaymentStatus is a provider-reported payment or payout status
type PaymentStatus string

const (
	// PaymentStatusSuccess means the provider confirmed the operation
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	// PaymentStatusFailed means the provider rejected the operation
	PaymentStatusFailed PaymentStatus = "FAILED"
	// PaymentStatusPending means the provider will confirm asynchronously
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusCancelled means the payer abandoned the operation
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Provider-boundary errors
var (
	// ErrProviderUnavailable indicates a transport-level failure talking to the provider
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrProviderRejected indicates the provider understood and refused the request
	ErrProviderRejected = errors.New("payment provider rejected the request")
)

// InitializePaymentRequest starts a hosted-checkout payment
type InitializePaymentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	PayerEmail  string
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

// InitializePaymentResponse carries the checkout handle back to the caller
type InitializePaymentResponse struct {
	CheckoutURL   string
	TransactionID string
}

// VerifyPaymentResponse is the provider's answer to a payment status query
type VerifyPaymentResponse struct {
	Status           PaymentStatus
	GatewayReference string
	Amount           decimal.Decimal
	Currency         string
}

// ExecutePayoutRequest sends money to a seller's payout destination
type ExecutePayoutRequest struct {
	Amount           decimal.Decimal
	Currency         string
	RecipientDetails string // Provider-specific destination (JSON)
	Reference        string
	Metadata         map[string]string
}

// ExecutePayoutResponse is the provider's answer to a payout execution.
// Status PENDING means the provider will settle asynchronously and the payout
// must stay PROCESSING until a webhook or reconciliation resolves it.
type ExecutePayoutResponse struct {
	PayoutID          string
	Status            PaymentStatus
	ProviderReference string
	RawResponse       string
}

// PaymentProvider is the abstract contract the settlement engine consumes.
// The orchestrator and payout flow depend only on this interface and must
// tolerate any implementation satisfying it, mock or real gateway.
type PaymentProvider interface {
	// InitializePayment creates a hosted-checkout payment at the provider
	InitializePayment(ctx context.Context, req *InitializePaymentRequest) (*InitializePaymentResponse, error)

	// VerifyPayment queries the status of a payment by its reference
	VerifyPayment(ctx context.Context, reference string) (*VerifyPaymentResponse, error)

	// ExecutePayout transfers funds to a recipient
	ExecutePayout(ctx context.Context, req *ExecutePayoutRequest) (*ExecutePayoutResponse, error)
}
