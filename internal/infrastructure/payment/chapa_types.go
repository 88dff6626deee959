package payment

import (
	"encoding/json"

	"github.com/marketplace/backend/internal/domain/settlement"
)

const (
	chapaInitializePath    = "/v1/transaction/initialize"
	chapaVerifyPath        = "/v1/transaction/verify/"
	chapaTransferPath      = "/v1/transfers"
	chapaStatusSuccess     = "success"
	chapaDataStatusSuccess = "success"
	chapaDataStatusPending = "pending"
	chapaDataStatusFailed  = "failed"
)

// chapaEnvelope is the outer response shape of every Chapa API call
type chapaEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// chapaInitializeRequest starts a hosted-checkout payment
type chapaInitializeRequest struct {
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Email       string            `json:"email,omitempty"`
	TxRef       string            `json:"tx_ref"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// chapaInitializeData is the payload of a successful initialize call
type chapaInitializeData struct {
	CheckoutURL string `json:"checkout_url"`
}

// chapaVerifyData is the payload of a transaction verify call
type chapaVerifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	TxRef     string `json:"tx_ref"`
}

// chapaTransferRequest initiates a transfer to a bank account or wallet
type chapaTransferRequest struct {
	AccountName   string `json:"account_name,omitempty"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
}

// chapaRecipientDetails is the payout destination carried on a payout
// request, provider-specific JSON filled in by the seller.
type chapaRecipientDetails struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
}

// mapChapaDataStatus maps a Chapa data-level status to the domain status
func mapChapaDataStatus(status string) settlement.PaymentStatus {
	switch status {
	case chapaDataStatusSuccess:
		return settlement.PaymentStatusSuccess
	case chapaDataStatusPending:
		return settlement.PaymentStatusPending
	case chapaDataStatusFailed:
		return settlement.PaymentStatusFailed
	default:
		return settlement.PaymentStatusPending
	}
}
