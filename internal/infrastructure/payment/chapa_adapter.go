package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/settlement"
)

// ChapaAdapter implements the PaymentProvider interface for Chapa.
// Transport failures surface as ErrProviderUnavailable so the payout flow
// can tell "the money may or may not have moved" apart from a definitive
// rejection; a well-formed error response from Chapa maps to a FAILED status.
type ChapaAdapter struct {
	config     *ChapaConfig
	httpClient *http.Client
}

// NewChapaAdapter creates a new Chapa adapter
func NewChapaAdapter(config *ChapaConfig) (*ChapaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &ChapaAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// InitializePayment creates a hosted-checkout payment at Chapa
func (a *ChapaAdapter) InitializePayment(ctx context.Context, req *settlement.InitializePaymentRequest) (*settlement.InitializePaymentResponse, error) {
	body := chapaInitializeRequest{
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Email:       req.PayerEmail,
		TxRef:       req.Reference,
		CallbackURL: req.CallbackURL,
		Meta:        req.Metadata,
	}
	if body.CallbackURL == "" {
		body.CallbackURL = a.config.CallbackURL
	}

	envelope, _, err := a.post(ctx, chapaInitializePath, body)
	if err != nil {
		return nil, err
	}
	if envelope.Status != chapaStatusSuccess {
		return nil, fmt.Errorf("chapa: initialize rejected: %s: %w", envelope.Message, settlement.ErrProviderRejected)
	}

	var data chapaInitializeData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("chapa: failed to decode initialize response: %w", err)
	}

	return &settlement.InitializePaymentResponse{
		CheckoutURL:   data.CheckoutURL,
		TransactionID: req.Reference,
	}, nil
}

// VerifyPayment queries the status of a payment by its reference
func (a *ChapaAdapter) VerifyPayment(ctx context.Context, reference string) (*settlement.VerifyPaymentResponse, error) {
	envelope, _, err := a.get(ctx, chapaVerifyPath+reference)
	if err != nil {
		return nil, err
	}
	if envelope.Status != chapaStatusSuccess {
		return nil, fmt.Errorf("chapa: verify rejected: %s: %w", envelope.Message, settlement.ErrProviderRejected)
	}

	var data chapaVerifyData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("chapa: failed to decode verify response: %w", err)
	}

	amount, err := decimal.NewFromString(data.Amount)
	if err != nil {
		return nil, fmt.Errorf("chapa: invalid amount %q in verify response: %w", data.Amount, err)
	}

	return &settlement.VerifyPaymentResponse{
		Status:           mapChapaDataStatus(data.Status),
		GatewayReference: data.Reference,
		Amount:           amount,
		Currency:         data.Currency,
	}, nil
}

// ExecutePayout transfers funds to a seller's bank account
func (a *ChapaAdapter) ExecutePayout(ctx context.Context, req *settlement.ExecutePayoutRequest) (*settlement.ExecutePayoutResponse, error) {
	var recipient chapaRecipientDetails
	if err := json.Unmarshal([]byte(req.RecipientDetails), &recipient); err != nil {
		return nil, fmt.Errorf("chapa: invalid recipient details: %w", err)
	}
	if recipient.AccountNumber == "" || recipient.BankCode == "" {
		return nil, fmt.Errorf("chapa: recipient details missing account number or bank code: %w", settlement.ErrProviderRejected)
	}

	body := chapaTransferRequest{
		AccountName:   recipient.AccountName,
		AccountNumber: recipient.AccountNumber,
		BankCode:      recipient.BankCode,
		Amount:        req.Amount.StringFixed(2),
		Currency:      req.Currency,
		Reference:     req.Reference,
	}

	envelope, raw, err := a.post(ctx, chapaTransferPath, body)
	if err != nil {
		return nil, err
	}

	if envelope.Status != chapaStatusSuccess {
		return &settlement.ExecutePayoutResponse{
			Status:      settlement.PaymentStatusFailed,
			RawResponse: string(raw),
		}, nil
	}

	// The transfer data payload is the provider-side reference string.
	var providerRef string
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &providerRef); err != nil {
			providerRef = req.Reference
		}
	}

	return &settlement.ExecutePayoutResponse{
		PayoutID:          providerRef,
		Status:            settlement.PaymentStatusPending,
		ProviderReference: providerRef,
		RawResponse:       string(raw),
	}, nil
}

// post sends an authenticated JSON POST and decodes the response envelope
func (a *ChapaAdapter) post(ctx context.Context, path string, body any) (*chapaEnvelope, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("chapa: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.apiBaseURL()+path, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("chapa: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return a.do(req)
}

// get sends an authenticated GET and decodes the response envelope
func (a *ChapaAdapter) get(ctx context.Context, path string) (*chapaEnvelope, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.apiBaseURL()+path, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("chapa: failed to build request: %w", err)
	}

	return a.do(req)
}

func (a *ChapaAdapter) do(req *http.Request) (*chapaEnvelope, []byte, error) {
	req.Header.Set("Authorization", "Bearer "+a.config.SecretKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("chapa: request failed: %w: %v", settlement.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("chapa: failed to read response: %w: %v", settlement.ErrProviderUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, nil, fmt.Errorf("chapa: server error %d: %w", resp.StatusCode, settlement.ErrProviderUnavailable)
	}

	var envelope chapaEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, nil, fmt.Errorf("chapa: malformed response: %w: %v", settlement.ErrProviderUnavailable, err)
	}

	return &envelope, raw, nil
}

// Ensure ChapaAdapter implements PaymentProvider
var _ settlement.PaymentProvider = (*ChapaAdapter)(nil)
