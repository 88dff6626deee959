package settlement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// =============================================================================
// In-memory repositories and transaction scope
//
// The settlement flows chain several repository writes inside one scope, so
// stateful in-memory implementations give more realistic tests than per-call
// mocks: a credit really lands in the ledger the next assertion reads.
// =============================================================================

type memState struct {
	mu           sync.Mutex
	balances     map[uuid.UUID]*settlement.SellerBalance
	ledger       map[uuid.UUID][]*settlement.LedgerEntry
	payouts      map[uuid.UUID]*settlement.PayoutRequest
	commissions  map[uuid.UUID]*settlement.CommissionRecord
	refunds      map[uuid.UUID][]*settlement.RefundRecord
	transactions map[uuid.UUID]*settlement.EscrowTransaction
}

func newMemState() *memState {
	return &memState{
		balances:     make(map[uuid.UUID]*settlement.SellerBalance),
		ledger:       make(map[uuid.UUID][]*settlement.LedgerEntry),
		payouts:      make(map[uuid.UUID]*settlement.PayoutRequest),
		commissions:  make(map[uuid.UUID]*settlement.CommissionRecord),
		refunds:      make(map[uuid.UUID][]*settlement.RefundRecord),
		transactions: make(map[uuid.UUID]*settlement.EscrowTransaction),
	}
}

// memScope satisfies TransactionScope. Atomicity is not simulated: tests
// assert behavior, the rollback guarantee itself belongs to the gorm scope's
// own tests.
type memScope struct {
	state *memState
}

func (s *memScope) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return fn(&memRepos{state: s.state})
}

type memRepos struct {
	state *memState
}

func (r *memRepos) Balances() settlement.SellerBalanceRepository { return &memBalanceRepo{r.state} }
func (r *memRepos) Ledger() settlement.LedgerEntryRepository     { return &memLedgerRepo{r.state} }
func (r *memRepos) Payouts() settlement.PayoutRequestRepository  { return &memPayoutRepo{r.state} }
func (r *memRepos) Commissions() settlement.CommissionRecordRepository {
	return &memCommissionRepo{r.state}
}
func (r *memRepos) Refunds() settlement.RefundRecordRepository { return &memRefundRepo{r.state} }
func (r *memRepos) Transactions() settlement.EscrowTransactionRepository {
	return &memTransactionRepo{r.state}
}

// ----- balances -----

type memBalanceRepo struct{ state *memState }

func (r *memBalanceRepo) FindByID(ctx context.Context, id uuid.UUID) (*settlement.SellerBalance, error) {
	b, ok := r.state.balances[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return b, nil
}

func (r *memBalanceRepo) FindBySellerID(ctx context.Context, sellerID uuid.UUID) (*settlement.SellerBalance, error) {
	for _, b := range r.state.balances {
		if b.SellerID == sellerID {
			return b, nil
		}
	}
	return nil, nil
}

func (r *memBalanceRepo) FindBySellerIDForUpdate(ctx context.Context, sellerID uuid.UUID) (*settlement.SellerBalance, error) {
	return r.FindBySellerID(ctx, sellerID)
}

func (r *memBalanceRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*settlement.SellerBalance, error) {
	return r.FindByID(ctx, id)
}

func (r *memBalanceRepo) Save(ctx context.Context, balance *settlement.SellerBalance) error {
	r.state.balances[balance.ID] = balance
	return nil
}

func (r *memBalanceRepo) List(ctx context.Context, filter shared.Filter) ([]*settlement.SellerBalance, int64, error) {
	out := make([]*settlement.SellerBalance, 0, len(r.state.balances))
	for _, b := range r.state.balances {
		out = append(out, b)
	}
	return out, int64(len(out)), nil
}

func (r *memBalanceRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(r.state.balances))
	for id := range r.state.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// ----- ledger -----

type memLedgerRepo struct{ state *memState }

func (r *memLedgerRepo) Append(ctx context.Context, entry *settlement.LedgerEntry) error {
	for _, e := range r.state.ledger[entry.BalanceID] {
		if e.Sequence == entry.Sequence {
			return shared.ErrAlreadyExists
		}
		if key, ok := e.Metadata[settlement.MetadataKeyIdempotency]; ok &&
			key == entry.Metadata[settlement.MetadataKeyIdempotency] {
			return shared.ErrAlreadyExists
		}
	}
	r.state.ledger[entry.BalanceID] = append(r.state.ledger[entry.BalanceID], entry)
	return nil
}

func (r *memLedgerRepo) FindLastByBalance(ctx context.Context, balanceID uuid.UUID) (*settlement.LedgerEntry, error) {
	entries := r.state.ledger[balanceID]
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[len(entries)-1], nil
}

func (r *memLedgerRepo) FindAllByBalance(ctx context.Context, balanceID uuid.UUID) ([]*settlement.LedgerEntry, error) {
	return r.state.ledger[balanceID], nil
}

func (r *memLedgerRepo) FindByIdempotencyKey(ctx context.Context, balanceID uuid.UUID, key string) (*settlement.LedgerEntry, error) {
	for _, e := range r.state.ledger[balanceID] {
		if e.Metadata[settlement.MetadataKeyIdempotency] == key {
			return e, nil
		}
	}
	return nil, nil
}

func (r *memLedgerRepo) FindByTransaction(ctx context.Context, transactionID uuid.UUID, source settlement.LedgerSource) ([]*settlement.LedgerEntry, error) {
	var out []*settlement.LedgerEntry
	for _, entries := range r.state.ledger {
		for _, e := range entries {
			if e.Source != source {
				continue
			}
			if e.TransactionID != nil && *e.TransactionID == transactionID {
				out = append(out, e)
			}
			if e.PayoutID != nil && *e.PayoutID == transactionID {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (r *memLedgerRepo) ListByBalance(ctx context.Context, balanceID uuid.UUID, filter shared.Filter) ([]*settlement.LedgerEntry, int64, error) {
	entries := r.state.ledger[balanceID]
	return entries, int64(len(entries)), nil
}

// ----- payouts -----

type memPayoutRepo struct{ state *memState }

func (r *memPayoutRepo) FindByID(ctx context.Context, id uuid.UUID) (*settlement.PayoutRequest, error) {
	p, ok := r.state.payouts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (r *memPayoutRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*settlement.PayoutRequest, error) {
	return r.FindByID(ctx, id)
}

func (r *memPayoutRepo) Save(ctx context.Context, payout *settlement.PayoutRequest) error {
	r.state.payouts[payout.ID] = payout
	return nil
}

func (r *memPayoutRepo) FindByStatus(ctx context.Context, statuses []settlement.PayoutStatus, limit int) ([]*settlement.PayoutRequest, error) {
	var out []*settlement.PayoutRequest
	for _, p := range r.state.payouts {
		for _, s := range statuses {
			if p.Status == s {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memPayoutRepo) SumHeldByBalance(ctx context.Context, balanceID uuid.UUID, statuses []settlement.PayoutStatus) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range r.state.payouts {
		if p.BalanceID != balanceID {
			continue
		}
		for _, s := range statuses {
			if p.Status == s {
				sum = sum.Add(p.Amount)
				break
			}
		}
	}
	return sum, nil
}

func (r *memPayoutRepo) List(ctx context.Context, filter shared.Filter) ([]*settlement.PayoutRequest, int64, error) {
	out := make([]*settlement.PayoutRequest, 0, len(r.state.payouts))
	for _, p := range r.state.payouts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, int64(len(out)), nil
}

// ----- commissions -----

type memCommissionRepo struct{ state *memState }

func (r *memCommissionRepo) Create(ctx context.Context, record *settlement.CommissionRecord) error {
	if _, exists := r.state.commissions[record.TransactionID]; exists {
		return shared.ErrAlreadyExists
	}
	r.state.commissions[record.TransactionID] = record
	return nil
}

func (r *memCommissionRepo) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*settlement.CommissionRecord, error) {
	return r.state.commissions[transactionID], nil
}

// ----- refunds -----

type memRefundRepo struct{ state *memState }

func (r *memRefundRepo) Create(ctx context.Context, record *settlement.RefundRecord) error {
	for _, existing := range r.state.refunds {
		for _, rec := range existing {
			if rec.IdempotencyKey == record.IdempotencyKey {
				return shared.ErrAlreadyExists
			}
		}
	}
	r.state.refunds[record.TransactionID] = append(r.state.refunds[record.TransactionID], record)
	return nil
}

func (r *memRefundRepo) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*settlement.RefundRecord, error) {
	return r.state.refunds[transactionID], nil
}

func (r *memRefundRepo) FindByIdempotencyKey(ctx context.Context, idempotencyKey string) (*settlement.RefundRecord, error) {
	for _, records := range r.state.refunds {
		for _, rec := range records {
			if rec.IdempotencyKey == idempotencyKey {
				return rec, nil
			}
		}
	}
	return nil, nil
}

// ----- transactions -----

type memTransactionRepo struct{ state *memState }

func (r *memTransactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*settlement.EscrowTransaction, error) {
	tx, ok := r.state.transactions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return tx, nil
}

func (r *memTransactionRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*settlement.EscrowTransaction, error) {
	return r.FindByID(ctx, id)
}

func (r *memTransactionRepo) Save(ctx context.Context, tx *settlement.EscrowTransaction) error {
	r.state.transactions[tx.ID] = tx
	return nil
}

// =============================================================================
// Supporting fakes
// =============================================================================

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType())
	}
	return types
}

type capturingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *capturingAudit) Record(ctx context.Context, entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

// memCounter is an in-process RateCounter with real expiry semantics
type memCounter struct {
	mu     sync.Mutex
	values map[string]int64
	expiry map[string]time.Time
}

func newMemCounter() *memCounter {
	return &memCounter{
		values: make(map[string]int64),
		expiry: make(map[string]time.Time),
	}
}

func (c *memCounter) Increment(ctx context.Context, key string, delta int64, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.expiry[key]; ok && time.Now().After(exp) {
		delete(c.values, key)
		delete(c.expiry, key)
	}
	if _, ok := c.values[key]; !ok {
		c.expiry[key] = time.Now().Add(window)
	}
	c.values[key] += delta
	return c.values[key], nil
}

func (c *memCounter) Current(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.expiry[key]; ok && time.Now().After(exp) {
		return 0, nil
	}
	return c.values[key], nil
}

// stubProvider returns canned payout responses
type stubProvider struct {
	payoutResp *settlement.ExecutePayoutResponse
	payoutErr  error
	calls      int
}

func (p *stubProvider) InitializePayment(ctx context.Context, req *settlement.InitializePaymentRequest) (*settlement.InitializePaymentResponse, error) {
	return &settlement.InitializePaymentResponse{CheckoutURL: "https://pay.test/checkout", TransactionID: req.Reference}, nil
}

func (p *stubProvider) VerifyPayment(ctx context.Context, reference string) (*settlement.VerifyPaymentResponse, error) {
	return &settlement.VerifyPaymentResponse{Status: settlement.PaymentStatusSuccess}, nil
}

func (p *stubProvider) ExecutePayout(ctx context.Context, req *settlement.ExecutePayoutRequest) (*settlement.ExecutePayoutResponse, error) {
	p.calls++
	if p.payoutErr != nil {
		return nil, p.payoutErr
	}
	if p.payoutResp != nil {
		return p.payoutResp, nil
	}
	return &settlement.ExecutePayoutResponse{
		PayoutID:    "prov-" + req.Reference,
		Status:      settlement.PaymentStatusSuccess,
		RawResponse: `{"status":"success"}`,
	}, nil
}
