package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/candle-checkout/internal/common"
)

// Sandbox source tokens. Any other non-empty token completes.
const (
	SandboxTokenOK          = "cnon:card-nonce-ok"
	SandboxTokenDeclined    = "cnon:card-nonce-declined"
	SandboxTokenBadCVV      = "cnon:card-nonce-rejected-cvv"
	SandboxTokenPending     = "cnon:card-nonce-pending"
	SandboxTokenUnavailable = "cnon:card-nonce-unavailable"
)

// Sandbox is an in-process Provider for local runs and tests. Charges are
// idempotent by key: replaying a key returns the original payment, and reusing
// it with different parameters is rejected.
type Sandbox struct {
	mu       sync.Mutex
	byID     map[string]Payment
	byKey    map[string]sandboxEntry
	calls    int
	now      func() time.Time
	receipts string
}

type sandboxEntry struct {
	req       Request
	paymentID string
}

// NewSandbox returns an empty sandbox. now may be nil.
func NewSandbox(now func() time.Time) *Sandbox {
	if now == nil {
		now = time.Now
	}
	return &Sandbox{
		byID:     make(map[string]Payment),
		byKey:    make(map[string]sandboxEntry),
		now:      now,
		receipts: "https://squareupsandbox.com/receipt/preview/",
	}
}

// Name implements Provider.
func (s *Sandbox) Name() string { return "sandbox" }

// Calls returns how many CreatePayment calls reached the sandbox.
func (s *Sandbox) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// CreatePayment implements Provider.
func (s *Sandbox) CreatePayment(ctx context.Context, req Request) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, fmt.Errorf("%w: %w", common.ErrTransientPayment, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if prior, ok := s.byKey[req.IdempotencyKey]; ok {
		if prior.req.SourceID != req.SourceID || prior.req.AmountMinor != req.AmountMinor || prior.req.Currency != req.Currency {
			return Payment{}, &ProviderError{
				HTTPStatus: 400,
				Category:   "INVALID_REQUEST_ERROR",
				Code:       "IDEMPOTENCY_KEY_REUSED",
				Detail:     "The idempotency key can only be retried with the same request data.",
				Err:        common.ErrValidation,
			}
		}
		return s.byID[prior.paymentID], nil
	}

	switch token := strings.TrimSpace(req.SourceID); token {
	case "":
		return Payment{}, &ProviderError{HTTPStatus: 400, Category: "INVALID_REQUEST_ERROR", Code: "MISSING_REQUIRED_PARAMETER", Detail: "Missing required parameter: source_id", Err: common.ErrValidation}
	case SandboxTokenDeclined:
		return Payment{}, &ProviderError{HTTPStatus: 402, Category: "PAYMENT_METHOD_ERROR", Code: "GENERIC_DECLINE", Detail: "Authorization error: 'GENERIC_DECLINE'", Err: common.ErrPaymentDeclined}
	case SandboxTokenBadCVV:
		return Payment{}, &ProviderError{HTTPStatus: 402, Category: "PAYMENT_METHOD_ERROR", Code: "CVV_FAILURE", Detail: "Authorization error: 'CVV_FAILURE'", Err: common.ErrPaymentDeclined}
	case SandboxTokenUnavailable:
		return Payment{}, &ProviderError{HTTPStatus: 503, Category: "API_ERROR", Code: "SERVICE_UNAVAILABLE", Detail: "Service temporarily unavailable", Err: common.ErrTransientPayment}
	}

	status := StatusCompleted
	if req.SourceID == SandboxTokenPending {
		status = StatusPending
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	p := Payment{
		ID:          id,
		OrderID:     "ord_" + id[:16],
		ReceiptURL:  s.receipts + id,
		Status:      status,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		BuyerEmail:  req.Address.Email,
		Address:     req.Address,
		CreatedAt:   s.now().UTC(),
	}
	s.byID[id] = p
	s.byKey[req.IdempotencyKey] = sandboxEntry{req: req, paymentID: id}
	return p, nil
}

// GetPayment implements Provider.
func (s *Sandbox) GetPayment(_ context.Context, id string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Payment{}, &ProviderError{HTTPStatus: 404, Code: "NOT_FOUND", Detail: "Payment not found", Err: ErrPaymentNotFound}
	}
	return p, nil
}
