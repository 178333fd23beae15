// Package payment charges tokenized cards through a provider, both from the
// server endpoint and from the client-side submission controller.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/common"
)

// Provider payment statuses.
const (
	StatusApproved  = "APPROVED"
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusCanceled  = "CANCELED"
	StatusFailed    = "FAILED"
)

// ErrPaymentNotFound is returned by GetPayment for unknown ids.
var ErrPaymentNotFound = errors.New("payment not found")

// Request is a single charge against a tokenized source.
type Request struct {
	SourceID       string
	IdempotencyKey string
	AmountMinor    int64
	Currency       string
	Address        address.Shipping
	Note           string
}

// Payment is the provider's view of a charge.
type Payment struct {
	ID          string
	OrderID     string
	ReceiptURL  string
	Status      string
	AmountMinor int64
	Currency    string
	BuyerEmail  string
	Address     address.Shipping
	CreatedAt   time.Time
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, req Request) (Payment, error)
	GetPayment(ctx context.Context, id string) (Payment, error)
}

// ProviderError carries the provider's own error detail. Err is one of the
// common payment error classes.
type ProviderError struct {
	HTTPStatus int
	Category   string
	Code       string
	Detail     string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Code != "" {
		return fmt.Sprintf("payment provider error %s", e.Code)
	}
	return fmt.Sprintf("payment provider returned status %d", e.HTTPStatus)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NotCompletedError reports a charge the provider accepted but did not
// complete. Retrying with the same key cannot change the outcome.
type NotCompletedError struct {
	Status string
}

func (e *NotCompletedError) Error() string {
	status := e.Status
	if status == "" {
		status = "unknown"
	}
	return "payment status: " + status
}

func (e *NotCompletedError) Unwrap() error { return common.ErrPaymentDeclined }
