package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/events"
	"github.com/noah-isme/candle-checkout/internal/lock"
	"github.com/noah-isme/candle-checkout/internal/obs"
	"github.com/noah-isme/candle-checkout/internal/order"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

// Result is returned to the storefront after a completed charge.
type Result struct {
	Success        bool   `json:"success"`
	PaymentID      string `json:"paymentId"`
	OrderID        string `json:"orderId,omitempty"`
	ReceiptURL     string `json:"receiptUrl,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
	Replayed       bool   `json:"-"`
}

// Meta describes the caller of a payment request.
type Meta struct {
	ClientIP string
}

// Service validates payment requests, charges them through Provider and
// persists receipts.
type Service struct {
	Provider  Provider
	Store     order.Store
	Locker    lock.KeyLocker
	Events    events.Emitter
	Validator *address.Validator
	Logger    zerolog.Logger
	// Limits overrides DefaultLimits per currency.
	Limits  map[string]AmountRange
	LockTTL time.Duration
	Now     func() time.Time
}

// NewService wires a service with an in-process key lock and an address
// validator that does not require a phone number.
func NewService(p Provider, store order.Store, logger zerolog.Logger) *Service {
	return &Service{
		Provider:  p,
		Store:     store,
		Locker:    lock.NewLocal(),
		Validator: address.NewValidator(false),
		Logger:    logger,
		LockTTL:   lock.DefaultTTL,
	}
}

// Process charges req at most once per idempotency key. A key that already
// produced a receipt is answered from the store without calling the provider.
func (s *Service) Process(ctx context.Context, req ProcessRequest, meta Meta) (Result, error) {
	if s == nil || s.Provider == nil || s.Store == nil || s.Locker == nil {
		return Result{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Process")
	defer span.End()

	start := s.now()
	providerName := normaliseLabel(s.Provider.Name())
	req = normalizeRequest(req)
	result := "error"
	var paymentID string
	var procErr error
	defer func() {
		elapsed := s.now().Sub(start)
		span.SetAttributes(
			attribute.String("payment.provider", providerName),
			attribute.String("payment.currency", req.Currency),
			attribute.Int64("payment.amount_minor", req.Amount),
			attribute.Float64("payment.duration_ms", obs.DurationMillis(elapsed)),
			attribute.String("payment.result", result),
		)
		if procErr != nil {
			span.RecordError(procErr)
			span.SetStatus(codes.Error, result)
		}
		obs.CountPaymentAttempt(providerName, result)
		obs.ObservePaymentDuration(providerName, obs.DurationMillis(elapsed))
		s.logAttempt(meta, req, result, paymentID, elapsed, procErr)
	}()

	if err := s.validate(req); err != nil {
		result = "invalid"
		procErr = err
		return Result{}, err
	}
	s.flagSuspicious(ctx, req)

	var out Result
	procErr = s.Locker.WithLock(ctx, "payment:"+req.IdempotencyKey, s.LockTTL, func(ctx context.Context) error {
		if prior, ok := s.replay(ctx, req.IdempotencyKey); ok {
			out = prior
			return nil
		}
		p, err := s.Provider.CreatePayment(ctx, Request{
			SourceID:       req.SourceID,
			IdempotencyKey: req.IdempotencyKey,
			AmountMinor:    req.Amount,
			Currency:       req.Currency,
			Address:        req.ShippingAddress,
		})
		if err != nil {
			return err
		}
		if p.Status != StatusCompleted {
			return &NotCompletedError{Status: p.Status}
		}
		o := s.receipt(req, p)
		if err := order.SaveReceipt(ctx, s.Store, o); err != nil {
			// Charge succeeded; the provider remains the system of record.
			s.Logger.Error().Err(err).Str("payment_id", p.ID).Msg("order_receipt_store_failed")
		}
		s.emit(ctx, events.TopicOrderPaid, req.IdempotencyKey, o)
		out = Result{
			Success:        true,
			PaymentID:      p.ID,
			OrderID:        p.OrderID,
			ReceiptURL:     p.ReceiptURL,
			IdempotencyKey: req.IdempotencyKey,
		}
		return nil
	})
	if procErr != nil {
		result = failureLabel(procErr)
		if result == "not_completed" {
			s.emit(ctx, events.TopicPaymentFailed, req.IdempotencyKey, map[string]any{
				"idempotencyKey": req.IdempotencyKey,
				"error":          procErr.Error(),
			})
		}
		return Result{}, procErr
	}
	paymentID = out.PaymentID
	result = "success"
	if out.Replayed {
		result = "replayed"
	}
	return out, nil
}

func (s *Service) replay(ctx context.Context, key string) (Result, bool) {
	prior, err := s.Store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, order.ErrNotFound) {
			s.Logger.Warn().Err(err).Str("idempotency_key", key).Msg("order_store_lookup_failed")
		}
		return Result{}, false
	}
	return Result{
		Success:        true,
		PaymentID:      prior.PaymentID,
		OrderID:        prior.OrderID,
		ReceiptURL:     prior.ReceiptURL,
		IdempotencyKey: key,
		Replayed:       true,
	}, true
}

func (s *Service) receipt(req ProcessRequest, p Payment) order.Order {
	items := []cart.Item{}
	totals := pricing.Zero()
	totals.Total = pricing.FromMinorUnits(req.Amount)
	totals.Currency = req.Currency
	if d := req.OrderDetails; d != nil {
		if d.Items != nil {
			items = d.Items
		}
		if d.Totals != nil {
			totals = *d.Totals
		}
	}
	return order.Order{
		PaymentID:      p.ID,
		OrderID:        p.OrderID,
		ReceiptURL:     p.ReceiptURL,
		IdempotencyKey: req.IdempotencyKey,
		Status:         p.Status,
		Details: order.Details{
			Items:    items,
			Shipping: order.ShippingInfo{Address: req.ShippingAddress},
			Totals:   totals,
		},
		CreatedAt: s.now().UTC(),
	}
}

func (s *Service) flagSuspicious(ctx context.Context, req ProcessRequest) {
	reasons := SuspiciousReasons(req.Amount, req.Currency, req.ShippingAddress.Email, req.ShippingAddress.Country)
	if len(reasons) == 0 {
		return
	}
	for _, r := range reasons {
		obs.CountSuspiciousPayment(r)
	}
	s.Logger.Warn().
		Strs("reasons", reasons).
		Int64("amount", req.Amount).
		Str("currency", req.Currency).
		Str("country", string(req.ShippingAddress.Country)).
		Str("idempotency_key", req.IdempotencyKey).
		Msg("payment_suspicious")
	s.emit(ctx, events.TopicPaymentSuspicious, req.IdempotencyKey, map[string]any{
		"idempotencyKey": req.IdempotencyKey,
		"reasons":        reasons,
		"amount":         req.Amount,
		"currency":       req.Currency,
	})
}

func (s *Service) emit(ctx context.Context, topic, key string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, key, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Msg("event_emit_failed")
	}
}

func (s *Service) logAttempt(meta Meta, req ProcessRequest, result, paymentID string, elapsed time.Duration, err error) {
	status, level := "success", zerolog.InfoLevel
	if err != nil {
		status, level = "failure", zerolog.WarnLevel
	}
	evt := s.Logger.WithLevel(level)
	if err != nil {
		evt = evt.Str("error", err.Error())
	}
	evt.Str("status", status).
		Str("result", result).
		Str("ip", meta.ClientIP).
		Str("source_fingerprint", sourceFingerprint(req.SourceID)).
		Int64("amount", req.Amount).
		Str("currency", req.Currency).
		Str("payment_id", paymentID).
		Int64("processing_ms", elapsed.Milliseconds()).
		Msg("payment_attempt")
}

// sourceFingerprint identifies a payment token in logs without exposing it.
func sourceFingerprint(sourceID string) string {
	if sourceID == "" {
		return ""
	}
	return common.Sha256Hex(sourceID)[:16]
}

func failureLabel(err error) string {
	var notCompleted *NotCompletedError
	switch {
	case errors.As(err, &notCompleted):
		return "not_completed"
	case IsTransient(err):
		return "transient"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		var perr *ProviderError
		if errors.As(err, &perr) {
			return "declined"
		}
		return "error"
	}
}

var defaultValidator = address.NewValidator(false)

func (s *Service) validator() *address.Validator {
	if s.Validator == nil {
		return defaultValidator
	}
	return s.Validator
}

func (s *Service) limits() map[string]AmountRange {
	limits := DefaultLimits()
	for cur, r := range s.Limits {
		if r.Min > 0 {
			b := limits[cur]
			b.Min = r.Min
			limits[cur] = b
		}
		if r.Max > 0 {
			b := limits[cur]
			b.Max = r.Max
			limits[cur] = b
		}
	}
	return limits
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func normaliseLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
