package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/resilience"
)

const (
	squareSandboxURL    = "https://connect.squareupsandbox.com"
	squareProductionURL = "https://connect.squareup.com"
	squareAPIVersion    = "2024-10-17"
)

// SquareConfig holds the credentials and endpoint of the Square Payments API.
type SquareConfig struct {
	AccessToken string
	LocationID  string
	// Environment is "sandbox" or "production". BaseURL overrides it.
	Environment string
	BaseURL     string
	Version     string
	Timeout     time.Duration
}

// Square implements Provider against the Square REST API.
type Square struct {
	client     *resty.Client
	locationID string
	breaker    *resilience.Breaker
}

// NewSquare builds the provider. breaker may be nil.
func NewSquare(cfg SquareConfig, breaker *resilience.Breaker) (*Square, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("square: access token is required")
	}
	if strings.TrimSpace(cfg.LocationID) == "" {
		return nil, errors.New("square: location id is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = squareSandboxURL
		if strings.EqualFold(cfg.Environment, "production") {
			base = squareProductionURL
		}
	}
	version := cfg.Version
	if version == "" {
		version = squareAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(base).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Square-Version", version).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(0).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))
	return &Square{client: client, locationID: cfg.LocationID, breaker: breaker}, nil
}

// Name implements Provider.
func (s *Square) Name() string { return "square" }

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareAddress struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Line1      string `json:"address_line_1,omitempty"`
	Line2      string `json:"address_line_2,omitempty"`
	Locality   string `json:"locality,omitempty"`
	District   string `json:"administrative_district_level_1,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type squareCreatePayment struct {
	SourceID        string         `json:"source_id"`
	IdempotencyKey  string         `json:"idempotency_key"`
	AmountMoney     squareMoney    `json:"amount_money"`
	LocationID      string         `json:"location_id"`
	BuyerEmail      string         `json:"buyer_email_address,omitempty"`
	ShippingAddress *squareAddress `json:"shipping_address,omitempty"`
	Note            string         `json:"note,omitempty"`
}

type squarePayment struct {
	ID              string         `json:"id"`
	Status          string         `json:"status"`
	OrderID         string         `json:"order_id"`
	ReceiptURL      string         `json:"receipt_url"`
	AmountMoney     squareMoney    `json:"amount_money"`
	BuyerEmail      string         `json:"buyer_email_address"`
	ShippingAddress *squareAddress `json:"shipping_address"`
	CreatedAt       time.Time      `json:"created_at"`
}

type squarePaymentResponse struct {
	Payment squarePayment `json:"payment"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
	Field    string `json:"field"`
}

type squareErrorResponse struct {
	Errors []squareError `json:"errors"`
}

// CreatePayment implements Provider.
func (s *Square) CreatePayment(ctx context.Context, req Request) (Payment, error) {
	body := squareCreatePayment{
		SourceID:        req.SourceID,
		IdempotencyKey:  req.IdempotencyKey,
		AmountMoney:     squareMoney{Amount: req.AmountMinor, Currency: req.Currency},
		LocationID:      s.locationID,
		BuyerEmail:      req.Address.Email,
		ShippingAddress: toSquareAddress(req.Address),
		Note:            req.Note,
	}
	var out squarePaymentResponse
	err := s.call(ctx, func(ctx context.Context) (*resty.Response, error) {
		return s.client.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&out).
			SetError(&squareErrorResponse{}).
			Post("/v2/payments")
	})
	if err != nil {
		return Payment{}, err
	}
	return out.Payment.toPayment(), nil
}

// GetPayment implements Provider.
func (s *Square) GetPayment(ctx context.Context, id string) (Payment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Payment{}, ErrPaymentNotFound
	}
	var out squarePaymentResponse
	err := s.call(ctx, func(ctx context.Context) (*resty.Response, error) {
		return s.client.R().
			SetContext(ctx).
			SetPathParam("id", id).
			SetResult(&out).
			SetError(&squareErrorResponse{}).
			Get("/v2/payments/{id}")
	})
	if err != nil {
		return Payment{}, err
	}
	return out.Payment.toPayment(), nil
}

func (s *Square) call(ctx context.Context, do func(context.Context) (*resty.Response, error)) error {
	run := func(ctx context.Context) error {
		resp, err := do(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %w", common.ErrTransientPayment, ctxErr)
			}
			return fmt.Errorf("%w: %w", common.ErrTransientPayment, err)
		}
		if resp.IsError() {
			return classifySquareError(resp)
		}
		return nil
	}
	if s.breaker == nil {
		return run(ctx)
	}
	err := s.breaker.Do(ctx, run, IsTransient)
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return fmt.Errorf("%w: %w", common.ErrTransientPayment, err)
	}
	return err
}

func classifySquareError(resp *resty.Response) error {
	perr := &ProviderError{HTTPStatus: resp.StatusCode()}
	if body, ok := resp.Error().(*squareErrorResponse); ok && body != nil && len(body.Errors) > 0 {
		first := body.Errors[0]
		perr.Category = first.Category
		perr.Code = first.Code
		perr.Detail = first.Detail
	}
	switch status := resp.StatusCode(); {
	case status == http.StatusNotFound:
		perr.Err = ErrPaymentNotFound
	case status == http.StatusPaymentRequired,
		perr.Category == "PAYMENT_METHOD_ERROR":
		perr.Err = common.ErrPaymentDeclined
	case status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		perr.Err = common.ErrTransientPayment
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		perr.Err = common.ErrTerminalPayment
	default:
		perr.Err = common.ErrValidation
	}
	return perr
}

// IsTransient reports whether err is worth retrying with the same key.
func IsTransient(err error) bool {
	return errors.Is(err, common.ErrTransientPayment)
}

func toSquareAddress(a address.Shipping) *squareAddress {
	if a == (address.Shipping{}) {
		return nil
	}
	return &squareAddress{
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Line1:      a.Address1,
		Line2:      a.Address2,
		Locality:   a.City,
		District:   a.State,
		PostalCode: a.PostalCode,
		Country:    string(a.Country),
	}
}

func (p squarePayment) toPayment() Payment {
	out := Payment{
		ID:          p.ID,
		OrderID:     p.OrderID,
		ReceiptURL:  p.ReceiptURL,
		Status:      strings.ToUpper(p.Status),
		AmountMinor: p.AmountMoney.Amount,
		Currency:    p.AmountMoney.Currency,
		BuyerEmail:  p.BuyerEmail,
		CreatedAt:   p.CreatedAt,
	}
	if a := p.ShippingAddress; a != nil {
		out.Address = address.Shipping{
			FirstName:  a.FirstName,
			LastName:   a.LastName,
			Email:      p.BuyerEmail,
			Address1:   a.Line1,
			Address2:   a.Line2,
			City:       a.Locality,
			State:      a.District,
			PostalCode: a.PostalCode,
			Country:    address.Country(a.Country),
		}
	} else {
		out.Address.Email = p.BuyerEmail
	}
	return out
}
