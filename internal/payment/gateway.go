package payment

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/candle-checkout/internal/common"
)

// ProcessPaymentPath is the storefront payment endpoint.
const ProcessPaymentPath = "/api/checkout/process-payment"

// Gateway submits a tokenized payment to the payment endpoint.
type Gateway interface {
	Submit(ctx context.Context, req ProcessRequest) (Result, error)
}

// GatewayError is a non-success answer from the payment endpoint. Err is the
// error class used for retry decisions.
type GatewayError struct {
	HTTPStatus int
	Message    string
	Details    []common.FieldError
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("payment endpoint returned status %d", e.HTTPStatus)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// HTTPGateway calls the payment endpoint over HTTP.
type HTTPGateway struct {
	client *resty.Client
}

// NewHTTPGateway targets the server at baseURL.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(0).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))
	return &HTTPGateway{client: client}
}

type gatewayFailure struct {
	Success    bool                `json:"success"`
	Error      string              `json:"error"`
	Details    []common.FieldError `json:"details"`
	RetryAfter int                 `json:"retryAfter"`
}

// Submit implements Gateway.
func (g *HTTPGateway) Submit(ctx context.Context, req ProcessRequest) (Result, error) {
	var out Result
	var failure gatewayFailure
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("X-Idempotency-Key", req.IdempotencyKey).
		SetBody(req).
		SetResult(&out).
		SetError(&failure).
		Post(ProcessPaymentPath)
	if err != nil {
		return Result{}, &GatewayError{Message: "Payment processing failed", Err: fmt.Errorf("%w: %w", common.ErrTransientPayment, err)}
	}
	if !resp.IsError() {
		if !out.Success {
			return Result{}, &GatewayError{HTTPStatus: resp.StatusCode(), Message: "Payment failed", Err: common.ErrTerminalPayment}
		}
		return out, nil
	}
	return Result{}, classifyGatewayFailure(resp, failure)
}

func classifyGatewayFailure(resp *resty.Response, failure gatewayFailure) error {
	gerr := &GatewayError{
		HTTPStatus: resp.StatusCode(),
		Message:    failure.Error,
		Details:    failure.Details,
	}
	if gerr.Message == "" {
		gerr.Message = "Payment processing failed"
	}
	switch status := resp.StatusCode(); {
	case status == http.StatusBadRequest && len(failure.Details) > 0:
		gerr.Err = common.ErrValidation
	case status == http.StatusBadRequest, status == http.StatusPaymentRequired:
		gerr.Err = common.ErrPaymentDeclined
	case status == http.StatusTooManyRequests:
		gerr.Err = &common.RateLimitError{RetryAfter: retryAfter(resp, failure)}
	case status >= http.StatusInternalServerError:
		gerr.Err = common.ErrTransientPayment
	default:
		gerr.Err = common.ErrTerminalPayment
	}
	return gerr
}

func retryAfter(resp *resty.Response, failure gatewayFailure) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header().Get("Retry-After"))); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if failure.RetryAfter > 0 {
		return time.Duration(failure.RetryAfter) * time.Second
	}
	return 0
}
