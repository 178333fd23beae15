package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/pricing"
	"github.com/noah-isme/candle-checkout/internal/resilience"
)

// TokenStatus is the outcome reported by the card tokenizer.
type TokenStatus string

// Tokenizer statuses.
const (
	TokenOK      TokenStatus = "OK"
	TokenInvalid TokenStatus = "INVALID"
	TokenError   TokenStatus = "ERROR"
)

// TokenIssue is one problem reported by the tokenizer.
type TokenIssue struct {
	Type    string `json:"type"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// TokenResult is the tokenizer output. Token is only set when Status is OK.
type TokenResult struct {
	Status TokenStatus
	Token  string
	Errors []TokenIssue
}

// Tokenizer turns the customer's card into an opaque payment source token.
type Tokenizer interface {
	Tokenize(ctx context.Context) (TokenResult, error)
}

// TokenizerFunc adapts a function to Tokenizer.
type TokenizerFunc func(ctx context.Context) (TokenResult, error)

// Tokenize implements Tokenizer.
func (f TokenizerFunc) Tokenize(ctx context.Context) (TokenResult, error) { return f(ctx) }

// SubmitStatus is the controller's view of the current attempt.
type SubmitStatus string

// Submission states.
const (
	SubmitIdle       SubmitStatus = "idle"
	SubmitProcessing SubmitStatus = "processing"
	SubmitSucceeded  SubmitStatus = "success"
	SubmitFailed     SubmitStatus = "error"
)

// ErrSubmissionInFlight is returned when Submit is called while an attempt is
// running or after one succeeded.
var ErrSubmissionInFlight = errors.New("payment: submission already in progress")

// ControllerConfig tunes retries. Zero values select the defaults.
type ControllerConfig struct {
	// MaxRetries is the number of additional tries after the first. Negative
	// disables retries.
	MaxRetries     int
	BaseBackoff    time.Duration
	AttemptTimeout time.Duration
	Sleep          func(ctx context.Context, d time.Duration) error
	NewKey         func() string
	Logger         zerolog.Logger
}

// DefaultControllerConfig retries twice after 1s and 2s.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		MaxRetries:     2,
		BaseBackoff:    time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// Controller submits one checkout's payment. The idempotency key is stable
// across retries of an attempt and replaced after every failed attempt.
type Controller struct {
	gateway        Gateway
	policy         resilience.RetryPolicy
	attemptTimeout time.Duration
	newKey         func() string
	logger         zerolog.Logger

	attempted atomic.Bool

	mu         sync.Mutex
	key        string
	status     SubmitStatus
	retryCount int
	lastErr    error
}

// NewController builds a controller around g.
func NewController(g Gateway, cfg ControllerConfig) *Controller {
	defaults := DefaultControllerConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaults.BaseBackoff
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaults.AttemptTimeout
	}
	if cfg.NewKey == nil {
		cfg.NewKey = uuid.NewString
	}
	c := &Controller{
		gateway:        g,
		attemptTimeout: cfg.AttemptTimeout,
		newKey:         cfg.NewKey,
		logger:         cfg.Logger,
		status:         SubmitIdle,
	}
	c.key = c.newKey()
	c.policy = resilience.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Backoff:    resilience.ExponentialBackoff(cfg.BaseBackoff),
		Retryable:  Retryable,
		Sleep:      cfg.Sleep,
		OnRetry: func(retry int, err error, wait time.Duration) {
			c.mu.Lock()
			c.retryCount = retry
			c.mu.Unlock()
			c.logger.Warn().Err(err).Int("retry", retry).Dur("wait", wait).Msg("payment_retry_scheduled")
		},
	}
	return c
}

// Retryable reports whether a submission error may be retried with the same
// idempotency key. Validation failures, declines and rate limiting are final.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrCardValidation),
		errors.Is(err, common.ErrPaymentDeclined),
		errors.Is(err, common.ErrRateLimited),
		errors.Is(err, common.ErrTerminalPayment):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// Submit tokenizes the card and charges amount. It makes no network call when
// a submission is already in flight or has succeeded.
func (c *Controller) Submit(ctx context.Context, tok Tokenizer, amount pricing.Money, currency string, addr address.Shipping, details *OrderDetails) (Result, error) {
	c.mu.Lock()
	if !c.attempted.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return Result{}, ErrSubmissionInFlight
	}
	c.status = SubmitProcessing
	c.retryCount = 0
	c.lastErr = nil
	key := c.key
	c.mu.Unlock()

	res, err := c.run(ctx, tok, ProcessRequest{
		Amount:          pricing.ToMinorUnits(amount),
		Currency:        currency,
		ShippingAddress: addr,
		IdempotencyKey:  key,
		OrderDetails:    details,
	})
	if err != nil {
		c.mu.Lock()
		c.status = SubmitFailed
		c.lastErr = err
		c.key = c.newKey()
		c.attempted.Store(false)
		c.mu.Unlock()
		c.logger.Warn().Err(err).Str("idempotency_key", key).Msg("payment_submit_failed")
		return Result{}, err
	}
	c.mu.Lock()
	c.status = SubmitSucceeded
	c.mu.Unlock()
	return res, nil
}

func (c *Controller) run(ctx context.Context, tok Tokenizer, req ProcessRequest) (Result, error) {
	if tok == nil {
		return Result{}, fmt.Errorf("%w: payment form not ready", common.ErrCardValidation)
	}
	tr, err := tok.Tokenize(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", common.ErrCardValidation, err)
	}
	if tr.Status != TokenOK || tr.Token == "" {
		msg := "Card validation failed"
		if len(tr.Errors) > 0 && tr.Errors[0].Message != "" {
			msg = tr.Errors[0].Message
		}
		return Result{}, fmt.Errorf("%w: %s", common.ErrCardValidation, msg)
	}
	req.SourceID = tr.Token

	var res Result
	err = c.policy.Do(ctx, func(ctx context.Context, _ int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
		out, err := c.gateway.Submit(attemptCtx, req)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	return res, err
}

// HandleRetry re-arms the controller with a fresh key. It is a no-op while
// an attempt is running. The guard is only taken or released under mu.
func (c *Controller) HandleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == SubmitProcessing {
		return
	}
	c.status = SubmitIdle
	c.lastErr = nil
	c.retryCount = 0
	c.key = c.newKey()
	c.attempted.Store(false)
}

// Status returns the current submission state.
func (c *Controller) Status() SubmitStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// RetryCount is the number of retries made by the latest attempt.
func (c *Controller) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// LastError is the error of the latest failed attempt.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// IdempotencyKey is the key the next (or current) attempt uses.
func (c *Controller) IdempotencyKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}
