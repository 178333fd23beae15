package payment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/payment"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

type fakeGateway struct {
	mu      sync.Mutex
	keys    []string
	results []error
	block   chan struct{}
	entered chan struct{}
}

func (g *fakeGateway) Submit(ctx context.Context, req payment.ProcessRequest) (payment.Result, error) {
	g.mu.Lock()
	g.keys = append(g.keys, req.IdempotencyKey)
	n := len(g.keys)
	var err error
	if n <= len(g.results) {
		err = g.results[n-1]
	}
	g.mu.Unlock()
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return payment.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return payment.Result{}, err
	}
	return payment.Result{Success: true, PaymentID: fmt.Sprintf("pay_%d", n), OrderID: "ord_1", IdempotencyKey: req.IdempotencyKey}, nil
}

func (g *fakeGateway) Keys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.keys...)
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func okTokenizer(token string) payment.Tokenizer {
	return payment.TokenizerFunc(func(context.Context) (payment.TokenResult, error) {
		return payment.TokenResult{Status: payment.TokenOK, Token: token}, nil
	})
}

func sequentialKeys() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("key-%d", n)
	}
}

func newController(gw payment.Gateway, sleeper *recordingSleeper) *payment.Controller {
	return payment.NewController(gw, payment.ControllerConfig{
		Sleep:  sleeper.Sleep,
		NewKey: sequentialKeys(),
	})
}

func submit(c *payment.Controller, tok payment.Tokenizer) (payment.Result, error) {
	return c.Submit(context.Background(), tok, pricing.FromMinorUnits(6971), "USD", address.Shipping{Country: address.US}, nil)
}

func transientErr() error {
	return &payment.GatewayError{HTTPStatus: 503, Message: "unavailable", Err: common.ErrTransientPayment}
}

func TestControllerRetriesWithStableKey(t *testing.T) {
	gw := &fakeGateway{results: []error{transientErr(), transientErr(), nil}}
	sleeper := &recordingSleeper{}
	c := newController(gw, sleeper)

	res, err := submit(c, okTokenizer("cnon:ok"))
	require.NoError(t, err)
	require.Equal(t, "pay_3", res.PaymentID)
	require.Equal(t, []string{"key-1", "key-1", "key-1"}, gw.Keys())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
	require.Equal(t, payment.SubmitSucceeded, c.Status())
	require.Equal(t, 2, c.RetryCount())
	require.Equal(t, "key-1", c.IdempotencyKey())
}

func TestControllerExhaustedRetriesMintFreshKey(t *testing.T) {
	gw := &fakeGateway{results: []error{transientErr(), transientErr(), transientErr(), nil}}
	sleeper := &recordingSleeper{}
	c := newController(gw, sleeper)

	_, err := submit(c, okTokenizer("cnon:ok"))
	require.ErrorIs(t, err, common.ErrTransientPayment)
	require.Equal(t, payment.SubmitFailed, c.Status())
	require.Equal(t, err, c.LastError())
	require.Len(t, gw.Keys(), 3)
	require.Equal(t, "key-2", c.IdempotencyKey())

	res, err := submit(c, okTokenizer("cnon:ok"))
	require.NoError(t, err)
	require.Equal(t, "key-2", res.IdempotencyKey)
	require.Equal(t, []string{"key-1", "key-1", "key-1", "key-2"}, gw.Keys())
}

func TestControllerDoesNotRetryValidationErrors(t *testing.T) {
	validation := &payment.GatewayError{HTTPStatus: 400, Message: "Invalid payment data", Err: common.ErrValidation}
	gw := &fakeGateway{results: []error{validation}}
	sleeper := &recordingSleeper{}
	c := newController(gw, sleeper)

	_, err := submit(c, okTokenizer("cnon:ok"))
	require.ErrorIs(t, err, common.ErrValidation)
	require.Len(t, gw.Keys(), 1)
	require.Empty(t, sleeper.waits)
	require.Equal(t, "key-2", c.IdempotencyKey())
}

func TestControllerTokenizeFailureSkipsGateway(t *testing.T) {
	gw := &fakeGateway{}
	c := newController(gw, &recordingSleeper{})
	invalid := payment.TokenizerFunc(func(context.Context) (payment.TokenResult, error) {
		return payment.TokenResult{
			Status: payment.TokenInvalid,
			Errors: []payment.TokenIssue{{Type: "VALIDATION_ERROR", Field: "cardNumber", Message: "Card number is not valid"}},
		}, nil
	})

	_, err := submit(c, invalid)
	require.ErrorIs(t, err, common.ErrCardValidation)
	require.Contains(t, err.Error(), "Card number is not valid")
	require.Empty(t, gw.Keys())

	broken := payment.TokenizerFunc(func(context.Context) (payment.TokenResult, error) {
		return payment.TokenResult{}, errors.New("sdk not loaded")
	})
	_, err = submit(c, broken)
	require.ErrorIs(t, err, common.ErrCardValidation)

	_, err = submit(c, nil)
	require.ErrorIs(t, err, common.ErrCardValidation)
	require.Empty(t, gw.Keys())
}

func TestControllerRejectsDoubleSubmit(t *testing.T) {
	gw := &fakeGateway{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := newController(gw, &recordingSleeper{})

	done := make(chan error, 1)
	go func() {
		_, err := submit(c, okTokenizer("cnon:ok"))
		done <- err
	}()
	<-gw.entered
	require.Equal(t, payment.SubmitProcessing, c.Status())

	_, err := submit(c, okTokenizer("cnon:ok"))
	require.ErrorIs(t, err, payment.ErrSubmissionInFlight)

	close(gw.block)
	require.NoError(t, <-done)
	require.Len(t, gw.Keys(), 1)

	_, err = submit(c, okTokenizer("cnon:ok"))
	require.ErrorIs(t, err, payment.ErrSubmissionInFlight)
	require.Len(t, gw.Keys(), 1)
}

func TestControllerHandleRetryKeepsGuardWhileInFlight(t *testing.T) {
	for i := 0; i < 50; i++ {
		gw := &fakeGateway{block: make(chan struct{}), entered: make(chan struct{}, 2)}
		c := newController(gw, &recordingSleeper{})

		errs := make(chan error, 2)
		for j := 0; j < 2; j++ {
			go func() {
				_, err := submit(c, okTokenizer("cnon:ok"))
				errs <- err
			}()
		}
		retried := make(chan struct{})
		go func() {
			c.HandleRetry()
			close(retried)
		}()

		<-gw.entered
		<-retried
		select {
		case err := <-errs:
			require.ErrorIs(t, err, payment.ErrSubmissionInFlight)
		case <-time.After(time.Second):
			t.Fatal("second submit reached the gateway")
		}

		close(gw.block)
		require.NoError(t, <-errs)
		require.Len(t, gw.Keys(), 1)
	}
}

func TestControllerHandleRetryMintsFreshKey(t *testing.T) {
	declined := &payment.GatewayError{HTTPStatus: 400, Message: "Card declined", Err: common.ErrPaymentDeclined}
	gw := &fakeGateway{results: []error{declined}}
	c := newController(gw, &recordingSleeper{})

	_, err := submit(c, okTokenizer("cnon:ok"))
	require.ErrorIs(t, err, common.ErrPaymentDeclined)
	require.Equal(t, "key-2", c.IdempotencyKey())

	c.HandleRetry()
	require.Equal(t, payment.SubmitIdle, c.Status())
	require.NoError(t, c.LastError())
	require.Zero(t, c.RetryCount())
	require.Equal(t, "key-3", c.IdempotencyKey())

	_, err = submit(c, okTokenizer("cnon:ok"))
	require.NoError(t, err)
	require.Equal(t, []string{"key-1", "key-3"}, gw.Keys())
}

func TestControllerCancellationStopsRetries(t *testing.T) {
	gw := &fakeGateway{results: []error{transientErr(), transientErr(), transientErr()}}
	ctx, cancel := context.WithCancel(context.Background())
	c := payment.NewController(gw, payment.ControllerConfig{
		NewKey: sequentialKeys(),
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	_, err := c.Submit(ctx, okTokenizer("cnon:ok"), pricing.FromMinorUnits(500), "USD", address.Shipping{}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, gw.Keys(), 1)
	require.Equal(t, payment.SubmitFailed, c.Status())
	require.Equal(t, "key-2", c.IdempotencyKey())
}

func TestControllerAttemptTimeout(t *testing.T) {
	gw := &fakeGateway{block: make(chan struct{})}
	c := payment.NewController(gw, payment.ControllerConfig{
		MaxRetries:     -1,
		AttemptTimeout: 20 * time.Millisecond,
		NewKey:         sequentialKeys(),
	})

	_, err := submit(c, okTokenizer("cnon:ok"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, gw.Keys(), 1)
}
