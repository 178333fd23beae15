package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/payment"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

type countingGateway struct{ calls int }

func (g *countingGateway) Submit(context.Context, payment.ProcessRequest) (payment.Result, error) {
	g.calls++
	return payment.Result{}, &payment.GatewayError{HTTPStatus: 503, Message: "unavailable", Err: common.ErrTransientPayment}
}

func TestZeroRetriesDisablesRetry(t *testing.T) {
	cfg := controllerConfig(0, zerolog.Nop())
	require.Equal(t, -1, cfg.MaxRetries)
	require.Equal(t, 3, controllerConfig(3, zerolog.Nop()).MaxRetries)

	gw := &countingGateway{}
	c := payment.NewController(gw, cfg)
	tok := payment.TokenizerFunc(func(context.Context) (payment.TokenResult, error) {
		return payment.TokenResult{Status: payment.TokenOK, Token: payment.SandboxTokenOK}, nil
	})
	_, err := c.Submit(context.Background(), tok, pricing.FromMinorUnits(2500), "USD", address.Shipping{Country: address.US}, nil)
	require.ErrorIs(t, err, common.ErrTransientPayment)
	require.Equal(t, 1, gw.calls)
}

func TestBuildCart(t *testing.T) {
	c, err := buildCart(context.Background(), "amber-noir:2, copal-dusk")
	require.NoError(t, err)
	require.Equal(t, 3, c.Count())

	_, err = buildCart(context.Background(), "nope:1")
	require.Error(t, err)
	_, err = buildCart(context.Background(), "")
	require.Error(t, err)
}
