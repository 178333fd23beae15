// Command checkout drives one storefront checkout against a running API. It
// builds a cart from the built-in catalog, quotes shipping and tax locally and
// pays with a sandbox token.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/catalog"
	"github.com/noah-isme/candle-checkout/internal/checkout"
	"github.com/noah-isme/candle-checkout/internal/config"
	"github.com/noah-isme/candle-checkout/internal/obs"
	"github.com/noah-isme/candle-checkout/internal/payment"
	"github.com/noah-isme/candle-checkout/internal/pricing"
	"github.com/noah-isme/candle-checkout/internal/shipping"
	"github.com/noah-isme/candle-checkout/internal/tax"
)

func main() {
	var (
		apiURL   = flag.String("api", "", "checkout API base URL; defaults to CHECKOUT_API_URL")
		items    = flag.String("items", "amber-noir:2", "comma separated product:quantity pairs")
		country  = flag.String("country", "US", "destination country (US, MX or CA)")
		state    = flag.String("state", "CA", "destination state or province")
		city     = flag.String("city", "San Francisco", "destination city")
		postal   = flag.String("postal", "94105", "destination postal code")
		street   = flag.String("street", "500 Market St", "destination street address")
		email    = flag.String("email", "jane@example.com", "customer email")
		name     = flag.String("name", "Jane Doe", "customer full name")
		method   = flag.String("method", string(shipping.Standard), "shipping method (standard or express)")
		token    = flag.String("token", payment.SandboxTokenOK, "payment source token")
		retries  = flag.Int("retries", 2, "retries for transient payment failures")
		deadline = flag.Duration("timeout", time.Minute, "overall deadline")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *apiURL == "" {
		*apiURL = cfg.CheckoutAPIURL
	}
	logger := obs.NewLogger("console", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *deadline)
	defer cancel()

	c, err := buildCart(ctx, *items)
	if err != nil {
		log.Fatalf("build cart: %v", err)
	}

	dest, err := address.ParseCountry(*country)
	if err != nil {
		log.Fatalf("destination: %v", err)
	}
	first, last, _ := strings.Cut(strings.TrimSpace(*name), " ")
	addr := address.Shipping{
		FirstName:  first,
		LastName:   last,
		Email:      *email,
		Address1:   *street,
		City:       *city,
		State:      *state,
		PostalCode: *postal,
		Country:    dest,
	}

	subtotal := c.Subtotal()
	rate, err := shipping.RateFor(dest, shipping.Method(*method), &subtotal)
	if err != nil {
		log.Fatalf("shipping rate: %v", err)
	}

	session := checkout.NewSession(c, tax.Table{}, address.NewValidator(false))
	session.UpdateShipping(ctx, addr, rate)
	if !session.IsReadyForPayment() {
		log.Fatalf("checkout not ready: %s", session.State().Error)
	}
	st := session.State()
	fmt.Printf("subtotal %s  shipping %s  %s %s  total %s\n",
		pricing.Format(st.Totals.Subtotal, st.Totals.Currency),
		pricing.Format(st.Totals.Shipping, st.Totals.Currency),
		checkout.TaxDisplayText(st),
		pricing.Format(st.Totals.Tax, st.Totals.Currency),
		checkout.FormattedTotal(st),
	)

	controller := payment.NewController(payment.NewHTTPGateway(*apiURL, 30*time.Second), controllerConfig(*retries, logger))
	tok := payment.TokenizerFunc(func(context.Context) (payment.TokenResult, error) {
		return payment.TokenResult{Status: payment.TokenOK, Token: *token}, nil
	})

	res, err := controller.Pay(ctx, session, tok)
	if err != nil {
		var gerr *payment.GatewayError
		if errors.As(err, &gerr) {
			log.Fatalf("payment failed after %d retries: %s (status %d)", controller.RetryCount(), gerr.Message, gerr.HTTPStatus)
		}
		log.Fatalf("payment failed: %v", err)
	}
	fmt.Printf("paid %s  payment %s  order %s\n", checkout.FormattedTotal(session.State()), res.PaymentID, res.OrderID)
	if res.ReceiptURL != "" {
		fmt.Printf("receipt %s\n", res.ReceiptURL)
	}
}

// controllerConfig maps the -retries flag onto the controller. Zero or a
// negative count disables retries.
func controllerConfig(retries int, logger zerolog.Logger) payment.ControllerConfig {
	cfg := payment.DefaultControllerConfig()
	cfg.MaxRetries = retries
	if retries <= 0 {
		cfg.MaxRetries = -1
	}
	cfg.Logger = logger
	return cfg
}

func buildCart(ctx context.Context, list string) (*cart.Cart, error) {
	products, err := catalog.DefaultProducts().ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]cart.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	c := cart.New()
	for _, pair := range strings.Split(list, ",") {
		id, qty, _ := strings.Cut(strings.TrimSpace(pair), ":")
		if id == "" {
			continue
		}
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown product %q", id)
		}
		n := 1
		if qty != "" {
			if n, err = strconv.Atoi(qty); err != nil {
				return nil, fmt.Errorf("quantity for %q: %w", id, err)
			}
		}
		if err := c.Add(p, n); err != nil {
			return nil, err
		}
	}
	if c.Count() == 0 {
		return nil, errors.New("cart is empty")
	}
	return c, nil
}
