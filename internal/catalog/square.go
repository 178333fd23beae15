package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

const maxCatalogPages = 20

// SquareCatalog lists ITEM objects from the Square Catalog API, one product
// per item variation.
type SquareCatalog struct {
	client *resty.Client
}

// NewSquareCatalog builds a catalog client for baseURL.
func NewSquareCatalog(baseURL, accessToken, version string, timeout time.Duration) (*SquareCatalog, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("square catalog: access token is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if version == "" {
		version = "2024-10-17"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(accessToken).
		SetHeader("Square-Version", version).
		SetTimeout(timeout).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))
	return &SquareCatalog{client: client}, nil
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareCatalogObject struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	ItemData *struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Variations  []struct {
			ID                string `json:"id"`
			ItemVariationData struct {
				Name       string       `json:"name"`
				PriceMoney *squareMoney `json:"price_money"`
			} `json:"item_variation_data"`
		} `json:"variations"`
	} `json:"item_data"`
}

type squareCatalogPage struct {
	Objects []squareCatalogObject `json:"objects"`
	Cursor  string                `json:"cursor"`
}

// ListProducts implements Provider. Variations without a price are skipped.
func (s *SquareCatalog) ListProducts(ctx context.Context) ([]cart.Product, error) {
	products := []cart.Product{}
	cursor := ""
	for page := 0; page < maxCatalogPages; page++ {
		var body squareCatalogPage
		req := s.client.R().SetContext(ctx).SetQueryParam("types", "ITEM").SetResult(&body)
		if cursor != "" {
			req.SetQueryParam("cursor", cursor)
		}
		resp, err := req.Get("/v2/catalog/list")
		if err != nil {
			return nil, fmt.Errorf("square catalog: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("square catalog: status %d", resp.StatusCode())
		}
		for _, obj := range body.Objects {
			products = append(products, productsFromObject(obj)...)
		}
		if body.Cursor == "" {
			return products, nil
		}
		cursor = body.Cursor
	}
	return products, nil
}

func productsFromObject(obj squareCatalogObject) []cart.Product {
	if obj.Type != "ITEM" || obj.ItemData == nil {
		return nil
	}
	var out []cart.Product
	for _, v := range obj.ItemData.Variations {
		money := v.ItemVariationData.PriceMoney
		if money == nil || money.Amount <= 0 || !cart.ValidProductID(v.ID) {
			continue
		}
		price := pricing.FromMinorUnits(money.Amount)
		out = append(out, cart.Product{
			ID:          v.ID,
			Title:       obj.ItemData.Name,
			Variant:     v.ItemVariationData.Name,
			Description: obj.ItemData.Description,
			Price:       pricing.Format(price, money.Currency),
			PriceValue:  price,
		})
	}
	return out
}
