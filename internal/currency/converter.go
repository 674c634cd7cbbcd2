package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.exchangerate-api.com/v4/latest"

// Converter resolves a multiplicative exchange rate between two currency
// codes. Implementations must never fail: submission cannot block on a rate
// provider outage.
type Converter interface {
	Rate(ctx context.Context, from, to string) decimal.Decimal
}

// HTTPConverter looks rates up from exchangerate-api. Any failure — network,
// non-200, parse, or the target currency missing from the response — degrades
// to a rate of 1 so the caller falls back to the original amount. No retries,
// no caching.
type HTTPConverter struct {
	client  *http.Client
	baseURL string
}

func NewHTTPConverter() *HTTPConverter {
	return &HTTPConverter{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
	}
}

// NewHTTPConverterWithBase is used by tests to point at a stub server.
func NewHTTPConverterWithBase(client *http.Client, baseURL string) *HTTPConverter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPConverter{client: client, baseURL: baseURL}
}

type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (c *HTTPConverter) Rate(ctx context.Context, from, to string) decimal.Decimal {
	rate, err := c.fetch(ctx, from, to)
	if err != nil {
		log.Printf("currency conversion failed (%s -> %s), falling back to rate 1: %v", from, to, err)
		return decimal.NewFromInt(1)
	}
	return rate
}

func (c *HTTPConverter) fetch(ctx context.Context, from, to string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, from)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("rate service returned status %d", resp.StatusCode)
	}

	var parsed ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to decode rate response: %w", err)
	}

	rate, ok := parsed.Rates[to]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no rate for %s in response", to)
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, fmt.Errorf("non-positive rate %s for %s", rate, to)
	}

	return rate, nil
}
