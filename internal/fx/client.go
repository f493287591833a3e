package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultTimeout = 10 * time.Second

// Client fetches exchange rates from the remote rate source. The source
// serves GET {base}/latest/{CURRENCY} with a body of {"rates": {"USD": x}}.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a rate source client with a bounded request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type latestResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// USDRate returns the currency's multiplier to USD, at 6 decimal digits.
func (c *Client) USDRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/latest/%s", c.baseURL, strings.ToUpper(currency))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate source returned status %d", resp.StatusCode)
	}

	var payload latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("decode rates: %w", err)
	}

	usd, ok := payload.Rates["USD"]
	if !ok {
		return decimal.Zero, fmt.Errorf("no USD rate in response for %s", currency)
	}

	return decimal.NewFromFloat(usd).Round(ratePrecision), nil
}
