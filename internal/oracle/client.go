package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oracle API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

type quoteResponse struct {
	AmountOut    string `json:"amount_out"`
	AmountOutMin string `json:"amount_out_min"`
	PriceImpact  string `json:"price_impact"`
	GasEstimate  string `json:"gas_estimate"`
}

func (c *Client) GetQuote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal, chainID int64) (*Quote, error) {
	if tokenIn == "" || tokenOut == "" {
		return nil, fmt.Errorf("token_in and token_out are required")
	}
	if amountIn.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount_in must be positive")
	}
	query := url.Values{}
	query.Set("token_in", tokenIn)
	query.Set("token_out", tokenOut)
	query.Set("amount_in", amountIn.String())
	query.Set("chain_id", fmt.Sprintf("%d", chainID))
	body, err := c.doRequest(ctx, "/quote", query)
	if err != nil {
		return nil, err
	}
	var raw quoteResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	return parseQuote(raw)
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func parseQuote(raw quoteResponse) (*Quote, error) {
	amountOut, err := decimal.NewFromString(strings.TrimSpace(raw.AmountOut))
	if err != nil {
		return nil, fmt.Errorf("bad amount_out %q: %w", raw.AmountOut, err)
	}
	quote := &Quote{AmountOut: amountOut}
	if v := strings.TrimSpace(raw.AmountOutMin); v != "" {
		if quote.AmountOutMin, err = decimal.NewFromString(v); err != nil {
			return nil, fmt.Errorf("bad amount_out_min %q: %w", v, err)
		}
	}
	if v := strings.TrimSpace(raw.PriceImpact); v != "" {
		if quote.PriceImpact, err = decimal.NewFromString(v); err != nil {
			return nil, fmt.Errorf("bad price_impact %q: %w", v, err)
		}
	}
	if v := strings.TrimSpace(raw.GasEstimate); v != "" {
		if quote.GasEstimate, err = decimal.NewFromString(v); err != nil {
			return nil, fmt.Errorf("bad gas_estimate %q: %w", v, err)
		}
	}
	return quote, nil
}
