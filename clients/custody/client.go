// Package custody is the HTTP client of the custody service that signs and submits
// ledger payments on the anchor's behalf.
package custody

import (
	// Go Internal Packages
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	// Local Packages
	models "anchor-observer/models"
	actions "anchor-observer/services/actions"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type refundRequest struct {
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	AmountFee string `json:"amount_fee"`
}

type addressResponse struct {
	Address  string `json:"address"`
	Memo     string `json:"memo"`
	MemoType string `json:"memo_type"`
}

// CreateTransactionPayment asks custody to pay out the transaction's amount_out.
func (c *Client) CreateTransactionPayment(ctx context.Context, txID string) error {
	path := fmt.Sprintf("/transactions/%s/payments", url.PathEscape(txID))
	return c.do(ctx, http.MethodPost, path, struct{}{}, nil)
}

func (c *Client) CreateTransactionRefund(ctx context.Context, txID string, refund models.RefundRequest) error {
	path := fmt.Sprintf("/transactions/%s/refunds", url.PathEscape(txID))
	body := refundRequest{ID: refund.ID, Amount: refund.Amount.Amount, AmountFee: refund.AmountFee.Amount}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// GenerateDepositAddress returns a fresh address and memo for asset.
func (c *Client) GenerateDepositAddress(ctx context.Context, asset string) (actions.DepositAddress, error) {
	var resp addressResponse
	path := fmt.Sprintf("/assets/%s/addresses", url.PathEscape(asset))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return actions.DepositAddress{}, err
	}
	if resp.Address == "" {
		return actions.DepositAddress{}, fmt.Errorf("custody returned an empty address for %s", asset)
	}
	return actions.DepositAddress{Address: resp.Address, Memo: resp.Memo, MemoType: models.MemoType(resp.MemoType)}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("custody base url is empty")
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to custody: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("custody returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
