// Package platform sends funds notifications to a remote platform over JSON-RPC.
package platform

import (
	// Go Internal Packages
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	// Local Packages
	models "anchor-observer/models"

	// External Packages
	"github.com/google/uuid"
)

type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) NotifyOnchainFundsReceived(ctx context.Context, txID, stellarTxID string, amountIn *models.Amount, message string) error {
	params := models.NotifyOnchainFundsReceivedRequest{
		BaseRequest:          models.BaseRequest{TransactionID: txID, Message: message},
		StellarTransactionID: stellarTxID,
	}
	if amountIn != nil {
		params.AmountIn = &models.AmountRequest{Amount: amountIn.Amount, Asset: amountIn.Asset}
	}
	return c.call(ctx, models.ActionNotifyOnchainFundsReceived, params)
}

func (c *Client) NotifyOnchainFundsSent(ctx context.Context, txID, stellarTxID, message string) error {
	return c.call(ctx, models.ActionNotifyOnchainFundsSent, models.NotifyOnchainFundsSentRequest{
		BaseRequest:          models.BaseRequest{TransactionID: txID, Message: message},
		StellarTransactionID: stellarTxID,
	})
}

// call posts one JSON-RPC request. An RPC error in the response is returned as an error.
func (c *Client) call(ctx context.Context, action models.Action, params any) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	body, err := json.Marshal(models.RPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(strconv.Quote(uuid.NewString())),
		Method:  string(action),
		Params:  rawParams,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to platform: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("platform returned error status %d", resp.StatusCode)
	}

	var rpcResp models.RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s failed: %d %s", action, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return nil
}
