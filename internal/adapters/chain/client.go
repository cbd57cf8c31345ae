package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/custody-service/custody_service/pkg/logger"
	"github.com/custody-service/custody_service/pkg/metrics"
)

// Config represents chain provider API configuration
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client is an HTTP implementation of QueryProvider backed by an upstream
// node gateway. Calls are guarded by a circuit breaker so a failing
// upstream cannot stall the monitor loop.
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewClient creates a new chain provider client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "chain-provider",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     log,
	}
}

type confirmationsResponse struct {
	TxHash        string `json:"tx_hash"`
	Confirmations int64  `json:"confirmations"`
}

// GetConfirmations returns the confirmation count for a transaction
func (c *Client) GetConfirmations(ctx context.Context, txHash string) (int64, error) {
	var resp confirmationsResponse
	endpoint := fmt.Sprintf("/v1/transactions/%s/confirmations", url.PathEscape(txHash))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		metrics.ChainProviderErrors.WithLabelValues("get_confirmations").Inc()
		return 0, fmt.Errorf("get confirmations failed: %w", err)
	}
	return resp.Confirmations, nil
}

type addressTxResponse struct {
	Transactions []TxEvent `json:"transactions"`
}

// GetTransactionsForAddress returns inbound transfers to the address after
// the given block height
func (c *Client) GetTransactionsForAddress(ctx context.Context, address string, sinceBlock int64) ([]TxEvent, error) {
	var resp addressTxResponse
	endpoint := fmt.Sprintf("/v1/addresses/%s/transactions?since_block=%d", url.PathEscape(address), sinceBlock)
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		metrics.ChainProviderErrors.WithLabelValues("get_address_transactions").Inc()
		return nil, fmt.Errorf("get address transactions failed: %w", err)
	}
	return resp.Transactions, nil
}

type latestBlockResponse struct {
	Height int64 `json:"height"`
}

// GetLatestBlock returns the current chain tip height
func (c *Client) GetLatestBlock(ctx context.Context) (int64, error) {
	var resp latestBlockResponse
	if err := c.doRequest(ctx, http.MethodGet, "/v1/blocks/latest", nil, &resp); err != nil {
		metrics.ChainProviderErrors.WithLabelValues("get_latest_block").Inc()
		return 0, fmt.Errorf("get latest block failed: %w", err)
	}
	return resp.Height, nil
}

type balanceResponse struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

// GetBalance returns the on-chain balance of an address
func (c *Client) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var resp balanceResponse
	endpoint := fmt.Sprintf("/v1/addresses/%s/balance", url.PathEscape(address))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		metrics.ChainProviderErrors.WithLabelValues("get_balance").Inc()
		return decimal.Zero, fmt.Errorf("get balance failed: %w", err)
	}
	return resp.Balance, nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doRequestOnce(ctx, method, endpoint, body, response)
	})
	return err
}

func (c *Client) doRequestOnce(ctx context.Context, method, endpoint string, body, response interface{}) error {
	fullURL := c.config.BaseURL + endpoint

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.config.APIKey)

	c.logger.Debug("Sending chain provider request", "method", method, "url", fullURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
