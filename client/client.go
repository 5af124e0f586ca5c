// Package client is the HTTP client for the veil daemon API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veilcash/veil/service/chain"
	"github.com/veilcash/veil/service/ledger"
	"github.com/veilcash/veil/service/wallet"
)

// Client is the HTTP client for the veil daemon.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new daemon client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ListWallets retrieves all tracked wallet records.
func (c *Client) ListWallets(ctx context.Context) ([]*wallet.Wallet, error) {
	var response struct {
		Wallets []*wallet.Wallet `json:"wallets"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/api/v1/wallets", &response); err != nil {
		return nil, err
	}
	return response.Wallets, nil
}

// GetWallet retrieves one tracked wallet record by index.
func (c *Client) GetWallet(ctx context.Context, index int) (*wallet.Wallet, error) {
	var w wallet.Wallet
	u := fmt.Sprintf("%s/api/v1/wallets/%d", c.baseURL, index)
	if err := c.getJSON(ctx, u, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// LedgerFilter narrows a ListLedger query. Zero values match everything.
type LedgerFilter struct {
	Type        string
	WalletIndex *int
	Since       *time.Time
	Until       *time.Time
}

// ListLedger retrieves ledger entries matching the filter, newest first.
func (c *Client) ListLedger(ctx context.Context, filter LedgerFilter) ([]*ledger.Entry, error) {
	q := url.Values{}
	if filter.Type != "" {
		q.Set("type", filter.Type)
	}
	if filter.WalletIndex != nil {
		q.Set("wallet_index", strconv.Itoa(*filter.WalletIndex))
	}
	if filter.Since != nil {
		q.Set("since", filter.Since.Format(time.RFC3339))
	}
	if filter.Until != nil {
		q.Set("until", filter.Until.Format(time.RFC3339))
	}

	u := c.baseURL + "/api/v1/ledger"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var response struct {
		Entries []*ledger.Entry `json:"entries"`
	}
	if err := c.getJSON(ctx, u, &response); err != nil {
		return nil, err
	}
	return response.Entries, nil
}

// Balance is a live on-chain balance in base and display units.
type Balance struct {
	Network  chain.Network   `json:"network"`
	Address  string          `json:"address"`
	Token    string          `json:"token,omitempty"`
	BaseUnit string          `json:"base_unit"`
	Balance  decimal.Decimal `json:"balance"`
	Symbol   string          `json:"symbol,omitempty"`
}

// GetBalance retrieves a native balance. If token is non-empty, the ERC20
// balance of that contract is returned instead.
func (c *Client) GetBalance(ctx context.Context, network chain.Network, address, token string) (*Balance, error) {
	u := fmt.Sprintf("%s/api/v1/balances/%s/%s", c.baseURL, url.PathEscape(string(network)), url.PathEscape(address))
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}

	var b Balance
	if err := c.getJSON(ctx, u, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Health reports whether the daemon is reachable and serving.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// getJSON performs a GET request and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
