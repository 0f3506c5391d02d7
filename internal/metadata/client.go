package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokenpulse/internal/model"
)

// ErrNotFound means the provider has no usable record for a token: a
// non-success status, an empty payload, or a structurally invalid body all
// map here (fail closed).
var ErrNotFound = errors.New("token not found")

// Provider is the read-only metadata source the cache fetches from.
type Provider interface {
	TokenDescriptor(ctx context.Context, address string) (TokenDescriptor, error)
	TopHolders(ctx context.Context, address string) ([]Holder, error)
	PriceHistory(ctx context.Context, address string) ([]model.PricePoint, error)
}

// TokenDescriptor is the provider's token record. Decimals is a pointer
// because some tokens omit it; defaulting is the cache's decision.
type TokenDescriptor struct {
	Address     string `json:"address"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Decimals    *uint8 `json:"decimals"`
	TotalSupply string `json:"total_supply"`
	HolderCount uint64 `json:"holder_count"`
}

// Holder is one entry of a token's top-holder list. Balance is a raw
// base-unit integer string.
type Holder struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type holdersResponse struct {
	Holders []Holder `json:"holders"`
}

type ohlcPoint struct {
	Timestamp int64           `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
}

type ohlcResponse struct {
	Points []ohlcPoint `json:"points"`
}

// ClientConfig configures the metadata provider HTTP client.
type ClientConfig struct {
	BaseURL string
	Token   string
	// Network scopes every lookup, e.g. "mainnet".
	Network string
	// HolderLimit bounds the top-holder list used for the liquidity estimate.
	HolderLimit int
	// HistoryInterval is the requested OHLC interval, e.g. "1h".
	HistoryInterval string
	// HistoryLimit bounds the number of OHLC points.
	HistoryLimit int
	Timeout      time.Duration
}

// Client talks to the external metadata provider over HTTP/JSON.
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
	logger     *zap.Logger
}

func NewClient(cfg ClientConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.HolderLimit <= 0 {
		cfg.HolderLimit = 10
	}
	if cfg.HistoryInterval == "" {
		cfg.HistoryInterval = "1h"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 24
	}
	return &Client{httpClient: httpClient, cfg: cfg, logger: logger}
}

var _ Provider = (*Client)(nil)

// TokenDescriptor looks up the token record for an address.
func (c *Client) TokenDescriptor(ctx context.Context, address string) (TokenDescriptor, error) {
	var desc TokenDescriptor
	path := fmt.Sprintf("/v1/tokens/%s", url.PathEscape(address))
	if err := c.get(ctx, path, nil, &desc); err != nil {
		return TokenDescriptor{}, err
	}
	if desc.Address == "" {
		desc.Address = address
	}
	return desc, nil
}

// TopHolders returns the token's largest holders, provider-ordered.
func (c *Client) TopHolders(ctx context.Context, address string) ([]Holder, error) {
	var resp holdersResponse
	path := fmt.Sprintf("/v1/tokens/%s/holders", url.PathEscape(address))
	query := url.Values{"limit": []string{fmt.Sprintf("%d", c.cfg.HolderLimit)}}
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	return resp.Holders, nil
}

// PriceHistory returns recent OHLC points, most recent first.
func (c *Client) PriceHistory(ctx context.Context, address string) ([]model.PricePoint, error) {
	var resp ohlcResponse
	path := fmt.Sprintf("/v1/tokens/%s/ohlc", url.PathEscape(address))
	query := url.Values{
		"interval": []string{c.cfg.HistoryInterval},
		"limit":    []string{fmt.Sprintf("%d", c.cfg.HistoryLimit)},
	}
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Points) == 0 {
		return nil, fmt.Errorf("%w: empty price history", ErrNotFound)
	}

	points := make([]model.PricePoint, 0, len(resp.Points))
	for _, p := range resp.Points {
		points = append(points, model.PricePoint{
			Timestamp: p.Timestamp,
			Open:      p.Open,
			High:      p.High,
			Low:       p.Low,
			Close:     p.Close,
		})
	}
	return points, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("metadata base url is required")
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("network", c.cfg.Network)
	fullURL := c.cfg.BaseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("metadata request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read metadata response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		c.logger.Debug("metadata provider non-success",
			zap.String("path", path),
			zap.Int("status", res.StatusCode),
		)
		return fmt.Errorf("%w: status %d", ErrNotFound, res.StatusCode)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", ErrNotFound)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Debug("metadata provider invalid payload",
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("%w: invalid payload", ErrNotFound)
	}
	return nil
}
