// Package clob is the HTTP transport to the exchange's order book API.
package clob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobexec/pkg/auth"
	"github.com/uhyunpark/clobexec/pkg/crypto"
	"github.com/uhyunpark/clobexec/pkg/util"
)

// Endpoint paths used by the client.
const (
	PathDeriveAPIKey = "/auth/derive-api-key"
	PathTickSize     = "/tick-size"
	PathNegRisk      = "/neg-risk"
	PathFeeRate      = "/fee-rate"
	DefaultOrderPath = "/orders"
)

// maxBodyBytes bounds how much of any response is read into memory.
const maxBodyBytes = 1 << 20

// Client talks to one CLOB host over a single pooled connection set.
// Safe for concurrent use.
type Client struct {
	host   string
	http   *http.Client
	clock  util.Clock
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets a whole-request timeout. Zero leaves requests bounded only
// by their context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithClock(clock util.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// NewTransport returns a transport tuned for a long-lived session with one
// host: idle connections are kept forever and HTTP/2 is attempted.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     0,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// NewClient creates a client for host, e.g. "https://clob.polymarket.com".
func NewClient(host string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(host))
	if err != nil {
		return nil, fmt.Errorf("invalid clob host: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid clob host %q: want http(s)://host", host)
	}
	// requests are signed over the endpoint path alone, so a base path
	// would make the signed and the sent path differ
	if strings.Trim(u.Path, "/") != "" || u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("invalid clob host %q: path, query and fragment are not supported", host)
	}

	c := &Client{
		host:   u.Scheme + "://" + u.Host,
		http:   &http.Client{Transport: NewTransport()},
		clock:  util.RealClock{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Host returns the base URL without a trailing slash.
func (c *Client) Host() string { return c.host }

// DeriveAPIKey exchanges an L1 wallet signature for the L2 credentials
// bound to the signer's address.
func (c *Client) DeriveAPIKey(ctx context.Context, signer *crypto.Signer) (auth.Credentials, error) {
	h, err := auth.L1Headers(signer, c.clock, 0)
	if err != nil {
		return auth.Credentials{}, err
	}

	body, err := c.get(ctx, PathDeriveAPIKey, nil, h)
	if err != nil {
		return auth.Credentials{}, err
	}

	var creds auth.Credentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return auth.Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

// TickSize returns the minimum price increment for tokenID.
func (c *Client) TickSize(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	var resp tickSizeResponse
	if err := c.getJSON(ctx, PathTickSize, tokenID, &resp); err != nil {
		return decimal.Decimal{}, err
	}
	if !resp.MinimumTickSize.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("non-positive tick size %s", resp.MinimumTickSize)
	}
	return resp.MinimumTickSize, nil
}

// NegRisk reports whether tokenID settles on the neg-risk exchange.
func (c *Client) NegRisk(ctx context.Context, tokenID string) (bool, error) {
	var resp negRiskResponse
	if err := c.getJSON(ctx, PathNegRisk, tokenID, &resp); err != nil {
		return false, err
	}
	return resp.NegRisk, nil
}

// FeeRateBps returns the base fee for tokenID in basis points.
func (c *Client) FeeRateBps(ctx context.Context, tokenID string) (int64, error) {
	var resp feeRateResponse
	if err := c.getJSON(ctx, PathFeeRate, tokenID, &resp); err != nil {
		return 0, err
	}
	if resp.BaseFee < 0 {
		return 0, fmt.Errorf("negative fee rate %d", resp.BaseFee)
	}
	return resp.BaseFee, nil
}

// Post sends body to path with the given headers. Any HTTP status is a
// successful round trip; only transport failures return an error.
func (c *Client) Post(ctx context.Context, path string, header http.Header, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{Status: resp.StatusCode, Body: data}, nil
}

func (c *Client) getJSON(ctx context.Context, path, tokenID string, out any) error {
	q := url.Values{}
	q.Set("token_id", tokenID)

	body, err := c.get(ctx, path, q, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, header http.Header) ([]byte, error) {
	target := c.host + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("clob_get",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: http.MethodGet, Path: path, Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
