// Package httpledger is a ledger.Client speaking a small JSON-over-HTTP
// protocol. It rate limits its own requests and retries transport failures
// and server errors with randomized exponential backoff.
package httpledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/stacklok/toolhive-wallet-sync/internal/certified"
	"github.com/stacklok/toolhive-wallet-sync/internal/identity"
	"github.com/stacklok/toolhive-wallet-sync/internal/ledger"
	"github.com/stacklok/toolhive-wallet-sync/internal/pending"
)

const (
	// DefaultTimeout is the per-request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultRequestsPerSecond is the default request rate
	DefaultRequestsPerSecond = 5.0
	// DefaultMaxRetries is how many times a failed request is retried
	DefaultMaxRetries = 3

	// UserAgent is sent with every request
	UserAgent = "toolhive-wallet-sync/1.0"

	maxResponseSize = 10 << 20
)

// HTTPError is returned for unexpected response statuses
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// Client reads ledger data over HTTP
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries uint
	backOff    func() backoff.BackOff
}

var _ ledger.Client = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRateLimit limits requests to rps per second. Zero or less disables
// limiting.
func WithRateLimit(rps float64) Option {
	return func(client *Client) {
		if rps <= 0 {
			client.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := max(int(rps), 1)
		client.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxRetries sets how many times a failed request is retried
func WithMaxRetries(n uint) Option {
	return func(client *Client) {
		client.maxRetries = n
	}
}

// WithBackOff replaces the retry backoff policy
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(client *Client) {
		client.backOff = newBackOff
	}
}

// New creates a client for the ledger gateway at endpoint
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid ledger endpoint %q: scheme must be http or https", endpoint)
	}

	c := &Client{
		endpoint:   u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		backOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	WithRateLimit(DefaultRequestsPerSecond)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetBalance implements ledger.BalanceReader
func (c *Client) GetBalance(
	ctx context.Context, ident *identity.Identity, account ledger.Account, mode ledger.Mode,
) (certified.Value[*big.Int], error) {
	query := accountQuery(account)
	query.Set("mode", mode.String())

	body, err := c.get(ctx, ident, account.Network, "balance", query)
	if err != nil {
		return certified.Value[*big.Int]{}, err
	}

	balance, err := parseAmount(gjson.GetBytes(body, "balance"))
	if err != nil {
		return certified.Value[*big.Int]{}, fmt.Errorf("invalid balance response: %w", err)
	}
	return certified.Value[*big.Int]{Data: balance, Certified: mode.Certified()}, nil
}

// GetTransactionsPage implements ledger.TransactionsReader
func (c *Client) GetTransactionsPage(
	ctx context.Context, ident *identity.Identity, account ledger.Account, cursor string, mode ledger.Mode,
) (certified.Value[ledger.Page], error) {
	query := accountQuery(account)
	query.Set("mode", mode.String())
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	body, err := c.get(ctx, ident, account.Network, "transactions", query)
	if err != nil {
		return certified.Value[ledger.Page]{}, err
	}

	page := ledger.Page{
		Transactions: []ledger.Transaction{},
		NextCursor:   gjson.GetBytes(body, "nextCursor").String(),
	}
	for _, item := range gjson.GetBytes(body, "transactions").Array() {
		tx, err := parseTransaction(item)
		if err != nil {
			return certified.Value[ledger.Page]{}, fmt.Errorf("invalid transactions response: %w", err)
		}
		page.Transactions = append(page.Transactions, tx)
	}
	return certified.Value[ledger.Page]{Data: page, Certified: mode.Certified()}, nil
}

// GetPendingTransactions implements ledger.PendingReader
func (c *Client) GetPendingTransactions(
	ctx context.Context, ident *identity.Identity, account ledger.Account,
) (certified.Value[[]pending.Item], error) {
	query := accountQuery(account)
	query.Set("mode", ledger.ModeUpdate.String())

	body, err := c.get(ctx, ident, account.Network, "pending", query)
	if err != nil {
		return certified.Value[[]pending.Item]{}, err
	}

	items := []pending.Item{}
	for _, raw := range gjson.GetBytes(body, "pending").Array() {
		txID := raw.Get("txid").String()
		if txID == "" {
			return certified.Value[[]pending.Item]{}, errors.New("invalid pending response: missing txid")
		}
		item := pending.Item{TxID: txID}
		for _, in := range raw.Get("inputs").Array() {
			item.Inputs = append(item.Inputs, pending.Outpoint{
				TxID: in.Get("txid").String(),
				Vout: uint32(in.Get("vout").Uint()), //nolint:gosec // vout is bounded by the transaction format
			})
		}
		items = append(items, item)
	}
	return certified.Certify(items), nil
}

// GetMinterInfo implements ledger.MinterReader
func (c *Client) GetMinterInfo(
	ctx context.Context, ident *identity.Identity, network, minterID string,
) (certified.Value[ledger.MinterInfo], error) {
	query := url.Values{}
	query.Set("mode", ledger.ModeUpdate.String())

	body, err := c.get(ctx, ident, network, "minters/"+url.PathEscape(minterID), query)
	if err != nil {
		return certified.Value[ledger.MinterInfo]{}, err
	}

	retrieveMin, err := parseAmount(gjson.GetBytes(body, "retrieveMinAmount"))
	if err != nil {
		return certified.Value[ledger.MinterInfo]{}, fmt.Errorf("invalid minter response: %w", err)
	}
	fee, err := parseAmount(gjson.GetBytes(body, "depositFee"))
	if err != nil {
		return certified.Value[ledger.MinterInfo]{}, fmt.Errorf("invalid minter response: %w", err)
	}
	info := ledger.MinterInfo{
		MinConfirmations:  uint32(gjson.GetBytes(body, "minConfirmations").Uint()), //nolint:gosec // small protocol constant
		RetrieveMinAmount: retrieveMin,
		DepositFee:        fee,
	}
	return certified.Certify(info), nil
}

// get performs a rate limited GET with retries and returns the body of a
// 200 response
func (c *Client) get(
	ctx context.Context, ident *identity.Identity, network, resource string, query url.Values,
) ([]byte, error) {
	if ident == nil || ident.Token == "" {
		return nil, identity.ErrNotFound
	}

	target := c.endpoint.JoinPath("v1", url.PathEscape(network), resource)
	target.RawQuery = query.Encode()
	rawURL := target.String()

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		body, err := c.do(ctx, ident, rawURL)
		if err != nil && attempt > 1 {
			slog.Debug("Ledger request failed", "url", rawURL, "attempt", attempt, "error", err)
		}
		return body, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(c.maxRetries+1),
	)
}

func (c *Client) do(ctx context.Context, ident *identity.Identity, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+ident.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if !gjson.ValidBytes(body) {
			return nil, backoff.Permanent(fmt.Errorf("invalid JSON response from %s", rawURL))
		}
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(ledger.ErrNoData)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w: HTTP %d", identity.ErrUnauthorized, resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			return nil, backoff.RetryAfter(seconds)
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL, Message: string(body)}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL, Message: string(body)}
	default:
		return nil, backoff.Permanent(&HTTPError{StatusCode: resp.StatusCode, URL: rawURL, Message: string(body)})
	}
}

func accountQuery(account ledger.Account) url.Values {
	query := url.Values{}
	if account.Token != "" {
		query.Set("token", account.Token)
	}
	if account.Address != "" {
		query.Set("address", account.Address)
	}
	return query
}

// parseAmount reads a decimal amount encoded as a JSON string or number
func parseAmount(res gjson.Result) (*big.Int, error) {
	if !res.Exists() {
		return nil, errors.New("missing amount")
	}
	amount, ok := new(big.Int).SetString(res.String(), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", res.String())
	}
	return amount, nil
}

func parseTransaction(res gjson.Result) (ledger.Transaction, error) {
	id := res.Get("id").String()
	if id == "" {
		return ledger.Transaction{}, errors.New("transaction without id")
	}
	value, err := parseAmount(res.Get("value"))
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", id, err)
	}
	status := ledger.TxStatus(res.Get("status").String())
	if status == "" {
		status = ledger.TxStatusConfirmed
	}
	return ledger.Transaction{
		ID:          id,
		From:        res.Get("from").String(),
		To:          res.Get("to").String(),
		Value:       value,
		Timestamp:   time.Unix(res.Get("timestamp").Int(), 0).UTC(),
		BlockHeight: res.Get("blockHeight").Uint(),
		Status:      status,
	}, nil
}
