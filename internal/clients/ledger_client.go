package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/pkg/retrier"
)

const (
	defaultLedgerTimeout = 30 * time.Second
	defaultRatePerSecond = 10
	defaultRateBurst     = 20
	maxErrorBody         = 1 << 14
)

// APIError uniform error returned by the ledger API.
type APIError struct {
	Status int
	Code   string
	Detail string
	// Wait requested by the Retry-After header, zero when absent.
	Wait time.Duration
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ledger API returned status %d (%s)", e.Status, e.Code)
	}
	return fmt.Sprintf("ledger API returned status %d (%s): %s", e.Status, e.Code, e.Detail)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// RetryAfter returns the wait requested by the server.
func (e *APIError) RetryAfter() time.Duration {
	return e.Wait
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// LedgerClient typed HTTP/JSON client of the ledger API.
type LedgerClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retrier    *retrier.Retrier
	l          *zap.Logger
}

// LedgerOption configures a LedgerClient.
type LedgerOption func(*LedgerClient)

func WithHTTPClient(c *http.Client) LedgerOption {
	return func(lc *LedgerClient) {
		lc.httpClient = c
	}
}

// WithRateLimit limits outgoing requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) LedgerOption {
	return func(lc *LedgerClient) {
		lc.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetrier replaces the retrier used for idempotent reads.
func WithRetrier(r *retrier.Retrier) LedgerOption {
	return func(lc *LedgerClient) {
		lc.retrier = r
	}
}

func WithLogger(l *zap.Logger) LedgerOption {
	return func(lc *LedgerClient) {
		lc.l = l
	}
}

// NewLedgerClient creates a client of the API served at baseURL.
func NewLedgerClient(baseURL string, opts ...LedgerOption) (*LedgerClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse API URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported API URL scheme %q", u.Scheme)
	}

	c := &LedgerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultLedgerTimeout},
		limiter:    rate.NewLimiter(defaultRatePerSecond, defaultRateBurst),
		l:          zap.NewNop(),
	}
	c.retrier = retrier.New(
		retrier.WithMaxRetries(3),
		retrier.WithInitialInterval(200*time.Millisecond),
		retrier.WithMaxInterval(2*time.Second),
		retrier.WithRetryIf(retryable),
		retrier.WithOnRetry(c.logRetry),
	)
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type balanceResource struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

type assetResource struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	Owner          string `json:"owner"`
	LogoKey        string `json:"logo_key"`
	TrailingDigits int32  `json:"trailing_digits"`
	Policies       uint32 `json:"policies"`
}

type pollResource struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Choices []struct {
		Number      int    `json:"number"`
		Description string `json:"description"`
	} `json:"choices"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type movementResource struct {
	ID        string          `json:"id"`
	BalanceID string          `json:"balance_id"`
	Asset     string          `json:"asset"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Time      time.Time       `json:"time"`
}

type feeResource struct {
	Fixed   decimal.Decimal `json:"fixed"`
	Percent decimal.Decimal `json:"calculated_percent"`
}

type infoResource struct {
	Precision         int32  `json:"precision"`
	NetworkPassphrase string `json:"network_passphrase"`
	MasterAccountID   string `json:"master_account_id"`
	LatestLedger      uint64 `json:"latest_ledger"`
}

type linksResource struct {
	Self string `json:"self"`
	Next string `json:"next"`
}

type errorsResponse struct {
	Errors []struct {
		Status string `json:"status"`
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// SubmitResponse outcome of an accepted transaction.
type SubmitResponse struct {
	Hash      string `json:"hash"`
	ResultXDR string `json:"result_xdr"`
	MetaXDR   string `json:"result_meta_xdr"`
}

// Balances returns the balances of an account.
func (c *LedgerClient) Balances(ctx context.Context, accountID string) ([]domain.Balance, error) {
	var res []balanceResource
	if err := c.getRetried(ctx, "/v3/accounts/"+url.PathEscape(accountID)+"/balances", nil, &res, nil); err != nil {
		return nil, errors.Wrap(err, "failed to get balances")
	}

	out := make([]domain.Balance, 0, len(res))
	for _, b := range res {
		out = append(out, domain.Balance{
			ID:        b.ID,
			AccountID: b.AccountID,
			AssetCode: b.Asset,
			Available: b.Available,
			Locked:    b.Locked,
		})
	}
	return out, nil
}

// Assets returns all assets of the ledger.
func (c *LedgerClient) Assets(ctx context.Context) ([]domain.Asset, error) {
	var res []assetResource
	if err := c.getRetried(ctx, "/v3/assets", nil, &res, nil); err != nil {
		return nil, errors.Wrap(err, "failed to get assets")
	}

	out := make([]domain.Asset, 0, len(res))
	for _, a := range res {
		out = append(out, domain.Asset{
			Code:           a.Code,
			Name:           a.Name,
			OwnerAccountID: a.Owner,
			LogoKey:        a.LogoKey,
			TrailingDigits: a.TrailingDigits,
			Policies:       domain.AssetPolicy(a.Policies),
		})
	}
	return out, nil
}

// Polls returns the polls visible to an account.
func (c *LedgerClient) Polls(ctx context.Context, accountID string) ([]domain.Poll, error) {
	var res []pollResource
	if err := c.getRetried(ctx, "/v3/accounts/"+url.PathEscape(accountID)+"/polls", nil, &res, nil); err != nil {
		return nil, errors.Wrap(err, "failed to get polls")
	}

	out := make([]domain.Poll, 0, len(res))
	for _, p := range res {
		poll := domain.Poll{ID: p.ID, Subject: p.Subject, StartsAt: p.StartsAt, EndsAt: p.EndsAt}
		for _, ch := range p.Choices {
			poll.Choices = append(poll.Choices, domain.PollChoice{Number: ch.Number, Description: ch.Description})
		}
		out = append(out, poll)
	}
	return out, nil
}

// Movements returns one page of balance movements of an account.
func (c *LedgerClient) Movements(ctx context.Context, accountID string, req domain.PageRequest) (domain.Page[domain.Movement], error) {
	q := url.Values{}
	if req.Cursor != "" {
		q.Set("page[cursor]", req.Cursor)
	}
	if req.Limit > 0 {
		q.Set("page[limit]", strconv.Itoa(req.Limit))
	}
	if req.Order != "" {
		q.Set("page[order]", string(req.Order))
	}

	var (
		res   []movementResource
		links linksResource
	)
	if err := c.getRetried(ctx, "/v3/accounts/"+url.PathEscape(accountID)+"/movements", q, &res, &links); err != nil {
		return domain.Page[domain.Movement]{}, errors.Wrap(err, "failed to get movements")
	}

	page := domain.Page[domain.Movement]{
		Items: make([]domain.Movement, 0, len(res)),
		Links: domain.Links{Self: links.Self, Next: links.Next},
	}
	for _, m := range res {
		kind, ok := domain.ParseMovementKind(m.Type)
		if !ok {
			c.l.Warn("skipping movement of unknown type", zap.String("id", m.ID), zap.String("type", m.Type))
			continue
		}
		page.Items = append(page.Items, domain.Movement{
			ID:        m.ID,
			BalanceID: m.BalanceID,
			AssetCode: m.Asset,
			Kind:      kind,
			Amount:    m.Amount,
			Fee:       m.Fee,
			Time:      m.Time,
		})
	}
	// a page without items has nothing after it
	if len(res) == 0 {
		page.Links.Next = ""
	}
	return page, nil
}

// Fee calculates a fee. A response without data yields a nil fee. Never retried.
func (c *LedgerClient) Fee(ctx context.Context, req domain.FeeRequest) (*domain.Fee, error) {
	q := url.Values{}
	q.Set("asset", req.AssetCode)
	q.Set("amount", req.Amount.String())
	q.Set("fee_type", strconv.Itoa(int(req.Type)))
	q.Set("subtype", strconv.FormatInt(int64(req.Subtype), 10))

	var res *feeResource
	if err := c.do(ctx, http.MethodGet, "/v3/accounts/"+url.PathEscape(req.AccountID)+"/calculated_fees", q, nil, &res, nil); err != nil {
		return nil, errors.Wrap(err, "failed to calculate fee")
	}
	if res == nil {
		return nil, nil
	}
	return &domain.Fee{Fixed: res.Fixed, Percent: res.Percent}, nil
}

// NetworkInfo returns ledger-wide parameters.
func (c *LedgerClient) NetworkInfo(ctx context.Context) (domain.NetworkInfo, error) {
	var res infoResource
	if err := c.getRetried(ctx, "/v3/info", nil, &res, nil); err != nil {
		return domain.NetworkInfo{}, errors.Wrap(err, "failed to get network info")
	}
	return domain.NetworkInfo{
		Precision:         res.Precision,
		NetworkPassphrase: res.NetworkPassphrase,
		MasterAccountID:   res.MasterAccountID,
		LatestLedger:      res.LatestLedger,
	}, nil
}

// SubmitTransaction submits a base64 encoded envelope and waits for ingestion. Never retried.
func (c *LedgerClient) SubmitTransaction(ctx context.Context, envelope string) (*SubmitResponse, error) {
	body := struct {
		Tx            string `json:"tx"`
		WaitForIngest bool   `json:"wait_for_ingest"`
	}{Tx: envelope, WaitForIngest: true}

	var res SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/v3/transactions", nil, body, &res, nil); err != nil {
		return nil, errors.Wrap(err, "failed to submit transaction")
	}
	return &res, nil
}

// LogoURL resolves an asset logo key against the API storage.
func (c *LedgerClient) LogoURL(key string) string {
	return c.baseURL + "/storage/" + url.PathEscape(key)
}

func (c *LedgerClient) getRetried(ctx context.Context, path string, q url.Values, data, links any) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, q, nil, data, links)
	})
}

// retryable transport failures, throttling and 5xx are repeated; any other
// API error is final.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func (c *LedgerClient) logRetry(attempt int, err error, wait time.Duration) {
	c.l.Warn("retrying ledger API read", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
}

// do sends one request and decodes the {"data": ..., "links": ...} envelope.
func (c *LedgerClient) do(ctx context.Context, method, path string, q url.Values, in, data, links any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	c.l.Debug("ledger API request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	envelope := struct {
		Data  json.RawMessage `json:"data"`
		Links json.RawMessage `json:"links"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return errors.Wrap(err, "failed to unmarshal response")
	}
	if data != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, data); err != nil {
			return errors.Wrap(err, "failed to unmarshal response data")
		}
	}
	if links != nil && len(envelope.Links) > 0 {
		if err := json.Unmarshal(envelope.Links, links); err != nil {
			return errors.Wrap(err, "failed to unmarshal response links")
		}
	}

	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.Wait = time.Duration(secs) * time.Second
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}

	var parsed errorsResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && len(parsed.Errors) > 0 {
		first := parsed.Errors[0]
		if first.Code != "" {
			apiErr.Code = first.Code
		}
		apiErr.Detail = first.Detail
	} else {
		apiErr.Detail = strings.TrimSpace(string(raw))
	}

	return apiErr
}
