package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/fees"
	"github.com/vadiminshakov/ledgerwallet/internal/reactive"
)

type staticJournal []domain.SubmissionEntry

func (j staticJournal) EntriesAfter(index uint64) ([]domain.SubmissionEntry, error) {
	var out []domain.SubmissionEntry
	for _, e := range j {
		if e.Index > index {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeMovements struct {
	items    []domain.Movement
	more     bool
	loadErr  error
	observed int
}

func (f *fakeMovements) Observe() (<-chan []domain.Movement, func()) {
	f.observed++
	return make(chan []domain.Movement), func() {}
}
func (f *fakeMovements) Items() []domain.Movement { return f.items }
func (f *fakeMovements) HasMore() bool            { return f.more }
func (f *fakeMovements) LoadMore(context.Context) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.items = append(f.items, domain.Movement{ID: "2", Kind: domain.MovementCharged, Amount: decimal.NewFromInt(3)})
	f.more = false
	return nil
}

type fakeQuoter struct {
	err error
}

func (f fakeQuoter) Quote(_ context.Context, _ string, amount decimal.Decimal, _ string) (domain.Fees, error) {
	if f.err != nil {
		return domain.Fees{}, f.err
	}
	return domain.Fees{
		Sender:    domain.Fee{Fixed: decimal.NewFromInt(1), Percent: amount.Div(decimal.NewFromInt(100))},
		Recipient: domain.Fee{Fixed: decimal.Zero},
	}, nil
}

func (fakeQuoter) RequestQuote(string, decimal.Decimal, string) {}

func (fakeQuoter) Results() (<-chan fees.QuoteResult, func()) {
	return make(chan fees.QuoteResult), func() {}
}

// countingFees answers every fee leg with a flat fee and counts the calls.
type countingFees struct {
	calls atomic.Int32
}

func (c *countingFees) Fee(_ context.Context, req domain.FeeRequest) (*domain.Fee, error) {
	c.calls.Add(1)
	return &domain.Fee{Fixed: decimal.NewFromInt(1), Percent: req.Amount.Div(decimal.NewFromInt(100))}, nil
}

type staticPolls []domain.Poll

func (p staticPolls) Observe() (<-chan []domain.Poll, func()) {
	return make(chan []domain.Poll), func() {}
}
func (p staticPolls) Items() []domain.Poll { return p }

type fakeStatus struct {
	status *reactive.Cell[domain.LoadingStatus]
	errs   *reactive.Cell[error]
}

func (f fakeStatus) ObserveLoadingStatus() (<-chan domain.LoadingStatus, func()) {
	return f.status.Observe()
}
func (f fakeStatus) ObserveErrors() (<-chan error, func()) { return f.errs.Observe() }

// openStream starts a GET on an SSE endpoint and returns a reader over its body.
func openStream(t *testing.T, ctx context.Context, target string) *bufio.Reader {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

// readEvent reads the next SSE event name and data.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestServer_BalanceStream(t *testing.T) {
	cell := reactive.NewCellWithValue([]domain.BalanceDetails{{
		Balance: domain.Balance{ID: "B1", AssetCode: "USD", Available: decimal.RequireFromString("1.5")},
		Asset:   domain.Asset{Code: "USD", Name: "Dollar", TrailingDigits: 2, Policies: domain.AssetPolicyTransferable | domain.AssetPolicyWithdrawable},
	}})
	srv := httptest.NewServer(NewServer("", cell, nil, nil, nil, zap.NewNop()).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/balances/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, data := readEvent(t, reader)
	assert.Equal(t, "balances", event)

	var views []balanceView
	require.NoError(t, json.Unmarshal([]byte(data), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "1.50", views[0].Available)
	assert.True(t, views[0].Transferable)

	cell.Set([]domain.BalanceDetails{})
	event, data = readEvent(t, reader)
	assert.Equal(t, "balances", event)
	assert.Equal(t, "[]", data)
}

func TestServer_SubmissionStream(t *testing.T) {
	journal := staticJournal{
		{Index: 1, Record: domain.SubmissionRecord{ID: "a", Kind: domain.SubmissionPayment, State: "succeeded", Hash: "h"}},
	}
	srv := httptest.NewServer(NewServer("", nil, journal, nil, nil, nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/submissions/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	event, data := readEvent(t, bufio.NewReader(resp.Body))
	assert.Equal(t, "submission", event)
	var rec domain.SubmissionRecord
	require.NoError(t, json.Unmarshal([]byte(data), &rec))
	assert.Equal(t, "h", rec.Hash)
}

func TestServer_Unavailable(t *testing.T) {
	h := NewServer("", nil, nil, nil, nil, nil).Handler()

	for _, path := range []string{"/balances/stream", "/submissions/stream", "/movements", "/fees", "/fees/stream", "/polls", "/status/stream"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/fees/request?recipient=GREC&asset=USD&amount=1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Movements(t *testing.T) {
	movements := &fakeMovements{
		items: []domain.Movement{{ID: "1", Kind: domain.MovementFunded, Amount: decimal.NewFromInt(5)}},
		more:  true,
	}
	h := NewServer("", nil, nil, movements, nil, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/movements", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, movements.observed)

	var resp movementsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.HasMore)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "funded", resp.Items[0].Kind)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/movements/more", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.HasMore)
	assert.Len(t, resp.Items, 2)

	movements.loadErr = errors.New("upstream down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/movements/more", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_Fees(t *testing.T) {
	h := NewServer("", nil, nil, nil, fakeQuoter{}, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fees?recipient=GREC&asset=USD&amount=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]feeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1", resp["sender"].Fixed)
	assert.Equal(t, "0.1", resp["sender"].Percent)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fees?recipient=GREC&asset=USD&amount=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fees?amount=1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	failing := NewServer("", nil, nil, nil, fakeQuoter{err: errors.New("incomplete")}, nil).Handler()
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fees?recipient=GREC&asset=USD&amount=1", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_FeeRequestsAreDebounced(t *testing.T) {
	api := &countingFees{}
	engine := fees.NewEngine(context.Background(), api, "GSENDER", zap.NewNop(), fees.WithDebounce(200*time.Millisecond))
	defer engine.Close()
	srv := httptest.NewServer(NewServer("", nil, nil, nil, engine, nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reader := openStream(t, ctx, srv.URL+"/fees/stream")

	// a user typing 1, 12, 123
	for _, amount := range []string{"1", "12", "123"} {
		resp, err := http.PostForm(srv.URL+"/fees/request", url.Values{
			"recipient": {"GREC"},
			"asset":     {"USD"},
			"amount":    {amount},
		})
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	event, data := readEvent(t, reader)
	assert.Equal(t, "fee_quote", event)

	var view feeQuoteView
	require.NoError(t, json.Unmarshal([]byte(data), &view))
	assert.Equal(t, "123", view.Amount)
	assert.Equal(t, "GREC", view.Recipient)
	assert.Empty(t, view.Error)
	assert.Equal(t, "1.23", view.Fees["sender"].Percent)
	assert.Equal(t, int32(2), api.calls.Load(), "only the last request reaches the ledger, one call per leg")

	resp, err := http.PostForm(srv.URL+"/fees/request", url.Values{"recipient": {"GREC"}, "amount": {"0"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Polls(t *testing.T) {
	now := time.Now()
	polls := staticPolls{
		{ID: "1", Subject: "open", Choices: []domain.PollChoice{{Number: 1, Description: "yes"}}, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)},
		{ID: "2", Subject: "closed", StartsAt: now.Add(-2 * time.Hour), EndsAt: now.Add(-time.Hour)},
	}
	h := NewServer("", nil, nil, nil, nil, nil, WithPolls(polls)).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/polls", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var views []pollView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.True(t, views[0].Open)
	assert.Equal(t, []pollChoiceView{{Number: 1, Description: "yes"}}, views[0].Choices)
	assert.False(t, views[1].Open)
	assert.Empty(t, views[1].Choices)
}

func TestServer_StatusStream(t *testing.T) {
	balances := fakeStatus{
		status: reactive.NewCellWithValue(domain.Loading),
		errs:   reactive.NewCell[error](),
	}
	srv := httptest.NewServer(NewServer("", nil, nil, nil, nil, nil, WithStatus("balances", balances)).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reader := openStream(t, ctx, srv.URL+"/status/stream")

	event, data := readEvent(t, reader)
	assert.Equal(t, "status", event)
	var view statusView
	require.NoError(t, json.Unmarshal([]byte(data), &view))
	assert.Equal(t, statusView{Repository: "balances", Status: "loading"}, view)

	balances.errs.Set(errors.New("upstream down"))
	event, data = readEvent(t, reader)
	assert.Equal(t, "error", event)
	view = statusView{}
	require.NoError(t, json.Unmarshal([]byte(data), &view))
	assert.Equal(t, statusView{Repository: "balances", Error: "upstream down"}, view)

	balances.status.Set(domain.Loaded)
	event, data = readEvent(t, reader)
	assert.Equal(t, "status", event)
	view = statusView{}
	require.NoError(t, json.Unmarshal([]byte(data), &view))
	assert.Equal(t, "loaded", view.Status)
}
