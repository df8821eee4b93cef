package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/fees"
)

const (
	journalPollInterval = 2 * time.Second
	heartbeatInterval   = 30 * time.Second
)

type balancesSource interface {
	Observe() (<-chan []domain.BalanceDetails, func())
}

type submissionReader interface {
	EntriesAfter(index uint64) ([]domain.SubmissionEntry, error)
}

type movementsSource interface {
	Observe() (<-chan []domain.Movement, func())
	Items() []domain.Movement
	HasMore() bool
	LoadMore(ctx context.Context) error
}

type feeQuoter interface {
	Quote(ctx context.Context, recipientAccountID string, amount decimal.Decimal, assetCode string) (domain.Fees, error)
	RequestQuote(recipientAccountID string, amount decimal.Decimal, assetCode string)
	Results() (<-chan fees.QuoteResult, func())
}

type pollsSource interface {
	Observe() (<-chan []domain.Poll, func())
	Items() []domain.Poll
}

// statusSource loading state and fetch errors of one repository.
type statusSource interface {
	ObserveLoadingStatus() (<-chan domain.LoadingStatus, func())
	ObserveErrors() (<-chan error, func())
}

type Option func(*Server)

// WithPolls exposes the polls cache on GET /polls.
func WithPolls(p pollsSource) Option {
	return func(s *Server) {
		s.Polls = p
	}
}

// WithStatus adds a repository to GET /status/stream under the given name.
func WithStatus(name string, src statusSource) Option {
	return func(s *Server) {
		s.statuses = append(s.statuses, namedStatus{name: name, src: src})
	}
}

type namedStatus struct {
	name string
	src  statusSource
}

// Server exposes the wallet caches over HTTP: SSE streams of balances and
// submissions plus small JSON endpoints.
type Server struct {
	Addr        string
	Balances    balancesSource
	Submissions submissionReader
	Movements   movementsSource
	Fees        feeQuoter
	Polls       pollsSource

	statuses []namedStatus
	l        *zap.Logger
}

func NewServer(addr string, balances balancesSource, submissions submissionReader, movements movementsSource, quoter feeQuoter, l *zap.Logger, opts ...Option) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	s := &Server{
		Addr:        addr,
		Balances:    balances,
		Submissions: submissions,
		Movements:   movements,
		Fees:        quoter,
		l:           l.With(zap.String("component", "web")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /balances/stream", s.handleBalanceStream)
	mux.HandleFunc("GET /submissions/stream", s.handleSubmissionStream)
	mux.HandleFunc("GET /movements", s.handleMovements)
	mux.HandleFunc("POST /movements/more", s.handleMoreMovements)
	mux.HandleFunc("GET /fees", s.handleFees)
	mux.HandleFunc("POST /fees/request", s.handleFeeRequest)
	mux.HandleFunc("GET /fees/stream", s.handleFeeStream)
	mux.HandleFunc("GET /polls", s.handlePolls)
	mux.HandleFunc("GET /status/stream", s.handleStatusStream)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("web server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

type sse struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func startSSE(w http.ResponseWriter) (*sse, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sse{w: w, flusher: flusher}, true
}

func (e *sse) send(event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.w, "event: %s\n", event)
	fmt.Fprintf(e.w, "data: %s\n\n", payload)
	e.flusher.Flush()
	return nil
}

func (e *sse) ping() {
	fmt.Fprintf(e.w, ": ping\n\n")
	e.flusher.Flush()
}

type balanceView struct {
	BalanceID string `json:"balance_id"`
	Asset     string `json:"asset"`
	AssetName string `json:"asset_name"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
	LogoURL   string `json:"logo_url,omitempty"`
	// Transferable the asset can be sent to other accounts.
	Transferable bool `json:"transferable"`
}

func balanceViews(details []domain.BalanceDetails) []balanceView {
	out := make([]balanceView, 0, len(details))
	for _, d := range details {
		digits := d.Asset.TrailingDigits
		out = append(out, balanceView{
			BalanceID: d.Balance.ID,
			Asset:     d.Asset.Code,
			AssetName: d.Asset.Name,
			Available: d.Balance.Available.StringFixed(digits),
			Locked:    d.Balance.Locked.StringFixed(digits),
			LogoURL:   d.LogoURL,

			Transferable: d.Asset.Has(domain.AssetPolicyTransferable),
		})
	}
	return out
}

func (s *Server) handleBalanceStream(w http.ResponseWriter, r *http.Request) {
	if s.Balances == nil {
		http.Error(w, "balances not available", http.StatusServiceUnavailable)
		return
	}
	stream, ok := startSSE(w)
	if !ok {
		return
	}

	updates, stop := s.Balances.Observe()
	defer stop()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			stream.ping()
		case details, ok := <-updates:
			if !ok {
				return
			}
			if err := stream.send("balances", balanceViews(details)); err != nil {
				s.l.Warn("balance stream send", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) handleSubmissionStream(w http.ResponseWriter, r *http.Request) {
	if s.Submissions == nil {
		http.Error(w, "submission journal not available", http.StatusServiceUnavailable)
		return
	}

	lastIndex := uint64(0)
	initial, err := s.Submissions.EntriesAfter(lastIndex)
	if err != nil {
		s.l.Error("submission stream initial load", zap.Error(err))
		http.Error(w, "failed to load submissions", http.StatusInternalServerError)
		return
	}

	stream, ok := startSSE(w)
	if !ok {
		return
	}

	send := func(entries []domain.SubmissionEntry) error {
		for _, entry := range entries {
			if err := stream.send("submission", entry.Record); err != nil {
				return err
			}
			lastIndex = entry.Index
		}
		return nil
	}
	if err := send(initial); err != nil {
		s.l.Warn("submission stream send", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(journalPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			stream.ping()
		case <-poll.C:
			entries, err := s.Submissions.EntriesAfter(lastIndex)
			if err != nil {
				s.l.Warn("submission stream poll", zap.Error(err))
				continue
			}
			if err := send(entries); err != nil {
				s.l.Warn("submission stream send", zap.Error(err))
				return
			}
		}
	}
}

type movementsResponse struct {
	Items   []movementView `json:"items"`
	HasMore bool           `json:"has_more"`
}

type movementView struct {
	ID        string    `json:"id"`
	BalanceID string    `json:"balance_id"`
	Asset     string    `json:"asset"`
	Kind      string    `json:"kind"`
	Amount    string    `json:"amount"`
	Fee       string    `json:"fee"`
	Time      time.Time `json:"time"`
}

func (s *Server) movements() movementsResponse {
	items := s.Movements.Items()
	resp := movementsResponse{Items: make([]movementView, 0, len(items)), HasMore: s.Movements.HasMore()}
	for _, m := range items {
		resp.Items = append(resp.Items, movementView{
			ID:        m.ID,
			BalanceID: m.BalanceID,
			Asset:     m.AssetCode,
			Kind:      m.Kind.String(),
			Amount:    m.Amount.String(),
			Fee:       m.Fee.String(),
			Time:      m.Time,
		})
	}
	return resp
}

func (s *Server) handleMovements(w http.ResponseWriter, _ *http.Request) {
	if s.Movements == nil {
		http.Error(w, "movements not available", http.StatusServiceUnavailable)
		return
	}
	// first observation triggers the first page load
	_, stop := s.Movements.Observe()
	stop()

	writeJSON(w, http.StatusOK, s.movements())
}

func (s *Server) handleMoreMovements(w http.ResponseWriter, r *http.Request) {
	if s.Movements == nil {
		http.Error(w, "movements not available", http.StatusServiceUnavailable)
		return
	}
	if err := s.Movements.LoadMore(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.movements())
}

type feeView struct {
	Fixed   string `json:"fixed"`
	Percent string `json:"percent"`
}

func feeViews(f domain.Fees) map[string]feeView {
	return map[string]feeView{
		"sender":    {Fixed: f.Sender.Fixed.String(), Percent: f.Sender.Percent.String()},
		"recipient": {Fixed: f.Recipient.Fixed.String(), Percent: f.Recipient.Percent.String()},
	}
}

type quoteParams struct {
	recipient string
	amount    decimal.Decimal
	asset     string
}

// parseQuote reads recipient, asset and amount from the query or a form body.
func parseQuote(w http.ResponseWriter, r *http.Request) (quoteParams, bool) {
	amount, err := decimal.NewFromString(r.FormValue("amount"))
	if err != nil || !amount.IsPositive() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be a positive decimal"})
		return quoteParams{}, false
	}
	p := quoteParams{recipient: r.FormValue("recipient"), amount: amount, asset: r.FormValue("asset")}
	if p.recipient == "" || p.asset == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recipient and asset are required"})
		return quoteParams{}, false
	}
	return p, true
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	if s.Fees == nil {
		http.Error(w, "fees not available", http.StatusServiceUnavailable)
		return
	}
	p, ok := parseQuote(w, r)
	if !ok {
		return
	}

	quote, err := s.Fees.Quote(r.Context(), p.recipient, p.amount, p.asset)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, feeViews(quote))
}

// handleFeeRequest schedules a debounced quote. The outcome arrives on /fees/stream.
func (s *Server) handleFeeRequest(w http.ResponseWriter, r *http.Request) {
	if s.Fees == nil {
		http.Error(w, "fees not available", http.StatusServiceUnavailable)
		return
	}
	p, ok := parseQuote(w, r)
	if !ok {
		return
	}

	s.Fees.RequestQuote(p.recipient, p.amount, p.asset)
	w.WriteHeader(http.StatusAccepted)
}

type feeQuoteView struct {
	Recipient string             `json:"recipient"`
	Asset     string             `json:"asset"`
	Amount    string             `json:"amount"`
	Fees      map[string]feeView `json:"fees,omitempty"`
	Error     string             `json:"error,omitempty"`
}

func (s *Server) handleFeeStream(w http.ResponseWriter, r *http.Request) {
	if s.Fees == nil {
		http.Error(w, "fees not available", http.StatusServiceUnavailable)
		return
	}
	stream, ok := startSSE(w)
	if !ok {
		return
	}

	results, stop := s.Fees.Results()
	defer stop()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			stream.ping()
		case res, ok := <-results:
			if !ok {
				return
			}
			view := feeQuoteView{Recipient: res.Key.RecipientAccountID, Asset: res.Key.AssetCode, Amount: res.Key.Amount}
			if res.Err != nil {
				view.Error = res.Err.Error()
			} else {
				view.Fees = feeViews(res.Fees)
			}
			if err := stream.send("fee_quote", view); err != nil {
				s.l.Warn("fee stream send", zap.Error(err))
				return
			}
		}
	}
}

type pollChoiceView struct {
	Number      int    `json:"number"`
	Description string `json:"description"`
}

type pollView struct {
	ID       string           `json:"id"`
	Subject  string           `json:"subject"`
	Choices  []pollChoiceView `json:"choices"`
	StartsAt time.Time        `json:"starts_at"`
	EndsAt   time.Time        `json:"ends_at"`
	Open     bool             `json:"open"`
}

func (s *Server) handlePolls(w http.ResponseWriter, _ *http.Request) {
	if s.Polls == nil {
		http.Error(w, "polls not available", http.StatusServiceUnavailable)
		return
	}
	// first observation triggers the initial load
	_, stop := s.Polls.Observe()
	stop()

	now := time.Now()
	polls := s.Polls.Items()
	out := make([]pollView, 0, len(polls))
	for _, p := range polls {
		choices := make([]pollChoiceView, 0, len(p.Choices))
		for _, c := range p.Choices {
			choices = append(choices, pollChoiceView{Number: c.Number, Description: c.Description})
		}
		out = append(out, pollView{
			ID:       p.ID,
			Subject:  p.Subject,
			Choices:  choices,
			StartsAt: p.StartsAt,
			EndsAt:   p.EndsAt,
			Open:     p.IsOpen(now),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type statusView struct {
	Repository string `json:"repository"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// handleStatusStream merges the loading states and fetch errors of every
// registered repository into one stream.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	if len(s.statuses) == 0 {
		http.Error(w, "status not available", http.StatusServiceUnavailable)
		return
	}
	stream, ok := startSSE(w)
	if !ok {
		return
	}

	ctx := r.Context()
	events := make(chan statusView)
	forward := func(v statusView) {
		select {
		case events <- v:
		case <-ctx.Done():
		}
	}

	for _, ns := range s.statuses {
		statuses, stopStatus := ns.src.ObserveLoadingStatus()
		errs, stopErrs := ns.src.ObserveErrors()
		go func(name string) {
			defer stopStatus()
			defer stopErrs()
			for {
				select {
				case <-ctx.Done():
					return
				case st, ok := <-statuses:
					if !ok {
						return
					}
					forward(statusView{Repository: name, Status: st.String()})
				case err, ok := <-errs:
					if !ok {
						return
					}
					if err != nil {
						forward(statusView{Repository: name, Error: err.Error()})
					}
				}
			}
		}(ns.name)
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			stream.ping()
		case v := <-events:
			event := "status"
			if v.Error != "" {
				event = "error"
			}
			if err := stream.send(event, v); err != nil {
				s.l.Warn("status stream send", zap.Error(err))
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Ledger wallet</title>
  <style>
    body { font-family:'Space Mono','JetBrains Mono',monospace; margin:2rem; color:#111; }
    table { border-collapse:collapse; min-width:480px; }
    td, th { border:2px solid #111; padding:.4rem .8rem; text-align:left; }
    #submissions li { font-size:.8rem; }
  </style>
</head>
<body>
  <h1>Balances</h1>
  <table><thead><tr><th>Asset</th><th>Available</th><th>Locked</th></tr></thead><tbody id="balances"></tbody></table>
  <h2>Submissions</h2>
  <ul id="submissions"></ul>
  <script>
    const balances = new EventSource('/balances/stream');
    balances.addEventListener('balances', (e) => {
      const rows = JSON.parse(e.data).map(b =>
        '<tr><td>' + b.asset + '</td><td>' + b.available + '</td><td>' + b.locked + '</td></tr>');
      document.getElementById('balances').innerHTML = rows.join('');
    });
    const submissions = new EventSource('/submissions/stream');
    submissions.addEventListener('submission', (e) => {
      const s = JSON.parse(e.data);
      const li = document.createElement('li');
      li.textContent = s.ts + ' ' + s.kind + ' ' + s.state + ' ' + (s.hash || s.error || '');
      document.getElementById('submissions').prepend(li);
    });
  </script>
</body>
</html>
`
