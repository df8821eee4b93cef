package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ledgerwallet/config"
	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/ledgerxdr"
	"github.com/vadiminshakov/ledgerwallet/internal/strkey"
	"github.com/vadiminshakov/ledgerwallet/internal/txbuilder"
	"github.com/vadiminshakov/ledgerwallet/internal/txpipeline"
)

func raw(b byte) []byte { return bytes.Repeat([]byte{b}, 32) }

var (
	testSeed    = strkey.MustEncode(strkey.VersionByteSeed, raw(7))
	recipientID = strkey.MustEncode(strkey.VersionByteAccountID, raw(2))
	balanceID   = strkey.MustEncode(strkey.VersionByteBalanceID, raw(3))
)

// fakeLedger serves the subset of the ledger API used by the wallet.
type fakeLedger struct {
	mu        sync.Mutex
	submitted []string
	feeCalls  int
	infoCalls int
	metaXDR   string
}

func (f *fakeLedger) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v3/info", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.infoCalls++
		f.mu.Unlock()
		fmt.Fprint(w, `{"data":{"precision":6,"network_passphrase":"Test Ledger Network"}}`)
	})
	mux.HandleFunc("GET /v3/accounts/{id}/balances", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"id":%q,"account_id":%q,"asset":"USD","available":"10","locked":"0"}]}`,
			balanceID, r.PathValue("id"))
	})
	mux.HandleFunc("GET /v3/assets", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"code":"USD","name":"Dollar","logo_key":"usd.png","trailing_digits":2}]}`)
	})
	mux.HandleFunc("GET /v3/accounts/{id}/polls", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"1","subject":"fees","choices":[{"number":1,"description":"lower"}],"starts_at":"2020-01-01T00:00:00Z","ends_at":"2999-01-01T00:00:00Z"}]}`)
	})
	mux.HandleFunc("GET /v3/accounts/{id}/calculated_fees", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.feeCalls++
		f.mu.Unlock()
		fixed := "0.1"
		if r.URL.Query().Get("subtype") == "2" {
			fixed = "0.2"
		}
		fmt.Fprintf(w, `{"data":{"fixed":%q,"calculated_percent":"0"}}`, fixed)
	})
	mux.HandleFunc("POST /v3/transactions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tx string `json:"tx"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.submitted = append(f.submitted, body.Tx)
		meta := f.metaXDR
		f.mu.Unlock()
		fmt.Fprintf(w, `{"data":{"hash":"abc","result_meta_xdr":%q}}`, meta)
	})
	return mux
}

func newTestWallet(t *testing.T, ledger *fakeLedger) *Wallet {
	t.Helper()
	srv := httptest.NewServer(ledger.handler(t))
	t.Cleanup(srv.Close)

	conf := config.Config{
		APIURL:            srv.URL,
		Seed:              testSeed,
		FeeDebounce:       10 * time.Millisecond,
		PollInterval:      20 * time.Millisecond,
		JournalDir:        t.TempDir(),
		ListenAddr:        "127.0.0.1:0",
		MovementsPageSize: 15,
		RateLimit:         decimal.NewFromInt(1000),
	}
	w, err := NewWallet(context.Background(), conf, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestNewWallet(t *testing.T) {
	ledger := &fakeLedger{}
	w := newTestWallet(t, ledger)

	signer, err := txpipeline.NewSigner(testSeed)
	require.NoError(t, err)
	assert.Equal(t, signer.AccountID(), w.AccountID, "account id is derived from the seed")
	assert.Equal(t, 1, ledger.infoCalls, "passphrase is fetched when not configured")
}

func TestNewWallet_Errors(t *testing.T) {
	tests := []struct {
		name string
		conf config.Config
	}{
		{
			name: "invalid seed",
			conf: config.Config{APIURL: "http://localhost", Seed: "SNOTASEED", NetworkPassphrase: "x", JournalDir: t.TempDir()},
		},
		{
			name: "invalid api url",
			conf: config.Config{APIURL: "ftp://localhost", Seed: testSeed, NetworkPassphrase: "x", JournalDir: t.TempDir()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWallet(context.Background(), tt.conf, nil)
			assert.Error(t, err)
		})
	}
}

func TestWallet_BalanceDetails(t *testing.T) {
	w := newTestWallet(t, &fakeLedger{})

	stream, cancel := w.BalanceDetails.Observe()
	defer cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case details := <-stream:
			if len(details) == 0 {
				continue
			}
			require.Len(t, details, 1)
			assert.Equal(t, "Dollar", details[0].Asset.Name)
			assert.Equal(t, w.API.LogoURL("usd.png"), details[0].LogoURL)
			return
		case <-deadline:
			t.Fatal("joined balances were not published")
		}
	}
}

func TestWallet_Pay(t *testing.T) {
	ledger := &fakeLedger{}
	w := newTestWallet(t, ledger)

	res, err := w.Pay(context.Background(), PaymentIntent{
		SourceBalanceID:      balanceID,
		DestinationAccountID: recipientID,
		AssetCode:            "USD",
		Amount:               decimal.RequireFromString("1.5"),
		Description:          "rent",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Hash)
	assert.Equal(t, 2, ledger.feeCalls)
	require.Len(t, ledger.submitted, 1)

	entries, err := w.Journal.EntriesAfter(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SubmissionPayment, entries[0].Record.Kind)
	assert.Equal(t, res.SubmissionID, entries[0].Record.ID)
}

func TestWallet_CreateBalances(t *testing.T) {
	created, err := ledgerxdr.EncodeMeta(ledgerxdr.TransactionMeta{
		Version: 1,
		Operations: []ledgerxdr.OperationMeta{{Changes: []ledgerxdr.LedgerEntryChange{{
			Kind: ledgerxdr.ChangeCreated,
			Entry: &ledgerxdr.LedgerEntry{
				Type:    ledgerxdr.EntryTypeBalance,
				Balance: &ledgerxdr.BalanceEntry{BalanceID: ledgerxdr.Key(raw(9)), Asset: "EUR"},
			},
		}}}},
	})
	require.NoError(t, err)

	w := newTestWallet(t, &fakeLedger{metaXDR: created})

	res, err := w.CreateBalances(context.Background(), []string{"EUR"})
	require.NoError(t, err)
	assert.Equal(t, []string{strkey.MustEncode(strkey.VersionByteBalanceID, raw(9))}, res.BalanceIDs)
}

func TestWallet_RequestRecovery(t *testing.T) {
	ledger := &fakeLedger{}
	w := newTestWallet(t, ledger)

	res, err := w.RequestRecovery(context.Background(), txbuilder.RecoveryRequest{
		// replaced by the wallet account
		SourceAccountID: "not an account",
		TargetAccountID: recipientID,
		NewSigner:       strkey.MustEncode(strkey.VersionByteAccountID, raw(8)),
		SignerRoleID:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Hash)
	require.Len(t, ledger.submitted, 1)

	entries, err := w.Journal.EntriesAfter(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SubmissionKYCRecovery, entries[0].Record.Kind)
}

func TestWallet_WebExposesPolls(t *testing.T) {
	w := newTestWallet(t, &fakeLedger{})
	h := w.Web.Handler()

	require.NoError(t, w.Polls.Reload(context.Background()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/polls", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var polls []struct {
		ID   string `json:"id"`
		Open bool   `json:"open"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &polls))
	require.Len(t, polls, 1)
	assert.Equal(t, "1", polls[0].ID)
	assert.True(t, polls[0].Open)
}

func TestWallet_Run(t *testing.T) {
	w := newTestWallet(t, &fakeLedger{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := w.Run(ctx, zap.NewNop())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, w.Balances.Items(), 1, "balances are reloaded on tick")
}
