package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ledgerwallet/config"
	"github.com/vadiminshakov/ledgerwallet/internal/clients"
	"github.com/vadiminshakov/ledgerwallet/internal/domain"
	"github.com/vadiminshakov/ledgerwallet/internal/fees"
	"github.com/vadiminshakov/ledgerwallet/internal/repository"
	"github.com/vadiminshakov/ledgerwallet/internal/storage/submissions"
	"github.com/vadiminshakov/ledgerwallet/internal/txbuilder"
	"github.com/vadiminshakov/ledgerwallet/internal/txpipeline"
	"github.com/vadiminshakov/ledgerwallet/internal/web"
)

// assets change rarely, reload them every n-th tick
const assetsReloadEvery = 10

// PaymentIntent payment described in user terms, fees are quoted before sending.
type PaymentIntent struct {
	SourceBalanceID      string
	DestinationAccountID string
	AssetCode            string
	Amount               decimal.Decimal
	PayForRecipient      bool
	Description          string
	Reference            string
}

// Wallet wires the caches, the fee engine and the transaction builders of one account.
type Wallet struct {
	Config    config.Config
	AccountID string

	API            *clients.LedgerClient
	Balances       *repository.Repository[domain.Balance]
	Assets         *repository.Repository[domain.Asset]
	Polls          *repository.Repository[domain.Poll]
	Movements      *repository.PagedRepository[domain.Movement]
	BalanceDetails *repository.BalancesProvider
	Fees           *fees.Engine
	Builder        *txbuilder.Builder
	Journal        *submissions.WALStore
	Web            *web.Server

	l *zap.Logger
}

// NewWallet creates a wallet instance. The network passphrase is fetched from
// the API when the config has none.
func NewWallet(ctx context.Context, conf config.Config, l *zap.Logger) (*Wallet, error) {
	if l == nil {
		l = zap.NewNop()
	}

	signer, err := txpipeline.NewSigner(conf.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create signer")
	}
	accountID := conf.AccountID
	if accountID == "" {
		accountID = signer.AccountID()
	}
	l = l.With(zap.String("account", accountID))

	rps := conf.RateLimit.InexactFloat64()
	api, err := clients.NewLedgerClient(conf.APIURL,
		clients.WithRateLimit(rps, int(rps)*2+1),
		clients.WithLogger(l),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ledger client")
	}

	passphrase := conf.NetworkPassphrase
	if passphrase == "" {
		info, err := api.NetworkInfo(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch network passphrase")
		}
		passphrase = info.NetworkPassphrase
	}

	pipeline, err := txpipeline.NewPipeline(api, signer, passphrase, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transaction pipeline")
	}

	journal, err := submissions.NewWALStore(conf.JournalDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open submission journal")
	}

	builder := txbuilder.NewBuilder(api, pipeline, l,
		txbuilder.WithJournal(journal),
		txbuilder.WithStateObserver(func(id string, kind domain.SubmissionKind, state txbuilder.State) {
			l.Debug("submission state", zap.String("id", id), zap.String("kind", string(kind)), zap.String("state", string(state)))
		}),
	)

	balances := repository.NewBalancesRepository(ctx, api, accountID, l)
	assets := repository.NewAssetsRepository(ctx, api, l)
	details := repository.NewBalancesProvider(balances, assets, api)
	movements := repository.NewMovementsRepository(ctx, api, accountID, conf.MovementsPageSize, l)
	engine := fees.NewEngine(ctx, api, accountID, l, fees.WithDebounce(conf.FeeDebounce))
	polls := repository.NewPollsRepository(ctx, api, accountID, l)

	server := web.NewServer(conf.ListenAddr, details, journal, movements, engine, l,
		web.WithPolls(polls),
		web.WithStatus("balances", balances),
		web.WithStatus("assets", assets),
		web.WithStatus("polls", polls),
		web.WithStatus("movements", movements),
	)

	return &Wallet{
		Config:         conf,
		AccountID:      accountID,
		API:            api,
		Balances:       balances,
		Assets:         assets,
		Polls:          polls,
		Movements:      movements,
		BalanceDetails: details,
		Fees:           engine,
		Builder:        builder,
		Journal:        journal,
		Web:            server,
		l:              l,
	}, nil
}

// Pay quotes the fees of the intent and submits the payment with them.
func (w *Wallet) Pay(ctx context.Context, intent PaymentIntent) (*txbuilder.Result, error) {
	quote, err := w.Fees.Quote(ctx, intent.DestinationAccountID, intent.Amount, intent.AssetCode)
	if err != nil {
		return nil, errors.Wrap(err, "failed to quote fees")
	}

	return w.Builder.PaymentSender().Send(ctx, txbuilder.PaymentRequest{
		SourceAccountID:      w.AccountID,
		SourceBalanceID:      intent.SourceBalanceID,
		DestinationAccountID: intent.DestinationAccountID,
		Amount:               intent.Amount,
		SenderFee:            quote.Sender,
		RecipientFee:         quote.Recipient,
		PayForRecipient:      intent.PayForRecipient,
		Description:          intent.Description,
		Reference:            intent.Reference,
	})
}

// CreateBalances creates one balance per asset and reloads the balances cache.
func (w *Wallet) CreateBalances(ctx context.Context, assetCodes []string) (*txbuilder.Result, error) {
	res, err := w.Builder.BalanceCreator().Create(ctx, w.AccountID, assetCodes)
	if err != nil {
		return nil, err
	}
	if err := w.Balances.Reload(ctx); err != nil {
		w.l.Warn("failed to reload balances after creation", zap.Error(err))
	}
	return res, nil
}

// RequestRecovery asks to replace the signers of req.TargetAccountID. The
// request is always sent from the wallet account.
func (w *Wallet) RequestRecovery(ctx context.Context, req txbuilder.RecoveryRequest) (*txbuilder.Result, error) {
	req.SourceAccountID = w.AccountID
	return w.Builder.RecoveryRequester().Request(ctx, req)
}

// Close closes the wallet
func (w *Wallet) Close() {
	w.Fees.Close()
	w.BalanceDetails.Close()
	w.Movements.Close()
	w.Polls.Close()
	w.Assets.Close()
	w.Balances.Close()
	if err := w.Journal.Close(); err != nil {
		w.l.Warn("failed to close submission journal", zap.Error(err))
	}
}

// Run keeps the caches fresh until ctx is done.
func (w *Wallet) Run(ctx context.Context, logger *zap.Logger) error {
	ticker := time.NewTicker(w.Config.PollInterval)
	defer ticker.Stop()

	logger.Info("Starting wallet reload loop", zap.String("account", w.AccountID), zap.Duration("poll_interval", w.Config.PollInterval))

	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			logger.Info("Context done, stopping wallet reload loop.", zap.String("account", w.AccountID))
			return ctx.Err()
		case <-ticker.C:
			logger.Debug("Wallet tick", zap.Int("tick", tick))
			w.reload(ctx, logger, tick%assetsReloadEvery == 0)
		}
	}
}

func (w *Wallet) reload(ctx context.Context, logger *zap.Logger, withAssets bool) {
	if err := w.Balances.Reload(ctx); err != nil {
		logger.Warn("Balances reload failed", zap.Error(err))
	}
	if err := w.Polls.Reload(ctx); err != nil {
		logger.Warn("Polls reload failed", zap.Error(err))
	}
	if withAssets {
		if err := w.Assets.Reload(ctx); err != nil {
			logger.Warn("Assets reload failed", zap.Error(err))
		}
	}
}
