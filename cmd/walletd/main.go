// Command walletd runs a ledger wallet: it keeps balances, assets, polls and
// movements of one account cached, quotes payment fees and serves the caches
// over HTTP.
//
// Usage:
//
//	walletd --config config.yaml
//	walletd --setup
//	walletd --api-url https://api.ledger.example (uses CLI arguments)
//
// Required environment variables (when the config has no seed):
//
//	WALLET_SEED
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/ledgerwallet/config"
	"github.com/vadiminshakov/ledgerwallet/internal"
	"github.com/vadiminshakov/ledgerwallet/internal/setup"
)

func main() {
	conf, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	if conf.Setup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	zapConf := zap.NewProductionConfig()
	zapConf.Level = zap.NewAtomicLevelAt(conf.LogLevel)
	logger, err := zapConf.Build()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wallet, err := internal.NewWallet(ctx, conf, logger)
	if err != nil {
		logger.Fatal("failed to create wallet", zap.Error(err))
	}
	defer wallet.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return wallet.Run(ctx, logger)
	})
	g.Go(func() error {
		return wallet.Web.Start(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("wallet stopped with error", zap.Error(err))
		return
	}
	logger.Info("wallet stopped")
}
