package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quorumtrade/quorumtrade/internal/config"
	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/orchestrator"
	"github.com/quorumtrade/quorumtrade/internal/trading"
	"github.com/quorumtrade/quorumtrade/internal/venue"
)

// WalletReader resolves a council's stored venue credentials.
type WalletReader interface {
	GetByCouncil(ctx context.Context, councilID int64) (*db.Wallet, error)
}

// executorStores bundles the persistence an executor needs.
type executorStores struct {
	positions trading.PositionStore
	holdings  trading.HoldingStore
	orders    trading.OrderStore
	decisions trading.DecisionMarker
	councils  trading.CouncilToucher
	metrics   trading.MetricsRecomputer
}

// walletExecutors resolves executors per council. Paper councils share
// one paper venue per trading type; real councils bind a hardened
// Binance client with that council's wallet credentials, falling back
// to the configured venue keys when no wallet exists.
type walletExecutors struct {
	stores   executorStores
	wallets  WalletReader
	fallback config.VenueConfig
	execCfg  trading.Config
	logger   zerolog.Logger

	mu        sync.Mutex
	paperExec map[db.TradingType]orchestrator.TradeExecutor
	realExec  map[int64]orchestrator.TradeExecutor
}

func newWalletExecutors(stores executorStores, wallets WalletReader, fallback config.VenueConfig, execCfg trading.Config, paper map[db.TradingType]venue.Venue, logger zerolog.Logger) *walletExecutors {
	s := &walletExecutors{
		stores:    stores,
		wallets:   wallets,
		fallback:  fallback,
		execCfg:   execCfg,
		logger:    logger,
		paperExec: make(map[db.TradingType]orchestrator.TradeExecutor, len(paper)),
		realExec:  make(map[int64]orchestrator.TradeExecutor),
	}
	for t, v := range paper {
		s.paperExec[t] = s.newExecutor(v)
	}
	return s
}

func (s *walletExecutors) ExecutorFor(ctx context.Context, council *db.Council) (orchestrator.TradeExecutor, error) {
	if council.TradingMode != db.TradingModeReal {
		exec, ok := s.paperExec[council.TradingType]
		if !ok {
			return nil, fmt.Errorf("no paper venue for trading type %q", council.TradingType)
		}
		return exec, nil
	}

	s.mu.Lock()
	exec, ok := s.realExec[council.ID]
	s.mu.Unlock()
	if ok {
		return exec, nil
	}

	creds, source, err := s.credentials(ctx, council)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Int64("council_id", council.ID).
		Str("credential_source", source).
		Str("trading_type", string(council.TradingType)).
		Msg("binding live venue")

	var v venue.Venue
	switch council.TradingType {
	case db.TradingTypeFutures:
		v = venue.Harden(venue.NewBinanceFutures(creds, s.logger), s.fallback.RequestsPerSec, s.logger)
	case db.TradingTypeSpot:
		v = venue.Harden(venue.NewBinanceSpot(creds, s.logger), s.fallback.RequestsPerSec, s.logger)
	default:
		return nil, fmt.Errorf("no venue for trading type %q", council.TradingType)
	}

	exec = s.newExecutor(v)
	s.mu.Lock()
	s.realExec[council.ID] = exec
	s.mu.Unlock()
	return exec, nil
}

// credentials prefers the council's wallet; configured venue keys are
// the fallback for councils without one.
func (s *walletExecutors) credentials(ctx context.Context, council *db.Council) (venue.BinanceConfig, string, error) {
	w, err := s.wallets.GetByCouncil(ctx, council.ID)
	switch {
	case err == nil:
		return venue.BinanceConfig{
			APIKey:    w.APIKey,
			SecretKey: w.SecretKey,
			Testnet:   s.fallback.Testnet,
		}, "wallet", nil
	case errors.Is(err, db.ErrNotFound):
		if s.fallback.APIKey == "" {
			return venue.BinanceConfig{}, "", fmt.Errorf("council %d is in real mode but has no wallet and no configured venue credentials", council.ID)
		}
		return venue.BinanceConfig{
			APIKey:    s.fallback.APIKey,
			SecretKey: s.fallback.SecretKey,
			Testnet:   s.fallback.Testnet,
		}, "config", nil
	default:
		return venue.BinanceConfig{}, "", fmt.Errorf("load wallet for council %d: %w", council.ID, err)
	}
}

func (s *walletExecutors) newExecutor(v venue.Venue) orchestrator.TradeExecutor {
	return trading.NewExecutor(v, s.stores.positions, s.stores.holdings, s.stores.orders,
		s.stores.decisions, s.stores.councils, s.stores.metrics, s.execCfg, s.logger)
}

var _ orchestrator.ExecutorSource = (*walletExecutors)(nil)
