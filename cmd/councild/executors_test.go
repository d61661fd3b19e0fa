package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorumtrade/internal/config"
	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/trading"
	"github.com/quorumtrade/quorumtrade/internal/venue"
)

type fakeWallets struct {
	wallet *db.Wallet
}

func (f *fakeWallets) GetByCouncil(_ context.Context, councilID int64) (*db.Wallet, error) {
	if f.wallet != nil && f.wallet.CouncilID == councilID {
		return f.wallet, nil
	}
	return nil, db.ErrNotFound
}

func newTestExecutors(wallets WalletReader, fallback config.VenueConfig) *walletExecutors {
	papers := map[db.TradingType]venue.Venue{
		db.TradingTypeFutures: venue.NewPaper(),
		db.TradingTypeSpot:    venue.NewPaper(),
	}
	return newWalletExecutors(executorStores{}, wallets, fallback, trading.Config{}, papers, zerolog.Nop())
}

func TestExecutorForPaperCouncil(t *testing.T) {
	s := newTestExecutors(&fakeWallets{}, config.VenueConfig{})
	council := &db.Council{ID: 1, TradingMode: db.TradingModePaper, TradingType: db.TradingTypeFutures}

	first, err := s.ExecutorFor(context.Background(), council)
	require.NoError(t, err)
	second, err := s.ExecutorFor(context.Background(), council)
	require.NoError(t, err)
	assert.Same(t, first, second, "paper executors are shared per trading type")
}

func TestExecutorForRealCouncilUsesWallet(t *testing.T) {
	// No config fallback: resolution succeeding proves the wallet served
	// the credentials.
	wallets := &fakeWallets{wallet: &db.Wallet{
		ID: 3, CouncilID: 9, Exchange: "binance", APIKey: "wk", SecretKey: "ws",
	}}
	s := newTestExecutors(wallets, config.VenueConfig{})
	council := &db.Council{ID: 9, TradingMode: db.TradingModeReal, TradingType: db.TradingTypeFutures}

	first, err := s.ExecutorFor(context.Background(), council)
	require.NoError(t, err)
	second, err := s.ExecutorFor(context.Background(), council)
	require.NoError(t, err)
	assert.Same(t, first, second, "real executors are cached per council")
}

func TestExecutorForRealCouncilFallsBackToConfig(t *testing.T) {
	s := newTestExecutors(&fakeWallets{}, config.VenueConfig{APIKey: "ck", SecretKey: "cs"})
	council := &db.Council{ID: 4, TradingMode: db.TradingModeReal, TradingType: db.TradingTypeSpot}

	_, err := s.ExecutorFor(context.Background(), council)
	assert.NoError(t, err)
}

func TestExecutorForRealCouncilWithoutCredentials(t *testing.T) {
	s := newTestExecutors(&fakeWallets{}, config.VenueConfig{})
	council := &db.Council{ID: 5, TradingMode: db.TradingModeReal, TradingType: db.TradingTypeFutures}

	_, err := s.ExecutorFor(context.Background(), council)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no wallet")
}
