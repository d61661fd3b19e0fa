// Command councild runs the council trading daemon: one control loop
// per council, each cycling through portfolio assembly, agent debate,
// consensus, and trade execution on a schedule.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quorumtrade/quorumtrade/internal/broadcast"
	"github.com/quorumtrade/quorumtrade/internal/config"
	"github.com/quorumtrade/quorumtrade/internal/councilmetrics"
	"github.com/quorumtrade/quorumtrade/internal/db"
	"github.com/quorumtrade/quorumtrade/internal/debate"
	"github.com/quorumtrade/quorumtrade/internal/llm"
	"github.com/quorumtrade/quorumtrade/internal/monitoring"
	"github.com/quorumtrade/quorumtrade/internal/orchestrator"
	"github.com/quorumtrade/quorumtrade/internal/portfolio"
	"github.com/quorumtrade/quorumtrade/internal/trading"
	"github.com/quorumtrade/quorumtrade/internal/venue"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	councilIDs := flag.String("councils", "", "Comma-separated council IDs to run (default: all system councils)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg)
	log.Info().
		Str("environment", cfg.App.Environment).
		Strs("symbols", cfg.Trading.Symbols).
		Msg("Starting council daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := db.New(ctx, db.Options{
		DSN:              cfg.Database.DSN,
		PoolSize:         cfg.Database.PoolSize,
		PoolMaxOverflow:  cfg.Database.PoolMaxOverflow,
		PoolRecycle:      time.Duration(cfg.Database.PoolRecycleSecs) * time.Second,
		ConnectTimeout:   time.Duration(cfg.Database.ConnectTimeoutMS) * time.Millisecond,
		StatementTimeout: time.Duration(cfg.Database.StatementTimeout) * time.Millisecond,
		LockTimeout:      time.Duration(cfg.Database.LockTimeout) * time.Millisecond,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	pool := store.Pool()
	councils := db.NewCouncilRepo(pool)
	runs := db.NewRunRepo(pool)
	positions := db.NewFuturesPositionRepo(pool)
	holdings := db.NewSpotHoldingRepo(pool)
	orders := db.NewOrderRepo(pool)
	decisions := db.NewConsensusDecisionRepo(pool)
	messages := db.NewDebateRepo(pool)
	snapshots := db.NewSnapshotRepo(pool)
	wallets := db.NewWalletRepo(pool)

	providers := llm.NewProviders(llm.ProviderSettings{
		DefaultProvider: cfg.LLM.DefaultProvider,
		DefaultModel:    cfg.LLM.DefaultModel,
		APIKeys:         cfg.LLM.APIKeys,
		Endpoints:       cfg.LLM.Endpoints,
		Temperature:     cfg.LLM.Temperature,
		MaxTokens:       cfg.LLM.MaxTokens,
		Timeout:         cfg.LLM.Timeout(),
	})
	completer, err := providers.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build LLM client")
	}

	futuresMarket, spotMarket, paperVenues := buildVenues(cfg)

	engine := councilmetrics.NewEngine(positions, holdings, councils, snapshots, log.Logger)

	execCfg := trading.Config{
		MinConfidence:  decimal.NewFromFloat(cfg.Trading.MinConfidenceForTrade),
		MaxPositionPct: decimal.NewFromFloat(cfg.Trading.MaxPositionPct),
	}
	executors := newWalletExecutors(executorStores{
		positions: positions,
		holdings:  holdings,
		orders:    orders,
		decisions: decisions,
		councils:  councils,
		metrics:   engine,
	}, wallets, cfg.Venues["binance"], execCfg, paperVenues, log.Logger)

	var sink broadcast.Sink
	if cfg.Redis.Enabled {
		redisSink := broadcast.NewRedisSink(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log.Logger)
		defer redisSink.Close()
		sink = redisSink
	}

	fleet := orchestrator.NewFleet(orchestrator.Deps{
		Councils:  councils,
		Runs:      runs,
		Portfolio: portfolio.NewBuilder(positions, venue.PriceAdapter{V: futuresMarket}, log.Logger),
		Debate: debate.NewFacade(map[db.TradingType]debate.MarketReader{
			db.TradingTypeFutures: futuresMarket,
			db.TradingTypeSpot:    spotMarket,
		}, messages, cfg.Trading.AgentPoolSize, cfg.Trading.AgentTimeout(), log.Logger),
		Consensus: debate.NewConsensus(cfg.Trading.ConsensusThreshold, decisions, messages, log.Logger),
		Executors: executors,
		Completer: completer,
		Sink:      sink,
		Logger:    log.Logger,
	}, orchestrator.Options{
		Symbols:          cfg.Trading.Symbols,
		ScheduleInterval: cfg.Trading.ScheduleInterval(),
		ErrorBackoff:     cfg.Trading.ErrorBackoff(),
	})

	var metricsServer *monitoring.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = monitoring.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		metricsServer.Start()
	}

	ids, err := parseCouncilIDs(*councilIDs)
	if err != nil {
		log.Fatal().Err(err).Str("councils", *councilIDs).Msg("Invalid council id list")
	}
	if err := fleet.Start(ctx, ids); err != nil {
		log.Fatal().Err(err).Msg("Failed to start council loops")
	}
	log.Info().Ints64("councils", fleet.RunningCouncils()).Msg("Council loops running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// In-flight cycles complete before the loops exit.
	fleet.Stop()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	log.Info().Msg("Council daemon shutdown complete")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.App.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// buildVenues returns the futures and spot market-data readers plus
// the per-trading-type paper venues used for paper execution. With
// Binance credentials configured the market readers are hardened live
// clients and the paper venues fill at their quotes; without them the
// paper venues serve both roles.
func buildVenues(cfg *config.Config) (venue.Venue, venue.Venue, map[db.TradingType]venue.Venue) {
	binanceCfg := cfg.Venues["binance"]

	paperFutures := venue.NewPaper()
	paperSpot := venue.NewPaper()
	if binanceCfg.TakerFee > 0 {
		fee := decimal.NewFromFloat(binanceCfg.TakerFee)
		paperFutures.SetTakerFee(fee)
		paperSpot.SetTakerFee(fee)
	}
	papers := map[db.TradingType]venue.Venue{
		db.TradingTypeFutures: paperFutures,
		db.TradingTypeSpot:    paperSpot,
	}

	if binanceCfg.APIKey == "" {
		log.Info().Msg("No venue credentials configured, paper venues serve market data")
		return paperFutures, paperSpot, papers
	}

	bc := venue.BinanceConfig{
		APIKey:    binanceCfg.APIKey,
		SecretKey: binanceCfg.SecretKey,
		Testnet:   binanceCfg.Testnet,
	}
	futures := venue.Harden(venue.NewBinanceFutures(bc, log.Logger), binanceCfg.RequestsPerSec, log.Logger)
	spot := venue.Harden(venue.NewBinanceSpot(bc, log.Logger), binanceCfg.RequestsPerSec, log.Logger)

	// Paper councils fill at the live marks of their venue family.
	paperFutures.SetQuoteFeed(venue.PriceAdapter{V: futures}.MarkPrice)
	paperSpot.SetQuoteFeed(venue.PriceAdapter{V: spot}.MarkPrice)
	return futures, spot, papers
}

func parseCouncilIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
