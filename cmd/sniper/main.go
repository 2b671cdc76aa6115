package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"solana-sniper/internal/analysis"
	"solana-sniper/internal/config"
	"solana-sniper/internal/decision"
	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/lifecycle"
	"solana-sniper/internal/logging"
	"solana-sniper/internal/notify"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/position"
	"solana-sniper/internal/provider"
	"solana-sniper/internal/screen"
	"solana-sniper/internal/sniper"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
	badgerstore "solana-sniper/internal/storage/badger"
	chstore "solana-sniper/internal/storage/clickhouse"
	"solana-sniper/internal/storage/memory"
	"solana-sniper/internal/storage/migrations"
	pgstore "solana-sniper/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with SNIPER_* overrides")
	candidates := flag.String("candidates", "", "Comma-separated addresses to evaluate instead of live discovery")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	log := logging.Component(logger, "main")

	if err := run(cfg, logger, splitList(*candidates)); err != nil {
		log.WithError(err).Error("sniper exited with error")
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// stores bundles the persistence backends and their cleanup.
type stores struct {
	positions storage.PositionStore
	ticks     storage.PriceTickStore
	closers   []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg config.Storage, log *logrus.Entry) (*stores, error) {
	s := &stores{}
	switch cfg.Backend {
	case "memory":
		s.positions = memory.NewPositionStore()
	case "badger":
		db, err := badgerstore.Open(badgerstore.OpenOptions{Path: cfg.BadgerPath})
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		s.closers = append(s.closers, func() { db.Close() })
		s.positions = badgerstore.NewPositionStore(db)
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.positions = pgstore.NewPositionStore(pool)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", domain.ErrFatalConfig, cfg.Backend)
	}
	log.WithField("backend", cfg.Backend).Info("position store ready")

	switch {
	case cfg.ClickhouseDSN != "":
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.ticks = chstore.NewPriceTickStore(conn)
		log.Info("price ticks recorded to clickhouse")
	case cfg.Backend == "memory":
		s.ticks = memory.NewPriceTickStore()
	}
	return s, nil
}

func run(cfg config.Config, logger *logrus.Logger, candidates []string) error {
	log := logging.Component(logger, "main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := time.Now()
	metrics := observability.NewMetrics("", nil)

	st, err := openStores(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer st.close()

	// Notification fan-out. The webhook gets its own context, cancelled
	// after the engine has stopped so shutdown events still go out.
	sinks := notify.Multi{notify.NewLogSink(logging.Component(logger, "notify")), metrics.Sink()}
	webhookCtx, stopWebhook := context.WithCancel(context.Background())
	webhookDone := make(chan struct{})
	if cfg.Notify.WebhookURL != "" {
		webhook := notify.NewWebhookSink(notify.WebhookConfig{
			URL:           cfg.Notify.WebhookURL,
			QueueSize:     cfg.Notify.QueueSize,
			RatePerSecond: cfg.Notify.RatePerSecond,
			MaxAttempts:   cfg.Notify.MaxAttempts,
		}, logging.Component(logger, "webhook"))
		sinks = append(sinks, webhook)
		metrics.WatchDrops("webhook", func() float64 { return float64(webhook.Dropped()) })
		go func() {
			defer close(webhookDone)
			webhook.Run(webhookCtx)
		}()
	} else {
		close(webhookDone)
	}
	defer func() {
		stopWebhook()
		<-webhookDone
	}()

	// Collaborators.
	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL,
		solana.WithCommitment(cfg.Solana.Commitment),
		solana.WithTimeout(config.Millis(cfg.Solana.RPCTimeoutMs)),
		solana.WithLatencyObserver(metrics.ObserveRPC),
	)
	httpCfg := func(baseURL string) provider.HTTPConfig {
		return provider.HTTPConfig{
			BaseURL:           baseURL,
			RequestsPerSecond: cfg.Providers.RequestsPerSecond,
			Burst:             cfg.Providers.Burst,
		}
	}
	cacheTTL := time.Duration(cfg.Providers.CacheTTLSec) * time.Second
	dex := provider.NewDexScreener(httpCfg(cfg.Providers.DexScreenerURL), cacheTTL, config.Millis(cfg.Providers.PriceCacheTTLMs))

	contractOpts := []provider.ContractOption{provider.WithContractCacheTTL(cacheTTL)}
	if cfg.Providers.TokenInfoURL != "" {
		contractOpts = append(contractOpts, provider.WithTokenInfo(provider.NewTokenInfoClient(httpCfg(cfg.Providers.TokenInfoURL))))
	}
	contract := provider.NewSolanaContract(rpc, contractOpts...)

	var social analysis.SocialProvider = provider.NoSocial{}
	if cfg.Providers.SocialURL != "" {
		social = provider.NewSocialScore(httpCfg(cfg.Providers.SocialURL))
	}

	var (
		gateway  execution.Gateway
		holdings sniper.HoldingRestorer
	)
	switch cfg.Execution.Mode {
	case "http":
		gateway = execution.NewHTTPGateway(execution.HTTPConfig{
			BaseURL: cfg.Execution.VenueURL,
			APIKey:  cfg.Execution.APIKey,
			Timeout: config.Millis(cfg.Execution.TimeoutMs),
		})
	default:
		paper := execution.NewPaperGateway(dex, execution.PaperConfig{
			Slippage:  cfg.Execution.PaperSlippage,
			FeeBps:    cfg.Execution.PaperFeeBps,
			StartCash: cfg.Execution.PaperStartCash,
		})
		gateway, holdings = paper, paper
	}
	log.WithField("mode", cfg.Execution.Mode).Info("execution gateway ready")

	// Pipeline.
	screener := screen.New(provider.NewScreenAdapter(contract, dex), screen.Config{
		Timeout:           config.Millis(cfg.Screen.TimeoutMs),
		MinContractAgeSec: cfg.Screen.MinContractAgeSec,
		PassScore:         cfg.Screen.PassScore,
	}, logging.Component(logger, "screen"))

	pipeline := analysis.New(analysis.Providers{
		Contract:  contract,
		Liquidity: dex,
		Social:    social,
		Holders:   provider.NewSolanaHolders(rpc, provider.DefaultHolderThresholds()),
	}, analysis.Config{
		Timeout:    config.Millis(cfg.Analysis.TimeoutMs),
		MaxRetries: cfg.Analysis.MaxRetries,
		RetryBase:  config.Millis(cfg.Analysis.RetryBaseMs),
		Weights:    analysis.WeightsFromConfig(cfg.Scoring),
	}, logging.Component(logger, "analysis"), analysis.WithObserver(metrics.ObserveAnalysis))

	manager := position.New(position.ConfigFrom(cfg), gateway, st.positions, sinks, logging.Component(logger, "positions"))

	monitorOpts := []lifecycle.Option{lifecycle.WithObserver(metrics.ObserveEvaluation)}
	if st.ticks != nil {
		monitorOpts = append(monitorOpts, lifecycle.WithTickStore(st.ticks))
	}
	monitor := lifecycle.New(lifecycle.ConfigFrom(cfg), manager, dex, gateway, sinks, logging.Component(logger, "monitor"), monitorOpts...)

	// Discovery.
	var sources []discovery.Source
	if len(candidates) > 0 {
		static := discovery.NewStaticSource()
		for _, address := range candidates {
			static.Add(&domain.Candidate{Network: cfg.Networks[0], Address: address})
		}
		sources = append(sources, static)
		log.WithField("candidates", len(candidates)).Info("evaluating fixed candidate list")
	} else {
		programs, err := discovery.ResolvePrograms(cfg.Solana.Programs)
		if err != nil {
			return err
		}
		ws, err := solana.NewWSClient(ctx, cfg.Solana.WSURL, &solana.WSClientConfig{Commitment: cfg.Solana.Commitment}, logging.Component(logger, "ws"))
		if err != nil {
			return fmt.Errorf("connect websocket: %w", err)
		}
		defer ws.Close()
		metrics.WatchDrops("ws", func() float64 { return float64(ws.Dropped()) })

		logs := discovery.NewLogSource(ws, rpc, discovery.LogConfig{
			Programs: programs,
			Buffer:   cfg.Solana.Buffer,
		}, logging.Component(logger, "discovery"))
		if err := logs.Start(ctx); err != nil {
			return err
		}
		defer logs.Wait()
		sources = append(sources, logs)
	}

	engine := sniper.New(sniper.Options{
		Config:    sniper.ConfigFrom(cfg),
		Sources:   sources,
		Screener:  screener,
		Analyzer:  pipeline,
		Gate:      decision.NewGate(decision.ThresholdsFromConfig(cfg.Decision)),
		Positions: manager,
		Monitor:   monitor,
		Store:     st.positions,
		Sink:      sinks,
		Metrics:   metrics,
		Holdings:  holdings,
		Logger:    logging.Component(logger, "engine"),
	})
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	if cfg.MetricsAddr != "" {
		srv := serve(cfg.MetricsAddr, newMux(manager, engine.Queue(), st.ticks, started), log)
		defer srv.Close()
	}

	// Handle shutdown signals: the first starts a graceful shutdown, a second
	// one forces exit.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("received signal, shutting down")

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Warn("received second signal, forcing exit")
		os.Exit(1)
	}()

	err = engine.Shutdown(context.Background())
	cancel()
	return err
}

func serve(addr string, mux *http.ServeMux, log *logrus.Entry) *http.Server {
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.WithField("addr", addr).Info("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server")
		}
	}()
	return srv
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
