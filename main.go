package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kginvest/config"
	"kginvest/internal/ai/llm"
	"kginvest/internal/database"
	"kginvest/internal/dream"
	"kginvest/internal/graph"
	"kginvest/internal/logging"
	"kginvest/internal/market"
	"kginvest/internal/portfolio"
	"kginvest/internal/think"
)

func main() {
	godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	// Execution-path logger
	execLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	repo := database.NewRepository(db)

	// Optional Redis quote cache
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, continuing without quote cache", "error", err)
			redisClient = nil
		} else {
			logger.Info("Redis quote cache enabled", "address", cfg.RedisConfig.Address)
			defer redisClient.Close()
		}
	}

	// LLM client and shared call budget
	var llmClient *llm.Client
	var budget *llm.Budget
	if cfg.AIConfig.Enabled {
		llmClient = llm.NewClient(&llm.ClientConfig{
			Provider:    llm.Provider(cfg.AIConfig.LLMProvider),
			APIKey:      apiKeyFor(cfg),
			Model:       cfg.AIConfig.LLMModel,
			MaxTokens:   cfg.AIConfig.MaxTokens,
			Temperature: 0.3,
			Timeout:     time.Duration(cfg.AIConfig.TimeoutSecs) * time.Second,
		})
		budget = llm.NewBudget(cfg.AIConfig.CallsPerMinute)
		if llmClient.IsConfigured() {
			logger.Info("LLM client initialized",
				"provider", cfg.AIConfig.LLMProvider,
				"model", cfg.AIConfig.LLMModel,
				"calls_per_minute", cfg.AIConfig.CallsPerMinute)
		} else {
			logger.Warn("LLM enabled but no API key set, semantic paths will fall back")
		}
	}

	// Market history, seeded from persisted snapshots
	history := market.NewHistoryStore(cfg.MarketConfig.HistoryWindow)
	if closes, err := repo.LoadRecentCloses(ctx, cfg.MarketConfig.HistoryWindow); err != nil {
		logger.Warn("Could not warm up price history", "error", err)
	} else {
		for sym, series := range closes {
			history.Seed(sym, series)
		}
		logger.Info("Price history warmed up", "symbols", len(closes))
	}

	// Knowledge graph, rebuilt from the database
	store := graph.NewStore(repo)
	if nodes, edges, err := repo.LoadGraph(ctx); err != nil {
		logger.Warn("Could not load persisted graph", "error", err)
	} else {
		for _, n := range nodes {
			store.RestoreNode(n)
		}
		for _, e := range edges {
			store.RestoreEdge(e)
		}
		logger.Info("Knowledge graph restored", "nodes", len(nodes), "edges", len(edges))
	}
	bootstrapNodes(ctx, store, cfg, logger)

	// Paper portfolio
	if err := repo.InitPortfolio(ctx, cfg.TradingConfig.StartCash); err != nil {
		log.Fatalf("Failed to initialize portfolio: %v", err)
	}
	cash, positions, lastTradeID, found, err := repo.LoadPortfolio(ctx)
	if err != nil {
		log.Fatalf("Failed to load portfolio: %v", err)
	}
	var ledger *portfolio.Ledger
	if found {
		posList := make([]portfolio.Position, 0, len(positions))
		for _, p := range positions {
			posList = append(posList, p)
		}
		ledger = portfolio.NewLedgerWithState(cash, posList, lastTradeID)
		logger.Info("Portfolio restored", "cash", cash, "positions", len(posList), "last_trade_id", lastTradeID)
	} else {
		ledger = portfolio.NewLedger(cfg.TradingConfig.StartCash)
		logger.Info("Portfolio initialized", "start_cash", cfg.TradingConfig.StartCash)
	}

	policy := portfolio.NewPolicy(&portfolio.PolicyConfig{
		MinNotional:        cfg.TradingConfig.MinTradeNotional,
		MaxSymbolWeightPct: cfg.TradingConfig.MaxSymbolWeightPct,
		MaxBuyPerCyclePct:  cfg.TradingConfig.MaxBuyPerCyclePct,
		MaxSellPerCyclePct: cfg.TradingConfig.MaxSellPerCyclePct,
		MinCashBufferPct:   cfg.TradingConfig.MinCashBufferPct,
		TradeAnytime:       cfg.TradingConfig.TradeAnytime,
	})
	executor := portfolio.NewExecutor(ledger, repo, execLogger)

	// Market worker
	quoteSource := market.NewYahooSource()
	var priceSource market.PriceSource = quoteSource
	if redisClient != nil {
		priceSource = market.NewCachedSource(quoteSource, redisClient,
			time.Duration(cfg.MarketConfig.QuoteCacheSecs)*time.Second)
	}
	marketWorker := market.NewWorker(&market.WorkerConfig{
		Interval:              time.Duration(cfg.MarketConfig.IntervalSecs) * time.Second,
		Investibles:           cfg.MarketConfig.Investibles,
		Bellwethers:           cfg.MarketConfig.Bellwethers,
		OptionSampleSize:      3,
		OptionsPerUnderlying:  4,
		OptionMinVolume:       50,
		OptionMinOpenInterest: 100,
	}, priceSource, quoteSource, history, repo)

	// Dream worker
	var semantic graph.SemanticLabeler
	if llmClient != nil && llmClient.IsConfigured() {
		semantic = dream.NewSemanticLabeler(llmClient, budget)
	}
	labeler := graph.NewLabeler(store, semantic, &graph.LabelerConfig{
		CorrelationThreshold: 0.25,
		SemanticInstBellPct:  cfg.DreamConfig.SemanticInstBellPct,
		SemanticOptBellPct:   cfg.DreamConfig.SemanticOptBellPct,
		SemanticOptOptPct:    cfg.DreamConfig.SemanticOptOptPct,
		OptionPairCooldown:   time.Duration(cfg.DreamConfig.OptionPairCooldownMins) * time.Minute,
	})
	dreamWorker := dream.NewWorker(&dream.WorkerConfig{
		Interval:          time.Duration(cfg.DreamConfig.IntervalSecs) * time.Second,
		Jitter:            30 * time.Second,
		MinHistory:        cfg.DreamConfig.MinHistory,
		CorrelationWindow: cfg.DreamConfig.CorrelationWindow,
		IVWindow:          cfg.DreamConfig.IVWindow,
		InstBellPct:       cfg.DreamConfig.InstBellwetherPct,
		OptBellPct:        cfg.DreamConfig.OptBellwetherPct,
		OptOptPct:         cfg.DreamConfig.OptOptionPct,
	}, store, labeler, history, repo)

	// Think worker
	var committee *think.Committee
	if llmClient != nil && llmClient.IsConfigured() {
		committee = think.NewCommittee(llmClient, budget)
	}
	thinkWorker := think.NewWorker(&think.WorkerConfig{
		Interval:       time.Duration(cfg.ThinkConfig.IntervalSecs) * time.Second,
		AutoTrade:      cfg.ThinkConfig.AutoTrade,
		StarThreshold:  cfg.ThinkConfig.StarThreshold,
		ExplanationMin: cfg.ThinkConfig.ExplanationMinLength,
		GraphEdges:     12,
		RecentTrades:   8,
		Universe:       cfg.MarketConfig.Investibles,
	}, committee, history, store, ledger, policy, executor, repo, repo)

	// Start workers
	if err := marketWorker.Start(); err != nil {
		log.Fatalf("Failed to start market worker: %v", err)
	}
	if err := dreamWorker.Start(); err != nil {
		log.Fatalf("Failed to start dream worker: %v", err)
	}
	if err := thinkWorker.Start(); err != nil {
		log.Fatalf("Failed to start think worker: %v", err)
	}
	if err := repo.RecordEvent(ctx, "main", "started", "all workers running"); err != nil {
		logger.Warn("Could not record startup event", "error", err)
	}
	logger.Info("All workers running")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	thinkWorker.Stop()
	dreamWorker.Stop()
	marketWorker.Stop()
	if err := repo.RecordEvent(ctx, "main", "stopped", "clean shutdown"); err != nil {
		logger.Warn("Could not record shutdown event", "error", err)
	}

	logger.Info("Shutdown complete")
}

// bootstrapNodes makes sure every configured instrument exists in the graph
// before the workers start sampling, along with the derived signal, regime
// and agent nodes and their seeded bellwether links.
func bootstrapNodes(ctx context.Context, store *graph.Store, cfg *config.Config, logger *logging.Logger) {
	for _, sym := range cfg.MarketConfig.Investibles {
		if _, err := store.GetOrCreateNode(ctx, sym, graph.KindInvestible, sym, "tradeable equity "+sym); err != nil {
			logger.Warn("Could not bootstrap node", "symbol", sym, "error", err)
		}
	}
	for _, sym := range cfg.MarketConfig.Bellwethers {
		if _, err := store.GetOrCreateNode(ctx, sym, graph.KindBellwether, sym, "macro bellwether "+sym); err != nil {
			logger.Warn("Could not bootstrap node", "symbol", sym, "error", err)
		}
	}

	seeds := []struct {
		id    string
		kind  graph.NodeKind
		label string
		desc  string
	}{
		{"risk_off", graph.KindSignal, "Risk-off", "flight-to-safety reading from VIX, dollar and bond momentum"},
		{"rates_up", graph.KindSignal, "Rates up", "rising-rate reading from dollar vs long bond momentum"},
		{"oil_shock", graph.KindSignal, "Oil shock", "energy price shock reading from oil momentum"},
		{"semi_pulse", graph.KindSignal, "Semiconductor pulse", "semiconductor cycle reading from SMH momentum"},
		{"market_regime", graph.KindRegime, "Market regime", "prevailing risk regime inferred from the signal set"},
		{"agent_momentum", graph.KindAgent, "Momentum agent", "committee agent arguing from price momentum"},
		{"agent_risk", graph.KindAgent, "Risk agent", "committee agent arguing from drawdown and volatility risk"},
		{"agent_macro", graph.KindAgent, "Macro agent", "committee agent arguing from macro signals"},
	}
	for _, s := range seeds {
		if _, err := store.GetOrCreateNode(ctx, s.id, s.kind, s.label, s.desc); err != nil {
			logger.Warn("Could not bootstrap node", "symbol", s.id, "error", err)
		}
	}

	// Known driver relationships between bellwethers and signals, written
	// once so the graph is never empty before the first assessment.
	drivers := []struct {
		bellwether string
		signal     string
		strength   float64
	}{
		{"^VIX", "risk_off", 0.80},
		{"UUP", "rates_up", 0.60},
		{"TLT", "rates_up", 0.60},
		{"USO", "oil_shock", 0.70},
		{"SMH", "semi_pulse", 0.70},
	}
	for _, d := range drivers {
		if _, ok := store.EdgeBetween(d.bellwether, d.signal); ok {
			continue
		}
		if _, err := store.GetOrCreateEdge(d.bellwether, d.signal); err != nil {
			logger.Warn("Could not seed edge", "pair", d.bellwether+"-"+d.signal, "error", err)
			continue
		}
		if err := store.UpsertChannel(d.bellwether, d.signal, "drives", d.strength); err != nil {
			logger.Warn("Could not seed channel", "pair", d.bellwether+"-"+d.signal, "error", err)
			continue
		}
		if err := store.CommitAssessment(ctx, d.bellwether, d.signal); err != nil {
			logger.Warn("Could not commit seed edge", "pair", d.bellwether+"-"+d.signal, "error", err)
		}
	}
}

func apiKeyFor(cfg *config.Config) string {
	switch cfg.AIConfig.LLMProvider {
	case "openai":
		return cfg.AIConfig.OpenAIAPIKey
	case "deepseek":
		return cfg.AIConfig.DeepSeekAPIKey
	default:
		return cfg.AIConfig.ClaudeAPIKey
	}
}
