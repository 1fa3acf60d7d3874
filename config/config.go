package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	MarketConfig   MarketConfig   `json:"market"`
	DreamConfig    DreamConfig    `json:"dream"`
	ThinkConfig    ThinkConfig    `json:"think"`
	TradingConfig  TradingConfig  `json:"trading"`
	AIConfig       AIConfig       `json:"ai"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for quote caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// MarketConfig controls the market snapshot worker
type MarketConfig struct {
	IntervalSecs   int      `json:"interval_secs"`    // Seconds between snapshot cycles
	HistoryWindow  int      `json:"history_window"`   // Rolling closes kept per symbol
	QuoteCacheSecs int      `json:"quote_cache_secs"` // Redis last-close cache TTL
	Investibles    []string `json:"investibles"`      // Tradeable universe
	Bellwethers    []string `json:"bellwethers"`      // Macro signal instruments
}

// DreamConfig controls the graph evolution worker
type DreamConfig struct {
	IntervalSecs           int `json:"interval_secs"`
	MinHistory             int `json:"min_history"`            // Snapshots required before a pair is eligible
	CorrelationWindow      int `json:"correlation_window"`     // Trailing periods for return correlation
	IVWindow               int `json:"iv_window"`              // Trailing points for IV correlation
	InstBellwetherPct      int `json:"inst_bellwether_pct"`    // Mode draw weights, must sum to 100
	OptBellwetherPct       int `json:"opt_bellwether_pct"`
	OptOptionPct           int `json:"opt_option_pct"`
	SemanticInstBellPct    int `json:"semantic_inst_bell_pct"` // LLM labeling probability per pair class
	SemanticOptBellPct     int `json:"semantic_opt_bell_pct"`
	SemanticOptOptPct      int `json:"semantic_opt_opt_pct"`
	OptionPairCooldownMins int `json:"option_pair_cooldown_mins"`
}

// ThinkConfig controls the decision committee worker
type ThinkConfig struct {
	IntervalSecs         int     `json:"interval_secs"`
	AutoTrade            bool    `json:"auto_trade"`             // Execute starred proposals
	StarThreshold        float64 `json:"star_threshold"`         // Critic score needed to star a proposal
	ExplanationMinLength int     `json:"explanation_min_length"`
}

// TradingConfig holds paper-portfolio sizing limits
type TradingConfig struct {
	StartCash          float64 `json:"start_cash"`
	MinTradeNotional   float64 `json:"min_trade_notional"`
	MaxSymbolWeightPct float64 `json:"max_symbol_weight_pct"` // Per-symbol value cap, % of total value
	MaxBuyPerCyclePct  float64 `json:"max_buy_per_cycle_pct"` // Cumulative buys per cycle, % of equity
	MaxSellPerCyclePct float64 `json:"max_sell_per_cycle_pct"` // Per-position sell cap, % of holding value
	MinCashBufferPct   float64 `json:"min_cash_buffer_pct"`   // Post-trade cash floor, % of total value
	TradeAnytime       bool    `json:"trade_anytime"`         // Ignore the market-hours gate
}

// AIConfig holds LLM configuration
type AIConfig struct {
	Enabled        bool   `json:"enabled"`
	LLMProvider    string `json:"llm_provider"` // "claude", "openai", or "deepseek"
	ClaudeAPIKey   string `json:"claude_api_key"`
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`
	LLMModel       string `json:"llm_model"`
	MaxTokens      int    `json:"max_tokens"`
	TimeoutSecs    int    `json:"timeout_secs"`
	CallsPerMinute int    `json:"calls_per_minute"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// DefaultInvestibles is the starter tradeable universe.
var DefaultInvestibles = []string{
	"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "META", "TSLA",
	"JPM", "XOM", "UNH", "AVGO", "COST",
}

// DefaultBellwethers are macro instruments sampled against investibles.
var DefaultBellwethers = []string{"SPY", "QQQ", "TLT", "UUP", "USO", "SMH", "^VIX"}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultString(cfg.DatabaseConfig.User, "kginvest"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultString(cfg.DatabaseConfig.Database, "kginvest"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Market config
	cfg.MarketConfig.IntervalSecs = getEnvIntOrDefault("MARKET_INTERVAL_SECS", defaultInt(cfg.MarketConfig.IntervalSecs, 180))
	cfg.MarketConfig.HistoryWindow = getEnvIntOrDefault("MARKET_HISTORY_WINDOW", defaultInt(cfg.MarketConfig.HistoryWindow, 90))
	cfg.MarketConfig.QuoteCacheSecs = getEnvIntOrDefault("MARKET_QUOTE_CACHE_SECS", defaultInt(cfg.MarketConfig.QuoteCacheSecs, 90))
	if v := os.Getenv("MARKET_INVESTIBLES"); v != "" {
		cfg.MarketConfig.Investibles = splitSymbols(v)
	}
	if len(cfg.MarketConfig.Investibles) == 0 {
		cfg.MarketConfig.Investibles = DefaultInvestibles
	}
	if v := os.Getenv("MARKET_BELLWETHERS"); v != "" {
		cfg.MarketConfig.Bellwethers = splitSymbols(v)
	}
	if len(cfg.MarketConfig.Bellwethers) == 0 {
		cfg.MarketConfig.Bellwethers = DefaultBellwethers
	}

	// Dream config
	cfg.DreamConfig.IntervalSecs = getEnvIntOrDefault("DREAM_INTERVAL_SECS", defaultInt(cfg.DreamConfig.IntervalSecs, 240))
	cfg.DreamConfig.MinHistory = getEnvIntOrDefault("DREAM_MIN_HISTORY", defaultInt(cfg.DreamConfig.MinHistory, 10))
	cfg.DreamConfig.CorrelationWindow = getEnvIntOrDefault("DREAM_CORRELATION_WINDOW", defaultInt(cfg.DreamConfig.CorrelationWindow, 60))
	cfg.DreamConfig.IVWindow = getEnvIntOrDefault("DREAM_IV_WINDOW", defaultInt(cfg.DreamConfig.IVWindow, 30))
	cfg.DreamConfig.InstBellwetherPct = getEnvIntOrDefault("DREAM_INST_BELLWETHER_PCT", defaultInt(cfg.DreamConfig.InstBellwetherPct, 60))
	cfg.DreamConfig.OptBellwetherPct = getEnvIntOrDefault("DREAM_OPT_BELLWETHER_PCT", defaultInt(cfg.DreamConfig.OptBellwetherPct, 20))
	cfg.DreamConfig.OptOptionPct = getEnvIntOrDefault("DREAM_OPT_OPTION_PCT", defaultInt(cfg.DreamConfig.OptOptionPct, 20))
	cfg.DreamConfig.SemanticInstBellPct = getEnvIntOrDefault("DREAM_SEMANTIC_INST_BELL_PCT", defaultInt(cfg.DreamConfig.SemanticInstBellPct, 30))
	cfg.DreamConfig.SemanticOptBellPct = getEnvIntOrDefault("DREAM_SEMANTIC_OPT_BELL_PCT", defaultInt(cfg.DreamConfig.SemanticOptBellPct, 40))
	cfg.DreamConfig.SemanticOptOptPct = getEnvIntOrDefault("DREAM_SEMANTIC_OPT_OPT_PCT", defaultInt(cfg.DreamConfig.SemanticOptOptPct, 50))
	cfg.DreamConfig.OptionPairCooldownMins = getEnvIntOrDefault("DREAM_OPTION_PAIR_COOLDOWN_MINS", defaultInt(cfg.DreamConfig.OptionPairCooldownMins, 60))

	// Think config
	cfg.ThinkConfig.IntervalSecs = getEnvIntOrDefault("THINK_INTERVAL_SECS", defaultInt(cfg.ThinkConfig.IntervalSecs, 300))
	cfg.ThinkConfig.AutoTrade = getEnvOrDefault("THINK_AUTO_TRADE", "true") == "true"
	cfg.ThinkConfig.StarThreshold = getEnvFloatOrDefault("THINK_STAR_THRESHOLD", defaultFloat(cfg.ThinkConfig.StarThreshold, 0.72))
	cfg.ThinkConfig.ExplanationMinLength = getEnvIntOrDefault("THINK_EXPLANATION_MIN_LENGTH", defaultInt(cfg.ThinkConfig.ExplanationMinLength, 180))

	// Trading config
	cfg.TradingConfig.StartCash = getEnvFloatOrDefault("TRADING_START_CASH", defaultFloat(cfg.TradingConfig.StartCash, 10000))
	cfg.TradingConfig.MinTradeNotional = getEnvFloatOrDefault("TRADING_MIN_NOTIONAL", defaultFloat(cfg.TradingConfig.MinTradeNotional, 25))
	cfg.TradingConfig.MaxSymbolWeightPct = getEnvFloatOrDefault("TRADING_MAX_SYMBOL_WEIGHT_PCT", defaultFloat(cfg.TradingConfig.MaxSymbolWeightPct, 14))
	cfg.TradingConfig.MaxBuyPerCyclePct = getEnvFloatOrDefault("TRADING_MAX_BUY_PER_CYCLE_PCT", defaultFloat(cfg.TradingConfig.MaxBuyPerCyclePct, 18))
	cfg.TradingConfig.MaxSellPerCyclePct = getEnvFloatOrDefault("TRADING_MAX_SELL_PER_CYCLE_PCT", defaultFloat(cfg.TradingConfig.MaxSellPerCyclePct, 35))
	cfg.TradingConfig.MinCashBufferPct = getEnvFloatOrDefault("TRADING_MIN_CASH_BUFFER_PCT", defaultFloat(cfg.TradingConfig.MinCashBufferPct, 12))
	cfg.TradingConfig.TradeAnytime = getEnvOrDefault("TRADING_TRADE_ANYTIME", "false") == "true"

	// AI config
	cfg.AIConfig.Enabled = getEnvOrDefault("AI_ENABLED", "true") == "true"
	cfg.AIConfig.LLMProvider = getEnvOrDefault("AI_LLM_PROVIDER", defaultString(cfg.AIConfig.LLMProvider, "claude"))
	cfg.AIConfig.ClaudeAPIKey = getEnvOrDefault("AI_CLAUDE_API_KEY", cfg.AIConfig.ClaudeAPIKey)
	cfg.AIConfig.OpenAIAPIKey = getEnvOrDefault("AI_OPENAI_API_KEY", cfg.AIConfig.OpenAIAPIKey)
	cfg.AIConfig.DeepSeekAPIKey = getEnvOrDefault("AI_DEEPSEEK_API_KEY", cfg.AIConfig.DeepSeekAPIKey)
	cfg.AIConfig.LLMModel = getEnvOrDefault("AI_LLM_MODEL", defaultString(cfg.AIConfig.LLMModel, "claude-3-haiku-20240307"))
	cfg.AIConfig.MaxTokens = getEnvIntOrDefault("AI_MAX_TOKENS", defaultInt(cfg.AIConfig.MaxTokens, 1024))
	cfg.AIConfig.TimeoutSecs = getEnvIntOrDefault("AI_TIMEOUT_SECS", defaultInt(cfg.AIConfig.TimeoutSecs, 45))
	cfg.AIConfig.CallsPerMinute = getEnvIntOrDefault("AI_CALLS_PER_MINUTE", defaultInt(cfg.AIConfig.CallsPerMinute, 8))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func splitSymbols(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultString(current, fallback string) string {
	if current != "" {
		return current
	}
	return fallback
}

func defaultInt(current, fallback int) int {
	if current != 0 {
		return current
	}
	return fallback
}

func defaultFloat(current, fallback float64) float64 {
	if current != 0 {
		return current
	}
	return fallback
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "kginvest",
			Password: "change_me",
			Database: "kginvest",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Enabled:  false,
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		MarketConfig: MarketConfig{
			IntervalSecs:   180,
			HistoryWindow:  90,
			QuoteCacheSecs: 90,
			Investibles:    DefaultInvestibles,
			Bellwethers:    DefaultBellwethers,
		},
		DreamConfig: DreamConfig{
			IntervalSecs:           240,
			MinHistory:             10,
			CorrelationWindow:      60,
			IVWindow:               30,
			InstBellwetherPct:      60,
			OptBellwetherPct:       20,
			OptOptionPct:           20,
			SemanticInstBellPct:    30,
			SemanticOptBellPct:     40,
			SemanticOptOptPct:      50,
			OptionPairCooldownMins: 60,
		},
		ThinkConfig: ThinkConfig{
			IntervalSecs:         300,
			AutoTrade:            true,
			StarThreshold:        0.72,
			ExplanationMinLength: 180,
		},
		TradingConfig: TradingConfig{
			StartCash:          10000,
			MinTradeNotional:   25,
			MaxSymbolWeightPct: 14,
			MaxBuyPerCyclePct:  18,
			MaxSellPerCyclePct: 35,
			MinCashBufferPct:   12,
			TradeAnytime:       false,
		},
		AIConfig: AIConfig{
			Enabled:        true,
			LLMProvider:    "claude",
			LLMModel:       "claude-3-haiku-20240307",
			MaxTokens:      1024,
			TimeoutSecs:    45,
			CallsPerMinute: 8,
		},
		LoggingConfig: LoggingConfig{
			Level:       "INFO",
			Output:      "stdout",
			JSONFormat:  true,
			IncludeFile: false,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
