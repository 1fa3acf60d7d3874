package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kginvest/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger := logging.WithComponent("database")
	logger.Info("connected to PostgreSQL", "database", cfg.Database)

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("running database migrations")

	migrations := []string{
		// Knowledge graph nodes
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			id VARCHAR(64) PRIMARY KEY,
			kind VARCHAR(20) NOT NULL,
			label VARCHAR(120) NOT NULL,
			description TEXT,
			score DECIMAL(10, 6) NOT NULL DEFAULT 0,
			degree INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			last_touched TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_nodes_kind ON graph_nodes(kind)`,

		// Knowledge graph edges, one per unordered pair with node_a < node_b
		`CREATE TABLE IF NOT EXISTS graph_edges (
			node_a VARCHAR(64) NOT NULL,
			node_b VARCHAR(64) NOT NULL,
			edge_id BIGINT NOT NULL,
			weight DECIMAL(10, 6) NOT NULL DEFAULT 0,
			top_channel VARCHAR(40),
			note TEXT,
			assessment_count INTEGER NOT NULL DEFAULT 0,
			last_assessed TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (node_a, node_b),
			CHECK (node_a < node_b)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_weight ON graph_edges(weight DESC)`,
		`ALTER TABLE graph_edges ADD COLUMN IF NOT EXISTS note TEXT`,

		// Per-edge channel strengths
		`CREATE TABLE IF NOT EXISTS edge_channels (
			node_a VARCHAR(64) NOT NULL,
			node_b VARCHAR(64) NOT NULL,
			channel VARCHAR(40) NOT NULL,
			strength DECIMAL(10, 6) NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (node_a, node_b, channel)
		)`,

		// Market snapshots
		`CREATE TABLE IF NOT EXISTS market_snapshots (
			id BIGSERIAL PRIMARY KEY,
			taken_at TIMESTAMPTZ NOT NULL,
			prices JSONB NOT NULL,
			indicators JSONB,
			signals JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_market_snapshots_taken_at ON market_snapshots(taken_at)`,

		// Single-row portfolio summary
		`CREATE TABLE IF NOT EXISTS portfolio (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			cash DECIMAL(20, 8) NOT NULL,
			last_trade_id BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		// Open positions
		`CREATE TABLE IF NOT EXISTS positions (
			symbol VARCHAR(64) PRIMARY KEY,
			qty DECIMAL(20, 8) NOT NULL,
			avg_cost DECIMAL(20, 8) NOT NULL,
			last_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,

		// Append-only trade log
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGINT PRIMARY KEY,
			executed_at TIMESTAMPTZ NOT NULL,
			symbol VARCHAR(64) NOT NULL,
			side VARCHAR(4) NOT NULL,
			qty DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			notional DECIMAL(20, 8) NOT NULL,
			cash_after DECIMAL(20, 8) NOT NULL,
			reason TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at)`,

		// Committee deliberation insights
		`CREATE TABLE IF NOT EXISTS insights (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			trace_id VARCHAR(64),
			status VARCHAR(20) NOT NULL,
			starred BOOLEAN NOT NULL DEFAULT FALSE,
			confidence DECIMAL(10, 6),
			critic_score DECIMAL(10, 6),
			explanation TEXT,
			agents JSONB,
			decisions JSONB,
			raw_response TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_created_at ON insights(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_starred ON insights(starred)`,

		// Worker audit trail
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			actor VARCHAR(40) NOT NULL,
			action VARCHAR(60) NOT NULL,
			detail TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_actor ON events(actor)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info("database migrations completed", "count", len(migrations))
	return nil
}
