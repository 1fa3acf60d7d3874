package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"kginvest/internal/graph"
	"kginvest/internal/logging"
	"kginvest/internal/market"
	"kginvest/internal/portfolio"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// KNOWLEDGE GRAPH
// ============================================================================

// PersistNode upserts one graph node.
func (r *Repository) PersistNode(ctx context.Context, node graph.Node) error {
	query := `
		INSERT INTO graph_nodes (id, kind, label, description, score, degree, active, last_touched)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET score = EXCLUDED.score, degree = EXCLUDED.degree,
		    active = EXCLUDED.active, last_touched = EXCLUDED.last_touched
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		node.ID, string(node.Kind), node.Label, node.Description,
		node.Score, node.Degree, node.Active, node.LastTouched,
	)
	return err
}

// PersistAssessment writes a committed edge assessment as one transaction:
// the edge row, its full channel set, and the refreshed endpoint nodes.
func (r *Repository) PersistAssessment(ctx context.Context, edge graph.Edge, nodes []graph.Node) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin assessment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO graph_edges (node_a, node_b, edge_id, weight, top_channel, note, assessment_count, last_assessed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (node_a, node_b) DO UPDATE
		SET weight = EXCLUDED.weight, top_channel = EXCLUDED.top_channel, note = EXCLUDED.note,
		    assessment_count = EXCLUDED.assessment_count, last_assessed = EXCLUDED.last_assessed
	`, edge.NodeA, edge.NodeB, edge.ID, edge.Weight, edge.TopChannel, edge.Note, edge.AssessmentCount, edge.LastAssessed)
	if err != nil {
		return fmt.Errorf("upsert edge %s-%s: %w", edge.NodeA, edge.NodeB, err)
	}

	if _, err = tx.Exec(ctx,
		`DELETE FROM edge_channels WHERE node_a = $1 AND node_b = $2`,
		edge.NodeA, edge.NodeB); err != nil {
		return fmt.Errorf("clear edge channels: %w", err)
	}
	for channel, strength := range edge.Channels {
		if _, err = tx.Exec(ctx, `
			INSERT INTO edge_channels (node_a, node_b, channel, strength, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, edge.NodeA, edge.NodeB, channel, strength, time.Now().UTC()); err != nil {
			return fmt.Errorf("insert channel %s: %w", channel, err)
		}
	}

	for _, node := range nodes {
		if _, err = tx.Exec(ctx, `
			UPDATE graph_nodes
			SET score = $2, degree = $3, last_touched = $4
			WHERE id = $1
		`, node.ID, node.Score, node.Degree, node.LastTouched); err != nil {
			return fmt.Errorf("update node %s: %w", node.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// LoadGraph reads the persisted graph for rebuilding the in-memory store
// at startup. Edges come back with their channel maps attached.
func (r *Repository) LoadGraph(ctx context.Context) ([]graph.Node, []graph.Edge, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, kind, label, COALESCE(description, ''), score, degree, active, last_touched
		FROM graph_nodes
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load nodes: %w", err)
	}
	var nodes []graph.Node
	for rows.Next() {
		var n graph.Node
		var kind string
		if err := rows.Scan(&n.ID, &kind, &n.Label, &n.Description, &n.Score, &n.Degree, &n.Active, &n.LastTouched); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan node: %w", err)
		}
		n.Kind = graph.NodeKind(kind)
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	edgeRows, err := r.db.Pool.Query(ctx, `
		SELECT node_a, node_b, edge_id, weight, COALESCE(top_channel, ''), COALESCE(note, ''), assessment_count, COALESCE(last_assessed, 'epoch'::timestamptz)
		FROM graph_edges
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load edges: %w", err)
	}
	edgeIndex := make(map[string]int)
	var edges []graph.Edge
	for edgeRows.Next() {
		var e graph.Edge
		if err := edgeRows.Scan(&e.NodeA, &e.NodeB, &e.ID, &e.Weight, &e.TopChannel, &e.Note, &e.AssessmentCount, &e.LastAssessed); err != nil {
			edgeRows.Close()
			return nil, nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Channels = make(map[string]float64)
		edgeIndex[e.NodeA+"|"+e.NodeB] = len(edges)
		edges = append(edges, e)
	}
	edgeRows.Close()
	if err := edgeRows.Err(); err != nil {
		return nil, nil, err
	}

	chanRows, err := r.db.Pool.Query(ctx, `SELECT node_a, node_b, channel, strength FROM edge_channels`)
	if err != nil {
		return nil, nil, fmt.Errorf("load channels: %w", err)
	}
	defer chanRows.Close()
	for chanRows.Next() {
		var a, b, channel string
		var strength float64
		if err := chanRows.Scan(&a, &b, &channel, &strength); err != nil {
			return nil, nil, fmt.Errorf("scan channel: %w", err)
		}
		if i, ok := edgeIndex[a+"|"+b]; ok {
			edges[i].Channels[channel] = strength
		}
	}
	return nodes, edges, chanRows.Err()
}

// ============================================================================
// MARKET SNAPSHOTS
// ============================================================================

// PersistSnapshot stores one market snapshot.
func (r *Repository) PersistSnapshot(ctx context.Context, snap market.Snapshot) error {
	prices, err := json.Marshal(snap.Prices)
	if err != nil {
		return fmt.Errorf("marshal prices: %w", err)
	}
	indicators, err := json.Marshal(snap.Indicators)
	if err != nil {
		return fmt.Errorf("marshal indicators: %w", err)
	}
	signals, err := json.Marshal(snap.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO market_snapshots (taken_at, prices, indicators, signals)
		VALUES ($1, $2, $3, $4)
	`, snap.Timestamp, prices, indicators, signals)
	return err
}

// LoadRecentCloses reads the last `limit` snapshots and reassembles
// per-symbol close series in chronological order, for warming up the
// history store at startup.
func (r *Repository) LoadRecentCloses(ctx context.Context, limit int) (map[string][]float64, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT prices FROM (
			SELECT id, prices FROM market_snapshots ORDER BY taken_at DESC LIMIT $1
		) recent ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float64)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var prices map[string]float64
		if err := json.Unmarshal(raw, &prices); err != nil {
			// A malformed historical row should not block startup.
			logging.DatabaseContext("load", "market_snapshots").Warn("skipping malformed snapshot row", "error", err)
			continue
		}
		for sym, price := range prices {
			out[sym] = append(out[sym], price)
		}
	}
	return out, rows.Err()
}

// ============================================================================
// PORTFOLIO
// ============================================================================

// PersistTrades writes an executed batch and the resulting portfolio state
// in one transaction: the trade rows, the cash row, and the full position
// set (positions absent from the snapshot are removed).
func (r *Repository) PersistTrades(ctx context.Context, records []portfolio.TradeRecord, cash float64, positions []portfolio.Position) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin trade tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var lastTradeID int64
	for _, rec := range records {
		if _, err = tx.Exec(ctx, `
			INSERT INTO trades (id, executed_at, symbol, side, qty, price, notional, cash_after, reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, rec.ID, rec.Timestamp, rec.Symbol, string(rec.Side), rec.Qty, rec.Price, rec.Notional, rec.CashAfter, rec.Reason); err != nil {
			return fmt.Errorf("insert trade %d: %w", rec.ID, err)
		}
		if rec.ID > lastTradeID {
			lastTradeID = rec.ID
		}
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO portfolio (id, cash, last_trade_id, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET cash = EXCLUDED.cash,
		    last_trade_id = GREATEST(portfolio.last_trade_id, EXCLUDED.last_trade_id),
		    updated_at = EXCLUDED.updated_at
	`, cash, lastTradeID, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert portfolio: %w", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	for _, pos := range positions {
		if _, err = tx.Exec(ctx, `
			INSERT INTO positions (symbol, qty, avg_cost, last_price, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, pos.Symbol, pos.Qty, pos.AvgCost, pos.LastPrice, time.Now().UTC()); err != nil {
			return fmt.Errorf("insert position %s: %w", pos.Symbol, err)
		}
	}

	return tx.Commit(ctx)
}

// InitPortfolio seeds the portfolio row with starting cash if none exists.
func (r *Repository) InitPortfolio(ctx context.Context, startCash float64) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO portfolio (id, cash, last_trade_id)
		VALUES (1, $1, 0)
		ON CONFLICT (id) DO NOTHING
	`, startCash)
	return err
}

// LoadPortfolio reads the persisted portfolio state. found is false when no
// portfolio row exists yet.
func (r *Repository) LoadPortfolio(ctx context.Context) (cash float64, positions map[string]portfolio.Position, lastTradeID int64, found bool, err error) {
	err = r.db.Pool.QueryRow(ctx, `SELECT cash, last_trade_id FROM portfolio WHERE id = 1`).Scan(&cash, &lastTradeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, 0, false, nil
	}
	if err != nil {
		return 0, nil, 0, false, fmt.Errorf("load portfolio: %w", err)
	}

	rows, qerr := r.db.Pool.Query(ctx, `SELECT symbol, qty, avg_cost, last_price FROM positions`)
	if qerr != nil {
		return 0, nil, 0, false, fmt.Errorf("load positions: %w", qerr)
	}
	defer rows.Close()

	positions = make(map[string]portfolio.Position)
	for rows.Next() {
		var pos portfolio.Position
		if err := rows.Scan(&pos.Symbol, &pos.Qty, &pos.AvgCost, &pos.LastPrice); err != nil {
			return 0, nil, 0, false, fmt.Errorf("scan position: %w", err)
		}
		positions[pos.Symbol] = pos
	}
	return cash, positions, lastTradeID, true, rows.Err()
}

// LoadTrades reads the full trade log in execution order.
func (r *Repository) LoadTrades(ctx context.Context) ([]portfolio.TradeRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, executed_at, symbol, side, qty, price, notional, cash_after, COALESCE(reason, '')
		FROM trades
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	defer rows.Close()

	var records []portfolio.TradeRecord
	for rows.Next() {
		var rec portfolio.TradeRecord
		var side string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Symbol, &side, &rec.Qty, &rec.Price, &rec.Notional, &rec.CashAfter, &rec.Reason); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		rec.Side = portfolio.Side(side)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ============================================================================
// INSIGHTS
// ============================================================================

// SaveInsight stores one committee deliberation.
func (r *Repository) SaveInsight(ctx context.Context, insight *Insight) error {
	query := `
		INSERT INTO insights (trace_id, status, starred, confidence, critic_score, explanation, agents, decisions, raw_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		insight.TraceID, insight.Status, insight.Starred, insight.Confidence,
		insight.CriticScore, insight.Explanation, insight.Agents, insight.Decisions, insight.RawResponse,
	).Scan(&insight.ID, &insight.CreatedAt)
}

// RecentInsights returns the latest insights, newest first. starredOnly
// restricts to starred deliberations.
func (r *Repository) RecentInsights(ctx context.Context, limit int, starredOnly bool) ([]*Insight, error) {
	query := `
		SELECT id, created_at, COALESCE(trace_id, ''), status, starred,
		       COALESCE(confidence, 0), COALESCE(critic_score, 0), COALESCE(explanation, ''),
		       agents, decisions
		FROM insights
	`
	if starredOnly {
		query += ` WHERE starred = TRUE`
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("load insights: %w", err)
	}
	defer rows.Close()

	var out []*Insight
	for rows.Next() {
		insight := &Insight{}
		if err := rows.Scan(
			&insight.ID, &insight.CreatedAt, &insight.TraceID, &insight.Status, &insight.Starred,
			&insight.Confidence, &insight.CriticScore, &insight.Explanation,
			&insight.Agents, &insight.Decisions,
		); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		out = append(out, insight)
	}
	return out, rows.Err()
}

// ============================================================================
// EVENTS
// ============================================================================

// RecordEvent appends one audit-trail entry. Failures here are reported but
// callers treat them as non-fatal.
func (r *Repository) RecordEvent(ctx context.Context, actor, action, detail string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO events (actor, action, detail)
		VALUES ($1, $2, $3)
	`, actor, action, detail)
	return err
}

// RecentEvents returns the latest audit entries, newest first.
func (r *Repository) RecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, created_at, actor, action, COALESCE(detail, '')
		FROM events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		evt := &Event{}
		if err := rows.Scan(&evt.ID, &evt.CreatedAt, &evt.Actor, &evt.Action, &evt.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}
