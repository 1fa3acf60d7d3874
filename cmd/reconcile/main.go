package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"kginvest/config"
	"kginvest/internal/database"
	"kginvest/internal/portfolio"
)

const driftTolerance = 0.01

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		fmt.Printf("❌ Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("📋 PORTFOLIO RECONCILIATION REPORT")
	fmt.Println(strings.Repeat("=", 80))

	records, err := repo.LoadTrades(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to load trade log: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n📜 Trade log: %d records\n", len(records))

	storedCash, storedPositions, lastTradeID, found, err := repo.LoadPortfolio(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to load portfolio state: %v\n", err)
		os.Exit(1)
	}
	if !found {
		fmt.Println("⚠️  No portfolio row stored yet, nothing to reconcile")
		os.Exit(0)
	}

	replayed, err := portfolio.Replay(cfg.TradingConfig.StartCash, records)
	if err != nil {
		fmt.Printf("❌ Trade log does not replay cleanly: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n💰 Cash:       stored $%.2f, replayed $%.2f\n", storedCash, replayed.Cash())
	fmt.Printf("🔢 Last trade: stored #%d, replayed #%d\n", lastTradeID, highestID(records))

	drift := 0

	if math.Abs(storedCash-replayed.Cash()) > driftTolerance {
		fmt.Printf("❌ CASH DRIFT: %.4f\n", storedCash-replayed.Cash())
		drift++
	}

	replayedPositions := make(map[string]portfolio.Position)
	for _, pos := range replayed.Positions() {
		replayedPositions[pos.Symbol] = pos
	}

	fmt.Printf("\n📦 Positions: stored %d, replayed %d\n", len(storedPositions), len(replayedPositions))
	for sym, stored := range storedPositions {
		rep, ok := replayedPositions[sym]
		if !ok {
			fmt.Printf("❌ %s: stored qty %.6f but absent from replay\n", sym, stored.Qty)
			drift++
			continue
		}
		if math.Abs(stored.Qty-rep.Qty) > 1e-6 {
			fmt.Printf("❌ %s: qty drift stored %.6f vs replayed %.6f\n", sym, stored.Qty, rep.Qty)
			drift++
		}
		if math.Abs(stored.AvgCost-rep.AvgCost) > driftTolerance {
			fmt.Printf("❌ %s: avg cost drift stored %.4f vs replayed %.4f\n", sym, stored.AvgCost, rep.AvgCost)
			drift++
		}
	}
	for sym, rep := range replayedPositions {
		if _, ok := storedPositions[sym]; !ok {
			fmt.Printf("❌ %s: replayed qty %.6f but absent from stored state\n", sym, rep.Qty)
			drift++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	if drift == 0 {
		fmt.Println("✅ Stored portfolio state matches the trade log replay")
	} else {
		fmt.Printf("❌ %d discrepancies found\n", drift)
		os.Exit(1)
	}
}

func highestID(records []portfolio.TradeRecord) int64 {
	var max int64
	for _, r := range records {
		if r.ID > max {
			max = r.ID
		}
	}
	return max
}
