package graph

import (
	"context"
	"errors"
	"testing"
)

// ============================================================================
// TEST: Pair normalization and edge uniqueness
// ============================================================================

func TestGetOrCreateEdge_NormalizesPair(t *testing.T) {
	s := NewStore(nil)

	e1, err := s.GetOrCreateEdge("SPY", "AAPL")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	e2, err := s.GetOrCreateEdge("AAPL", "SPY")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if e1.ID != e2.ID {
		t.Errorf("Expected both orderings to resolve to one edge, got IDs %d and %d", e1.ID, e2.ID)
	}
	if e1.NodeA != "AAPL" || e1.NodeB != "SPY" {
		t.Errorf("Expected normalized order AAPL/SPY, got %s/%s", e1.NodeA, e1.NodeB)
	}
	if s.EdgeCount() != 1 {
		t.Errorf("Expected 1 edge, got %d", s.EdgeCount())
	}
}

func TestGetOrCreateEdge_RejectsSelfEdge(t *testing.T) {
	s := NewStore(nil)
	if _, err := s.GetOrCreateEdge("AAPL", "AAPL"); !errors.Is(err, ErrSelfEdge) {
		t.Errorf("Expected ErrSelfEdge, got %v", err)
	}
}

// ============================================================================
// TEST: Node creation idempotency
// ============================================================================

func TestGetOrCreateNode_Idempotent(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	n1, err := s.GetOrCreateNode(ctx, "AAPL", KindInvestible, "Apple", "original description")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	n2, err := s.GetOrCreateNode(ctx, "AAPL", KindBellwether, "Changed", "new description")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if n2.Kind != n1.Kind || n2.Label != "Apple" || n2.Description != "original description" {
		t.Error("Second create should return the original node unchanged")
	}
}

// ============================================================================
// TEST: Channel upsert and weight derivation
// ============================================================================

func TestUpsertChannel_Validation(t *testing.T) {
	s := NewStore(nil)
	s.GetOrCreateEdge("AAPL", "SPY")

	if err := s.UpsertChannel("AAPL", "SPY", "made_up_channel", 0.5); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Expected ErrUnknownChannel, got %v", err)
	}
	if err := s.UpsertChannel("AAPL", "SPY", "correlates", 1.5); !errors.Is(err, ErrChannelBounds) {
		t.Errorf("Expected ErrChannelBounds, got %v", err)
	}
	if err := s.UpsertChannel("AAPL", "SPY", "correlates", -0.1); !errors.Is(err, ErrChannelBounds) {
		t.Errorf("Expected ErrChannelBounds, got %v", err)
	}
	if err := s.UpsertChannel("MSFT", "SPY", "correlates", 0.5); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("Expected ErrEdgeNotFound for missing edge, got %v", err)
	}
}

func TestEdgeWeight_MeanOfChannels(t *testing.T) {
	s := NewStore(nil)
	s.GetOrCreateEdge("AAPL", "SPY")

	s.UpsertChannel("AAPL", "SPY", "correlates", 0.8)
	s.UpsertChannel("AAPL", "SPY", "liquidity_coupled", 0.4)

	e, ok := s.EdgeBetween("SPY", "AAPL")
	if !ok {
		t.Fatal("Edge should exist")
	}
	if !floatEquals(e.Weight, 0.6, 1e-9) {
		t.Errorf("Expected weight 0.6 (mean of 0.8, 0.4), got %f", e.Weight)
	}
	if e.TopChannel != "correlates" {
		t.Errorf("Expected top channel correlates, got %s", e.TopChannel)
	}
}

func TestEdgeWeight_OverwriteNotAccumulate(t *testing.T) {
	s := NewStore(nil)
	s.GetOrCreateEdge("AAPL", "SPY")

	s.UpsertChannel("AAPL", "SPY", "correlates", 0.8)
	s.UpsertChannel("AAPL", "SPY", "correlates", 0.5)

	e, _ := s.EdgeBetween("AAPL", "SPY")
	if len(e.Channels) != 1 {
		t.Fatalf("Expected 1 channel after overwrite, got %d", len(e.Channels))
	}
	if !floatEquals(e.Channels["correlates"], 0.5, 1e-9) {
		t.Errorf("Expected overwritten strength 0.5, got %f", e.Channels["correlates"])
	}
}

func TestTopChannel_TieBrokenByImportance(t *testing.T) {
	s := NewStore(nil)
	s.GetOrCreateEdge("AAPL", "SPY")

	// Equal strengths; drives (0.9) outranks hedges (0.8) in the catalog.
	s.UpsertChannel("AAPL", "SPY", "hedges", 0.7)
	s.UpsertChannel("AAPL", "SPY", "drives", 0.7)

	e, _ := s.EdgeBetween("AAPL", "SPY")
	if e.TopChannel != "drives" {
		t.Errorf("Expected tie broken by catalog importance toward drives, got %s", e.TopChannel)
	}
}

// ============================================================================
// TEST: Assessment commit and node scores
// ============================================================================

func TestCommitAssessment_BumpsCountAndScores(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	s.GetOrCreateNode(ctx, "AAPL", KindInvestible, "Apple", "")
	s.GetOrCreateNode(ctx, "SPY", KindBellwether, "S&P 500", "")
	s.GetOrCreateEdge("AAPL", "SPY")
	s.UpsertChannel("AAPL", "SPY", "correlates", 0.8)

	if err := s.CommitAssessment(ctx, "AAPL", "SPY"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	e, _ := s.EdgeBetween("AAPL", "SPY")
	if e.AssessmentCount != 1 {
		t.Errorf("Expected assessment count 1, got %d", e.AssessmentCount)
	}

	n, _ := s.Node("AAPL")
	if n.Degree != 1 {
		t.Errorf("Expected degree 1, got %d", n.Degree)
	}
	if n.Score <= 0 || n.Score >= 1 {
		t.Errorf("Expected score in (0,1), got %f", n.Score)
	}
}

func TestNodeScore_MonotoneInConnectivity(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	for _, id := range []string{"AAPL", "SPY", "QQQ", "TLT"} {
		s.GetOrCreateNode(ctx, id, KindInvestible, id, "")
	}

	s.GetOrCreateEdge("AAPL", "SPY")
	s.UpsertChannel("AAPL", "SPY", "correlates", 0.6)
	s.CommitAssessment(ctx, "AAPL", "SPY")
	n1, _ := s.Node("AAPL")

	s.GetOrCreateEdge("AAPL", "QQQ")
	s.UpsertChannel("AAPL", "QQQ", "correlates", 0.6)
	s.CommitAssessment(ctx, "AAPL", "QQQ")
	n2, _ := s.Node("AAPL")

	if n2.Score <= n1.Score {
		t.Errorf("Score should grow with connectivity: %f then %f", n1.Score, n2.Score)
	}
	if n2.Degree != 2 {
		t.Errorf("Expected degree 2, got %d", n2.Degree)
	}
}

// ============================================================================
// TEST: Restore and edge ID continuity
// ============================================================================

func TestRestoreEdge_AdvancesCounter(t *testing.T) {
	s := NewStore(nil)
	s.RestoreEdge(Edge{ID: 41, NodeA: "AAPL", NodeB: "SPY", Channels: map[string]float64{"correlates": 0.5}})

	e, err := s.GetOrCreateEdge("MSFT", "QQQ")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if e.ID != 42 {
		t.Errorf("Expected new edge ID 42 after restoring 41, got %d", e.ID)
	}

	restored, ok := s.EdgeBetween("SPY", "AAPL")
	if !ok {
		t.Fatal("Restored edge should be reachable")
	}
	if restored.Channels["correlates"] != 0.5 {
		t.Error("Restored edge should keep its channels")
	}
}

// ============================================================================
// TEST: Top edge query
// ============================================================================

func TestTopEdgesTouching(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()
	for _, id := range []string{"AAPL", "MSFT", "SPY", "QQQ"} {
		s.GetOrCreateNode(ctx, id, KindInvestible, id, "")
	}
	pairs := []struct {
		a, b     string
		strength float64
	}{
		{"AAPL", "SPY", 0.9},
		{"AAPL", "QQQ", 0.3},
		{"MSFT", "QQQ", 0.7},
	}
	for _, p := range pairs {
		s.GetOrCreateEdge(p.a, p.b)
		s.UpsertChannel(p.a, p.b, "correlates", p.strength)
	}

	top := s.TopEdgesTouching([]string{"AAPL"}, 1)
	if len(top) != 1 {
		t.Fatalf("Expected 1 edge, got %d", len(top))
	}
	if top[0].NodeA != "AAPL" || top[0].NodeB != "SPY" {
		t.Errorf("Expected strongest AAPL edge (AAPL-SPY), got %s-%s", top[0].NodeA, top[0].NodeB)
	}

	all := s.TopEdgesTouching([]string{"AAPL", "MSFT"}, 0)
	if len(all) != 3 {
		t.Errorf("Expected all 3 touching edges with no limit, got %d", len(all))
	}
}
