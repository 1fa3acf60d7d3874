package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// NodeKind classifies graph nodes.
type NodeKind string

const (
	KindInvestible NodeKind = "investible"
	KindBellwether NodeKind = "bellwether"
	KindOptionCall NodeKind = "option_call"
	KindOptionPut  NodeKind = "option_put"
	KindSignal     NodeKind = "signal"
	KindAgent      NodeKind = "agent"
	KindRegime     NodeKind = "regime"
)

// Node is a tradeable instrument, macro bellwether, derivative contract or
// derived concept in the knowledge graph.
type Node struct {
	ID          string
	Kind        NodeKind
	Label       string
	Description string
	Score       float64
	Degree      int
	Active      bool
	LastTouched time.Time
}

// Edge is an undirected relationship between two distinct nodes, stored
// with NodeA < NodeB so at most one edge exists per unordered pair.
type Edge struct {
	ID              int64
	NodeA           string
	NodeB           string
	Weight          float64
	TopChannel      string
	Note            string // latest semantic labeling justification
	AssessmentCount int
	LastAssessed    time.Time
	Channels        map[string]float64
}

var (
	ErrSelfEdge      = errors.New("edge endpoints must differ")
	ErrEdgeNotFound  = errors.New("edge not found")
	ErrNodeNotFound  = errors.New("node not found")
	ErrChannelBounds = errors.New("channel strength out of [0,1]")
)

// Persister receives committed graph state. A nil persister keeps the
// store purely in memory.
type Persister interface {
	PersistNode(ctx context.Context, node Node) error
	PersistAssessment(ctx context.Context, edge Edge, nodes []Node) error
}

// Store is the in-memory view over the persistent graph. All mutation goes
// through its methods; read methods return copies so callers never hold
// references into guarded state.
type Store struct {
	mu        sync.RWMutex
	nodes     map[string]*Node
	edges     map[string]*Edge // keyed by normalized "a|b"
	nextEdge  int64
	persister Persister
}

// NewStore creates a graph store. persister may be nil.
func NewStore(persister Persister) *Store {
	return &Store{
		nodes:     make(map[string]*Node),
		edges:     make(map[string]*Edge),
		nextEdge:  1,
		persister: persister,
	}
}

// RestoreNode loads a persisted node into the store without triggering the
// persister. Used when rebuilding the in-memory view at startup.
func (s *Store) RestoreNode(n Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyN := n
	s.nodes[n.ID] = &copyN
}

// RestoreEdge loads a persisted edge into the store without triggering the
// persister. The edge keeps its stored ID; the internal counter advances
// past it so newly created edges never collide.
func (s *Store) RestoreEdge(e Edge) {
	na, nb := NormalizePair(e.NodeA, e.NodeB)
	copyE := copyEdge(&e)
	copyE.NodeA = na
	copyE.NodeB = nb
	if copyE.Channels == nil {
		copyE.Channels = make(map[string]float64)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[na+"|"+nb] = &copyE
	if e.ID >= s.nextEdge {
		s.nextEdge = e.ID + 1
	}
}

// NormalizePair orders an unordered node pair lexicographically.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func pairKey(a, b string) string {
	a, b = NormalizePair(a, b)
	return a + "|" + b
}

// GetOrCreateNode returns the existing node for id, or creates it. An
// existing node is returned unchanged; label and description from a stale
// second call never overwrite the stored values.
func (s *Store) GetOrCreateNode(ctx context.Context, id string, kind NodeKind, label, description string) (Node, error) {
	s.mu.Lock()
	if n, ok := s.nodes[id]; ok {
		copyN := *n
		s.mu.Unlock()
		return copyN, nil
	}
	n := &Node{
		ID:          id,
		Kind:        kind,
		Label:       label,
		Description: description,
		Active:      true,
		LastTouched: time.Now().UTC(),
	}
	s.nodes[id] = n
	copyN := *n
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.PersistNode(ctx, copyN); err != nil {
			return copyN, fmt.Errorf("persist node %s: %w", id, err)
		}
	}
	return copyN, nil
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// SetNodeActive toggles a node in or out of the sampling pools.
func (s *Store) SetNodeActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.Active = active
	return nil
}

// Nodes returns copies of all active nodes of the given kinds; with no
// kinds given it returns every active node.
func (s *Store) Nodes(kinds ...NodeKind) []Node {
	want := make(map[NodeKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if !n.Active {
			continue
		}
		if len(kinds) > 0 && !want[n.Kind] {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetOrCreateEdge returns the edge for the unordered pair {a,b}, creating
// it lazily. The pair is normalized first, so (a,b) and (b,a) resolve to
// the same edge.
func (s *Store) GetOrCreateEdge(a, b string) (Edge, error) {
	if a == b {
		return Edge{}, fmt.Errorf("%w: %s", ErrSelfEdge, a)
	}
	na, nb := NormalizePair(a, b)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := na + "|" + nb
	if e, ok := s.edges[key]; ok {
		return copyEdge(e), nil
	}
	e := &Edge{
		ID:       s.nextEdge,
		NodeA:    na,
		NodeB:    nb,
		Channels: make(map[string]float64),
	}
	s.nextEdge++
	s.edges[key] = e
	return copyEdge(e), nil
}

// EdgeBetween returns a copy of the edge for the pair, if present.
func (s *Store) EdgeBetween(a, b string) (Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[pairKey(a, b)]
	if !ok {
		return Edge{}, false
	}
	return copyEdge(e), true
}

// EdgeCount returns the number of edges in the store.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// UpsertChannel writes a channel strength on an edge, overwriting any
// previous strength for that channel. The channel name must be in the
// catalog and the strength in [0,1]; weight is recomputed immediately so
// it never goes stale relative to channels.
func (s *Store) UpsertChannel(a, b, channel string, strength float64) error {
	if !ValidChannel(channel) {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	if strength < 0 || strength > 1 {
		return fmt.Errorf("%w: %s=%f", ErrChannelBounds, channel, strength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[pairKey(a, b)]
	if !ok {
		return fmt.Errorf("%w: %s-%s", ErrEdgeNotFound, a, b)
	}
	e.Channels[channel] = strength
	recomputeWeight(e)
	return nil
}

// SetEdgeNote records the latest semantic justification on an edge,
// replacing any earlier note.
func (s *Store) SetEdgeNote(a, b, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[pairKey(a, b)]
	if !ok {
		return fmt.Errorf("%w: %s-%s", ErrEdgeNotFound, a, b)
	}
	e.Note = note
	return nil
}

// RecomputeEdgeWeight re-derives weight and top channel from the current
// channel set. Weight is the arithmetic mean of channel strengths; the top
// channel is the max-strength channel, ties broken by catalog importance
// then name.
func (s *Store) RecomputeEdgeWeight(a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[pairKey(a, b)]
	if !ok {
		return fmt.Errorf("%w: %s-%s", ErrEdgeNotFound, a, b)
	}
	recomputeWeight(e)
	return nil
}

func recomputeWeight(e *Edge) {
	if len(e.Channels) == 0 {
		e.Weight = 0
		e.TopChannel = ""
		return
	}
	var sum float64
	top := ""
	for name, strength := range e.Channels {
		sum += strength
		if top == "" || channelLess(top, e.Channels[top], name, strength) {
			top = name
		}
	}
	e.Weight = sum / float64(len(e.Channels))
	e.TopChannel = top
}

// channelLess reports whether candidate beats the current top channel.
func channelLess(top string, topStrength float64, name string, strength float64) bool {
	if strength != topStrength {
		return strength > topStrength
	}
	topImp := channelCatalog[top]
	imp := channelCatalog[name]
	if imp != topImp {
		return imp > topImp
	}
	return name < top
}

// RecomputeNodeDegreeAndScore refreshes a node's degree and connectivity
// score. The score is bounded to [0,1) and monotonically non-decreasing in
// both the number of incident edges and their weights.
func (s *Store) RecomputeNodeDegreeAndScore(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recomputeNodeLocked(id)
}

func (s *Store) recomputeNodeLocked(id string) error {
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	degree := 0
	var weightSum float64
	for _, e := range s.edges {
		if e.NodeA == id || e.NodeB == id {
			degree++
			weightSum += e.Weight
		}
	}
	n.Degree = degree
	n.Score = 1 - 1/(1+weightSum+0.1*float64(degree))
	n.LastTouched = time.Now().UTC()
	return nil
}

// CommitAssessment finalizes one assessment of the pair: bumps the edge's
// assessment count, re-derives weight and both endpoint scores, and hands
// the whole unit to the persister. Readers of the store never observe the
// edge between these steps.
func (s *Store) CommitAssessment(ctx context.Context, a, b string) error {
	s.mu.Lock()
	e, ok := s.edges[pairKey(a, b)]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s-%s", ErrEdgeNotFound, a, b)
	}
	e.AssessmentCount++
	e.LastAssessed = time.Now().UTC()
	recomputeWeight(e)
	if err := s.recomputeNodeLocked(e.NodeA); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.recomputeNodeLocked(e.NodeB); err != nil {
		s.mu.Unlock()
		return err
	}

	edgeCopy := copyEdge(e)
	nodeCopies := []Node{*s.nodes[e.NodeA], *s.nodes[e.NodeB]}
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.PersistAssessment(ctx, edgeCopy, nodeCopies); err != nil {
			return fmt.Errorf("persist assessment %s-%s: %w", edgeCopy.NodeA, edgeCopy.NodeB, err)
		}
	}
	return nil
}

// TopEdgesTouching returns the highest-weighted edges that touch any of
// the given node IDs, sorted by weight descending.
func (s *Store) TopEdgesTouching(ids []string, limit int) []Edge {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mu.RLock()
	matched := make([]Edge, 0, limit)
	for _, e := range s.edges {
		if want[e.NodeA] || want[e.NodeB] {
			matched = append(matched, copyEdge(e))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Weight != matched[j].Weight {
			return matched[i].Weight > matched[j].Weight
		}
		return matched[i].ID < matched[j].ID
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func copyEdge(e *Edge) Edge {
	channels := make(map[string]float64, len(e.Channels))
	for k, v := range e.Channels {
		channels[k] = v
	}
	out := *e
	out.Channels = channels
	return out
}
