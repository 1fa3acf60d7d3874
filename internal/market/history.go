package market

import (
	"sort"
	"sync"
	"time"
)

// HistoryStore keeps the rolling close history per symbol and the rolling
// IV history per monitored option contract. It is the in-memory view the
// correlation engine reads; persistence happens per snapshot in the
// market worker.
type HistoryStore struct {
	mu      sync.RWMutex
	window  int
	closes  map[string][]float64
	last    map[string]float64
	lastAt  time.Time
	options map[string]*optionSeries
}

type optionSeries struct {
	quote OptionQuote
	ivs   []float64
}

// NewHistoryStore creates a history store keeping up to window closes per
// symbol.
func NewHistoryStore(window int) *HistoryStore {
	if window < 2 {
		window = 2
	}
	return &HistoryStore{
		window:  window,
		closes:  make(map[string][]float64),
		last:    make(map[string]float64),
		options: make(map[string]*optionSeries),
	}
}

// Append records one snapshot of last-close prices. Symbols absent from
// prices simply keep their existing history.
func (h *HistoryStore) Append(at time.Time, prices map[string]float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sym, price := range prices {
		if price <= 0 {
			continue
		}
		series := append(h.closes[sym], price)
		if len(series) > h.window {
			series = series[len(series)-h.window:]
		}
		h.closes[sym] = series
		h.last[sym] = price
	}
	h.lastAt = at
}

// Seed replaces a symbol's history wholesale, used when warming up from
// persisted snapshots at startup.
func (h *HistoryStore) Seed(symbol string, closes []float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(closes) > h.window {
		closes = closes[len(closes)-h.window:]
	}
	series := make([]float64, len(closes))
	copy(series, closes)
	h.closes[symbol] = series
	if len(series) > 0 {
		h.last[symbol] = series[len(series)-1]
	}
}

// Closes returns a copy of the close history for symbol.
func (h *HistoryStore) Closes(symbol string) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	series := h.closes[symbol]
	out := make([]float64, len(series))
	copy(out, series)
	return out
}

// Count returns the number of stored closes for symbol.
func (h *HistoryStore) Count(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.closes[symbol])
}

// Last returns the most recent close for symbol.
func (h *HistoryStore) Last(symbol string) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.last[symbol]
	return v, ok
}

// LastPrices returns a copy of the latest close per symbol.
func (h *HistoryStore) LastPrices() map[string]float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]float64, len(h.last))
	for k, v := range h.last {
		out[k] = v
	}
	return out
}

// LastSnapshotAt returns the timestamp of the most recent append.
func (h *HistoryStore) LastSnapshotAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastAt
}

// AppendOption records one observation of a monitored option contract,
// extending its rolling IV series.
func (h *HistoryStore) AppendOption(q OptionQuote) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.options[q.Contract]
	if !ok {
		s = &optionSeries{}
		h.options[q.Contract] = s
	}
	s.quote = q
	s.ivs = append(s.ivs, q.IV)
	if len(s.ivs) > h.window {
		s.ivs = s.ivs[len(s.ivs)-h.window:]
	}
}

// OptionContracts returns the latest quote for every monitored contract
// with at least minHistory IV observations, sorted by contract name.
func (h *HistoryStore) OptionContracts(minHistory int) []OptionQuote {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]OptionQuote, 0, len(h.options))
	for _, s := range h.options {
		if len(s.ivs) >= minHistory {
			out = append(out, s.quote)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contract < out[j].Contract })
	return out
}

// OptionIVs returns a copy of the IV history for a contract.
func (h *HistoryStore) OptionIVs(contract string) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.options[contract]
	if !ok {
		return nil
	}
	out := make([]float64, len(s.ivs))
	copy(out, s.ivs)
	return out
}

// OptionQuoteFor returns the latest quote for a contract.
func (h *HistoryStore) OptionQuoteFor(contract string) (OptionQuote, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.options[contract]
	if !ok {
		return OptionQuote{}, false
	}
	return s.quote, true
}
