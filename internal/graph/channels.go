package graph

import (
	"errors"
	"fmt"
)

// ErrUnknownChannel is returned when a channel name is not in the catalog.
var ErrUnknownChannel = errors.New("unknown channel")

// channelCatalog maps every valid channel name to its base importance
// weight. The weight is used for display prioritization and for breaking
// top-channel ties; edge weight itself is derived from strengths only.
var channelCatalog = map[string]float64{
	"correlates":            1.0,
	"inverse_correlates":    1.0,
	"drives":                0.9,
	"results_from":          0.8,
	"leads":                 0.7,
	"lags":                  0.7,
	"hedges":                0.8,
	"options_leverages":     0.8,
	"options_hedges":        0.8,
	"policy_exposed":        0.6,
	"supply_chain_linked":   0.6,
	"liquidity_coupled":     0.7,
	"sentiment_coupled":     0.7,
	"iv_correlates":         0.7,
	"delta_aligned":         0.6,
	"vertical_spread":       0.6,
	"horizontal_spread":     0.6,
	"diagonal_spread":       0.6,
	"collar":                0.6,
	"narrative_supports":    0.5,
	"narrative_contradicts": 0.7,
}

// ValidChannel reports whether name is part of the closed channel catalog.
func ValidChannel(name string) bool {
	_, ok := channelCatalog[name]
	return ok
}

// ChannelImportance returns the catalog importance weight for a channel.
func ChannelImportance(name string) (float64, error) {
	w, ok := channelCatalog[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return w, nil
}

// ChannelNames returns all catalog channel names (unordered).
func ChannelNames() []string {
	names := make([]string, 0, len(channelCatalog))
	for name := range channelCatalog {
		names = append(names, name)
	}
	return names
}
