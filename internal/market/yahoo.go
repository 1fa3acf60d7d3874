package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kginvest/internal/logging"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource fetches last closes and option chains from the Yahoo Finance
// quote API. It implements PriceSource and OptionsSource.
type YahooSource struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewYahooSource creates a Yahoo quote source.
func NewYahooSource() *YahooSource {
	return &YahooSource{
		baseURL: yahooBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logging.WithComponent("yahoo"),
	}
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

// LastCloseMany fetches the latest regular-market price for each symbol in
// one batched request. Symbols Yahoo does not return are simply absent from
// the result.
func (y *YahooSource) LastCloseMany(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	endpoint := fmt.Sprintf("%s/v7/finance/quote?symbols=%s",
		y.baseURL, url.QueryEscape(strings.Join(symbols, ",")))

	var parsed yahooQuoteResponse
	if err := y.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, err
	}
	if e := parsed.QuoteResponse.Error; e != nil {
		return nil, fmt.Errorf("yahoo quote error: %s - %s", e.Code, e.Description)
	}

	out := make(map[string]float64, len(parsed.QuoteResponse.Result))
	for _, r := range parsed.QuoteResponse.Result {
		if r.RegularMarketPrice > 0 {
			out[r.Symbol] = r.RegularMarketPrice
		}
	}
	return out, nil
}

type yahooOptionContract struct {
	ContractSymbol    string  `json:"contractSymbol"`
	Strike            float64 `json:"strike"`
	LastPrice         float64 `json:"lastPrice"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"openInterest"`
	Expiration        int64   `json:"expiration"`
	Delta             float64 `json:"delta"`
	Vega              float64 `json:"vega"`
}

type yahooOptionsResponse struct {
	OptionChain struct {
		Result []struct {
			UnderlyingSymbol string `json:"underlyingSymbol"`
			Options          []struct {
				ExpirationDate int64                 `json:"expirationDate"`
				Calls          []yahooOptionContract `json:"calls"`
				Puts           []yahooOptionContract `json:"puts"`
			} `json:"options"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"optionChain"`
}

// Chains fetches the near-term option chain per underlying. A failed
// underlying is skipped with a warning; the call only errors when every
// underlying fails.
func (y *YahooSource) Chains(ctx context.Context, underlyings []string) ([]OptionQuote, error) {
	var out []OptionQuote
	failures := 0
	for _, underlying := range underlyings {
		quotes, err := y.chainFor(ctx, underlying)
		if err != nil {
			y.logger.Warn("option chain fetch failed", "underlying", underlying, "error", err)
			failures++
			continue
		}
		out = append(out, quotes...)
	}
	if failures == len(underlyings) && failures > 0 {
		return nil, fmt.Errorf("all %d option chain fetches failed", failures)
	}
	return out, nil
}

func (y *YahooSource) chainFor(ctx context.Context, underlying string) ([]OptionQuote, error) {
	endpoint := fmt.Sprintf("%s/v7/finance/options/%s", y.baseURL, url.PathEscape(underlying))

	var parsed yahooOptionsResponse
	if err := y.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, err
	}
	if e := parsed.OptionChain.Error; e != nil {
		return nil, fmt.Errorf("yahoo options error: %s - %s", e.Code, e.Description)
	}
	if len(parsed.OptionChain.Result) == 0 {
		return nil, fmt.Errorf("no option chain for %s", underlying)
	}

	var out []OptionQuote
	for _, result := range parsed.OptionChain.Result {
		for _, expiry := range result.Options {
			for _, c := range expiry.Calls {
				out = append(out, toOptionQuote(underlying, "call", c))
			}
			for _, p := range expiry.Puts {
				out = append(out, toOptionQuote(underlying, "put", p))
			}
		}
	}
	return out, nil
}

func toOptionQuote(underlying, optType string, c yahooOptionContract) OptionQuote {
	expiry := time.Unix(c.Expiration, 0).UTC()
	delta := c.Delta
	if delta == 0 {
		// Yahoo omits greeks; fall back to a crude moneyness proxy so the
		// option graph still gets a usable directional magnitude.
		delta = 0.5
		if optType == "put" {
			delta = -0.5
		}
	}
	return OptionQuote{
		Contract:     contractID(underlying, optType, c.Strike, expiry),
		Underlying:   underlying,
		Type:         optType,
		Strike:       c.Strike,
		Expiry:       expiry,
		Price:        c.LastPrice,
		IV:           c.ImpliedVolatility,
		Delta:        delta,
		Vega:         c.Vega,
		Volume:       c.Volume,
		OpenInterest: c.OpenInterest,
	}
}

// contractID builds the internal contract identifier, e.g. AAPL_C180_0321.
func contractID(underlying, optType string, strike float64, expiry time.Time) string {
	letter := "C"
	if optType == "put" {
		letter = "P"
	}
	return fmt.Sprintf("%s_%s%g_%s", underlying, letter, strike, expiry.Format("0102"))
}

func (y *YahooSource) getJSON(ctx context.Context, endpoint string, into interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; kginvest/1.0)")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
