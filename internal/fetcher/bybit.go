package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const bybitTickersPath = "/v5/market/tickers"

// BybitOptions parameterise the Bybit ticker fetcher.
type BybitOptions struct {
	BaseURL   string
	Category  string
	Timeout   time.Duration
	UserAgent string
}

// Bybit reads last traded prices from the Bybit v5 public market API.
type Bybit struct {
	opts    BybitOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBybit constructs a Bybit price source.
func NewBybit(opts BybitOptions, logger zerolog.Logger) *Bybit {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.Category == "" {
		opts.Category = "spot"
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}

	return &Bybit{
		opts:    opts,
		logger:  logger.With().Str("component", "bybit_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchCurrentPrice returns the last traded price for pair and the exchange
// timestamp of the quote.
func (b *Bybit) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, time.Time, error) {
	symbol := Symbol(pair)
	if symbol == "" {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("%w: empty trading pair", ErrExchangeProtocol)
	}

	params := url.Values{}
	params.Set("category", b.opts.Category)
	params.Set("symbol", symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+bybitTickersPath+"?"+params.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("%w: build request: %v", ErrExchangeProtocol, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "btcwatch/1.0")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("%w: read body: %v", ErrTransientNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, time.Time{}, parseHTTPError(resp.StatusCode, payload)
	}

	var tickers tickersResponse
	if err := json.Unmarshal(payload, &tickers); err != nil {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("%w: decode tickers: %v", ErrExchangeProtocol, err)
	}
	if tickers.RetCode != 0 {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("%w: bybit retCode %d: %s", ErrExchangeProtocol, tickers.RetCode, tickers.RetMsg)
	}

	for _, t := range tickers.Result.List {
		if !strings.EqualFold(t.Symbol, symbol) {
			continue
		}
		price, err := decimal.NewFromString(t.LastPrice)
		if err != nil {
			return decimal.Decimal{}, time.Time{}, fmt.Errorf("%w: parse last price %q: %v", ErrExchangeProtocol, t.LastPrice, err)
		}
		if !price.IsPositive() {
			return decimal.Decimal{}, time.Time{}, fmt.Errorf("%w: non-positive last price %s", ErrExchangeProtocol, price)
		}

		fetchedAt := time.Now()
		if tickers.Time > 0 {
			fetchedAt = time.UnixMilli(tickers.Time)
		}

		b.logger.Debug().Str("symbol", symbol).Str("price", price.String()).Msg("ticker fetched")
		return price, fetchedAt, nil
	}

	return decimal.Decimal{}, time.Time{}, fmt.Errorf("%w: ticker %s not found", ErrExchangeProtocol, symbol)
}

// Symbol converts "BTC/USDT" into the exchange symbol "BTCUSDT".
func Symbol(pair string) string {
	s := strings.ToUpper(strings.TrimSpace(pair))
	s = strings.ReplaceAll(s, "/", "")
	return strings.ReplaceAll(s, "-", "")
}

type tickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string `json:"category"`
		List     []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	} `json:"result"`
	Time int64 `json:"time"`
}

func parseHTTPError(status int, payload []byte) error {
	kind := ErrExchangeProtocol
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		kind = ErrTransientNetwork
	}

	var apiErr struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.RetMsg != "" {
		return fmt.Errorf("%w: bybit api error (%d): %s", kind, status, apiErr.RetMsg)
	}
	if len(payload) > 0 {
		return fmt.Errorf("%w: bybit api error (%d): %s", kind, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%w: bybit api error (%d)", kind, status)
}

var _ PriceSource = (*Bybit)(nil)
