package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransientNetwork marks failures worth retrying on the next tick:
	// transport errors, timeouts, rate limiting and 5xx responses.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrExchangeProtocol marks responses the exchange answered but that
	// cannot be turned into a price.
	ErrExchangeProtocol = errors.New("exchange protocol error")
)

// PriceSource retrieves the latest traded price for a pair such as "BTC/USDT".
type PriceSource interface {
	FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, time.Time, error)
}

// Classify maps a fetch error onto a short label for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransientNetwork):
		return "network"
	case errors.Is(err, ErrExchangeProtocol):
		return "exchange"
	default:
		return "unexpected"
	}
}
