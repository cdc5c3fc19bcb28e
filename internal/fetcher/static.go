package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Series 按顺序回放一组固定价格，供 simulate 命令与测试使用。
type Series struct {
	mu     sync.Mutex
	prices []decimal.Decimal
	start  time.Time
	step   time.Duration
	next   int
}

// NewSeries builds a replaying source. The i-th quote is stamped start+i*step.
func NewSeries(prices []decimal.Decimal, start time.Time, step time.Duration) *Series {
	return &Series{prices: prices, start: start, step: step}
}

// FetchCurrentPrice returns the next price of the series.
func (s *Series) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.prices) {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("%w: series exhausted after %d quotes", ErrExchangeProtocol, len(s.prices))
	}
	price := s.prices[s.next]
	at := s.start.Add(time.Duration(s.next) * s.step)
	s.next++
	return price, at, nil
}

var _ PriceSource = (*Series)(nil)
