package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one persisted tick observation.
type PriceSample struct {
	SampleTS  time.Time
	Pair      string
	Price     decimal.Decimal
	Source    string
	TickID    string
	CreatedAt time.Time
}

// AlertRecord captures one horizon alert for auditing.
type AlertRecord struct {
	ID             int64
	TickID         string
	SampleTS       time.Time
	Pair           string
	Horizon        string
	Direction      string
	ChangePct      decimal.Decimal
	ThresholdPct   decimal.Decimal
	ReferencePrice decimal.Decimal
	ReferenceTS    time.Time
	CreatedAt      time.Time
}
