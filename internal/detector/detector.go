package detector

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"btcwatch/internal/window"
)

var hundred = decimal.NewFromInt(100)

// Horizon identifies the lookback distance of a comparison.
type Horizon int

const (
	// HorizonShort compares against the previous sample.
	HorizonShort Horizon = iota
	// HorizonMedium compares against the oldest sample of a full window.
	HorizonMedium
)

func (h Horizon) String() string {
	switch h {
	case HorizonShort:
		return "short"
	case HorizonMedium:
		return "medium"
	default:
		return fmt.Sprintf("horizon(%d)", int(h))
	}
}

// Direction is the sign of a price move.
type Direction int

const (
	// DirectionNone means no alert fired.
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}

// Thresholds hold the absolute percentage moves that trigger each horizon.
type Thresholds struct {
	ShortPct  decimal.Decimal
	MediumPct decimal.Decimal
}

// DefaultThresholds returns 0.3% for the short and 1.0% for the medium horizon.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ShortPct:  decimal.RequireFromString("0.3"),
		MediumPct: decimal.RequireFromString("1.0"),
	}
}

// Alert is a single threshold crossing.
type Alert struct {
	Horizon        Horizon
	ChangePct      decimal.Decimal
	Direction      Direction
	ReferencePrice decimal.Decimal
	ReferenceTime  time.Time
}

// Label returns the trading label shown for the alert.
func (a Alert) Label() string {
	switch {
	case a.Horizon == HorizonShort && a.Direction == DirectionUp:
		return "LONG"
	case a.Horizon == HorizonShort:
		return "SHORT"
	case a.Direction == DirectionUp:
		return "STRONG LONG"
	default:
		return "STRONG SHORT"
	}
}

// Result is the outcome of one evaluation.
type Result struct {
	Current window.Sample
	// Alerts holds the short alert before the medium one when both fire.
	Alerts []Alert
	Signal Direction
}

// Empty reports whether no alert fired.
func (r Result) Empty() bool { return len(r.Alerts) == 0 }

// Detector evaluates a window against fixed thresholds. It keeps no
// per-tick state.
type Detector struct {
	thresholds Thresholds
}

// New constructs a Detector.
func New(thresholds Thresholds) *Detector {
	return &Detector{thresholds: thresholds}
}

// Thresholds returns the configured trigger levels.
func (d *Detector) Thresholds() Thresholds { return d.thresholds }

// Evaluate compares the newest sample in w against the previous sample and,
// once w is full, against the oldest one.
func (d *Detector) Evaluate(w *window.Window) (Result, error) {
	current, err := w.Newest()
	if err != nil {
		return Result{}, fmt.Errorf("evaluate: %w", err)
	}

	res := Result{Current: current}

	if w.Len() >= 2 {
		ref, err := w.SecondNewest()
		if err != nil {
			return Result{}, fmt.Errorf("evaluate short horizon: %w", err)
		}
		if alert, ok := compare(HorizonShort, current, ref, d.thresholds.ShortPct); ok {
			res.Alerts = append(res.Alerts, alert)
		}
	}

	if w.IsFull() {
		ref, err := w.Oldest()
		if err != nil {
			return Result{}, fmt.Errorf("evaluate medium horizon: %w", err)
		}
		if alert, ok := compare(HorizonMedium, current, ref, d.thresholds.MediumPct); ok {
			res.Alerts = append(res.Alerts, alert)
		}
	}

	res.Signal = leadingSignal(res.Alerts)
	return res, nil
}

// CalculateChange returns (current-reference)/reference*100, or zero when
// reference is zero.
func CalculateChange(current, reference decimal.Decimal) decimal.Decimal {
	if reference.IsZero() {
		return decimal.Zero
	}
	return current.Sub(reference).Div(reference).Mul(hundred)
}

func compare(h Horizon, current, ref window.Sample, threshold decimal.Decimal) (Alert, bool) {
	change := CalculateChange(current.Price, ref.Price)
	if change.Abs().LessThan(threshold) {
		return Alert{}, false
	}

	dir := DirectionDown
	if change.IsPositive() {
		dir = DirectionUp
	}

	return Alert{
		Horizon:        h,
		ChangePct:      change,
		Direction:      dir,
		ReferencePrice: ref.Price,
		ReferenceTime:  ref.Timestamp,
	}, true
}

// leadingSignal prefers the short alert's direction, even when a medium
// alert points the other way.
func leadingSignal(alerts []Alert) Direction {
	for _, h := range []Horizon{HorizonShort, HorizonMedium} {
		for _, a := range alerts {
			if a.Horizon == h {
				return a.Direction
			}
		}
	}
	return DirectionNone
}
