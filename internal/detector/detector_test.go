package detector

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"btcwatch/internal/window"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func windowOf(prices ...string) *window.Window {
	w := window.New(window.DefaultCapacity)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, p := range prices {
		w.Append(window.Sample{Price: dec(p), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	return w
}

func evaluate(t *testing.T, prices ...string) Result {
	t.Helper()
	res, err := New(DefaultThresholds()).Evaluate(windowOf(prices...))
	require.NoError(t, err)
	return res
}

func TestCalculateChange(t *testing.T) {
	require.True(t, CalculateChange(dec("110"), dec("100")).Equal(dec("10")))
	require.True(t, CalculateChange(dec("90"), dec("100")).Equal(dec("-10")))
	require.True(t, CalculateChange(dec("100"), decimal.Zero).IsZero())
}

func TestEvaluateEmptyWindowFails(t *testing.T) {
	_, err := New(DefaultThresholds()).Evaluate(window.New(window.DefaultCapacity))
	require.ErrorIs(t, err, window.ErrEmptyWindow)
}

func TestEvaluateSingleSampleIsSilent(t *testing.T) {
	res := evaluate(t, "100")
	require.True(t, res.Empty())
	require.Equal(t, DirectionNone, res.Signal)
	require.True(t, res.Current.Price.Equal(dec("100")))
}

func TestShortHorizonBoundary(t *testing.T) {
	res := evaluate(t, "100", "100.3")
	require.Len(t, res.Alerts, 1)

	alert := res.Alerts[0]
	require.Equal(t, HorizonShort, alert.Horizon)
	require.Equal(t, DirectionUp, alert.Direction)
	require.True(t, alert.ChangePct.Equal(dec("0.3")), "got %s", alert.ChangePct)
	require.True(t, alert.ReferencePrice.Equal(dec("100")))
	require.Equal(t, "LONG", alert.Label())
	require.Equal(t, DirectionUp, res.Signal)

	res = evaluate(t, "100", "100.29")
	require.True(t, res.Empty())
}

func TestShortHorizonDown(t *testing.T) {
	res := evaluate(t, "100", "99.7")
	require.Len(t, res.Alerts, 1)
	require.Equal(t, DirectionDown, res.Alerts[0].Direction)
	require.Equal(t, "SHORT", res.Alerts[0].Label())
	require.Equal(t, DirectionDown, res.Signal)
}

func TestMediumHorizonRequiresFullWindow(t *testing.T) {
	res := evaluate(t, "100", "100", "100", "150")
	for _, a := range res.Alerts {
		require.NotEqual(t, HorizonMedium, a.Horizon)
	}

	res = evaluate(t, "100", "100.5", "100.6", "100.8", "101")
	require.Len(t, res.Alerts, 1)
	alert := res.Alerts[0]
	require.Equal(t, HorizonMedium, alert.Horizon)
	require.True(t, alert.ChangePct.Equal(dec("1")), "got %s", alert.ChangePct)
	require.Equal(t, "STRONG LONG", alert.Label())
	require.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), alert.ReferenceTime)
}

func TestMediumHorizonBoundaryWithFlatHistory(t *testing.T) {
	res := evaluate(t, "100", "100", "100", "100", "101")
	require.Len(t, res.Alerts, 2)

	medium := res.Alerts[1]
	require.Equal(t, HorizonMedium, medium.Horizon)
	require.True(t, medium.ChangePct.Equal(dec("1")))
}

func TestBothHorizonsOrdered(t *testing.T) {
	res := evaluate(t, "100", "100", "100", "100", "102")
	require.Len(t, res.Alerts, 2)
	require.Equal(t, HorizonShort, res.Alerts[0].Horizon)
	require.Equal(t, HorizonMedium, res.Alerts[1].Horizon)
}

func TestNoAlertWithinThresholds(t *testing.T) {
	res := evaluate(t, "100", "100.1", "100.05", "100.2", "100.25")
	require.True(t, res.Empty())
	require.Equal(t, DirectionNone, res.Signal)
}

func TestEndToEndScenario(t *testing.T) {
	res := evaluate(t, "100", "100.5", "100.2", "99.0", "98.5")
	require.Len(t, res.Alerts, 2)

	short := res.Alerts[0]
	require.Equal(t, HorizonShort, short.Horizon)
	require.Equal(t, DirectionDown, short.Direction)
	require.Equal(t, "SHORT", short.Label())
	require.Equal(t, "-0.51", short.ChangePct.StringFixed(2))
	require.True(t, short.ReferencePrice.Equal(dec("99")))

	medium := res.Alerts[1]
	require.Equal(t, HorizonMedium, medium.Horizon)
	require.Equal(t, DirectionDown, medium.Direction)
	require.Equal(t, "STRONG SHORT", medium.Label())
	require.True(t, medium.ChangePct.Equal(dec("-1.5")), "got %s", medium.ChangePct)

	require.Equal(t, DirectionDown, res.Signal)
}

func TestSignalPrefersShortWhenHorizonsDisagree(t *testing.T) {
	res := evaluate(t, "100", "98", "97", "97", "97.5")
	require.Len(t, res.Alerts, 2)
	require.Equal(t, DirectionUp, res.Alerts[0].Direction)
	require.Equal(t, DirectionDown, res.Alerts[1].Direction)
	require.Equal(t, DirectionUp, res.Signal)
}

func TestSignalFallsBackToMedium(t *testing.T) {
	res := evaluate(t, "100", "100.5", "101", "101.3", "101.5")
	require.Len(t, res.Alerts, 1)
	require.Equal(t, HorizonMedium, res.Alerts[0].Horizon)
	require.Equal(t, DirectionUp, res.Signal)
}

func TestZeroReferenceNeverTriggers(t *testing.T) {
	res := evaluate(t, "0", "100")
	require.True(t, res.Empty())
}

func TestEvaluateDoesNotMutateWindow(t *testing.T) {
	w := windowOf("100", "101")
	before := w.Samples()

	_, err := New(DefaultThresholds()).Evaluate(w)
	require.NoError(t, err)
	require.Equal(t, before, w.Samples())
}
