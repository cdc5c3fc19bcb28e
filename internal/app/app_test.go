package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"btcwatch/internal/config"
	"btcwatch/internal/storage"
)

func testApp() *App {
	cfg := &config.Config{
		Monitor: config.MonitorConfig{
			Pair:               "BTC/USDT",
			WindowSize:         5,
			ShortThresholdPct:  0.3,
			MediumThresholdPct: 1.0,
		},
		Scheduler: config.SchedulerConfig{Interval: time.Minute, AdvisoryLockKey: 7},
		Export:    config.ExportConfig{MaxDataPoints: 100},
	}
	return NewApp(cfg, zerolog.Nop())
}

func decimals(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.RequireFromString(v))
	}
	return out
}

func TestSimulatePrintsMessages(t *testing.T) {
	var out bytes.Buffer
	err := testApp().Simulate(context.Background(), SimulateOptions{
		Prices: decimals("100", "100.5", "100.2", "99.0", "98.5"),
		Out:    &out,
	})
	require.NoError(t, err)

	text := out.String()
	require.Equal(t, 3, strings.Count(text, "BTC/USDT Alert"))
	require.Contains(t, text, "📈 LONG | 1min: +0.50%")
	require.Contains(t, text, "📉 SHORT | 1min: -0.51%")
	require.Contains(t, text, "💥 STRONG SHORT | 5min: -1.50%")
}

func TestSimulateQuietSeriesPrintsNothing(t *testing.T) {
	var out bytes.Buffer
	err := testApp().Simulate(context.Background(), SimulateOptions{
		Prices: decimals("100", "100.1", "100.2"),
		Out:    &out,
	})
	require.NoError(t, err)
	require.Empty(t, out.String())
}

func TestSimulateValidatesOptions(t *testing.T) {
	a := testApp()
	require.Error(t, a.Simulate(context.Background(), SimulateOptions{Out: &bytes.Buffer{}}))
	require.Error(t, a.Simulate(context.Background(), SimulateOptions{
		Prices: decimals("100"),
		Send:   true,
		Out:    &bytes.Buffer{},
	}))
}

func TestShowAndExportRequireDatabase(t *testing.T) {
	a := testApp()
	require.Error(t, a.Show(context.Background(), ShowOptions{Limit: 5}))
	require.Error(t, a.Export(context.Background(), ExportOptions{CSVPath: "out.csv"}))
	require.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func sampleSeries(n int) []storage.PriceSample {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]storage.PriceSample, n)
	for i := range out {
		out[i] = storage.PriceSample{
			SampleTS: start.Add(time.Duration(i) * time.Minute),
			Pair:     "BTC/USDT",
			Price:    decimal.NewFromInt(int64(67000 + i)),
			Source:   "Bybit",
			TickID:   "0f3c2a1b-aaaa-bbbb-cccc-000000000000",
		}
	}
	return out
}

func TestDownsampleKeepsEndpoints(t *testing.T) {
	samples := sampleSeries(10)

	got := downsampleSamples(samples, 4)
	require.Len(t, got, 4)
	require.Equal(t, samples[0].SampleTS, got[0].SampleTS)
	require.Equal(t, samples[9].SampleTS, got[3].SampleTS)

	require.Len(t, downsampleSamples(samples, 20), 10)
	require.Len(t, downsampleSamples(samples, 1), 1)
}

func TestWriteSamplesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prices.csv")
	require.NoError(t, writeSamplesCSV(path, sampleSeries(2)))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "sample_ts,pair,price,source,tick_id", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "2024-03-01T12:00:00Z,BTC/USDT,67000,Bybit,"))
}

func TestWriteSampleTable(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeSampleTable(&out, sampleSeries(1)))
	require.Contains(t, out.String(), "$67,000")
	require.Contains(t, out.String(), "0f3c2a1b")
	require.NotContains(t, out.String(), "aaaa")

	out.Reset()
	require.NoError(t, writeAlertTable(&out, nil))
	require.Equal(t, "no alerts found\n", out.String())
}
