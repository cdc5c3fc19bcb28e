package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"btcwatch/internal/alerting"
	"btcwatch/internal/storage"
)

// Show prints recent samples, or recent alerts when opts.Alerts is set.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show samples")
	}
	if closeStore != nil {
		defer closeStore()
	}

	pair := a.Config.Monitor.Pair
	if opts.Alerts {
		alerts, err := store.ListRecentAlerts(ctx, pair, opts.Limit)
		if err != nil {
			return err
		}
		return writeAlertTable(os.Stdout, alerts)
	}

	total, err := store.CountSamples(ctx, pair)
	if err != nil {
		return err
	}
	samples, err := store.ListRecentSamples(ctx, pair, opts.Limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s: %d samples stored\n", pair, total)
	return writeSampleTable(os.Stdout, samples)
}

func writeSampleTable(out io.Writer, samples []storage.PriceSample) error {
	if len(samples) == 0 {
		fmt.Fprintln(out, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPair\tPrice\tSource\tTick")
	for _, sample := range samples {
		fmt.Fprintf(writer, "%s\t%s\t$%s\t%s\t%s\n",
			sample.SampleTS.UTC().Format(time.RFC3339),
			sample.Pair,
			alerting.FormatPrice(sample.Price),
			sample.Source,
			shortID(sample.TickID),
		)
	}
	return writer.Flush()
}

func writeAlertTable(out io.Writer, alerts []storage.AlertRecord) error {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tHorizon\tDirection\tChange%\tThreshold%\tFrom\tFrom Time (UTC)")
	for _, alert := range alerts {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t$%s\t%s\n",
			alert.SampleTS.UTC().Format(time.RFC3339),
			alert.Horizon,
			alert.Direction,
			alerting.SignedPct(alert.ChangePct),
			alert.ThresholdPct.StringFixed(2),
			alerting.FormatPrice(alert.ReferencePrice),
			alert.ReferenceTS.UTC().Format(time.RFC3339),
		)
	}
	return writer.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
