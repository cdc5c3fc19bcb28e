package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"btcwatch/internal/alerting"
	"btcwatch/internal/fetcher"
	"btcwatch/internal/scheduler"
	"btcwatch/internal/service"
)

// SimulateOptions configure a replay through a fresh window.
type SimulateOptions struct {
	Prices []decimal.Decimal
	// Send also delivers each alert through the configured channels.
	Send bool
	Out  io.Writer
}

// Simulate 将一组价格依次送入新的窗口与检测器, 打印每条告警消息。
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if len(opts.Prices) == 0 {
		return errors.New("no prices to simulate")
	}
	if opts.Send && !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用, 无法 --send")
	}

	channels := []alerting.Channel{{Name: "console", Notifier: &printNotifier{out: opts.Out}}}
	if opts.Send {
		configured, closeChannels, err := a.newChannels(ctx)
		if err != nil {
			return err
		}
		defer closeChannels()
		channels = append(channels, configured...)
	}

	cfg := *a.Config
	cfg.Alerting.Enabled = true
	cfg.Scheduler.AdvisoryLockKey = 0

	interval := cfg.Scheduler.Interval
	start := time.Now().UTC().Truncate(interval)
	svc := service.New(&cfg, service.Deps{
		Source:   fetcher.NewSeries(opts.Prices, start, interval),
		Notifier: alerting.NewFanout(channels, a.Logger),
	}, a.Logger)

	for i := range opts.Prices {
		err := svc.ProcessTick(ctx, start.Add(time.Duration(i)*interval))
		if errors.Is(err, scheduler.ErrAbort) {
			return err
		}
		if err != nil {
			a.Logger.Error().Err(err).Int("tick", i+1).Msg("simulated tick failed")
		}
	}
	return nil
}

// printNotifier writes rendered messages to a terminal.
type printNotifier struct {
	out io.Writer
}

func (p *printNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	msg := alerting.RenderMessage(note)
	if msg == "" {
		return nil
	}
	_, err := fmt.Fprintf(p.out, "%s\n\n", msg)
	return err
}
