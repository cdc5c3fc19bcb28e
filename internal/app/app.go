package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"btcwatch/internal/alerting"
	"btcwatch/internal/config"
	"btcwatch/internal/fetcher"
	"btcwatch/internal/metrics"
	"btcwatch/internal/scheduler"
	"btcwatch/internal/service"
	"btcwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newPriceSource() *fetcher.Bybit {
	return fetcher.NewBybit(fetcher.BybitOptions{
		BaseURL:   a.Config.Exchange.BaseURL,
		Category:  a.Config.Exchange.Category,
		Timeout:   a.Config.Exchange.RequestTimeout,
		UserAgent: a.Config.Exchange.UserAgent,
	}, a.Logger)
}

// newChannels builds one notifier per configured channel. The returned
// closer releases network clients and is never nil.
func (a *App) newChannels(ctx context.Context) ([]alerting.Channel, func(), error) {
	if err := a.Config.ValidateChannels(); err != nil {
		return nil, func() {}, err
	}

	closers := make([]func(), 0)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	channels := make([]alerting.Channel, 0, len(a.Config.Alerting.Channels))
	for _, name := range a.Config.Alerting.Channels {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case config.ChannelTelegram:
			cfg := a.Config.Alerting.Telegram
			n, err := alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.RequestTimeout, a.Logger)
			if err != nil {
				closeAll()
				return nil, func() {}, err
			}
			channels = append(channels, alerting.Channel{Name: name, Notifier: n})
		case config.ChannelRedis:
			cfg := a.Config.Alerting.Redis
			client, err := alerting.NewRedisClient(ctx, alerting.RedisOptions{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
			if err != nil {
				closeAll()
				return nil, func() {}, err
			}
			closers = append(closers, func() { _ = client.Close() })
			channels = append(channels, alerting.Channel{
				Name:     name,
				Notifier: alerting.NewRedisStreamNotifier(client, cfg.Stream, cfg.MaxLen, a.Logger),
			})
		default:
			closeAll()
			return nil, func() {}, fmt.Errorf("unknown alerting channel %q", name)
		}
	}
	return channels, closeAll, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	deps := service.Deps{
		Source:  a.newPriceSource(),
		Metrics: metrics.New(a.Config.Monitor.Pair),
	}
	if store != nil {
		deps.Samples = store
		deps.Alerts = store
	}

	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := deps.Metrics.Serve(ctx, addr, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	if a.Config.Alerting.Enabled {
		channels, closeChannels, err := a.newChannels(ctx)
		if err != nil {
			return err
		}
		defer closeChannels()
		fanout := alerting.NewFanout(channels, a.Logger)
		a.Logger.Info().Int("channels", fanout.Len()).Strs("names", a.Config.Alerting.Channels).Msg("alerting enabled")
		deps.Notifier = fanout
	} else {
		a.Logger.Warn().Msg("alerting disabled; alerts are only logged")
	}

	deps.Scheduler = scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := service.New(a.Config, deps, a.Logger)

	a.Logger.Info().Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}
