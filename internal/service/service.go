package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"btcwatch/internal/alerting"
	"btcwatch/internal/config"
	"btcwatch/internal/detector"
	"btcwatch/internal/fetcher"
	"btcwatch/internal/metrics"
	"btcwatch/internal/scheduler"
	"btcwatch/internal/storage"
	"btcwatch/internal/window"
)

// Deps are the collaborators of the monitoring loop. Only Source is
// required.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Source    fetcher.PriceSource
	Notifier  alerting.Notifier
	Samples   storage.SampleStore
	Alerts    storage.AlertStore
	Metrics   *metrics.Metrics
}

// Service orchestrates fetching, evaluation, persistence, and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	source     fetcher.PriceSource
	notifier   alerting.Notifier
	samples    storage.SampleStore
	alertStore storage.AlertStore
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	pair       string
	sourceName string
	alertsOn   bool
	shortSpan  time.Duration
	mediumSpan time.Duration
	locker     storage.AdvisoryLocker
	lockKey    int64
	// release is set while this instance holds the advisory lock.
	release func()

	mu       sync.Mutex
	window   *window.Window
	detector *detector.Detector
}

// New constructs the monitoring service with an empty window.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	short, medium := cfg.Monitor.Thresholds()

	var locker storage.AdvisoryLocker
	if l, ok := deps.Samples.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:  deps.Scheduler,
		source:     deps.Source,
		notifier:   deps.Notifier,
		samples:    deps.Samples,
		alertStore: deps.Alerts,
		metrics:    deps.Metrics,
		logger:     logger.With().Str("component", "service").Str("pair", cfg.Monitor.Pair).Logger(),
		pair:       cfg.Monitor.Pair,
		sourceName: sourceName(deps.Source),
		alertsOn:   cfg.Alerting.Enabled,
		shortSpan:  cfg.Scheduler.Interval,
		mediumSpan: cfg.MediumSpan(),
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
		window:     window.New(cfg.Monitor.WindowSize),
		detector:   detector.New(detector.Thresholds{ShortPct: short, MediumPct: medium}),
	}
}

// Run prints the startup banner and begins the sampling loop. The advisory
// lock, once won, is held until Run returns.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	defer s.ReleaseLock()

	for _, line := range alerting.Banner(s.pair, s.sourceName, s.shortSpan, s.mediumSpan, s.detector.Thresholds()) {
		s.logger.Info().Msg(line)
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ReleaseLock gives up the advisory lock so a standby instance can take
// over. It is a no-op when the lock is not held.
func (s *Service) ReleaseLock() {
	if s.release == nil {
		return
	}
	s.release()
	s.release = nil
	s.logger.Info().Int64("lock_key", s.lockKey).Msg("advisory lock released")
}

// Window returns a copy of the current samples, oldest first.
func (s *Service) Window() []window.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Samples()
}

// ProcessTick 执行一次采样: 拉取价格, 更新窗口, 评估并按需告警。
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", at).Msg("skip tick because advisory lock held elsewhere")
		s.metrics.Tick(metrics.OutcomeSkipped)
		return nil
	}

	tickID := uuid.NewString()
	return s.executeTick(ctx, s.logger.With().Str("tick_id", tickID).Logger(), tickID)
}

func (s *Service) executeTick(ctx context.Context, logger zerolog.Logger, tickID string) error {
	price, ts, err := s.source.FetchCurrentPrice(ctx, s.pair)
	if err != nil {
		s.metrics.FetchError(fetcher.Classify(err))
		s.metrics.Tick(metrics.OutcomeFetchError)
		return fmt.Errorf("fetch %s price (%s error): %w", s.pair, fetcher.Classify(err), err)
	}

	sample := window.Sample{Price: price, Timestamp: ts}
	res, size, err := s.observe(sample)
	if err != nil {
		return fmt.Errorf("%w: %w", scheduler.ErrAbort, err)
	}
	s.metrics.Sample(price.InexactFloat64(), size)

	if s.samples != nil {
		record := storage.PriceSample{
			SampleTS: ts,
			Pair:     s.pair,
			Price:    price,
			Source:   s.sourceName,
			TickID:   tickID,
		}
		if err := s.samples.UpsertPriceSample(ctx, record); err != nil {
			logger.Error().Err(err).Time("sample_ts", ts).Msg("failed to upsert sample")
		}
	}

	if res.Empty() {
		logger.Info().Str("price", price.String()).Int("window", size).Msg(alerting.QuietLine(res.Current))
		s.metrics.Tick(metrics.OutcomeQuiet)
		return nil
	}

	logger.Warn().
		Str("price", price.String()).
		Str("signal", res.Signal.String()).
		Int("alerts", len(res.Alerts)).
		Msg(alerting.StatusLine(res))
	s.metrics.Tick(metrics.OutcomeAlert)
	for _, a := range res.Alerts {
		s.metrics.Alert(a.Horizon.String(), a.Direction.String())
	}

	s.persistAlerts(ctx, logger, tickID, res)

	if !s.alertsOn || s.notifier == nil {
		return nil
	}
	note := alerting.Notification{
		Pair:       s.pair,
		Result:     res,
		ShortSpan:  s.shortSpan,
		MediumSpan: s.mediumSpan,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		logger.Error().Err(err).Msg("failed to dispatch alert")
		s.recordNotifyFailure(err)
	}
	return nil
}

// observe appends the sample and evaluates the window as one step.
func (s *Service) observe(sample window.Sample) (detector.Result, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.window.Append(sample)
	res, err := s.detector.Evaluate(s.window)
	return res, s.window.Len(), err
}

func (s *Service) persistAlerts(ctx context.Context, logger zerolog.Logger, tickID string, res detector.Result) {
	if s.alertStore == nil {
		return
	}
	th := s.detector.Thresholds()
	for _, a := range res.Alerts {
		threshold := th.ShortPct
		if a.Horizon == detector.HorizonMedium {
			threshold = th.MediumPct
		}
		record := storage.AlertRecord{
			TickID:         tickID,
			SampleTS:       res.Current.Timestamp,
			Pair:           s.pair,
			Horizon:        a.Horizon.String(),
			Direction:      a.Direction.String(),
			ChangePct:      a.ChangePct.Round(4),
			ThresholdPct:   threshold,
			ReferencePrice: a.ReferencePrice,
			ReferenceTS:    a.ReferenceTime,
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			logger.Error().Err(err).Str("horizon", record.Horizon).Msg("failed to persist alert record")
		}
	}
}

func (s *Service) recordNotifyFailure(err error) {
	var delivery *alerting.DeliveryError
	if !errors.As(err, &delivery) {
		s.metrics.NotifyFailure("all")
		return
	}
	for _, f := range delivery.Failures {
		s.metrics.NotifyFailure(f.Channel)
	}
}

// acquireLock reports whether this instance may tick. Callers must not tick
// concurrently.
func (s *Service) acquireLock(ctx context.Context) (bool, error) {
	if s.lockKey == 0 || s.locker == nil || s.release != nil {
		return true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return false, nil
	}
	s.release = unlock
	s.logger.Info().Int64("lock_key", s.lockKey).Msg("advisory lock acquired; this instance is now ticking")
	return true, nil
}

func sourceName(src fetcher.PriceSource) string {
	switch src.(type) {
	case *fetcher.Bybit:
		return "Bybit"
	case *fetcher.Series:
		return "simulation"
	default:
		return "custom"
	}
}

