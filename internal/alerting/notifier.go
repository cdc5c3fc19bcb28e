package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"btcwatch/internal/detector"
)

// Notification 封装一次告警的上下文。
type Notification struct {
	Pair   string
	Result detector.Result
	// ShortSpan and MediumSpan label the horizons in the rendered text,
	// e.g. "1min" and "5min".
	ShortSpan  time.Duration
	MediumSpan time.Duration
}

// Notifier delivers a notification to one destination.
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
}

// Channel binds a notifier to the name used in config, logs and metrics.
type Channel struct {
	Name     string
	Notifier Notifier
}

// ChannelError is one failed delivery.
type ChannelError struct {
	Channel string
	Err     error
}

// DeliveryError reports every channel that failed during a fan-out.
type DeliveryError struct {
	Failures []ChannelError
}

func (e *DeliveryError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Channel, f.Err))
	}
	return fmt.Sprintf("failed to deliver to %d channel(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual channel errors to errors.Is/As.
func (e *DeliveryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Fanout sends each notification to every channel in order. A failing
// channel does not stop delivery to the others.
type Fanout struct {
	channels []Channel
	logger   zerolog.Logger
}

// NewFanout constructs a fan-out notifier.
func NewFanout(channels []Channel, logger zerolog.Logger) *Fanout {
	return &Fanout{channels: channels, logger: logger.With().Str("component", "alert_fanout").Logger()}
}

// Len reports the number of configured channels.
func (f *Fanout) Len() int { return len(f.channels) }

// Notify implements Notifier.
func (f *Fanout) Notify(ctx context.Context, note Notification) error {
	var failures []ChannelError
	for _, ch := range f.channels {
		if err := ch.Notifier.Notify(ctx, note); err != nil {
			f.logger.Error().Err(err).Str("channel", ch.Name).Msg("告警发送失败")
			failures = append(failures, ChannelError{Channel: ch.Name, Err: err})
		}
	}
	if len(failures) > 0 {
		return &DeliveryError{Failures: failures}
	}
	return nil
}

var _ Notifier = (*Fanout)(nil)
