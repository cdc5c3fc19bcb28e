package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOptions describe the connection used by the stream notifier.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient dials redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// RedisStreamNotifier appends each alert to a redis stream for downstream
// consumers.
type RedisStreamNotifier struct {
	client redis.Cmdable
	stream string
	maxLen int64
	logger zerolog.Logger
}

// NewRedisStreamNotifier constructs the notifier. maxLen <= 0 disables
// trimming.
func NewRedisStreamNotifier(client redis.Cmdable, stream string, maxLen int64, logger zerolog.Logger) *RedisStreamNotifier {
	return &RedisStreamNotifier{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With().Str("component", "alert_redis").Logger(),
	}
}

// Notify implements Notifier.
func (n *RedisStreamNotifier) Notify(ctx context.Context, note Notification) error {
	res := note.Result
	if res.Empty() {
		return nil
	}

	labels := make([]string, 0, len(res.Alerts))
	changes := make([]string, 0, len(res.Alerts))
	for _, a := range res.Alerts {
		labels = append(labels, a.Label())
		changes = append(changes, a.ChangePct.StringFixed(4))
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"pair":       note.Pair,
			"signal":     res.Signal.String(),
			"price":      res.Current.Price.String(),
			"sample_ts":  res.Current.Timestamp.UTC().Format(time.RFC3339),
			"labels":     strings.Join(labels, ","),
			"change_pct": strings.Join(changes, ","),
			"message":    RenderMessage(note),
		},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}

	id, err := n.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("publish to stream %s: %w", n.stream, err)
	}

	n.logger.Debug().Str("stream", n.stream).Str("id", id).Msg("告警已写入 redis stream")
	return nil
}

var _ Notifier = (*RedisStreamNotifier)(nil)
