package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunOnStartAndContinuesAfterErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	s := New(Options{Interval: 5 * time.Millisecond, RunOnStart: true}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, at time.Time) error {
			if calls.Add(1) >= 3 {
				cancel()
			}
			return errors.New("transient")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未在超时前退出")
	}

	if calls.Load() < 3 {
		t.Fatalf("普通错误不应中断调度, 实际执行 %d 次", calls.Load())
	}
}

func TestAbortStopsRun(t *testing.T) {
	s := New(Options{Interval: time.Millisecond, RunOnStart: true}, zerolog.Nop())

	var calls atomic.Int32
	err := s.Run(context.Background(), func(ctx context.Context, at time.Time) error {
		calls.Add(1)
		return fmt.Errorf("%w: window empty", ErrAbort)
	})

	if !errors.Is(err, ErrAbort) {
		t.Fatalf("应返回 ErrAbort, 实际 %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("ErrAbort 后不应继续执行, 实际 %d 次", calls.Load())
	}
}

func TestTicksDoNotOverlap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var running, overlaps, calls atomic.Int32
	s := New(Options{Interval: time.Millisecond, RunOnStart: true}, zerolog.Nop())

	_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(3 * time.Millisecond)
		running.Add(-1)
		if calls.Add(1) == 4 {
			cancel()
		}
		return nil
	})

	if overlaps.Load() != 0 {
		t.Fatalf("tick 不应并发执行, 发现 %d 次重叠", overlaps.Load())
	}
}

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)

	if got := s.nextTick(now); !got.Equal(time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC)) {
		t.Fatalf("对齐模式下一次 tick 不正确: %s", got)
	}
	if got := s.bucketStart(now); !got.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("bucketStart 不正确: %s", got)
	}
}

func TestNextTickFreeRunning(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())
	now := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)

	if got := s.nextTick(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("非对齐模式应在完成后等待完整间隔: %s", got)
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("interval 为 0 时应 panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
