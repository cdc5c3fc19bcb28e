package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"btcwatch/internal/config"
)

func TestUnconfiguredStoreReturnsErrNotConfigured(t *testing.T) {
	var store *Store
	ctx := context.Background()

	if err := store.UpsertPriceSample(ctx, PriceSample{Price: decimal.NewFromInt(1)}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("UpsertPriceSample 应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, err := store.InsertAlert(ctx, AlertRecord{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("InsertAlert 应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, err := store.ListRecentSamples(ctx, "BTC/USDT", 10); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListRecentSamples 应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, err := store.ListSamplesBetween(ctx, "BTC/USDT", time.Time{}, time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListSamplesBetween 应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, _, err := store.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("TryAdvisoryLock 应返回 ErrNotConfigured, 实际 %v", err)
	}
	store.Close()
}

func TestNewPoolRequiresDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{}); err == nil {
		t.Fatal("缺少 dsn 时应报错")
	}
	if _, err := NewPool(context.Background(), config.DatabaseConfig{DSN: "postgres://%zz"}); err == nil {
		t.Fatal("非法 dsn 应报错")
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := parseDecimal("price", "67523.40")
	if err != nil || !d.Equal(decimal.RequireFromString("67523.4")) {
		t.Fatalf("解析失败: %s %v", d, err)
	}
	if _, err := parseDecimal("price", "abc"); err == nil {
		t.Fatal("非数字应报错")
	}
}
