package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"btcwatch/internal/detector"
	"btcwatch/internal/window"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": map[string]any{
				"message_id": 1,
				"date":       0,
				"chat":       map[string]any{"id": 42, "type": "private"},
			},
		})
	}))
	defer srv.Close()

	notifier, err := NewTelegramNotifier("token", "42", srv.URL, time.Second, testLogger())
	if err != nil {
		t.Fatalf("构造 Telegram 告警器失败: %v", err)
	}

	if err := notifier.Notify(context.Background(), scenarioNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if fmt.Sprint(received["chat_id"]) != "42" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(fmt.Sprint(received["text"]), "STRONG SHORT") {
		t.Fatalf("text 应包含告警内容: %#v", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": "Bad Request: chat not found"})
	}))
	defer srv.Close()

	notifier, err := NewTelegramNotifier("token", "42", srv.URL, time.Second, testLogger())
	if err != nil {
		t.Fatalf("构造 Telegram 告警器失败: %v", err)
	}

	if err := notifier.Notify(context.Background(), scenarioNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierSkipsEmptyResult(t *testing.T) {
	sender := &fakeSender{}
	notifier := newTelegramNotifier(sender, "@alerts", testLogger())

	note := Notification{Pair: "BTC/USDT", Result: detector.Result{Current: window.Sample{Price: decimal.NewFromInt(1)}}}
	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("空结果不应报错: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("空结果不应发送消息, 实际 %d 条", len(sender.sent))
	}
}

func TestTelegramNotifierChannelRecipient(t *testing.T) {
	sender := &fakeSender{}
	notifier := newTelegramNotifier(sender, "@alerts", testLogger())

	if err := notifier.Notify(context.Background(), scenarioNote()); err != nil {
		t.Fatalf("Notify 应成功: %v", err)
	}
	if len(sender.sent) != 1 || sender.recipients[0] != "@alerts" {
		t.Fatalf("应发送到 @alerts, 实际 %#v", sender.recipients)
	}
}

func TestFanoutCollectsFailures(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("boom")}
	fanout := NewFanout([]Channel{
		{Name: "bad", Notifier: bad},
		{Name: "ok", Notifier: ok},
	}, testLogger())

	err := fanout.Notify(context.Background(), scenarioNote())
	if err == nil {
		t.Fatal("存在失败通道时应返回错误")
	}

	var delivery *DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("应返回 DeliveryError, 实际 %T", err)
	}
	if len(delivery.Failures) != 1 || delivery.Failures[0].Channel != "bad" {
		t.Fatalf("失败通道不正确: %#v", delivery.Failures)
	}
	if !errors.Is(err, bad.err) {
		t.Fatal("errors.Is 应能定位到底层错误")
	}
	if ok.calls != 1 {
		t.Fatal("单个通道失败不应阻止其他通道")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func scenarioNote() Notification {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := window.New(window.DefaultCapacity)
	for i, p := range []string{"100", "100.5", "100.2", "99.0", "98.5"} {
		w.Append(window.Sample{Price: decimal.RequireFromString(p), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	res, err := detector.New(detector.DefaultThresholds()).Evaluate(w)
	if err != nil {
		panic(err)
	}
	return Notification{Pair: "BTC/USDT", Result: res, ShortSpan: time.Minute, MediumSpan: 5 * time.Minute}
}

type fakeSender struct {
	sent       []string
	recipients []string
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.recipients = append(f.recipients, to.Recipient())
	f.sent = append(f.sent, fmt.Sprint(what))
	return &tele.Message{}, nil
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, note Notification) error {
	r.calls++
	return r.err
}
