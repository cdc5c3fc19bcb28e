package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"btcwatch/internal/detector"
	"btcwatch/internal/window"
)

const clockLayout = "15:04:05"

// RenderMessage builds the chat text for a notification. It returns an
// empty string when no alert fired.
func RenderMessage(note Notification) string {
	res := note.Result
	if res.Empty() {
		return ""
	}

	blocks := make([]string, 0, len(res.Alerts))
	for _, a := range res.Alerts {
		blocks = append(blocks, fmt.Sprintf("%s %s | %s: %s%%\n   From: $%s (%s)",
			labelIcon(a), a.Label(), spanLabel(note, a.Horizon), SignedPct(a.ChangePct),
			FormatPrice(a.ReferencePrice), a.ReferenceTime.Format(clockLayout)))
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("%s %s Alert\n", SignalGlyph(res.Signal), note.Pair))
	builder.WriteString(fmt.Sprintf("💰 Now: $%s\n", FormatPrice(res.Current.Price)))
	builder.WriteString("\n")
	builder.WriteString(strings.Join(blocks, "\n"))
	builder.WriteString("\n\n")
	builder.WriteString(fmt.Sprintf("🕐 %s", res.Current.Timestamp.Format(clockLayout)))
	return builder.String()
}

// StatusLine is the one-line console summary of a tick.
func StatusLine(res detector.Result) string {
	if res.Empty() {
		return QuietLine(res.Current)
	}
	labels := make([]string, 0, len(res.Alerts))
	for _, a := range res.Alerts {
		labels = append(labels, labelIcon(a)+" "+a.Label())
	}
	return fmt.Sprintf("🚨 ALERT: $%s | %s", FormatPrice(res.Current.Price), strings.Join(labels, ", "))
}

// QuietLine reports a tick without significant change.
func QuietLine(s window.Sample) string {
	return fmt.Sprintf("✓ $%s at %s — no significant change", FormatPrice(s.Price), s.Timestamp.Format(clockLayout))
}

// FormatPrice renders a price with thousands separators and two decimals,
// e.g. "67,523.40". It stays exact for any decimal magnitude.
func FormatPrice(d decimal.Decimal) string {
	r := d.Round(2)
	sign := ""
	if r.IsNegative() {
		sign = "-"
		r = r.Neg()
	}
	whole := r.Truncate(0)
	cents := r.Sub(whole).StringFixed(2)
	return sign + humanize.BigComma(whole.BigInt()) + strings.TrimPrefix(cents, "0")
}

// SignedPct renders a percentage with two decimals and an explicit sign.
func SignedPct(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if !strings.HasPrefix(s, "-") {
		s = "+" + s
	}
	return s
}

// SignalGlyph returns the leading indicator for a direction.
func SignalGlyph(d detector.Direction) string {
	switch d {
	case detector.DirectionUp:
		return "🟢"
	case detector.DirectionDown:
		return "🔴"
	default:
		return ""
	}
}

func labelIcon(a detector.Alert) string {
	switch a.Label() {
	case "LONG":
		return "📈"
	case "SHORT":
		return "📉"
	case "STRONG LONG":
		return "🚀"
	default:
		return "💥"
	}
}

func spanLabel(note Notification, h detector.Horizon) string {
	span := note.ShortSpan
	if h == detector.HorizonMedium {
		span = note.MediumSpan
	}
	return FormatSpan(span, h.String())
}

// FormatSpan renders whole minutes as "5min" and anything else with
// time.Duration formatting. fallback is used for non-positive spans.
func FormatSpan(span time.Duration, fallback string) string {
	switch {
	case span <= 0:
		return fallback
	case span%time.Minute == 0:
		return fmt.Sprintf("%dmin", int64(span/time.Minute))
	default:
		return span.String()
	}
}

// Banner lists the trigger levels and the colour legend printed at startup.
func Banner(pair, exchange string, shortSpan, mediumSpan time.Duration, th detector.Thresholds) []string {
	return []string{
		fmt.Sprintf("🟢 Bot started — monitoring %s on %s", pair, exchange),
		"📊 Alert triggers:",
		fmt.Sprintf("   • %s change ≥ %s%%", FormatSpan(shortSpan, "short"), th.ShortPct.StringFixed(1)),
		fmt.Sprintf("   • %s change ≥ %s%%", FormatSpan(mediumSpan, "medium"), th.MediumPct.StringFixed(1)),
		"   🟢 Green = Long signal (price rising)",
		"   🔴 Red = Short signal (price falling)",
	}
}
