package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"btcwatch/internal/app"
)

var (
	simulatePrices string
	simulateSend   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "按顺序回放一组价格并打印触发的告警",
	Example: "  btcwatch simulate --prices 100,100.5,100.2,99.0,98.5\n" +
		"  btcwatch simulate --prices 67000,67300 --send",
	RunE: func(cmd *cobra.Command, args []string) error {
		prices, err := parsePrices(simulatePrices)
		if err != nil {
			return err
		}

		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Prices: prices,
			Send:   simulateSend,
			Out:    cmd.OutOrStdout(),
		})
	},
}

func parsePrices(raw string) ([]decimal.Decimal, error) {
	fields := strings.Split(raw, ",")
	prices := make([]decimal.Decimal, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		price, err := decimal.NewFromString(field)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", field, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("price %q must be greater than zero", field)
		}
		prices = append(prices, price)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("--prices must list at least one price")
	}
	return prices, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePrices, "prices", "", "逗号分隔的价格序列, 最早的在前")
	simulateCmd.Flags().BoolVar(&simulateSend, "send", false, "同时通过已配置的通道发送告警")
}
