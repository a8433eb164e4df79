package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"MomentumTrader/internal/model"
)

// ReportContext carries the strategy settings quoted in the trade report.
type ReportContext struct {
	Investment      decimal.Decimal
	Quote           string
	TargetProfitPct float64
	StopLossPct     float64
	Paper           bool
}

const stamp = "2006-01-02 15:04:05"

// FormatOpened announces a new position.
func FormatOpened(buy *model.Order, targetProfit, stopLoss decimal.Decimal, rc ReportContext) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🟢 <b>Opened %s</b>%s\n", buy.Symbol, paperTag(rc)))
	b.WriteString(fmt.Sprintf("Ask: %s (%s)\n", buy.Price, buy.Qty))
	b.WriteString(fmt.Sprintf("Commission: %s\n", buy.Commission))
	b.WriteString(fmt.Sprintf("TP: %s | SL: %s\n", targetProfit, stopLoss))
	return b.String()
}

// FormatSettlement renders the end-of-trade report.
func FormatSettlement(s *model.TradeSettlement, rc ReportContext) string {
	icon := "🔴"
	if s.Win {
		icon = "🟢"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>Report %s</b>%s\n\n", icon, s.Symbol, paperTag(rc)))
	b.WriteString(fmt.Sprintf("Symbol: %s\n", s.Symbol))
	b.WriteString(fmt.Sprintf("Condition: %s\n", s.State()))
	b.WriteString(fmt.Sprintf("Investment: %s %s\n", rc.Investment, rc.Quote))
	b.WriteString(fmt.Sprintf("TP: %g%% SL: %g%%\n", rc.TargetProfitPct, rc.StopLossPct))
	b.WriteString(fmt.Sprintf("Opened: %s\n", s.OpenedAt.Format(stamp)))
	b.WriteString(fmt.Sprintf("Duration: %s\n", s.Duration.Round(time.Second)))
	b.WriteString(fmt.Sprintf("Closed: %s\n", s.ClosedAt.Format(stamp)))
	b.WriteString(fmt.Sprintf("Ask: %s (%s)\n", s.BuyPrice, s.BuyQty))
	b.WriteString(fmt.Sprintf("Bid: %s (%s)\n", s.SellPrice, s.SellQty))
	b.WriteString(fmt.Sprintf("Dust: %s\n", s.Dust))
	b.WriteString(fmt.Sprintf("PPS: %s\n", s.ProfitPerShare))
	b.WriteString(fmt.Sprintf("Profit: %s\n", s.ProfitTotal))
	b.WriteString(fmt.Sprintf("Relative Profit: %s\n", s.ProfitRelative))
	b.WriteString(fmt.Sprintf("Diff: %s%%\n", s.DiffPct.StringFixed(2)))
	ind := s.Indicators
	b.WriteString(fmt.Sprintf("ROC: %.4f | RSI: %.2f\n", ind.ROC, ind.RSI))
	b.WriteString(fmt.Sprintf("ATR: %.8f | OBV: %.2f\n", ind.ATR, ind.OBV))
	return b.String()
}

func paperTag(rc ReportContext) string {
	if rc.Paper {
		return " [paper]"
	}
	return ""
}

// Status is the operator view of the bot.
type Status struct {
	Running bool
	Paused  bool
	Trades  []model.TradeSettlement
}

// Summary aggregates a set of settlements.
type Summary struct {
	Trades      int
	Wins        int
	Losses      int
	WinRate     float64
	TotalProfit decimal.Decimal
	AvgDuration time.Duration
}

// Summarize computes win rate, total profit and mean holding time.
func Summarize(trades []model.TradeSettlement) Summary {
	var s Summary
	s.TotalProfit = decimal.Zero
	var held time.Duration
	for _, t := range trades {
		s.Trades++
		if t.Win {
			s.Wins++
		} else {
			s.Losses++
		}
		s.TotalProfit = s.TotalProfit.Add(t.ProfitTotal)
		held += t.Duration
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
		s.AvgDuration = held / time.Duration(s.Trades)
	}
	return s
}

// FormatStatus formats the current bot state for display.
func FormatStatus(st Status) string {
	var b strings.Builder
	b.WriteString("📦 <b>Status</b>\n\n")
	position := "none"
	if st.Running {
		position = "open or opening"
	}
	b.WriteString(fmt.Sprintf("Position: %s\n", position))
	b.WriteString(fmt.Sprintf("Paused: %v\n", st.Paused))

	if len(st.Trades) == 0 {
		b.WriteString("No closed trades yet.\n")
		return b.String()
	}
	sum := Summarize(st.Trades)
	b.WriteString(fmt.Sprintf("\nLast %d trades: %d won, %d lost (%.1f%%)\n", sum.Trades, sum.Wins, sum.Losses, sum.WinRate))
	b.WriteString(fmt.Sprintf("Profit: %s | Avg hold: %s\n", sum.TotalProfit, sum.AvgDuration.Round(time.Second)))
	last := st.Trades[0]
	b.WriteString(fmt.Sprintf("Latest: %s %s %s%% at %s\n", last.Symbol, last.State(), last.DiffPct.StringFixed(2), last.ClosedAt.Format(stamp)))
	return b.String()
}
