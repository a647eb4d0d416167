package notify

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/jwcorp/tickdesk/internal/domain"
	"github.com/jwcorp/tickdesk/internal/performance"
)

// Console implementa ports.Notifier.
type Console struct {
	out       io.Writer
	maxTrades int
	showAll   bool
}

// NewConsole crea un notificador que escribe a stdout. Con showAll=false,
// el ledger se recorta a los últimos 20 trades.
func NewConsole(showAll bool) *Console {
	return &Console{out: os.Stdout, maxTrades: 20, showAll: showAll}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, maxTrades: 20}
}

// NotifyReport imprime el resumen del run y el ledger en tablas.
func (c *Console) NotifyReport(report performance.Report, trades []domain.Trade) error {
	c.printSummary(report)

	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  No trades executed.")
		fmt.Fprintln(c.out)
		return nil
	}

	c.printLedger(trades)
	c.printVerdict(report)
	return nil
}

// printSummary imprime la tabla de métricas del run.
func (c *Console) printSummary(r performance.Report) {
	duration := r.EndTime.Sub(r.StartTime)

	fmt.Fprintf(c.out, "\n=== %s on %s | %s to %s (%s) ===\n",
		r.StrategyName, r.Symbol,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		formatDuration(duration))

	pfLabel := fmt.Sprintf("%.2f", r.ProfitFactor)
	if math.IsInf(r.ProfitFactor, 1) {
		pfLabel = "INF"
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	table.Append("Initial capital", fmt.Sprintf("$%.2f", r.InitialCapital))
	table.Append("Final capital", fmt.Sprintf("$%.2f", r.FinalCapital))
	table.Append("Total return", fmt.Sprintf("%.2f%%", r.TotalReturn))
	table.Append("Total trades", fmt.Sprintf("%d", r.TotalTrades))
	table.Append("Win rate", fmt.Sprintf("%.1f%% (%dW / %dL)", r.WinRate, r.WinningTrades, r.LosingTrades))
	table.Append("Profit factor", pfLabel)
	table.Append("Avg win / loss", fmt.Sprintf("$%.4f / $%.4f", r.AvgWin, r.AvgLoss))
	table.Append("Max drawdown", fmt.Sprintf("%.2f%%", r.MaxDrawdown))
	table.Append("Sharpe ratio", fmt.Sprintf("%.3f", r.SharpeRatio))
	table.Append("Total fees", fmt.Sprintf("$%.4f", r.TotalFees))
	table.Render()
}

// printLedger imprime el ledger de fills, recortado salvo showAll.
func (c *Console) printLedger(trades []domain.Trade) {
	shown := trades
	skipped := 0
	if !c.showAll && len(trades) > c.maxTrades {
		skipped = len(trades) - c.maxTrades
		shown = trades[skipped:]
	}

	if skipped > 0 {
		fmt.Fprintf(c.out, "\n  Trades (last %d of %d):\n", len(shown), len(trades))
	} else {
		fmt.Fprintf(c.out, "\n  Trades (%d):\n", len(trades))
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Time", "Side", "Price", "Qty", "Fee", "PnL")
	for i, t := range shown {
		pnlLabel := "-"
		if t.Side == domain.Sell {
			pnlLabel = fmt.Sprintf("$%.4f", t.PnL)
		}
		table.Append(
			fmt.Sprintf("%d", skipped+i+1),
			t.Timestamp.Format("15:04:05.000"),
			string(t.Side),
			fmt.Sprintf("%.4f", t.Price),
			fmt.Sprintf("%.6f", t.Quantity),
			fmt.Sprintf("$%.4f", t.Fee),
			pnlLabel,
		)
	}
	table.Render()
}

// printVerdict imprime una línea de veredicto sobre el run.
func (c *Console) printVerdict(r performance.Report) {
	switch {
	case r.TotalTrades == 0:
		fmt.Fprintf(c.out, "\n  VEREDICTO: sin señales ejecutadas\n\n")
	case r.TotalReturn > 0:
		fmt.Fprintf(c.out, "\n  VEREDICTO: RENTABLE (+%.2f%% neto de fees)\n\n", r.TotalReturn)
	case r.TotalReturn == 0:
		fmt.Fprintf(c.out, "\n  VEREDICTO: NEUTRO\n\n")
	default:
		fmt.Fprintf(c.out, "\n  VEREDICTO: NO RENTABLE (%.2f%% neto de fees)\n\n", r.TotalReturn)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
