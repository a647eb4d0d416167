package backtest

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jwcorp/tickdesk/internal/domain"
	"github.com/jwcorp/tickdesk/internal/performance"
	"github.com/jwcorp/tickdesk/internal/strategy"
)

// PortfolioConfig configura un backtest de cartera multi-símbolo.
type PortfolioConfig struct {
	Symbols        []string
	InitialCapital float64

	// PositionSizePct es la fracción del equity desplegable en cada
	// rebalanceo, en (0, 1]. El resto queda siempre en cash.
	PositionSizePct float64

	// LookbackBars es la ventana de retorno para el ranking.
	LookbackBars int

	// RebalanceBars es cada cuántas barras se rebalancea.
	RebalanceBars int

	TakerFeeRate float64
}

func (c PortfolioConfig) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("sin símbolos")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("capital inicial no positivo %v", c.InitialCapital)
	}
	if c.PositionSizePct <= 0 || c.PositionSizePct > 1 {
		return fmt.Errorf("position_size_pct %v fuera de (0, 1]", c.PositionSizePct)
	}
	if c.LookbackBars < 1 {
		return fmt.Errorf("lookback_bars %d < 1", c.LookbackBars)
	}
	if c.RebalanceBars < 1 {
		return fmt.Errorf("rebalance_bars %d < 1", c.RebalanceBars)
	}
	if c.TakerFeeRate < 0 {
		return fmt.Errorf("taker_fee_rate negativo %v", c.TakerFeeRate)
	}
	return nil
}

// holding es la posición larga de la cartera en un símbolo.
type holding struct {
	qty      float64
	avgEntry float64
	entryFee float64
}

// PortfolioRunner rota una cartera entre N símbolos sobre un panel de velas
// alineadas. Cada RebalanceBars barras calcula el retorno de lookback por
// símbolo, pide a la estrategia la asignación objetivo y ejecuta los deltas
// como órdenes de mercado al cierre de la barra, pagando taker fee. Todo en
// orden de símbolo para que el resultado sea determinista.
//
// El cash es compartido: las ventas se ejecutan antes que las compras y las
// compras se recortan al cash disponible, así el balance nunca es negativo.
type PortfolioRunner struct {
	cfg      PortfolioConfig
	strat    strategy.PortfolioStrategy
	symbols  []string
	cash     float64
	holdings map[string]*holding
	trades   []domain.Trade
	equity   *equityTracker
}

// NewPortfolioRunner valida la configuración y construye el runner.
func NewPortfolioRunner(cfg PortfolioConfig, strat strategy.PortfolioStrategy) (*PortfolioRunner, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("backtest.NewPortfolioRunner: %w", err)
	}
	symbols := make([]string, len(cfg.Symbols))
	copy(symbols, cfg.Symbols)
	sort.Strings(symbols)

	holdings := make(map[string]*holding, len(symbols))
	for _, s := range symbols {
		holdings[s] = &holding{}
	}
	return &PortfolioRunner{
		cfg:      cfg,
		strat:    strat,
		symbols:  symbols,
		cash:     cfg.InitialCapital,
		holdings: holdings,
		equity:   newEquityTracker(cfg.InitialCapital),
	}, nil
}

// Run recorre el panel barra a barra y devuelve el reporte final. El panel
// debe traer una serie de velas por símbolo, todas de la misma longitud y
// alineadas en el tiempo.
func (r *PortfolioRunner) Run(panel map[string][]domain.Candle) (performance.Report, error) {
	n, err := r.panelLength(panel)
	if err != nil {
		return performance.Report{}, err
	}

	slog.Info("portfolio backtest starting",
		"symbols", r.symbols,
		"bars", n,
		"lookback_bars", r.cfg.LookbackBars,
		"rebalance_bars", r.cfg.RebalanceBars,
	)

	for i := 0; i < n; i++ {
		ts := panel[r.symbols[0]][i].Timestamp

		if i >= r.cfg.LookbackBars && i%r.cfg.RebalanceBars == 0 {
			r.rebalance(panel, i)
		}

		// Muestra de equity a mercado en cada barra.
		r.equity.recordValue(ts, r.markToMarket(panel, i))
	}

	report := r.Report(panel, n)
	slog.Info("portfolio backtest complete",
		"trades", len(r.trades),
		"final_capital", report.FinalCapital,
	)
	return report, nil
}

func (r *PortfolioRunner) panelLength(panel map[string][]domain.Candle) (int, error) {
	n := -1
	for _, sym := range r.symbols {
		series, ok := panel[sym]
		if !ok || len(series) == 0 {
			return 0, fmt.Errorf("backtest.PortfolioRunner: panel sin datos para %s", sym)
		}
		if n == -1 {
			n = len(series)
		} else if len(series) != n {
			return 0, fmt.Errorf("backtest.PortfolioRunner: panel desalineado: %s tiene %d barras, se esperaban %d", sym, len(series), n)
		}
	}
	return n, nil
}

// rebalance calcula el ranking de retornos, pide la asignación objetivo y
// ejecuta los deltas: primero todas las ventas (liberan cash), luego las
// compras.
func (r *PortfolioRunner) rebalance(panel map[string][]domain.Candle, i int) {
	returns := make([]strategy.SymbolReturn, 0, len(r.symbols))
	for _, sym := range r.symbols {
		prev := panel[sym][i-r.cfg.LookbackBars].Close
		cur := panel[sym][i].Close
		ret := 0.0
		if prev > 0 {
			ret = cur/prev - 1
		}
		returns = append(returns, strategy.SymbolReturn{Symbol: sym, Return: ret})
	}

	alloc := r.strat.Allocate(returns)
	budget := r.markToMarket(panel, i) * r.cfg.PositionSizePct

	// Ventas primero.
	for _, sym := range r.symbols {
		price := panel[sym][i].Close
		if price <= 0 {
			continue
		}
		target := budget * alloc[sym] / price
		if h := r.holdings[sym]; target < h.qty {
			r.sell(sym, h.qty-target, price, panel[sym][i].Timestamp)
		}
	}
	// Compras con el cash ya liberado.
	for _, sym := range r.symbols {
		price := panel[sym][i].Close
		if price <= 0 {
			continue
		}
		target := budget * alloc[sym] / price
		if h := r.holdings[sym]; target > h.qty {
			r.buy(sym, target-h.qty, price, panel[sym][i].Timestamp)
		}
	}
}

// minNotional evita trades de polvo en los deltas de rebalanceo.
const minNotional = 1e-6

// buy compra qty al precio dado, recortando al cash disponible si hace
// falta. El coste incluye la taker fee.
func (r *PortfolioRunner) buy(sym string, qty, price float64, ts time.Time) {
	if price <= 0 || qty*price < minNotional {
		return
	}
	// Recorte por cash: qty máxima que cabe con fee incluida.
	maxQty := r.cash / (price * (1 + r.cfg.TakerFeeRate))
	if qty > maxQty {
		qty = maxQty
	}
	notional := qty * price
	if notional < minNotional {
		return
	}
	fee := notional * r.cfg.TakerFeeRate

	h := r.holdings[sym]
	totalQty := h.qty + qty
	h.avgEntry = (h.avgEntry*h.qty + price*qty) / totalQty
	h.qty = totalQty
	h.entryFee += fee
	r.cash -= notional + fee
	// El recorte por cash puede pasarse por un ulp.
	if r.cash < 0 {
		r.cash = 0
	}

	r.trades = append(r.trades, domain.Trade{
		Timestamp: ts, Side: domain.Buy, Price: price, Quantity: qty, Fee: fee,
	})
}

// sell vende qty al precio dado y realiza el PnL de la porción cerrada,
// neto de la entry fee prorrateada y la fee de salida.
func (r *PortfolioRunner) sell(sym string, qty, price float64, ts time.Time) {
	h := r.holdings[sym]
	if qty > h.qty {
		qty = h.qty
	}
	notional := qty * price
	if notional < minNotional {
		return
	}
	fee := notional * r.cfg.TakerFeeRate

	closeRatio := qty / h.qty
	allocatedEntryFee := h.entryFee * closeRatio
	pnl := (price-h.avgEntry)*qty - allocatedEntryFee - fee

	h.qty -= qty
	h.entryFee -= allocatedEntryFee
	if h.qty == 0 {
		h.avgEntry = 0
		h.entryFee = 0
	}
	r.cash += notional - fee

	r.trades = append(r.trades, domain.Trade{
		Timestamp: ts, Side: domain.Sell, Price: price, Quantity: qty, Fee: fee, PnL: pnl,
	})
}

func (r *PortfolioRunner) markToMarket(panel map[string][]domain.Candle, i int) float64 {
	equity := r.cash
	for _, sym := range r.symbols {
		equity += r.holdings[sym].qty * panel[sym][i].Close
	}
	return equity
}

// Report calcula el reporte sobre el ledger y la curva de la cartera.
func (r *PortfolioRunner) Report(panel map[string][]domain.Candle, n int) performance.Report {
	meta := performance.Meta{
		StrategyName:   r.strat.Name(),
		Symbol:         strings.Join(r.symbols, "+"),
		InitialCapital: r.cfg.InitialCapital,
	}
	if n > 0 {
		meta.StartTime = panel[r.symbols[0]][0].Timestamp
		meta.EndTime = panel[r.symbols[0]][n-1].Timestamp
	}
	return performance.Calculate(r.trades, r.equity.points(), meta)
}

// Cash devuelve el cash actual de la cartera.
func (r *PortfolioRunner) Cash() float64 { return r.cash }

// Trades devuelve una copia del ledger.
func (r *PortfolioRunner) Trades() []domain.Trade {
	out := make([]domain.Trade, len(r.trades))
	copy(out, r.trades)
	return out
}

// EquityCurve devuelve una copia de la curva de equity.
func (r *PortfolioRunner) EquityCurve() []domain.EquityPoint { return r.equity.points() }
