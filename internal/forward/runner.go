// Package forward ejecuta una estrategia contra el mercado en vivo con
// dinero simulado: mismos componentes que el backtest, pero alimentados por
// un stream websocket en lugar de datos históricos.
package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jwcorp/tickdesk/internal/domain"
	"github.com/jwcorp/tickdesk/internal/paper"
	"github.com/jwcorp/tickdesk/internal/performance"
	"github.com/jwcorp/tickdesk/internal/ports"
	"github.com/jwcorp/tickdesk/internal/strategy"
)

// Config configura un forward test.
type Config struct {
	Symbol string
}

// Runner consume un StreamSource y opera sobre él:
//
//   - cada snapshot de orderbook ejecuta la estrategia y envía como mucho
//     una orden
//   - cada aggTrade comprueba fills contra las cotizaciones del último
//     snapshot y marca la posición a mercado
//
// Los eventos se procesan de uno en uno bajo el mutex, así la cancelación
// nunca deja un fill a medio aplicar y Report puede llamarse en caliente
// desde otra goroutine.
type Runner struct {
	cfg    Config
	strat  strategy.Strategy
	trader *paper.Trader
	src    ports.StreamSource

	mu         sync.Mutex
	cancel     context.CancelFunc
	lastState  *domain.MarketState
	bookCount  int
	tradeCount int
	orderCount int
	fillCount  int
	startTime  time.Time
	endTime    time.Time
}

// New construye el runner con un trader ya configurado.
func New(cfg Config, strat strategy.Strategy, trader *paper.Trader, src ports.StreamSource) *Runner {
	return &Runner{cfg: cfg, strat: strat, trader: trader, src: src}
}

// Run consume el stream hasta que el contexto se cancela, pasa duration
// (si es > 0) o alguien llama a Stop. Una parada limpia devuelve nil; solo
// los fallos reales del stream llegan como error.
func (r *Runner) Run(ctx context.Context, duration time.Duration) error {
	var cancel context.CancelFunc
	if duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, duration)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	r.mu.Lock()
	r.cancel = cancel
	r.startTime = time.Now().UTC()
	r.mu.Unlock()

	slog.Info("forward test starting",
		"symbol", r.cfg.Symbol,
		"strategy", r.strat.Name(),
		"initial_capital", r.trader.InitialCapital(),
		"duration", duration,
	)

	err := r.src.Run(ctx, ports.StreamHandlers{
		OnBook:  r.onBook,
		OnTrade: r.onTrade,
		OnError: func(err error) { slog.Error("stream error", "err", err) },
	})

	r.mu.Lock()
	r.endTime = time.Now().UTC()
	r.cancel = nil
	r.mu.Unlock()

	slog.Info("forward test ended",
		"orderbooks", r.bookCount,
		"trades", r.tradeCount,
		"orders", r.orderCount,
		"fills", r.fillCount,
	)

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("forward.Runner: stream: %w", err)
	}
	return nil
}

// Stop detiene el run en curso de forma cooperativa: el evento en vuelo
// termina de procesarse entero antes de salir.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runner) onBook(snap domain.OrderbookSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := snap.Validate(); err != nil {
		slog.Warn("dropping invalid snapshot", "err", err)
		return
	}
	r.bookCount++

	state := domain.StateFromBook(snap, r.trader.Position())
	r.lastState = &state

	order := r.strat.GenerateOrder(state)
	if order == nil || r.trader.HasPendingSide(order.Side) {
		return
	}
	if _, err := r.trader.SubmitOrder(*order, snap.Timestamp); err != nil {
		slog.Warn("order rejected at submission", "err", err)
		return
	}
	r.orderCount++
	slog.Info("order submitted",
		"side", order.Side,
		"qty", order.Quantity,
		"type", order.Type,
		"limit_price", order.LimitPrice,
	)
}

func (r *Runner) onTrade(t domain.AggTrade) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tradeCount++

	// Sin snapshot previo no hay cotizaciones contra las que ejecutar.
	if r.lastState != nil {
		fill := r.trader.OnPriceUpdate(t.Price, r.lastState.BestBid, r.lastState.BestAsk, t.Timestamp)
		if fill != nil {
			r.fillCount++
			slog.Info("trade executed",
				"side", fill.Side,
				"price", fill.Price,
				"qty", fill.Quantity,
				"pnl", fill.PnL,
			)
		}
	}
	r.trader.UpdateUnrealizedPnL(t.Price)
}

// Report calcula el reporte con lo acumulado hasta ahora. Se puede llamar
// con el run todavía en marcha.
func (r *Runner) Report() performance.Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.endTime
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return performance.Calculate(r.trader.Trades(), nil, performance.Meta{
		StrategyName:   r.strat.Name(),
		Symbol:         r.cfg.Symbol,
		StartTime:      r.startTime,
		EndTime:        end,
		InitialCapital: r.trader.InitialCapital(),
	})
}

// MarketState devuelve el último estado de mercado visto, o nil.
func (r *Runner) MarketState() *domain.MarketState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastState == nil {
		return nil
	}
	s := *r.lastState
	return &s
}

// Trader expone el trader para inspección.
func (r *Runner) Trader() *paper.Trader { return r.trader }
