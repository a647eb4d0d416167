// Package backtest ejecuta estrategias contra datos históricos: ticks,
// snapshots de orderbook o un panel de velas multi-símbolo. Los runners son
// secuenciales y deterministas: el mismo dataset produce siempre el mismo
// resultado.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwcorp/tickdesk/internal/candles"
	"github.com/jwcorp/tickdesk/internal/domain"
	"github.com/jwcorp/tickdesk/internal/paper"
	"github.com/jwcorp/tickdesk/internal/performance"
	"github.com/jwcorp/tickdesk/internal/ports"
	"github.com/jwcorp/tickdesk/internal/strategy"
)

// TickConfig configura un backtest sobre aggTrades.
type TickConfig struct {
	Symbol     string
	CandleType domain.CandleType
	CandleSize float64

	// ProgressEvery es cada cuántos ticks se loggea el progreso. 0 usa
	// el default.
	ProgressEvery int
}

const defaultTickProgress = 100_000

// TickRunner reproduce un stream de aggTrades contra una estrategia por
// barras. El orden de cada tick importa:
//
//  1. comprobar fills pendientes (con latencia) ANTES de actualizar la
//     vela: una orden emitida al cierre de una barra solo puede ejecutarse
//     en un tick posterior, nunca en el mismo que la generó
//  2. alimentar el CandleBuilder
//  3. al completarse una barra, ejecutar la estrategia sobre ella
//  4. actualizar el PnL no realizado
type TickRunner struct {
	cfg     TickConfig
	strat   strategy.Strategy
	trader  *paper.Trader
	builder *candles.Builder
	equity  *equityTracker

	tickCount  int
	barCount   int
	orderCount int
	fillCount  int
	startTime  time.Time
	endTime    time.Time
	lastBar    *domain.Candle
}

// NewTickRunner valida la configuración de velas y construye el runner.
// El trader llega ya configurado (capital, fees, latencia).
func NewTickRunner(cfg TickConfig, strat strategy.Strategy, trader *paper.Trader) (*TickRunner, error) {
	builder, err := candles.New(cfg.CandleType, cfg.CandleSize)
	if err != nil {
		return nil, fmt.Errorf("backtest.NewTickRunner: %w", err)
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultTickProgress
	}
	return &TickRunner{
		cfg:     cfg,
		strat:   strat,
		trader:  trader,
		builder: builder,
		equity:  newEquityTracker(trader.InitialCapital()),
	}, nil
}

// Run consume la fuente hasta agotarla y devuelve el reporte final.
// Un error de datos corta el run: mejor fallar que reportar métricas
// calculadas sobre un dataset corrupto.
func (r *TickRunner) Run(src ports.TickSource) (performance.Report, error) {
	slog.Info("tick backtest starting",
		"symbol", r.cfg.Symbol,
		"strategy", r.strat.Name(),
		"candle_type", r.cfg.CandleType,
		"candle_size", r.cfg.CandleSize,
		"initial_capital", r.trader.InitialCapital(),
	)

	for {
		t, ok, err := src.Next()
		if err != nil {
			return performance.Report{}, fmt.Errorf("backtest.TickRunner: fuente de ticks: %w", err)
		}
		if !ok {
			break
		}
		if err := r.processTick(t); err != nil {
			return performance.Report{}, err
		}

		if r.startTime.IsZero() {
			r.startTime = t.Timestamp
		}
		r.endTime = t.Timestamp

		if r.tickCount%r.cfg.ProgressEvery == 0 {
			slog.Info("tick backtest progress",
				"ticks", r.tickCount,
				"bars", r.barCount,
				"orders", r.orderCount,
				"fills", r.fillCount,
				"total_pnl", r.trader.TotalPnL(),
			)
		}
	}

	slog.Info("tick backtest complete",
		"ticks", r.tickCount,
		"bars", r.barCount,
		"orders", r.orderCount,
		"fills", r.fillCount,
	)
	return r.Report(), nil
}

func (r *TickRunner) processTick(t domain.AggTrade) error {
	r.tickCount++

	// 1. Fills primero: el tick actual solo puede ejecutar órdenes de
	// barras anteriores.
	if fill := r.trader.OnPriceUpdate(t.Price, t.Price, t.Price, t.Timestamp); fill != nil {
		r.fillCount++
		r.equity.record(t.Timestamp, r.trader.RealizedPnL())
	}

	// 2. Actualizar la vela en curso.
	bar, err := r.builder.Ingest(t)
	if err != nil {
		return fmt.Errorf("backtest.TickRunner: %w", err)
	}

	// 3. Barra completa: ejecutar estrategia.
	if bar != nil {
		r.barCount++
		r.lastBar = bar
		r.onBar(*bar, t.Timestamp)
	}

	// 4. Mark to market.
	r.trader.UpdateUnrealizedPnL(t.Price)
	return nil
}

// onBar construye el MarketState de la barra y envía como mucho una orden.
// Si ya hay una orden pendiente del mismo lado no se apila otra.
func (r *TickRunner) onBar(bar domain.Candle, ts time.Time) {
	state := domain.StateFromCandle(bar, ts, r.cfg.Symbol, r.trader.Position())

	order := r.strat.GenerateOrder(state)
	if order == nil {
		return
	}
	if r.trader.HasPendingSide(order.Side) {
		return
	}

	if _, err := r.trader.SubmitOrder(*order, ts); err != nil {
		slog.Warn("order rejected at submission", "err", err)
		return
	}
	r.orderCount++
}

// Report calcula el reporte con el estado actual del trader.
func (r *TickRunner) Report() performance.Report {
	return performance.Calculate(r.trader.Trades(), r.equity.points(), performance.Meta{
		StrategyName:   r.strat.Name(),
		Symbol:         r.cfg.Symbol,
		StartTime:      r.startTime,
		EndTime:        r.endTime,
		InitialCapital: r.trader.InitialCapital(),
	})
}

// SaveReport persiste el run en el store y devuelve su id.
func (r *TickRunner) SaveReport(ctx context.Context, store ports.ReportStore) (int64, error) {
	id, err := store.SaveRun(ctx, r.Report(), r.trader.Trades(), r.equity.points())
	if err != nil {
		return 0, fmt.Errorf("backtest.TickRunner: guardando reporte: %w", err)
	}
	return id, nil
}

// EquityCurve devuelve una copia de la curva de equity.
func (r *TickRunner) EquityCurve() []domain.EquityPoint { return r.equity.points() }

// Trader expone el trader para inspección.
func (r *TickRunner) Trader() *paper.Trader { return r.trader }

// TickCount devuelve los ticks procesados.
func (r *TickRunner) TickCount() int { return r.tickCount }

// BarCount devuelve las barras completadas.
func (r *TickRunner) BarCount() int { return r.barCount }

// LastBar devuelve la última barra completada, o nil.
func (r *TickRunner) LastBar() *domain.Candle { return r.lastBar }
