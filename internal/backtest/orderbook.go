package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwcorp/tickdesk/internal/domain"
	"github.com/jwcorp/tickdesk/internal/paper"
	"github.com/jwcorp/tickdesk/internal/performance"
	"github.com/jwcorp/tickdesk/internal/ports"
	"github.com/jwcorp/tickdesk/internal/strategy"
)

// BookConfig configura un backtest sobre snapshots de orderbook.
type BookConfig struct {
	Symbol        string
	ProgressEvery int
}

const defaultBookProgress = 10_000

// BookRunner reproduce snapshots de orderbook contra una estrategia de
// libro. A diferencia del TickRunner no hay velas: cada snapshot genera un
// MarketState y una posible orden. Los fills se comprueban contra el mid
// price del snapshot.
type BookRunner struct {
	cfg    BookConfig
	strat  strategy.Strategy
	trader *paper.Trader
	equity *equityTracker

	snapshotCount int
	orderCount    int
	fillCount     int
	startTime     time.Time
	endTime       time.Time
}

// NewBookRunner construye el runner con un trader ya configurado.
func NewBookRunner(cfg BookConfig, strat strategy.Strategy, trader *paper.Trader) *BookRunner {
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultBookProgress
	}
	return &BookRunner{
		cfg:    cfg,
		strat:  strat,
		trader: trader,
		equity: newEquityTracker(trader.InitialCapital()),
	}
}

// Run consume la fuente hasta agotarla y devuelve el reporte final.
func (r *BookRunner) Run(src ports.SnapshotSource) (performance.Report, error) {
	slog.Info("orderbook backtest starting",
		"symbol", r.cfg.Symbol,
		"strategy", r.strat.Name(),
		"initial_capital", r.trader.InitialCapital(),
	)

	for {
		snap, ok, err := src.Next()
		if err != nil {
			return performance.Report{}, fmt.Errorf("backtest.BookRunner: fuente de snapshots: %w", err)
		}
		if !ok {
			break
		}
		if err := r.processSnapshot(snap); err != nil {
			return performance.Report{}, err
		}

		if r.startTime.IsZero() {
			r.startTime = snap.Timestamp
		}
		r.endTime = snap.Timestamp

		if r.snapshotCount%r.cfg.ProgressEvery == 0 {
			slog.Info("orderbook backtest progress",
				"snapshots", r.snapshotCount,
				"orders", r.orderCount,
				"fills", r.fillCount,
				"total_pnl", r.trader.TotalPnL(),
			)
		}
	}

	slog.Info("orderbook backtest complete",
		"snapshots", r.snapshotCount,
		"orders", r.orderCount,
		"fills", r.fillCount,
	)
	return r.Report(), nil
}

func (r *BookRunner) processSnapshot(snap domain.OrderbookSnapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("backtest.BookRunner: %w", err)
	}
	r.snapshotCount++

	bid, ask := snap.BestBid(), snap.BestAsk()
	mid := snap.MidPrice()

	// 1. Fills contra el mid: sin trades ejecutados reales, el mid es la
	// mejor aproximación al precio negociable.
	if fill := r.trader.OnPriceUpdate(mid, bid.Price, ask.Price, snap.Timestamp); fill != nil {
		r.fillCount++
		r.equity.record(snap.Timestamp, r.trader.RealizedPnL())
	}

	// 2. Estrategia sobre el top of book.
	state := domain.StateFromBook(snap, r.trader.Position())
	if order := r.strat.GenerateOrder(state); order != nil && !r.trader.HasPendingSide(order.Side) {
		if _, err := r.trader.SubmitOrder(*order, snap.Timestamp); err != nil {
			slog.Warn("order rejected at submission", "err", err)
		} else {
			r.orderCount++
		}
	}

	// 3. Mark to market.
	r.trader.UpdateUnrealizedPnL(mid)
	return nil
}

// Report calcula el reporte con el estado actual del trader.
func (r *BookRunner) Report() performance.Report {
	return performance.Calculate(r.trader.Trades(), r.equity.points(), performance.Meta{
		StrategyName:   r.strat.Name(),
		Symbol:         r.cfg.Symbol,
		StartTime:      r.startTime,
		EndTime:        r.endTime,
		InitialCapital: r.trader.InitialCapital(),
	})
}

// SaveReport persiste el run en el store y devuelve su id.
func (r *BookRunner) SaveReport(ctx context.Context, store ports.ReportStore) (int64, error) {
	id, err := store.SaveRun(ctx, r.Report(), r.trader.Trades(), r.equity.points())
	if err != nil {
		return 0, fmt.Errorf("backtest.BookRunner: guardando reporte: %w", err)
	}
	return id, nil
}

// EquityCurve devuelve una copia de la curva de equity.
func (r *BookRunner) EquityCurve() []domain.EquityPoint { return r.equity.points() }

// Trader expone el trader para inspección.
func (r *BookRunner) Trader() *paper.Trader { return r.trader }

// SnapshotCount devuelve los snapshots procesados.
func (r *BookRunner) SnapshotCount() int { return r.snapshotCount }
