package backtest

import (
	"time"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// equityTracker acumula la curva de equity de un run: un punto por cada
// cambio de equity realizado, con drawdown respecto al pico.
type equityTracker struct {
	initial float64
	peak    float64
	curve   []domain.EquityPoint
}

func newEquityTracker(initialCapital float64) *equityTracker {
	return &equityTracker{initial: initialCapital, peak: initialCapital}
}

// record añade un punto con el equity realizado actual.
func (e *equityTracker) record(ts time.Time, realizedPnL float64) {
	e.recordValue(ts, e.initial+realizedPnL)
}

// recordValue añade un punto con un equity ya calculado, para runners que
// marcan a mercado (cartera).
func (e *equityTracker) recordValue(ts time.Time, equity float64) {
	if equity > e.peak {
		e.peak = equity
	}

	drawdown := 0.0
	if e.peak > 0 {
		drawdown = (e.peak - equity) / e.peak * 100
	}

	cumPnL := equity - e.initial
	cumReturn := 0.0
	if e.initial > 0 {
		cumReturn = cumPnL / e.initial * 100
	}

	e.curve = append(e.curve, domain.EquityPoint{
		Timestamp:           ts,
		Equity:              equity,
		Drawdown:            drawdown,
		CumulativePnL:       cumPnL,
		CumulativeReturnPct: cumReturn,
	})
}

// points devuelve una copia de la curva.
func (e *equityTracker) points() []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(e.curve))
	copy(out, e.curve)
	return out
}
