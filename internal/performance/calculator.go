// Package performance convierte un ledger de trades y una curva de equity
// en las estadísticas resumen de un run terminado.
package performance

import (
	"math"
	"time"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// Meta identifica el run que describe un reporte.
type Meta struct {
	StrategyName   string
	Symbol         string
	StartTime      time.Time
	EndTime        time.Time
	InitialCapital float64
}

// Report es el resumen inmutable de un run. Los porcentajes van en
// porcentaje (12.5, no 0.125).
type Report struct {
	StrategyName string
	Symbol       string
	StartTime    time.Time
	EndTime      time.Time

	InitialCapital float64
	FinalCapital   float64
	TotalReturn    float64

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	// ProfitFactor es beneficio bruto sobre pérdida bruta. +Inf cuando hay
	// ganadoras y ninguna perdedora, 0 cuando no hay ganadoras.
	ProfitFactor float64
	AvgWin       float64
	AvgLoss      float64

	MaxDrawdown float64
	SharpeRatio float64

	TotalFees float64
}

// Calculate construye el reporte desde el ledger. equity puede ser nil:
// el drawdown cae entonces al recorrido de PnL acumulado y el Sharpe a la
// serie de PnL de trades cerrados. Con cero trades todas las estadísticas
// son cero y el capital final iguala al inicial.
func Calculate(trades []domain.Trade, equity []domain.EquityPoint, meta Meta) Report {
	r := Report{
		StrategyName:   meta.StrategyName,
		Symbol:         meta.Symbol,
		StartTime:      meta.StartTime,
		EndTime:        meta.EndTime,
		InitialCapital: meta.InitialCapital,
		FinalCapital:   meta.InitialCapital,
	}
	if len(trades) == 0 {
		return r
	}

	var totalPnL, totalProfit, totalLoss float64
	var pnls []float64
	for _, t := range trades {
		r.TotalFees += t.Fee
		totalPnL += t.PnL
		if t.PnL == 0 {
			continue
		}
		pnls = append(pnls, t.PnL)
		if t.PnL > 0 {
			r.WinningTrades++
			totalProfit += t.PnL
		} else {
			r.LosingTrades++
			totalLoss += -t.PnL
		}
	}

	r.TotalTrades = len(trades)
	if n := r.WinningTrades + r.LosingTrades; n > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(n) * 100
	}

	switch {
	case totalLoss > 0:
		r.ProfitFactor = totalProfit / totalLoss
	case totalProfit > 0:
		r.ProfitFactor = math.Inf(1)
	}
	if r.WinningTrades > 0 {
		r.AvgWin = totalProfit / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = totalLoss / float64(r.LosingTrades)
	}

	r.FinalCapital = meta.InitialCapital + totalPnL
	if meta.InitialCapital > 0 {
		r.TotalReturn = (r.FinalCapital - meta.InitialCapital) / meta.InitialCapital * 100
	}

	r.MaxDrawdown = maxDrawdown(trades, equity, meta.InitialCapital)
	r.SharpeRatio = sharpe(pnls, equity)
	return r
}

// maxDrawdown devuelve la mayor caída pico a valle en porcentaje. Recorre
// la curva de equity cuando hay una, y si no el PnL realizado acumulado
// sobre el ledger.
func maxDrawdown(trades []domain.Trade, equity []domain.EquityPoint, initial float64) float64 {
	peak := initial
	maxDD := 0.0

	observe := func(v float64) {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}

	if len(equity) > 0 {
		for _, p := range equity {
			observe(p.Equity)
		}
		return maxDD
	}

	capital := initial
	for _, t := range trades {
		capital += t.PnL
		observe(capital)
	}
	return maxDD
}

// sharpe calcula media sobre desviación típica muestral de los retornos
// por muestra de la curva. Sin anualizar: las muestras llegan a la
// cadencia que las grabó el runner, así que no hay periodo con el que
// escalar. Con menos de 3 muestras de equity cae a la serie de PnL de
// trades cerrados; menos de 2 observaciones da 0.
func sharpe(pnls []float64, equity []domain.EquityPoint) float64 {
	var series []float64
	if len(equity) >= 3 {
		series = make([]float64, 0, len(equity)-1)
		for i := 1; i < len(equity); i++ {
			prev := equity[i-1].Equity
			if prev == 0 {
				continue
			}
			series = append(series, (equity[i].Equity-prev)/prev)
		}
	} else {
		series = pnls
	}
	if len(series) < 2 {
		return 0
	}

	var mean float64
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))

	var sumSq float64
	for _, v := range series {
		d := v - mean
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(len(series)-1))
	if std == 0 {
		return 0
	}
	return mean / std
}
