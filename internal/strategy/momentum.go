package strategy

import (
	"fmt"
	"sort"
)

// SymbolReturn es el retorno de lookback de un símbolo en una ventana de
// rebalanceo, calculado por el runner de cartera.
type SymbolReturn struct {
	Symbol string
	Return float64
}

// PortfolioStrategy decide la asignación objetivo de una cartera a partir
// del ranking cross-sectional de retornos. Devuelve pesos por símbolo que
// suman como máximo 1; los símbolos ausentes quedan a peso cero (cash).
type PortfolioStrategy interface {
	Name() string
	Allocate(returns []SymbolReturn) map[string]float64
}

// Momentum compra los TopN símbolos con mejor retorno de lookback a peso
// igual, y solo si el retorno es positivo: en mercado bajista generalizado
// la cartera se queda en cash. Empates se resuelven por símbolo para que
// el resultado sea determinista.
type Momentum struct {
	topN float64
}

// NewMomentum construye la estrategia. Default top_n = 2.
func NewMomentum(p Params) (*Momentum, error) {
	s := &Momentum{topN: p.Get("top_n", 2)}
	if s.topN < 1 {
		return nil, fmt.Errorf("strategy.NewMomentum: top_n %v < 1", s.topN)
	}
	return s, nil
}

func (s *Momentum) Name() string { return "momentum" }

// Allocate ordena por retorno descendente y reparte peso igual entre los
// TopN con retorno positivo.
func (s *Momentum) Allocate(returns []SymbolReturn) map[string]float64 {
	ranked := make([]SymbolReturn, len(returns))
	copy(ranked, returns)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Return != ranked[j].Return {
			return ranked[i].Return > ranked[j].Return
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})

	n := int(s.topN)
	if n > len(ranked) {
		n = len(ranked)
	}

	picked := make([]string, 0, n)
	for _, r := range ranked[:n] {
		if r.Return <= 0 {
			break
		}
		picked = append(picked, r.Symbol)
	}
	if len(picked) == 0 {
		return map[string]float64{}
	}

	weight := 1.0 / float64(len(picked))
	alloc := make(map[string]float64, len(picked))
	for _, sym := range picked {
		alloc[sym] = weight
	}
	return alloc
}
