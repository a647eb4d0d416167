package strategy

import (
	"fmt"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// OBI opera sobre el desequilibrio del orderbook (Order Book Imbalance):
// cuando la presión compradora supera el umbral entra largo, cuando la
// vendedora domina cierra la posición. Órdenes LIMIT estilo taker para
// ejecutar rápido sin pagar slippage de mercado.
//
// Los umbrales son estrictos: un imbalance exactamente igual al umbral no
// genera señal.
type OBI struct {
	Base
	buyThreshold  float64
	sellThreshold float64
}

// NewOBI construye la estrategia. Defaults: buy 0.3, sell -0.3, como en
// los umbrales clásicos de OBI sobre el top of book.
func NewOBI(p Params) (*OBI, error) {
	s := &OBI{
		buyThreshold:  p.Get("buy_threshold", 0.3),
		sellThreshold: p.Get("sell_threshold", -0.3),
	}
	if s.buyThreshold <= s.sellThreshold {
		return nil, fmt.Errorf("strategy.NewOBI: buy_threshold %v <= sell_threshold %v", s.buyThreshold, s.sellThreshold)
	}
	qty := p.Quantity
	if qty <= 0 {
		qty = 0.01
	}
	s.Base = NewBase(s, qty)
	return s, nil
}

func (s *OBI) Name() string { return "obi" }

func (s *OBI) ShouldBuy(state domain.MarketState) bool {
	return state.Imbalance > s.buyThreshold
}

func (s *OBI) ShouldSell(state domain.MarketState) bool {
	return state.Imbalance < s.sellThreshold
}

// LimitPrice cruza el libro: compra al best ask, vende al best bid.
func (s *OBI) LimitPrice(state domain.MarketState, side domain.Side) float64 {
	return TakerLimitPrice(state, side)
}
