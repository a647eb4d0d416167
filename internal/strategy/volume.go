package strategy

import (
	"fmt"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// VolumeImbalance opera sobre el desequilibrio de volumen ejecutado de la
// última vela: (buy_volume - sell_volume) / total. A diferencia de OBI no
// necesita orderbook, solo ticks, por lo que sirve para backtests de
// aggTrades. Órdenes MARKET: la señal por barra no es tan sensible al
// slippage como la de libro.
//
// Umbrales por defecto más altos que OBI (0.4): el volumen ejecutado es
// más ruidoso que el libro.
type VolumeImbalance struct {
	Base
	buyThreshold  float64
	sellThreshold float64
}

// NewVolumeImbalance construye la estrategia con defaults 0.4 / -0.4.
func NewVolumeImbalance(p Params) (*VolumeImbalance, error) {
	s := &VolumeImbalance{
		buyThreshold:  p.Get("buy_threshold", 0.4),
		sellThreshold: p.Get("sell_threshold", -0.4),
	}
	if s.buyThreshold <= s.sellThreshold {
		return nil, fmt.Errorf("strategy.NewVolumeImbalance: buy_threshold %v <= sell_threshold %v", s.buyThreshold, s.sellThreshold)
	}
	qty := p.Quantity
	if qty <= 0 {
		qty = 0.01
	}
	s.Base = NewBase(s, qty)
	return s, nil
}

func (s *VolumeImbalance) Name() string { return "volume_imbalance" }

func (s *VolumeImbalance) ShouldBuy(state domain.MarketState) bool {
	return state.Imbalance > s.buyThreshold
}

func (s *VolumeImbalance) ShouldSell(state domain.MarketState) bool {
	return state.Imbalance < s.sellThreshold
}
