package strategy

import "github.com/jwcorp/tickdesk/internal/domain"

// Rules son las condiciones de entrada y salida de una estrategia. Base las
// compila en un GenerateOrder completo con la lógica fija de deduplicación.
type Rules interface {
	ShouldBuy(state domain.MarketState) bool
	ShouldSell(state domain.MarketState) bool
}

// LimitRules lo implementan las estrategias que operan con órdenes LIMIT.
// LimitPrice se consulta solo cuando hay señal.
type LimitRules interface {
	Rules

	// LimitPrice devuelve el precio de la orden LIMIT para el lado dado.
	LimitPrice(state domain.MarketState, side domain.Side) float64
}

// Base compone unas Rules en la mecánica común de generación de órdenes:
//   - señal de compra: se ignora si ya hay posición BUY (no piramidar)
//   - señal de venta: requiere posición BUY abierta (spot, sin cortos)
//   - tipo de orden: LIMIT si las rules implementan LimitRules, MARKET si no
//
// Las estrategias embeben Base y solo escriben sus condiciones.
type Base struct {
	Qty   float64
	rules Rules
}

// NewBase crea la base con las rules de la estrategia concreta.
func NewBase(rules Rules, qty float64) Base {
	return Base{Qty: qty, rules: rules}
}

// GenerateOrder aplica las rules sobre el estado y construye la orden.
func (b Base) GenerateOrder(state domain.MarketState) *domain.Order {
	if b.rules.ShouldBuy(state) {
		if state.PositionSide == domain.Buy {
			return nil
		}
		return b.build(state, domain.Buy)
	}

	if b.rules.ShouldSell(state) {
		// Spot: sin posición no hay nada que vender.
		if state.PositionSide != domain.Buy {
			return nil
		}
		return b.build(state, domain.Sell)
	}

	return nil
}

func (b Base) build(state domain.MarketState, side domain.Side) *domain.Order {
	o := &domain.Order{Side: side, Quantity: b.Qty, Type: domain.Market}
	if lr, ok := b.rules.(LimitRules); ok {
		o.Type = domain.Limit
		o.LimitPrice = lr.LimitPrice(state, side)
	}
	return o
}

// TakerLimitPrice es el precio LIMIT estilo taker: cruza el libro para
// ejecutar de inmediato (compra al ask, vende al bid).
func TakerLimitPrice(state domain.MarketState, side domain.Side) float64 {
	if side == domain.Buy {
		return state.BestAsk
	}
	return state.BestBid
}
