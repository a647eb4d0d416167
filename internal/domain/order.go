package domain

import (
	"fmt"
	"time"
)

// Side es la dirección de una orden o posición.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite devuelve el lado contrario.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType distingue órdenes inmediatas de órdenes que descansan en el
// libro.
type OrderType string

const (
	// Market cruza de inmediato al precio vigente (taker).
	Market OrderType = "MARKET"
	// Limit descansa hasta que el mercado alcanza el limit price (maker).
	Limit OrderType = "LIMIT"
)

// Order es lo que emite una estrategia. Inmutable tras crearse; una vez
// enviada es del paper trader y la única mutación externa es sacarla de la
// cola cancelándola.
//
// StopLoss y TakeProfit son metadatos de la estrategia: el trader no actúa
// sobre ellos, las estrategias los siguen contra los MarketState entrantes
// y emiten ellas mismas la orden de cierre.
type Order struct {
	Side       Side
	Quantity   float64
	Type       OrderType
	LimitPrice float64 // obligatorio para órdenes Limit
	StopLoss   float64 // opcional, 0 = sin definir
	TakeProfit float64 // opcional, 0 = sin definir
}

// Validate comprueba los campos estructurales de la orden. El saldo no se
// comprueba aquí: la suficiencia de balance es cosa del momento del fill.
func (o Order) Validate() error {
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("domain.Order: invalid side %q", o.Side)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("domain.Order: non-positive quantity %v", o.Quantity)
	}
	switch o.Type {
	case Market:
	case Limit:
		if o.LimitPrice <= 0 {
			return fmt.Errorf("domain.Order: limit order without a positive limit price")
		}
	default:
		return fmt.Errorf("domain.Order: invalid order type %q", o.Type)
	}
	return nil
}

// Position es la única posición abierta del paper trader. Side vacío
// significa plano. Cantidad y precio de entrada solo los mutan los fills.
type Position struct {
	Side          Side // vacío = plano
	Quantity      float64
	EntryPrice    float64 // entrada media ponderada por volumen
	UnrealizedPnL float64

	// Campos del modo futuros; valores cero en spot.
	Leverage         int
	LiquidationPrice float64
	Margin           float64
}

// IsOpen indica si hay posición abierta.
func (p Position) IsOpen() bool { return p.Side != "" }

// Trade es un fill ejecutado que se añade al ledger. Las entradas llevan
// PnL cero; el tramo de cierre de una posición lleva el PnL realizado neto
// de fees.
type Trade struct {
	Timestamp time.Time
	Side      Side
	Price     float64
	Quantity  float64
	Fee       float64
	PnL       float64
}

// EquityPoint es una muestra mark-to-market de la curva de equity.
type EquityPoint struct {
	Timestamp           time.Time
	Equity              float64
	Drawdown            float64 // caída porcentual desde el máximo
	CumulativePnL       float64
	CumulativeReturnPct float64
}
