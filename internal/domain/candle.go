package domain

import (
	"fmt"
	"time"
)

// CandleType selecciona la regla de buckets para agregar trades en barras.
type CandleType string

const (
	// CandleTime cierra el bucket tras un intervalo fijo de event-time (segundos).
	CandleTime CandleType = "time"
	// CandleTick cierra el bucket tras un número fijo de trades.
	CandleTick CandleType = "tick"
	// CandleVolume cierra el bucket cuando la cantidad acumulada alcanza el size.
	CandleVolume CandleType = "volume"
	// CandleDollar cierra el bucket cuando el notional acumulado alcanza el size.
	CandleDollar CandleType = "dollar"
)

// ParseCandleType mapea el string del config a un CandleType. Un valor
// desconocido es un error de configuración, nunca un default silencioso.
func ParseCandleType(s string) (CandleType, error) {
	switch CandleType(s) {
	case CandleTime, CandleTick, CandleVolume, CandleDollar:
		return CandleType(s), nil
	default:
		return "", fmt.Errorf("domain.ParseCandleType: unknown candle type %q", s)
	}
}

// Candle es una barra OHLCV sobre un bucket de trades. Inmutable una vez
// emitida por el builder.
type Candle struct {
	Timestamp   time.Time // primer trade del bucket
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64 // price*quantity acumulado
	TradeCount  int
	BuyVolume   float64 // cantidad taker-buy
	SellVolume  float64 // cantidad taker-sell
}

// VWAP es el precio medio ponderado por volumen de los trades de la barra.
// Para una barra degenerada sin volumen cae a OHLC4.
func (c Candle) VWAP() float64 {
	if c.Volume > 0 {
		return c.QuoteVolume / c.Volume
	}
	return (c.Open + c.High + c.Low + c.Close) / 4
}

// VolumeImbalance es (buy - sell) / (buy + sell), en [-1, 1].
func (c Candle) VolumeImbalance() float64 {
	total := c.BuyVolume + c.SellVolume
	if total > 0 {
		return (c.BuyVolume - c.SellVolume) / total
	}
	return 0
}

// Range es high menos low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Body es close menos open.
func (c Candle) Body() float64 { return c.Close - c.Open }

// IsBullish indica si la barra cerró por encima de su open.
func (c Candle) IsBullish() bool { return c.Close > c.Open }
