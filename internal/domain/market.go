package domain

import "time"

// MarketState es el snapshot que recibe la estrategia en cada update.
// Combina el top of book actual (cuando el runner va por libro) con la
// última barra cerrada (cuando va por barras); los campos no disponibles
// quedan a cero y HasBar/HasBook dicen qué mitad está poblada.
//
// Las estrategias lo leen, nunca lo mutan; el runner construye un valor
// nuevo por evento.
type MarketState struct {
	Timestamp time.Time
	Symbol    string

	// Vista del libro.
	HasBook    bool
	MidPrice   float64
	Imbalance  float64 // imbalance del libro, o de volumen de barra en modo barras
	Spread     float64
	SpreadBps  float64
	BestBid    float64
	BestAsk    float64
	BestBidQty float64
	BestAskQty float64

	// Última barra cerrada, cuando el runner va por barras.
	HasBar bool
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	VWAP   float64

	// Posición actual, para que la estrategia evite entradas duplicadas.
	PositionSide Side // vacío = plano
	PositionQty  float64
}

// StateFromBook construye un MarketState desde un snapshot de libro.
func StateFromBook(snap OrderbookSnapshot, pos Position) MarketState {
	bid, ask := snap.BestBid(), snap.BestAsk()
	return MarketState{
		Timestamp:    snap.Timestamp,
		Symbol:       snap.Symbol,
		HasBook:      true,
		MidPrice:     snap.MidPrice(),
		Imbalance:    snap.Imbalance(),
		Spread:       snap.Spread(),
		SpreadBps:    snap.SpreadBps(),
		BestBid:      bid.Price,
		BestAsk:      ask.Price,
		BestBidQty:   bid.Quantity,
		BestAskQty:   ask.Quantity,
		PositionSide: pos.Side,
		PositionQty:  pos.Quantity,
	}
}

// StateFromCandle construye un MarketState desde una barra. Sin libro
// disponible, el close de la barra hace de ambas cotizaciones y su
// imbalance de volumen hace de imbalance de libro.
func StateFromCandle(c Candle, ts time.Time, symbol string, pos Position) MarketState {
	return MarketState{
		Timestamp:    ts,
		Symbol:       symbol,
		MidPrice:     c.Close,
		Imbalance:    c.VolumeImbalance(),
		BestBid:      c.Close,
		BestAsk:      c.Close,
		BestBidQty:   c.BuyVolume,
		BestAskQty:   c.SellVolume,
		HasBar:       true,
		Open:         c.Open,
		High:         c.High,
		Low:          c.Low,
		Close:        c.Close,
		Volume:       c.Volume,
		VWAP:         c.VWAP(),
		PositionSide: pos.Side,
		PositionQty:  pos.Quantity,
	}
}
