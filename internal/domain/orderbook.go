package domain

import (
	"fmt"
	"time"
)

// BookLevel es un nivel de precio de un lado del libro.
type BookLevel struct {
	Price    float64
	Quantity float64
}

// OrderbookSnapshot es un snapshot de profundidad crudo de una fuente de
// datos. Los bids van por precio descendente, los asks ascendente.
type OrderbookSnapshot struct {
	Timestamp    time.Time
	Symbol       string
	Bids         []BookLevel
	Asks         []BookLevel
	LastUpdateID int64
}

// Validate rechaza snapshots sin un top of book usable.
func (s OrderbookSnapshot) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("domain.OrderbookSnapshot: missing timestamp")
	}
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return fmt.Errorf("domain.OrderbookSnapshot: empty book side (bids=%d asks=%d)", len(s.Bids), len(s.Asks))
	}
	return nil
}

// BestBid devuelve el mejor bid. Valores cero si el lado está vacío.
func (s OrderbookSnapshot) BestBid() BookLevel {
	if len(s.Bids) == 0 {
		return BookLevel{}
	}
	return s.Bids[0]
}

// BestAsk devuelve el mejor ask. Valores cero si el lado está vacío.
func (s OrderbookSnapshot) BestAsk() BookLevel {
	if len(s.Asks) == 0 {
		return BookLevel{}
	}
	return s.Asks[0]
}

// MidPrice es (best bid + best ask) / 2.
func (s OrderbookSnapshot) MidPrice() float64 {
	bid, ask := s.BestBid().Price, s.BestAsk().Price
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread es best ask menos best bid.
func (s OrderbookSnapshot) Spread() float64 {
	bid, ask := s.BestBid().Price, s.BestAsk().Price
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// SpreadBps es el spread relativo al mid price, en puntos básicos.
func (s OrderbookSnapshot) SpreadBps() float64 {
	mid := s.MidPrice()
	if mid == 0 {
		return 0
	}
	return s.Spread() / mid * 10000
}

// MicroPrice pondera el mid por la cantidad del lado contrario: el precio
// se inclina hacia el lado fino del libro.
func (s OrderbookSnapshot) MicroPrice() float64 {
	bid, ask := s.BestBid(), s.BestAsk()
	total := bid.Quantity + ask.Quantity
	if total == 0 {
		return s.MidPrice()
	}
	return (bid.Price*ask.Quantity + ask.Price*bid.Quantity) / total
}

// Imbalance es el desequilibrio normalizado de cantidades en el top of
// book, (bidQty - askQty) / (bidQty + askQty), en [-1, 1].
func (s OrderbookSnapshot) Imbalance() float64 {
	bid, ask := s.BestBid(), s.BestAsk()
	total := bid.Quantity + ask.Quantity
	if total == 0 {
		return 0
	}
	return (bid.Quantity - ask.Quantity) / total
}
