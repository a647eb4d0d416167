package domain

import (
	"fmt"
	"time"
)

// AggTrade es un trade agregado del stream del exchange. Las fuentes los
// entregan con timestamp no decreciente; los consumidores que dependen del
// orden (el candle builder) lo validan en vez de asumirlo.
type AggTrade struct {
	Timestamp    time.Time
	Price        float64
	Quantity     float64
	IsBuyerMaker bool
}

// Notional devuelve el valor en dólares del trade.
func (t AggTrade) Notional() float64 {
	return t.Price * t.Quantity
}

// Validate rechaza trades estructuralmente malformados.
func (t AggTrade) Validate() error {
	if t.Timestamp.IsZero() {
		return fmt.Errorf("domain.AggTrade: missing timestamp")
	}
	if t.Price <= 0 {
		return fmt.Errorf("domain.AggTrade: non-positive price %v", t.Price)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("domain.AggTrade: non-positive quantity %v", t.Quantity)
	}
	return nil
}
