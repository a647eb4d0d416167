package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func snap(bidP, bidQ, askP, askQ float64) OrderbookSnapshot {
	return OrderbookSnapshot{
		Timestamp: time.Now(),
		Symbol:    "BTCUSDT",
		Bids:      []BookLevel{{Price: bidP, Quantity: bidQ}},
		Asks:      []BookLevel{{Price: askP, Quantity: askQ}},
	}
}

func TestOrderbookSnapshot_TopOfBook(t *testing.T) {
	s := snap(100, 10, 101, 5)

	assert.InDelta(t, 100.5, s.MidPrice(), 1e-9)
	assert.InDelta(t, 1.0, s.Spread(), 1e-9)
	assert.InDelta(t, 1.0/100.5*10000, s.SpreadBps(), 1e-9)
}

func TestOrderbookSnapshot_Imbalance(t *testing.T) {
	s := snap(100, 10, 101, 5)
	assert.InDelta(t, (10.0-5.0)/15.0, s.Imbalance(), 1e-9)

	empty := OrderbookSnapshot{}
	assert.Equal(t, 0.0, empty.Imbalance())
}

func TestOrderbookSnapshot_MicroPrice(t *testing.T) {
	// Un lado ask fino empuja el micro price por encima del mid.
	s := snap(100, 10, 101, 1)
	micro := s.MicroPrice()
	assert.Greater(t, micro, s.MidPrice())
	assert.InDelta(t, (100*1+101*10)/11.0, micro, 1e-9)
}

func TestOrderbookSnapshot_Validate(t *testing.T) {
	assert.NoError(t, snap(100, 1, 101, 1).Validate())

	missing := OrderbookSnapshot{Timestamp: time.Now(), Bids: []BookLevel{{Price: 100, Quantity: 1}}}
	assert.Error(t, missing.Validate())
	assert.Error(t, OrderbookSnapshot{}.Validate())
}
