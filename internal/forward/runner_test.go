package forward_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwcorp/tickdesk/internal/domain"
	"github.com/jwcorp/tickdesk/internal/forward"
	"github.com/jwcorp/tickdesk/internal/paper"
	"github.com/jwcorp/tickdesk/internal/ports"
	"github.com/jwcorp/tickdesk/internal/strategy"
)

var t0 = time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

// scriptedStream reproduce una secuencia fija de eventos y termina, como
// si el stream se cerrara limpiamente.
type scriptedStream struct {
	events []any
}

func (s *scriptedStream) Run(ctx context.Context, h ports.StreamHandlers) error {
	for _, ev := range s.events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		switch e := ev.(type) {
		case domain.OrderbookSnapshot:
			if h.OnBook != nil {
				h.OnBook(e)
			}
		case domain.AggTrade:
			if h.OnTrade != nil {
				h.OnTrade(e)
			}
		case error:
			if h.OnError != nil {
				h.OnError(e)
			}
		}
	}
	return nil
}

// blockingStream no emite nada y espera a la cancelación.
type blockingStream struct{}

func (blockingStream) Run(ctx context.Context, h ports.StreamHandlers) error {
	<-ctx.Done()
	return ctx.Err()
}

func book(offset time.Duration, bidPrice, bidQty, askPrice, askQty float64) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		Timestamp: t0.Add(offset),
		Symbol:    "BTCUSDT",
		Bids:      []domain.BookLevel{{Price: bidPrice, Quantity: bidQty}},
		Asks:      []domain.BookLevel{{Price: askPrice, Quantity: askQty}},
	}
}

func trade(offset time.Duration, price float64) domain.AggTrade {
	return domain.AggTrade{Timestamp: t0.Add(offset), Price: price, Quantity: 0.5}
}

func newRunner(t *testing.T, src ports.StreamSource) *forward.Runner {
	t.Helper()
	s, err := strategy.NewOBI(strategy.Params{Quantity: 0.01})
	require.NoError(t, err)
	trader, err := paper.New(paper.Config{InitialCapital: 10000, FeeRate: 0.001})
	require.NoError(t, err)
	return forward.New(forward.Config{Symbol: "BTCUSDT"}, s, trader, src)
}

func TestRunner_FullCycle(t *testing.T) {
	src := &scriptedStream{events: []any{
		// Presión compradora: LIMIT BUY al ask 100010.
		book(0, 99990, 9, 100010, 1),
		// El trade a 100000 dispara el fill de la compra.
		trade(time.Second, 100000),
		// Presión vendedora con posición abierta: LIMIT SELL al bid 100490.
		book(2*time.Second, 100490, 1, 100510, 9),
		// El trade a 100500 dispara el fill de la venta.
		trade(3*time.Second, 100500),
	}}
	r := newRunner(t, src)

	require.NoError(t, r.Run(context.Background(), 0))

	fills := r.Trader().Trades()
	require.Len(t, fills, 2)
	assert.Equal(t, domain.Buy, fills[0].Side)
	assert.Equal(t, 100010.0, fills[0].Price)
	assert.Equal(t, domain.Sell, fills[1].Side)
	assert.Equal(t, 100490.0, fills[1].Price)

	report := r.Report()
	assert.Equal(t, 2, report.TotalTrades)
	assert.Equal(t, "obi", report.StrategyName)
	assert.Equal(t, "BTCUSDT", report.Symbol)
}

func TestRunner_TradeBeforeAnyBookIsIgnoredForFills(t *testing.T) {
	src := &scriptedStream{events: []any{
		trade(0, 100000),
		book(time.Second, 99990, 9, 100010, 1),
	}}
	r := newRunner(t, src)

	require.NoError(t, r.Run(context.Background(), 0))
	assert.Empty(t, r.Trader().Trades())
	assert.Len(t, r.Trader().PendingOrders(), 1, "el book sí genera la orden")
}

func TestRunner_InvalidSnapshotDropped(t *testing.T) {
	src := &scriptedStream{events: []any{
		domain.OrderbookSnapshot{Timestamp: t0, Symbol: "BTCUSDT"},
		trade(time.Second, 100000),
	}}
	r := newRunner(t, src)

	require.NoError(t, r.Run(context.Background(), 0))
	assert.Nil(t, r.MarketState(), "un snapshot sin niveles no cuenta como estado")
}

func TestRunner_DurationSelfTerminates(t *testing.T) {
	r := newRunner(t, blockingStream{})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), 50*time.Millisecond) }()

	select {
	case err := <-done:
		assert.NoError(t, err, "el deadline es una parada limpia")
	case <-time.After(2 * time.Second):
		t.Fatal("Run no terminó con la duración cumplida")
	}
}

func TestRunner_Stop(t *testing.T) {
	r := newRunner(t, blockingStream{})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), 0) }()

	// Espera a que el run registre su cancel antes de parar.
	time.Sleep(20 * time.Millisecond)
	r.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run no terminó tras Stop")
	}
}

func TestRunner_ReportWhileIdle(t *testing.T) {
	r := newRunner(t, &scriptedStream{})
	report := r.Report()
	assert.Equal(t, 10000.0, report.FinalCapital)
	assert.Zero(t, report.TotalTrades)
}
