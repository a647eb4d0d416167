package paper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwcorp/tickdesk/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newSpot(t *testing.T, capital, fee float64) *Trader {
	t.Helper()
	tr, err := New(Config{InitialCapital: capital, FeeRate: fee})
	require.NoError(t, err)
	return tr
}

func marketOrder(side domain.Side, qty float64) domain.Order {
	return domain.Order{Side: side, Quantity: qty, Type: domain.Market}
}

func limitOrder(side domain.Side, qty, price float64) domain.Order {
	return domain.Order{Side: side, Quantity: qty, Type: domain.Limit, LimitPrice: price}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{InitialCapital: 0})
	assert.Error(t, err)
	_, err = New(Config{InitialCapital: 1000, FeeRate: -0.001})
	assert.Error(t, err)
	_, err = New(Config{InitialCapital: 1000, Leverage: -2})
	assert.Error(t, err)
}

func TestSubmitOrder_StructuralValidationOnly(t *testing.T) {
	tr := newSpot(t, 100, 0.001)

	// Impagable al enviarse no importa; el saldo se comprueba al ejecutar.
	id, err := tr.SubmitOrder(limitOrder(domain.Buy, 10, 100000), t0)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Len(t, tr.PendingOrders(), 1)

	_, err = tr.SubmitOrder(domain.Order{Side: domain.Buy, Quantity: 0, Type: domain.Market}, t0)
	assert.Error(t, err)
}

func TestMarketBuy_FillsAtAsk(t *testing.T) {
	tr := newSpot(t, 10000, 0.001)
	tr.SubmitOrder(marketOrder(domain.Buy, 0.01), t0)

	trade := tr.OnPriceUpdate(100000, 99990, 100000, t0.Add(time.Second))
	require.NotNil(t, trade)
	assert.Equal(t, 100000.0, trade.Price)
	assert.InDelta(t, 1.0, trade.Fee, 1e-9)
	assert.Equal(t, 0.0, trade.PnL)
	assert.InDelta(t, 8999.0, tr.USDBalance(), 1e-6)
	assert.InDelta(t, 0.01, tr.AssetBalance(), 1e-12)
	assert.Empty(t, tr.PendingOrders())
}

func TestEndToEndScenario_BalancesAndPnL(t *testing.T) {
	// $10,000, fee 0.1%: el BUY 0.01 @ 100k cuesta $1,000 + $1 de fee;
	// el SELL 0.01 @ 101k devuelve $1,010 - $1.01 de fee. El PnL realizado
	// es neto de ambas patas: 10 - 1 - 1.01 = 7.99.
	tr := newSpot(t, 10000, 0.001)

	tr.SubmitOrder(marketOrder(domain.Buy, 0.01), t0)
	require.NotNil(t, tr.OnPriceUpdate(100000, 100000, 100000, t0.Add(time.Second)))
	assert.InDelta(t, 8999.0, tr.USDBalance(), 1e-6)

	tr.SubmitOrder(marketOrder(domain.Sell, 0.01), t0.Add(2*time.Second))
	trade := tr.OnPriceUpdate(101000, 101000, 101000, t0.Add(3*time.Second))
	require.NotNil(t, trade)

	assert.InDelta(t, 10007.99, tr.USDBalance(), 1e-6)
	assert.Equal(t, 0.0, tr.AssetBalance())
	assert.InDelta(t, 7.99, trade.PnL, 1e-6)
	assert.InDelta(t, 7.99, tr.RealizedPnL(), 1e-6)
	assert.False(t, tr.Position().IsOpen())
}

func TestRoundTrip_ZeroFee_ExactPnL(t *testing.T) {
	tr := newSpot(t, 10000, 0)

	tr.SubmitOrder(marketOrder(domain.Buy, 0.5), t0)
	require.NotNil(t, tr.OnPriceUpdate(100, 100, 100, t0.Add(time.Second)))

	tr.SubmitOrder(marketOrder(domain.Sell, 0.5), t0.Add(2*time.Second))
	trade := tr.OnPriceUpdate(110, 110, 110, t0.Add(3*time.Second))
	require.NotNil(t, trade)

	assert.Equal(t, (110.0-100.0)*0.5, trade.PnL)
	assert.Equal(t, 10005.0, tr.USDBalance())
}

func TestLimitBuy_FillsAtLimitPriceOnTouch(t *testing.T) {
	tr := newSpot(t, 10000, 0.001)
	tr.SubmitOrder(limitOrder(domain.Buy, 0.01, 99000), t0)

	// Precio por encima del límite: la orden descansa.
	assert.Nil(t, tr.OnPriceUpdate(99500, 99490, 99510, t0.Add(time.Second)))
	assert.Len(t, tr.PendingOrders(), 1)

	// Precio en/bajo el límite: ejecuta al limit price, no al del trade.
	trade := tr.OnPriceUpdate(98900, 98890, 98910, t0.Add(2*time.Second))
	require.NotNil(t, trade)
	assert.Equal(t, 99000.0, trade.Price)
}

func TestLimitSell_FillsWhenPriceReachesLimit(t *testing.T) {
	tr := newSpot(t, 10000, 0)
	tr.SubmitOrder(marketOrder(domain.Buy, 1), t0)
	tr.OnPriceUpdate(100, 100, 100, t0.Add(time.Second))

	tr.SubmitOrder(limitOrder(domain.Sell, 1, 105), t0.Add(2*time.Second))
	assert.Nil(t, tr.OnPriceUpdate(104, 104, 104, t0.Add(3*time.Second)))

	trade := tr.OnPriceUpdate(105, 105, 105, t0.Add(4*time.Second))
	require.NotNil(t, trade)
	assert.Equal(t, 105.0, trade.Price)
}

func TestInsufficientBalance_DropsOrderSilently(t *testing.T) {
	tr := newSpot(t, 100, 0.001)
	tr.SubmitOrder(marketOrder(domain.Buy, 1), t0) // necesita ~$100,100

	trade := tr.OnPriceUpdate(100000, 100000, 100000, t0.Add(time.Second))
	assert.Nil(t, trade)
	assert.Empty(t, tr.PendingOrders(), "failed market order must not be retried")
	assert.Equal(t, 100.0, tr.USDBalance())
	assert.GreaterOrEqual(t, tr.USDBalance(), 0.0)
}

func TestNoShortSelling(t *testing.T) {
	tr := newSpot(t, 10000, 0.001)
	tr.SubmitOrder(marketOrder(domain.Sell, 0.01), t0)

	trade := tr.OnPriceUpdate(100000, 100000, 100000, t0.Add(time.Second))
	assert.Nil(t, trade)
	assert.Equal(t, 0.0, tr.AssetBalance())
	assert.Equal(t, 10000.0, tr.USDBalance())
	assert.Empty(t, tr.Trades())
}

func TestFIFO_EarliestEligibleFillsFirst(t *testing.T) {
	tr := newSpot(t, 10000, 0)

	idA, _ := tr.SubmitOrder(limitOrder(domain.Buy, 0.01, 100), t0)
	idB, _ := tr.SubmitOrder(limitOrder(domain.Buy, 0.01, 100), t0.Add(time.Millisecond))

	trade := tr.OnPriceUpdate(99, 99, 99, t0.Add(time.Second))
	require.NotNil(t, trade)

	left := tr.PendingOrders()
	require.Len(t, left, 1)
	assert.Equal(t, idB, left[0].ID, "A was submitted first and must fill first")
	_ = idA
}

func TestOnPriceUpdateAll_FillsEverythingEligible(t *testing.T) {
	tr := newSpot(t, 10000, 0)

	tr.SubmitOrder(limitOrder(domain.Buy, 0.01, 100), t0)
	tr.SubmitOrder(limitOrder(domain.Buy, 0.02, 100), t0)
	tr.SubmitOrder(limitOrder(domain.Sell, 10, 50), t0) // tampoco habría nada que vender al ejecutar

	fills := tr.OnPriceUpdateAll(99, 99, 99, t0.Add(time.Second))
	require.Len(t, fills, 2)
	assert.InDelta(t, 0.01, fills[0].Quantity, 1e-12)
	assert.InDelta(t, 0.02, fills[1].Quantity, 1e-12)
	assert.Empty(t, tr.PendingOrders(), "triggered but unaffordable sell leaves the queue too")
}

func TestCancelOperations(t *testing.T) {
	tr := newSpot(t, 10000, 0)

	id1, _ := tr.SubmitOrder(limitOrder(domain.Buy, 1, 90), t0)
	tr.SubmitOrder(limitOrder(domain.Buy, 1, 91), t0)
	tr.SubmitOrder(limitOrder(domain.Sell, 1, 120), t0)

	assert.True(t, tr.CancelOrder(id1))
	assert.False(t, tr.CancelOrder(id1))
	assert.Len(t, tr.PendingOrders(), 2)

	assert.Equal(t, 1, tr.CancelOrdersBySide(domain.Sell))
	assert.Equal(t, 1, tr.CancelAllOrders())
	assert.Empty(t, tr.PendingOrders())
}

func TestTTL_Boundary(t *testing.T) {
	tr := newSpot(t, 10000, 0)
	ttl := 10 * time.Second

	tr.SubmitOrderTTL(limitOrder(domain.Buy, 1, 90), t0, ttl)

	assert.Equal(t, 0, tr.ExpireOrders(t0.Add(9*time.Second)))
	assert.Len(t, tr.PendingOrders(), 1, "alive at T-1")

	assert.Equal(t, 1, tr.ExpireOrders(t0.Add(11*time.Second)))
	assert.Empty(t, tr.PendingOrders(), "gone at T+1")
}

func TestTTL_NoTTLNeverExpires(t *testing.T) {
	tr := newSpot(t, 10000, 0)
	tr.SubmitOrder(limitOrder(domain.Buy, 1, 90), t0)

	assert.Equal(t, 0, tr.ExpireOrders(t0.Add(1000*time.Hour)))
	assert.Len(t, tr.PendingOrders(), 1)
}

func TestTTL_PriceUpdateExpiresBeforeMatching(t *testing.T) {
	tr := newSpot(t, 10000, 0)
	tr.SubmitOrderTTL(limitOrder(domain.Buy, 1, 100), t0, 5*time.Second)

	trade := tr.OnPriceUpdate(99, 99, 99, t0.Add(time.Minute))
	assert.Nil(t, trade, "expired order must not fill")
	assert.Empty(t, tr.PendingOrders())
}

func TestMakerTakerFeeSelection(t *testing.T) {
	tr, err := New(Config{
		InitialCapital: 10000,
		MakerFeeRate:   0.0002,
		TakerFeeRate:   0.0005,
	})
	require.NoError(t, err)

	// MARKET paga taker.
	tr.SubmitOrder(marketOrder(domain.Buy, 0.01), t0)
	trade := tr.OnPriceUpdate(100000, 99990, 100000, t0.Add(time.Second))
	require.NotNil(t, trade)
	assert.InDelta(t, 0.5, trade.Fee, 1e-9)

	// LIMIT paga maker.
	tr.SubmitOrder(limitOrder(domain.Sell, 0.01, 101000), t0.Add(2*time.Second))
	trade = tr.OnPriceUpdate(101000, 101000, 101010, t0.Add(3*time.Second))
	require.NotNil(t, trade)
	assert.InDelta(t, 101000*0.01*0.0002, trade.Fee, 1e-9)
}

func TestSingleFeeRate_AppliesToBothOrderTypes(t *testing.T) {
	tr := newSpot(t, 10000, 0.001)

	tr.SubmitOrder(marketOrder(domain.Buy, 0.01), t0)
	trade := tr.OnPriceUpdate(100000, 100000, 100000, t0.Add(time.Second))
	require.NotNil(t, trade)
	assert.InDelta(t, 1.0, trade.Fee, 1e-9)

	tr.SubmitOrder(limitOrder(domain.Sell, 0.01, 100000), t0.Add(2*time.Second))
	trade = tr.OnPriceUpdate(100000, 100000, 100000, t0.Add(3*time.Second))
	require.NotNil(t, trade)
	assert.InDelta(t, 1.0, trade.Fee, 1e-9)
}

func TestLatencyGate_BoundaryInclusive(t *testing.T) {
	tr, err := New(Config{InitialCapital: 10000, Latency: 50 * time.Millisecond})
	require.NoError(t, err)

	tr.SubmitOrder(marketOrder(domain.Buy, 0.01), t0)

	assert.Nil(t, tr.OnPriceUpdate(100, 100, 100, t0.Add(49*time.Millisecond)),
		"not matchable before the latency elapses")
	assert.Len(t, tr.PendingOrders(), 1)

	trade := tr.OnPriceUpdate(101, 101, 101, t0.Add(50*time.Millisecond))
	require.NotNil(t, trade, "matchable at exactly the latency boundary")
	assert.Equal(t, 101.0, trade.Price, "fills at the delayed price, not the signal price")
}

func TestPartialClose_ProratesEntryFee(t *testing.T) {
	tr := newSpot(t, 100000, 0.001)

	tr.SubmitOrder(marketOrder(domain.Buy, 1), t0)
	require.NotNil(t, tr.OnPriceUpdate(100, 100, 100, t0.Add(time.Second))) // fee de entrada 0.1

	tr.SubmitOrder(marketOrder(domain.Sell, 0.4), t0.Add(2*time.Second))
	trade := tr.OnPriceUpdate(110, 110, 110, t0.Add(3*time.Second))
	require.NotNil(t, trade)

	// bruto 4.0, fee de entrada prorrateada 0.04, fee de salida 110*0.4*0.001 = 0.044
	assert.InDelta(t, 4.0-0.04-0.044, trade.PnL, 1e-9)

	pos := tr.Position()
	assert.True(t, pos.IsOpen())
	assert.InDelta(t, 0.6, pos.Quantity, 1e-12)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-9, "average entry unchanged by partial close")
}

func TestAddToPosition_AveragesEntryPrice(t *testing.T) {
	tr := newSpot(t, 100000, 0)

	tr.SubmitOrder(marketOrder(domain.Buy, 1), t0)
	tr.OnPriceUpdate(100, 100, 100, t0.Add(time.Second))
	tr.SubmitOrder(marketOrder(domain.Buy, 1), t0.Add(2*time.Second))
	tr.OnPriceUpdate(120, 120, 120, t0.Add(3*time.Second))

	pos := tr.Position()
	assert.InDelta(t, 2.0, pos.Quantity, 1e-12)
	assert.InDelta(t, 110.0, pos.EntryPrice, 1e-9)
}

func TestUnrealizedPnL(t *testing.T) {
	tr := newSpot(t, 100000, 0)
	tr.SubmitOrder(marketOrder(domain.Buy, 1), t0)
	tr.OnPriceUpdate(100, 100, 100, t0.Add(time.Second))

	tr.UpdateUnrealizedPnL(105)
	assert.InDelta(t, 5.0, tr.Position().UnrealizedPnL, 1e-9)
	assert.InDelta(t, 5.0, tr.TotalPnL(), 1e-9)

	tr.UpdateUnrealizedPnL(95)
	assert.InDelta(t, -5.0, tr.Position().UnrealizedPnL, 1e-9)
}

func TestBalancesNeverNegative_AcrossRandomishSequence(t *testing.T) {
	tr := newSpot(t, 1000, 0.002)
	prices := []float64{100, 120, 80, 150, 60, 200, 90}

	ts := t0
	for i, p := range prices {
		side := domain.Buy
		if i%2 == 1 {
			side = domain.Sell
		}
		tr.SubmitOrder(marketOrder(side, 3), ts)
		tr.OnPriceUpdate(p, p, p, ts.Add(time.Second))
		assert.GreaterOrEqual(t, tr.USDBalance(), 0.0, "price %v", p)
		assert.GreaterOrEqual(t, tr.AssetBalance(), 0.0, "price %v", p)
		ts = ts.Add(time.Minute)
	}
}

func TestFutures_ShortSellingAllowed(t *testing.T) {
	tr, err := New(Config{InitialCapital: 10000, Leverage: 10})
	require.NoError(t, err)

	tr.SubmitOrder(marketOrder(domain.Sell, 1), t0)
	trade := tr.OnPriceUpdate(1000, 1000, 1000, t0.Add(time.Second))
	require.NotNil(t, trade)

	pos := tr.Position()
	assert.Equal(t, domain.Sell, pos.Side)
	assert.InDelta(t, 100.0, pos.Margin, 1e-9, "notional / leverage")
	assert.Greater(t, pos.LiquidationPrice, 1000.0, "short liquidates above entry")
}

func TestFutures_LongLiquidation(t *testing.T) {
	tr, err := New(Config{InitialCapital: 10000, Leverage: 10})
	require.NoError(t, err)

	tr.SubmitOrder(marketOrder(domain.Buy, 1), t0)
	require.NotNil(t, tr.OnPriceUpdate(1000, 1000, 1000, t0.Add(time.Second)))
	liq := tr.Position().LiquidationPrice
	require.Greater(t, liq, 0.0)
	require.Less(t, liq, 1000.0)

	// Dejar una orden en reposo; la liquidación debe cancelarla.
	tr.SubmitOrder(limitOrder(domain.Buy, 1, 500), t0.Add(2*time.Second))

	trade := tr.OnPriceUpdate(liq-1, liq-1, liq-1, t0.Add(3*time.Second))
	assert.Nil(t, trade, "liquidation tick produces no regular fill")
	assert.False(t, tr.Position().IsOpen())
	assert.Empty(t, tr.PendingOrders())
	assert.Negative(t, tr.RealizedPnL())

	ledger := tr.Trades()
	require.Len(t, ledger, 2)
	assert.Equal(t, domain.Sell, ledger[1].Side)
	assert.Negative(t, ledger[1].PnL)
}

func TestFutures_RoundTripPnL(t *testing.T) {
	tr, err := New(Config{InitialCapital: 10000, Leverage: 5})
	require.NoError(t, err)

	tr.SubmitOrder(marketOrder(domain.Buy, 1), t0)
	tr.OnPriceUpdate(1000, 1000, 1000, t0.Add(time.Second))
	usdAfterEntry := tr.USDBalance()
	assert.InDelta(t, 10000-200, usdAfterEntry, 1e-9, "only margin is committed")

	tr.SubmitOrder(marketOrder(domain.Sell, 1), t0.Add(2*time.Second))
	trade := tr.OnPriceUpdate(1100, 1100, 1100, t0.Add(3*time.Second))
	require.NotNil(t, trade)
	assert.InDelta(t, 100.0, trade.PnL, 1e-9)
	assert.InDelta(t, 10100.0, tr.USDBalance(), 1e-9)
}

func TestFutures_ApplyFunding(t *testing.T) {
	tr, err := New(Config{InitialCapital: 10000, Leverage: 2})
	require.NoError(t, err)

	// Plano: no hay liquidación de funding.
	assert.Equal(t, 0.0, tr.ApplyFunding(0.0001, 1000))

	tr.SubmitOrder(marketOrder(domain.Buy, 1), t0)
	tr.OnPriceUpdate(1000, 1000, 1000, t0.Add(time.Second))

	// El largo paga funding positivo.
	payment := tr.ApplyFunding(0.0001, 1000)
	assert.InDelta(t, -0.1, payment, 1e-9)
}

func TestSpot_ApplyFundingIsNoop(t *testing.T) {
	tr := newSpot(t, 10000, 0)
	tr.SubmitOrder(marketOrder(domain.Buy, 1), t0)
	tr.OnPriceUpdate(100, 100, 100, t0.Add(time.Second))

	assert.Equal(t, 0.0, tr.ApplyFunding(0.0001, 100))
	assert.Equal(t, 9900.0, tr.USDBalance())
}
