package strategy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwcorp/tickdesk/internal/domain"
	"github.com/jwcorp/tickdesk/internal/strategy"
)

func bookState(imbalance float64, posSide domain.Side) domain.MarketState {
	return domain.MarketState{
		Timestamp:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Symbol:       "BTCUSDT",
		HasBook:      true,
		MidPrice:     100000,
		Imbalance:    imbalance,
		BestBid:      99995,
		BestAsk:      100005,
		PositionSide: posSide,
	}
}

func TestRegistry_NewByName(t *testing.T) {
	r := strategy.NewRegistry()

	s, err := r.New("obi", strategy.Params{Quantity: 0.01})
	require.NoError(t, err)
	assert.Equal(t, "obi", s.Name())

	s, err = r.New("volume_imbalance", strategy.Params{Quantity: 0.01})
	require.NoError(t, err)
	assert.Equal(t, "volume_imbalance", s.Name())
}

func TestRegistry_UnknownName(t *testing.T) {
	r := strategy.NewRegistry()
	_, err := r.New("martingala", strategy.Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "martingala")
}

func TestRegistry_Names(t *testing.T) {
	r := strategy.NewRegistry()
	assert.Equal(t, []string{"obi", "volume_imbalance"}, r.Names())
}

func TestOBI_BuySignal(t *testing.T) {
	s, err := strategy.NewOBI(strategy.Params{Quantity: 0.01})
	require.NoError(t, err)

	o := s.GenerateOrder(bookState(0.5, ""))
	require.NotNil(t, o)
	assert.Equal(t, domain.Buy, o.Side)
	assert.Equal(t, domain.Limit, o.Type)
	assert.Equal(t, 100005.0, o.LimitPrice, "compra al best ask (taker)")
	assert.Equal(t, 0.01, o.Quantity)
}

func TestOBI_ThresholdIsStrict(t *testing.T) {
	s, err := strategy.NewOBI(strategy.Params{Quantity: 0.01})
	require.NoError(t, err)

	// Imbalance exactamente en el umbral: zona neutra, sin orden.
	assert.Nil(t, s.GenerateOrder(bookState(0.3, "")))
	assert.Nil(t, s.GenerateOrder(bookState(-0.3, domain.Buy)))
	assert.Nil(t, s.GenerateOrder(bookState(0.0, "")))
}

func TestOBI_NoDuplicateEntry(t *testing.T) {
	s, err := strategy.NewOBI(strategy.Params{Quantity: 0.01})
	require.NoError(t, err)

	assert.Nil(t, s.GenerateOrder(bookState(0.5, domain.Buy)), "ya largo: no piramidar")
}

func TestOBI_SellNeedsPosition(t *testing.T) {
	s, err := strategy.NewOBI(strategy.Params{Quantity: 0.01})
	require.NoError(t, err)

	assert.Nil(t, s.GenerateOrder(bookState(-0.5, "")), "spot: sin posición no se vende")

	o := s.GenerateOrder(bookState(-0.5, domain.Buy))
	require.NotNil(t, o)
	assert.Equal(t, domain.Sell, o.Side)
	assert.Equal(t, 99995.0, o.LimitPrice, "vende al best bid (taker)")
}

func TestOBI_CustomThresholds(t *testing.T) {
	s, err := strategy.NewOBI(strategy.Params{
		Quantity: 0.02,
		Extra:    map[string]float64{"buy_threshold": 0.6, "sell_threshold": -0.6},
	})
	require.NoError(t, err)

	assert.Nil(t, s.GenerateOrder(bookState(0.5, "")))
	require.NotNil(t, s.GenerateOrder(bookState(0.7, "")))
}

func TestOBI_InvalidThresholds(t *testing.T) {
	_, err := strategy.NewOBI(strategy.Params{
		Extra: map[string]float64{"buy_threshold": -0.5, "sell_threshold": 0.5},
	})
	assert.Error(t, err)
}

func TestVolumeImbalance_MarketOrders(t *testing.T) {
	s, err := strategy.NewVolumeImbalance(strategy.Params{Quantity: 0.01})
	require.NoError(t, err)

	o := s.GenerateOrder(bookState(0.5, ""))
	require.NotNil(t, o)
	assert.Equal(t, domain.Buy, o.Side)
	assert.Equal(t, domain.Market, o.Type)
	assert.Zero(t, o.LimitPrice)
}

func TestVolumeImbalance_HigherDefaultThreshold(t *testing.T) {
	s, err := strategy.NewVolumeImbalance(strategy.Params{Quantity: 0.01})
	require.NoError(t, err)

	// 0.35 dispara OBI pero no volume_imbalance (default 0.4).
	assert.Nil(t, s.GenerateOrder(bookState(0.35, "")))
	require.NotNil(t, s.GenerateOrder(bookState(0.45, "")))
}

func TestMomentum_Allocate(t *testing.T) {
	s, err := strategy.NewMomentum(strategy.Params{})
	require.NoError(t, err)

	alloc := s.Allocate([]strategy.SymbolReturn{
		{Symbol: "BTCUSDT", Return: 0.02},
		{Symbol: "ETHUSDT", Return: 0.05},
		{Symbol: "SOLUSDT", Return: -0.01},
	})

	require.Len(t, alloc, 2)
	assert.InDelta(t, 0.5, alloc["ETHUSDT"], 1e-9)
	assert.InDelta(t, 0.5, alloc["BTCUSDT"], 1e-9)
}

func TestMomentum_AllNegativeGoesToCash(t *testing.T) {
	s, err := strategy.NewMomentum(strategy.Params{})
	require.NoError(t, err)

	alloc := s.Allocate([]strategy.SymbolReturn{
		{Symbol: "BTCUSDT", Return: -0.02},
		{Symbol: "ETHUSDT", Return: -0.05},
	})
	assert.Empty(t, alloc)
}

func TestMomentum_TieBreakDeterministic(t *testing.T) {
	s, err := strategy.NewMomentum(strategy.Params{Extra: map[string]float64{"top_n": 1}})
	require.NoError(t, err)

	alloc := s.Allocate([]strategy.SymbolReturn{
		{Symbol: "ETHUSDT", Return: 0.03},
		{Symbol: "BTCUSDT", Return: 0.03},
	})
	require.Len(t, alloc, 1)
	assert.InDelta(t, 1.0, alloc["BTCUSDT"], 1e-9)
}
