// Package paper simula una cuenta de exchange: balances, una cola FIFO de
// órdenes pendientes, matching de fills contra los precios entrantes y un
// ledger de trades con PnL realizado. Forward tests y backtests comparten
// el mismo simulador.
//
// Los rechazos (balance insuficiente, vender sin posición) son resultados
// normales, no errores: los métodos de matching no devuelven trade y la
// orden se descarta, que es como se ve un rechazo de un exchange real
// desde la estrategia.
package paper

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// balanceEpsilon absorbe el error de acumulación de float64 en los checks
// de saldo.
const balanceEpsilon = 1e-9

// Config son los ajustes del simulador. FeeRate aplica a todos los fills
// salvo que MakerFeeRate/TakerFeeRate estén definidos, en cuyo caso los
// fills LIMIT pagan la tasa maker y los MARKET la taker. Leverage 0 o 1 es
// spot; 2+ activa la contabilidad de margen con liquidación forzosa.
//
// Latency condiciona el matching: una orden solo es ejecutable cuando ha
// pasado ese tiempo simulado desde el envío, emulando el retardo de
// transporte en backtests. Cero desactiva la puerta.
type Config struct {
	InitialCapital float64
	FeeRate        float64
	MakerFeeRate   float64
	TakerFeeRate   float64
	Leverage       int
	Latency        time.Duration
}

// PendingOrder es una entrada de la cola. ExpiresAt es cero para órdenes
// sin TTL.
type PendingOrder struct {
	ID          string
	Order       domain.Order
	SubmittedAt time.Time
	ExpiresAt   time.Time
}

// Trader es la cuenta de paper trading. Pertenece a un único runner; no es
// seguro para uso concurrente y nunca se comparte entre runners.
type Trader struct {
	cfg      Config
	makerFee float64
	takerFee float64

	usd      float64
	asset    float64
	position domain.Position
	pending  []PendingOrder
	trades   []domain.Trade
	realized float64
	entryFee float64 // fees pagadas al entrar, prorrateadas en cierres parciales
}

// New valida el config y crea el trader.
func New(cfg Config) (*Trader, error) {
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("paper.New: non-positive initial capital %v", cfg.InitialCapital)
	}
	if cfg.FeeRate < 0 || cfg.MakerFeeRate < 0 || cfg.TakerFeeRate < 0 {
		return nil, fmt.Errorf("paper.New: negative fee rate")
	}
	if cfg.Leverage < 0 {
		return nil, fmt.Errorf("paper.New: negative leverage %d", cfg.Leverage)
	}
	if cfg.Leverage == 0 {
		cfg.Leverage = 1
	}
	if cfg.Latency < 0 {
		return nil, fmt.Errorf("paper.New: negative latency %v", cfg.Latency)
	}

	t := &Trader{
		cfg:      cfg,
		makerFee: cfg.FeeRate,
		takerFee: cfg.FeeRate,
		usd:      cfg.InitialCapital,
	}
	if cfg.MakerFeeRate > 0 {
		t.makerFee = cfg.MakerFeeRate
	}
	if cfg.TakerFeeRate > 0 {
		t.takerFee = cfg.TakerFeeRate
	}
	return t, nil
}

// InitialCapital devuelve el balance USD inicial configurado.
func (t *Trader) InitialCapital() float64 { return t.cfg.InitialCapital }

// IsFuturesMode indica si la contabilidad de margen está activa.
func (t *Trader) IsFuturesMode() bool { return t.cfg.Leverage > 1 }

// USDBalance devuelve el balance quote actual. Nunca negativo.
func (t *Trader) USDBalance() float64 { return t.usd }

// AssetBalance devuelve el balance base actual. Nunca negativo.
func (t *Trader) AssetBalance() float64 { return t.asset }

// Position devuelve la posición abierta actual (valor cero si plano).
func (t *Trader) Position() domain.Position { return t.position }

// RealizedPnL devuelve el PnL realizado acumulado.
func (t *Trader) RealizedPnL() float64 { return t.realized }

// TotalPnL devuelve el PnL realizado más el no realizado.
func (t *Trader) TotalPnL() float64 { return t.realized + t.position.UnrealizedPnL }

// Trades devuelve una copia del ledger.
func (t *Trader) Trades() []domain.Trade {
	out := make([]domain.Trade, len(t.trades))
	copy(out, t.trades)
	return out
}

// PendingOrders devuelve una copia de la cola en orden FIFO.
func (t *Trader) PendingOrders() []PendingOrder {
	out := make([]PendingOrder, len(t.pending))
	copy(out, t.pending)
	return out
}

// HasPendingSide indica si hay alguna orden en cola del lado dado. Los
// runners lo usan para no apilar órdenes duplicadas.
func (t *Trader) HasPendingSide(side domain.Side) bool {
	for _, po := range t.pending {
		if po.Order.Side == side {
			return true
		}
	}
	return false
}

// SubmitOrder encola una orden sin TTL. Solo se validan los campos
// estructurales; el saldo se comprueba al ejecutar, igual que en un
// exchange real donde el precio tiene que moverse antes de que una orden
// en reposo se dispare.
func (t *Trader) SubmitOrder(o domain.Order, at time.Time) (string, error) {
	return t.SubmitOrderTTL(o, at, 0)
}

// SubmitOrderTTL encola una orden que caduca ttl después del envío.
// Con ttl cero la orden no caduca nunca.
func (t *Trader) SubmitOrderTTL(o domain.Order, at time.Time, ttl time.Duration) (string, error) {
	if err := o.Validate(); err != nil {
		return "", fmt.Errorf("paper.SubmitOrder: %w", err)
	}
	po := PendingOrder{
		ID:          uuid.New().String(),
		Order:       o,
		SubmittedAt: at,
	}
	if ttl > 0 {
		po.ExpiresAt = at.Add(ttl)
	}
	t.pending = append(t.pending, po)
	return po.ID, nil
}

// CancelOrder saca de la cola la orden con el id dado.
func (t *Trader) CancelOrder(id string) bool {
	for i, po := range t.pending {
		if po.ID == id {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return true
		}
	}
	return false
}

// CancelAllOrders vacía la cola y devuelve cuántas órdenes había.
func (t *Trader) CancelAllOrders() int {
	n := len(t.pending)
	t.pending = t.pending[:0]
	return n
}

// CancelOrdersBySide saca todas las órdenes pendientes del lado dado.
func (t *Trader) CancelOrdersBySide(side domain.Side) int {
	kept := t.pending[:0]
	removed := 0
	for _, po := range t.pending {
		if po.Order.Side == side {
			removed++
			continue
		}
		kept = append(kept, po)
	}
	t.pending = kept
	return removed
}

// ExpireOrders saca todas las órdenes cuyo TTL ha vencido en now
// (envío + ttl <= now). Las órdenes sin TTL no caducan nunca.
func (t *Trader) ExpireOrders(now time.Time) int {
	kept := t.pending[:0]
	expired := 0
	for _, po := range t.pending {
		if !po.ExpiresAt.IsZero() && !po.ExpiresAt.After(now) {
			expired++
			continue
		}
		kept = append(kept, po)
	}
	t.pending = kept
	return expired
}

// OnPriceUpdate intenta ejecutar la orden elegible enviada antes (FIFO
// estricto) contra el nuevo precio. Las MARKET cruzan a la cotización que
// corresponde (ask para BUY, bid para SELL) y salen de la cola con o sin
// fill. Las LIMIT ejecutan a su limit price cuando el precio lo alcanza y
// también salen una vez disparadas. Devuelve el trade resultante, o nil si
// no hubo fill.
func (t *Trader) OnPriceUpdate(price, bestBid, bestAsk float64, ts time.Time) *domain.Trade {
	if t.liquidateIfNeeded(price, ts) {
		return nil
	}
	t.ExpireOrders(ts)

	if len(t.pending) == 0 {
		return nil
	}
	po := t.pending[0]
	if !t.matchable(po, ts) {
		return nil
	}

	trade, remove := t.tryMatch(po, price, bestBid, bestAsk, ts)
	if remove {
		t.pending = t.pending[1:]
	}
	return trade
}

// OnPriceUpdateAll repite el matching sobre toda la cola, de forma que
// varias órdenes pueden ejecutar en un mismo tick, cada una evaluada
// contra el estado que dejó el fill anterior. El resultado conserva el
// orden FIFO.
func (t *Trader) OnPriceUpdateAll(price, bestBid, bestAsk float64, ts time.Time) []domain.Trade {
	if t.liquidateIfNeeded(price, ts) {
		return nil
	}
	t.ExpireOrders(ts)

	var fills []domain.Trade
	kept := t.pending[:0]
	for _, po := range t.pending {
		if !t.matchable(po, ts) {
			kept = append(kept, po)
			continue
		}
		trade, remove := t.tryMatch(po, price, bestBid, bestAsk, ts)
		if trade != nil {
			fills = append(fills, *trade)
		}
		if !remove {
			kept = append(kept, po)
		}
	}
	t.pending = kept
	return fills
}

// UpdateUnrealizedPnL marca la posición abierta al precio dado.
func (t *Trader) UpdateUnrealizedPnL(price float64) {
	if !t.position.IsOpen() {
		t.position.UnrealizedPnL = 0
		return
	}
	if t.position.Side == domain.Buy {
		t.position.UnrealizedPnL = (price - t.position.EntryPrice) * t.position.Quantity
	} else {
		t.position.UnrealizedPnL = (t.position.EntryPrice - price) * t.position.Quantity
	}
}

// matchable aplica la puerta de latencia: una orden solo es elegible
// cuando ha pasado Latency desde el envío. El límite es inclusivo.
func (t *Trader) matchable(po PendingOrder, ts time.Time) bool {
	if t.cfg.Latency <= 0 {
		return true
	}
	return ts.Sub(po.SubmittedAt) >= t.cfg.Latency
}

// tryMatch comprueba la elegibilidad y ejecuta. remove indica si la orden
// sale de la cola: MARKET siempre, LIMIT cuando se cumplió su condición de
// disparo (aunque el fill se rechace luego por balance), nunca una LIMIT
// que no se ha disparado.
func (t *Trader) tryMatch(po PendingOrder, price, bestBid, bestAsk float64, ts time.Time) (*domain.Trade, bool) {
	o := po.Order
	switch o.Type {
	case domain.Market:
		execPrice := bestAsk
		if o.Side == domain.Sell {
			execPrice = bestBid
		}
		return t.execute(o, execPrice, t.takerFee, ts), true
	case domain.Limit:
		if o.Side == domain.Buy && price <= o.LimitPrice {
			return t.execute(o, o.LimitPrice, t.makerFee, ts), true
		}
		if o.Side == domain.Sell && price >= o.LimitPrice {
			return t.execute(o, o.LimitPrice, t.makerFee, ts), true
		}
	}
	return nil, false
}

// execute liquida un fill a execPrice. Devuelve nil cuando la cuenta no
// puede pagarlo, lo que descarta la orden en silencio.
func (t *Trader) execute(o domain.Order, execPrice, feeRate float64, ts time.Time) *domain.Trade {
	notional := execPrice * o.Quantity
	fee := notional * feeRate

	if t.IsFuturesMode() {
		return t.executeFutures(o, execPrice, notional, fee, ts)
	}
	return t.executeSpot(o, execPrice, notional, fee, ts)
}

func (t *Trader) executeSpot(o domain.Order, execPrice, notional, fee float64, ts time.Time) *domain.Trade {
	// Check de saldo en el momento del fill: BUY necesita quote para el
	// notional más la fee, SELL necesita la cantidad base (sin cortos en
	// spot).
	if o.Side == domain.Buy {
		if t.usd < notional+fee-balanceEpsilon {
			return nil
		}
	} else {
		if t.asset < o.Quantity-balanceEpsilon {
			return nil
		}
		if t.position.Side != domain.Buy {
			return nil
		}
	}

	if o.Side == domain.Buy {
		t.usd -= notional + fee
		t.asset += o.Quantity
	} else {
		t.usd += notional - fee
		t.asset -= o.Quantity
	}

	pnl := t.applyToPosition(o, execPrice, fee)

	trade := domain.Trade{
		Timestamp: ts,
		Side:      o.Side,
		Price:     execPrice,
		Quantity:  o.Quantity,
		Fee:       fee,
		PnL:       pnl,
	}
	t.trades = append(t.trades, trade)
	return &trade
}

// applyToPosition incorpora un fill spot a la posición y devuelve el PnL
// realizado del tramo de cierre (cero para entradas). Las fees de entrada
// viajan con la posición y se prorratean en cierres parciales, así que el
// realizado de cada salida es neto de las fees de ambas patas.
func (t *Trader) applyToPosition(o domain.Order, execPrice, fee float64) float64 {
	pos := &t.position

	switch {
	case !pos.IsOpen():
		*pos = domain.Position{Side: o.Side, Quantity: o.Quantity, EntryPrice: execPrice}
		t.entryFee = fee
		return 0

	case pos.Side == o.Side:
		totalQty := pos.Quantity + o.Quantity
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + execPrice*o.Quantity) / totalQty
		pos.Quantity = totalQty
		pos.UnrealizedPnL = 0
		t.entryFee += fee
		return 0

	default:
		closeQty := o.Quantity
		if closeQty > pos.Quantity {
			closeQty = pos.Quantity
		}
		gross := (execPrice - pos.EntryPrice) * closeQty
		if pos.Side == domain.Sell {
			gross = -gross
		}

		if o.Quantity >= pos.Quantity {
			pnl := gross - t.entryFee - fee
			t.realized += pnl
			*pos = domain.Position{}
			t.entryFee = 0
			return pnl
		}

		closeRatio := closeQty / pos.Quantity
		allocatedEntryFee := t.entryFee * closeRatio
		pnl := gross - allocatedEntryFee - fee
		t.realized += pnl

		pos.Quantity -= closeQty
		pos.UnrealizedPnL = 0
		t.entryFee -= allocatedEntryFee
		return pnl
	}
}
