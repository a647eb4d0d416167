package paper

import (
	"time"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// maintenanceMarginRate es la tasa de margen de mantenimiento del tier 1
// de Binance USDT-M. Los tiers por tamaño de posición no se modelan.
const maintenanceMarginRate = 0.004

// executeFutures liquida un fill con contabilidad de margen aislado: solo
// se compromete el margen (notional / leverage) más la fee, y se permiten
// entradas cortas.
func (t *Trader) executeFutures(o domain.Order, execPrice, notional, fee float64, ts time.Time) *domain.Trade {
	margin := notional / float64(t.cfg.Leverage)
	pos := &t.position
	pnl := 0.0

	switch {
	case !pos.IsOpen():
		if t.usd < margin+fee-balanceEpsilon {
			return nil
		}
		t.usd -= margin + fee
		*pos = domain.Position{
			Side:             o.Side,
			Quantity:         o.Quantity,
			EntryPrice:       execPrice,
			Leverage:         t.cfg.Leverage,
			LiquidationPrice: t.liquidationPrice(execPrice, o.Side),
			Margin:           margin,
		}
		t.entryFee = fee

	case pos.Side == o.Side:
		if t.usd < margin+fee-balanceEpsilon {
			return nil
		}
		totalQty := pos.Quantity + o.Quantity
		avg := (pos.EntryPrice*pos.Quantity + execPrice*o.Quantity) / totalQty
		t.usd -= margin + fee
		pos.EntryPrice = avg
		pos.Quantity = totalQty
		pos.UnrealizedPnL = 0
		pos.Margin += margin
		pos.LiquidationPrice = t.liquidationPrice(avg, o.Side)
		t.entryFee += fee

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
			pnl = gross - t.entryFee - fee
			t.realized += pnl
			t.usd += pos.Margin + gross - fee
			*pos = domain.Position{}
			t.entryFee = 0
		} else {
			closeRatio := closeQty / pos.Quantity
			allocatedEntryFee := t.entryFee * closeRatio
			pnl = gross - allocatedEntryFee - fee
			t.realized += pnl

			releasedMargin := pos.Margin * closeRatio
			t.usd += releasedMargin + gross - fee
			pos.Quantity -= closeQty
			pos.Margin -= releasedMargin
			pos.UnrealizedPnL = 0
			t.entryFee -= allocatedEntryFee
		}
	}

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

// liquidationPrice sigue la fórmula de margen aislado de Binance con el
// MMR del tier 1 y maintenance amount cero:
//
//	long:  entry * (1/L - 1) / (mmr - 1)
//	short: entry * (1/L + 1) / (mmr + 1)
func (t *Trader) liquidationPrice(entry float64, side domain.Side) float64 {
	if !t.IsFuturesMode() {
		return 0
	}
	l := float64(t.cfg.Leverage)
	if side == domain.Buy {
		return entry * (1/l - 1) / (maintenanceMarginRate - 1)
	}
	return entry * (1/l + 1) / (maintenanceMarginRate + 1)
}

// liquidateIfNeeded cierra la posición a la fuerza cuando el precio cruza
// el de liquidación y cancela todas las órdenes pendientes. Devuelve true
// si hubo liquidación, en cuyo caso el matching se salta en este tick.
func (t *Trader) liquidateIfNeeded(price float64, ts time.Time) bool {
	if !t.IsFuturesMode() || !t.position.IsOpen() || t.position.LiquidationPrice == 0 {
		return false
	}
	crossed := false
	if t.position.Side == domain.Buy {
		crossed = price <= t.position.LiquidationPrice
	} else {
		crossed = price >= t.position.LiquidationPrice
	}
	if !crossed {
		return false
	}

	liqPrice := t.position.LiquidationPrice
	margin := t.position.Margin
	qty := t.position.Quantity

	pnl := (liqPrice - t.position.EntryPrice) * qty
	if t.position.Side == domain.Sell {
		pnl = -pnl
	}

	// Margen residual tras la pérdida; normalmente casi cero.
	remaining := margin + pnl - t.entryFee
	if remaining < 0 {
		remaining = 0
	}
	t.usd += remaining

	loss := margin - remaining + t.entryFee
	t.realized -= loss

	t.trades = append(t.trades, domain.Trade{
		Timestamp: ts,
		Side:      t.position.Side.Opposite(),
		Price:     liqPrice,
		Quantity:  qty,
		Fee:       0, // el exchange la descuenta del margen
		PnL:       -loss,
	})

	t.position = domain.Position{}
	t.entryFee = 0
	t.CancelAllOrders()
	return true
}

// ApplyFunding liquida un intervalo de funding contra la posición abierta
// y devuelve el pago (positivo = recibido). Los largos pagan funding
// positivo, los cortos lo cobran. No hace nada en spot o sin posición.
func (t *Trader) ApplyFunding(fundingRate, markPrice float64) float64 {
	if !t.IsFuturesMode() || !t.position.IsOpen() {
		return 0
	}
	payment := t.position.Quantity * markPrice * fundingRate
	if t.position.Side == domain.Buy {
		payment = -payment
	}
	t.usd += payment
	return payment
}
