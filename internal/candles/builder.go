// Package candles convierte un stream de trades en barras OHLCV.
//
// Soporta cuatro reglas de bucket: time (intervalo fijo de event-time),
// tick (número fijo de trades), volume (cantidad acumulada fija) y dollar
// (notional acumulado fijo). Los buckets de volume y dollar atribuyen el
// trade entero: un trade que sobrepasa el umbral cuenta completo en la
// barra que cierra, sin partirlo en sub-trades sintéticos, así que esas
// barras pueden exceder el size nominal hasta en un trade. Es el contrato
// documentado, no una aproximación.
package candles

import (
	"fmt"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// Builder acumula trades en el bucket en curso. Hay exactamente un bucket
// abierto a la vez; se resetea al cerrar la barra. No es seguro para uso
// concurrente.
type Builder struct {
	typ  domain.CandleType
	size float64

	open    bool
	current domain.Candle
}

// New crea un builder. Un tipo desconocido o un size no positivo son
// errores de construcción.
func New(typ domain.CandleType, size float64) (*Builder, error) {
	switch typ {
	case domain.CandleTime, domain.CandleTick, domain.CandleVolume, domain.CandleDollar:
	default:
		return nil, fmt.Errorf("candles.New: unknown candle type %q", typ)
	}
	if size <= 0 {
		return nil, fmt.Errorf("candles.New: non-positive size %v", size)
	}
	return &Builder{typ: typ, size: size}, nil
}

// Type devuelve la regla de bucket.
func (b *Builder) Type() domain.CandleType { return b.typ }

// Size devuelve el umbral del bucket.
func (b *Builder) Size() float64 { return b.size }

// Ingest absorbe un trade en el bucket abierto y devuelve la vela
// completa exactamente cuando ese trade satisface la condición de cierre.
// El trade que dispara el cierre pertenece a la barra que cierra. Input
// malformado o desordenado falla rápido.
func (b *Builder) Ingest(t domain.AggTrade) (*domain.Candle, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("candles.Ingest: %w", err)
	}
	if b.open && t.Timestamp.Before(b.current.Timestamp) {
		return nil, fmt.Errorf("candles.Ingest: out-of-order trade at %s before bucket start %s",
			t.Timestamp.Format("15:04:05.000"), b.current.Timestamp.Format("15:04:05.000"))
	}

	if !b.open {
		b.start(t)
	}
	b.absorb(t)

	if b.complete(t) {
		done := b.current
		b.reset()
		return &done, nil
	}
	return nil, nil
}

// Current devuelve una copia de la vela en curso, o nil si ningún trade
// ha abierto bucket todavía.
func (b *Builder) Current() *domain.Candle {
	if !b.open {
		return nil
	}
	c := b.current
	return &c
}

// Flush devuelve la vela parcial abierta y resetea el builder, o nil si el
// bucket está vacío. El motor nunca hace flush automático al acabar el
// stream; quien llama decide si quiere la barra parcial final.
func (b *Builder) Flush() *domain.Candle {
	if !b.open {
		return nil
	}
	done := b.current
	b.reset()
	return &done
}

// BuildFromTrades aplica Ingest sobre el stream entero y devuelve las
// barras cerradas en orden de llegada. El bucket parcial final se descarta.
func (b *Builder) BuildFromTrades(trades []domain.AggTrade) ([]domain.Candle, error) {
	b.reset()
	out := make([]domain.Candle, 0, len(trades)/8+1)
	for i, t := range trades {
		c, err := b.Ingest(t)
		if err != nil {
			return nil, fmt.Errorf("candles.BuildFromTrades: trade %d: %w", i, err)
		}
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (b *Builder) start(t domain.AggTrade) {
	b.open = true
	b.current = domain.Candle{
		Timestamp: t.Timestamp,
		Open:      t.Price,
		High:      t.Price,
		Low:       t.Price,
		Close:     t.Price,
	}
}

func (b *Builder) absorb(t domain.AggTrade) {
	c := &b.current
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume += t.Quantity
	c.QuoteVolume += t.Notional()
	c.TradeCount++
	if t.IsBuyerMaker {
		c.SellVolume += t.Quantity
	} else {
		c.BuyVolume += t.Quantity
	}
}

func (b *Builder) complete(t domain.AggTrade) bool {
	switch b.typ {
	case domain.CandleVolume:
		return b.current.Volume >= b.size
	case domain.CandleTick:
		return b.current.TradeCount >= int(b.size)
	case domain.CandleTime:
		return t.Timestamp.Sub(b.current.Timestamp).Seconds() >= b.size
	case domain.CandleDollar:
		return b.current.QuoteVolume >= b.size
	}
	return false
}

func (b *Builder) reset() {
	b.open = false
	b.current = domain.Candle{}
}
