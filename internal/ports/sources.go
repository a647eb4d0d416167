package ports

import (
	"context"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// TickSource entrega aggTrades en orden ascendente de timestamp. Los
// backtests lo consumen como iterador pull: ok=false cuando se agota el
// dataset, err solo ante datos corruptos.
type TickSource interface {
	Next() (t domain.AggTrade, ok bool, err error)
}

// SnapshotSource entrega snapshots de orderbook en orden ascendente de
// timestamp, con la misma semántica de iterador que TickSource.
type SnapshotSource interface {
	Next() (snap domain.OrderbookSnapshot, ok bool, err error)
}

// StreamHandlers son los callbacks de un stream en vivo. Los que queden a
// nil simplemente no se invocan.
type StreamHandlers struct {
	OnTrade func(domain.AggTrade)
	OnBook  func(domain.OrderbookSnapshot)
	OnError func(error)
}

// StreamSource empuja eventos de mercado en vivo hacia los handlers.
// Run bloquea hasta que el contexto se cancela o el stream falla de forma
// irrecuperable; la reconexión es responsabilidad del adapter.
type StreamSource interface {
	Run(ctx context.Context, h StreamHandlers) error
}
