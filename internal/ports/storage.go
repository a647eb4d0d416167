package ports

import (
	"context"

	"github.com/jwcorp/tickdesk/internal/domain"
	"github.com/jwcorp/tickdesk/internal/performance"
)

// ReportStore persiste el resultado completo de un run: el resumen de
// métricas, el ledger de trades y la curva de equity.
type ReportStore interface {
	// SaveRun persiste el run entero de forma atómica y devuelve su id.
	SaveRun(ctx context.Context, report performance.Report, trades []domain.Trade, equity []domain.EquityPoint) (int64, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
