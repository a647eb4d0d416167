package ports

import (
	"github.com/jwcorp/tickdesk/internal/domain"
	"github.com/jwcorp/tickdesk/internal/performance"
)

// Notifier presenta el resultado de un run al usuario. En la
// implementación de consola, imprime el resumen y el ledger en tablas.
type Notifier interface {
	NotifyReport(report performance.Report, trades []domain.Trade) error
}
