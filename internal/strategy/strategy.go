package strategy

import (
	"fmt"
	"sort"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// Strategy define el contrato para generar órdenes a partir del estado del
// mercado. Cada estrategia encapsula una lógica de trading diferente.
type Strategy interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// GenerateOrder analiza el estado actual y devuelve la orden a enviar,
	// o nil si no hay señal. No toca el trader: el runner es quien envía.
	GenerateOrder(state domain.MarketState) *domain.Order
}

// Params son los parámetros de construcción comunes a todas las estrategias.
// Extra lleva los umbrales específicos de cada una; los que falten usan el
// default de la estrategia.
type Params struct {
	Quantity float64
	Extra    map[string]float64
}

// Get devuelve el parámetro extra o el default si no está definido.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p.Extra[key]; ok {
		return v
	}
	return def
}

// Factory construye una estrategia con sus parámetros.
type Factory func(Params) (Strategy, error)

// Registry mantiene las estrategias disponibles indexadas por nombre.
// Construir por nombre permite elegir la estrategia desde el CLI.
type Registry map[string]Factory

// NewRegistry crea un registry con las estrategias incluidas de serie.
func NewRegistry() Registry {
	r := make(Registry)
	r.Register("obi", func(p Params) (Strategy, error) { return NewOBI(p) })
	r.Register("volume_imbalance", func(p Params) (Strategy, error) { return NewVolumeImbalance(p) })
	return r
}

// Register añade una factory al registry.
func (r Registry) Register(name string, f Factory) {
	r[name] = f
}

// New construye la estrategia por nombre. Nombre desconocido es un error de
// configuración y se falla de inmediato.
func (r Registry) New(name string, p Params) (Strategy, error) {
	f, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("strategy.Registry: estrategia desconocida %q (disponibles: %v)", name, r.Names())
	}
	s, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("strategy.Registry: %w", err)
	}
	return s, nil
}

// Names devuelve los nombres registrados, ordenados.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
