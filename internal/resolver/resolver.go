package resolver

// resolver.go — resultado real de un mercado, independiente de la predicción.
//
// Se prueba una lista ordenada de estrategias; la primera que opina gana:
//  1. ganador confirmado en el registro
//  2. campos de resolución en el objeto de mercado de Delphi
//  3. entrada con mayor precio en el último snapshot del chart
//  4. TBD
//
// El registro va primero porque el chart de mercados cerrados no es fiable para
// recuperar el índice ganador.

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/alejandrodnm/delphibot/internal/ports"
	"github.com/alejandrodnm/delphibot/internal/registry"
)

// Target es el mercado a resolver.
type Target struct {
	MarketID string
	Entries  domain.EntryMap
}

// Strategy es un tier de resolución. ok=false significa "sin opinión".
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, t Target) (winner domain.WinnerResolution, ok bool)
}

// Resolver recorre las estrategias en orden.
type Resolver struct {
	strategies []Strategy
}

// New crea un Resolver con las estrategias dadas, en orden de precedencia.
func New(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Default arma la cadena estándar: registro → campos de mercado → chart.
func Default(reg *registry.Registry, markets ports.MarketFetcher, charts ports.ChartFetcher) *Resolver {
	return New(
		Confirmed{Registry: reg},
		MarketField{Markets: markets},
		ChartTopPrice{Charts: charts},
	)
}

// Resolve devuelve el primer resultado de la cadena, o Undetermined.
func (r *Resolver) Resolve(ctx context.Context, t Target) domain.WinnerResolution {
	for _, s := range r.strategies {
		if w, ok := s.Attempt(ctx, t); ok {
			slog.Debug("winner resolved",
				"market_id", t.MarketID,
				"winner", w.Winner,
				"strategy", s.Name(),
			)
			return w
		}
	}
	return domain.Undetermined()
}

// IsCorrect compara predicción y resultado con igualdad normalizada.
// Sin ganador real o sin predicción no hay acierto.
func IsCorrect(predicted string, actual domain.WinnerResolution) bool {
	if !actual.Determined() || predicted == "" {
		return false
	}
	return domain.NamesMatch(predicted, actual.Winner)
}
