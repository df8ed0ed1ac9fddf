package ports

import (
	"context"

	"github.com/alejandrodnm/delphibot/internal/domain"
)

// MarketLister lista mercados de Delphi por estado.
type MarketLister interface {
	// ListMarkets devuelve como máximo limit mercados con el estado dado.
	ListMarkets(ctx context.Context, status domain.MarketStatus, limit int) ([]domain.UpstreamMarket, error)
}

// EvalFetcher obtiene el histórico de evaluaciones de un modelo.
type EvalFetcher interface {
	// FetchEvals devuelve la serie de evaluaciones del slot modelIdx del mercado.
	// Una serie vacía sin error significa que el slot existe pero no tiene datos.
	FetchEvals(ctx context.Context, marketID string, modelIdx int) (domain.EvalSeries, error)
}

// ChartFetcher obtiene el chart de precios de un mercado.
type ChartFetcher interface {
	FetchChart(ctx context.Context, marketID, timeframe string) (domain.Chart, error)
}

// MarketFetcher obtiene el objeto crudo de un mercado (GET /markets/{id}).
// Se devuelve sin tipar porque los campos de resolución varían entre versiones de la API.
type MarketFetcher interface {
	FetchMarket(ctx context.Context, marketID string) (map[string]any, error)
}

// Upstream agrupa todo lo que el sistema consume de Delphi.
type Upstream interface {
	MarketLister
	EvalFetcher
	ChartFetcher
	MarketFetcher
}
