package resolver

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/alejandrodnm/delphibot/internal/ports"
	"github.com/alejandrodnm/delphibot/internal/registry"
)

// Nombres de campo observados en distintas versiones del objeto de mercado de Delphi.
var (
	winnerNameFields  = []string{"winner", "winner_name", "winning_model", "winning_model_name"}
	winnerIndexFields = []string{"winning_entry_idx", "winner_entry_idx", "winning_idx", "winner_idx", "winning_index", "resolved_entry_idx"}
	nestedObjects     = []string{"resolution", "settlement", "outcome"}
	nestedIndexFields = []string{"entry_idx", "winning_entry_idx", "winner_idx", "index"}
)

// Confirmed usa el ganador confirmado del registro.
type Confirmed struct {
	Registry *registry.Registry
}

func (Confirmed) Name() string { return string(domain.SourceConfirmed) }

func (s Confirmed) Attempt(_ context.Context, t Target) (domain.WinnerResolution, bool) {
	m, ok := s.Registry.Market(t.MarketID)
	if !ok || !m.IsSettled() {
		return domain.WinnerResolution{}, false
	}
	return domain.WinnerResolution{Winner: m.ConfirmedWinner, Source: domain.SourceConfirmed}, true
}

// MarketField lee los campos de resolución de GET /markets/{id}.
type MarketField struct {
	Markets ports.MarketFetcher
}

func (MarketField) Name() string { return string(domain.SourceMarketField) }

func (s MarketField) Attempt(ctx context.Context, t Target) (domain.WinnerResolution, bool) {
	obj, err := s.Markets.FetchMarket(ctx, t.MarketID)
	if err != nil {
		slog.Debug("market object unavailable", "market_id", t.MarketID, "err", err)
		return domain.WinnerResolution{}, false
	}
	winner, ok := WinnerFromMarketObject(obj, t.Entries)
	if !ok {
		return domain.WinnerResolution{}, false
	}
	return domain.WinnerResolution{Winner: winner, Source: domain.SourceMarketField}, true
}

// WinnerFromMarketObject aplica la precedencia de campos: nombre directo, índices
// de primer nivel y por último el índice dentro de resolution/settlement/outcome.
func WinnerFromMarketObject(obj map[string]any, entries domain.EntryMap) (string, bool) {
	for _, f := range winnerNameFields {
		if name, ok := obj[f].(string); ok && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name), true
		}
	}
	for _, f := range winnerIndexFields {
		if idx, ok := asIndex(obj[f]); ok {
			return entries.Name(idx), true
		}
	}
	for _, n := range nestedObjects {
		nested, ok := obj[n].(map[string]any)
		if !ok {
			continue
		}
		for _, f := range nestedIndexFields {
			if idx, ok := asIndex(nested[f]); ok {
				return entries.Name(idx), true
			}
		}
	}
	return "", false
}

// asIndex acepta números enteros no negativos, también como string.
func asIndex(v any) (int, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// ChartTopPrice elige la entrada más cara del último snapshot del chart.
type ChartTopPrice struct {
	Charts ports.ChartFetcher
}

func (ChartTopPrice) Name() string { return string(domain.SourceChartTop) }

func (s ChartTopPrice) Attempt(ctx context.Context, t Target) (domain.WinnerResolution, bool) {
	chart, err := s.Charts.FetchChart(ctx, t.MarketID, "auto")
	if err != nil {
		slog.Debug("chart unavailable for winner", "market_id", t.MarketID, "err", err)
		return domain.WinnerResolution{}, false
	}
	top, ok := chart.TopEntry()
	if !ok {
		return domain.WinnerResolution{}, false
	}
	return domain.WinnerResolution{Winner: t.Entries.Name(top.EntryIdx), Source: domain.SourceChartTop}, true
}
