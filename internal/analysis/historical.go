package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/alejandrodnm/delphibot/internal/ports"
	"github.com/alejandrodnm/delphibot/internal/prediction"
	"github.com/alejandrodnm/delphibot/internal/registry"
	"github.com/alejandrodnm/delphibot/internal/resolver"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers     = 4
	defaultClosedLimit = 20
)

// MarketAnalysis compara predicción y resultado de un mercado liquidado.
type MarketAnalysis struct {
	MarketID        string              `json:"marketId"`
	MarketName      string              `json:"marketName"`
	DisplayOrder    int                 `json:"displayOrder"`
	CloseDate       string              `json:"closeDate"`
	ActualWinner    string              `json:"actualWinner"`
	WinnerSource    domain.WinnerSource `json:"winnerSource"`
	PredictedWinner *string             `json:"predictedWinner"`
	BeliefScore     float64             `json:"beliefScore"`
	Correct         bool                `json:"correct"`
	EvalCount       int                 `json:"evalCount"`
	Beliefs         map[string]float64  `json:"beliefs"`
	Rankings        []domain.Ranking    `json:"rankings"`
	FailedModels    int                 `json:"failedModels"`
}

// Report es el resultado agregado del análisis histórico.
type Report struct {
	Markets            []MarketAnalysis `json:"markets"`
	WinRate            float64          `json:"winRate"`
	TotalMarkets       int              `json:"totalMarkets"`
	CorrectPredictions int              `json:"correctPredictions"`
}

// EntryMapper descubre el entry map de un mercado que no está en el registro.
// Lo implementa detector.Detector.
type EntryMapper interface {
	EntryMap(ctx context.Context, marketID string) domain.EntryMap
}

// Upstream habilita el análisis de mercados cerrados en Delphi que el registro no conoce.
// Sin ganador confirmado, su resultado sale de los campos del mercado o del chart.
type Upstream struct {
	Markets ports.MarketLister
	Entries EntryMapper
	Limit   int // máximo de mercados cerrados a pedir
}

// Analyzer recorre los mercados liquidados del registro y, opcionalmente,
// los cerrados en Delphi que el registro no conoce.
type Analyzer struct {
	registry *registry.Registry
	engine   *prediction.Engine
	resolver *resolver.Resolver
	workers  int
	upstream *Upstream
}

// NewAnalyzer crea un Analyzer. Si workers <= 0 usa 4.
func NewAnalyzer(reg *registry.Registry, engine *prediction.Engine, res *resolver.Resolver, workers int) *Analyzer {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Analyzer{registry: reg, engine: engine, resolver: res, workers: workers}
}

// WithUpstream añade los mercados cerrados de Delphi al análisis.
func (a *Analyzer) WithUpstream(u Upstream) *Analyzer {
	if u.Limit <= 0 {
		u.Limit = defaultClosedLimit
	}
	a.upstream = &u
	return a
}

// Run analiza todos los mercados liquidados, del más antiguo al más nuevo; los
// cerrados fuera del registro van al final.
// Nunca falla: un mercado sin datos queda sin predicción y cuenta como fallo.
func (a *Analyzer) Run(ctx context.Context) Report {
	start := time.Now()
	settled := append(a.registry.Settled(), a.closedUpstream(ctx)...)
	results := make([]MarketAnalysis, len(settled))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, m := range settled {
		i, m := i, m
		g.Go(func() error {
			results[i] = a.analyze(ctx, m)
			return nil
		})
	}
	_ = g.Wait()

	report := Summarize(results)

	slog.Info("historical analysis complete",
		"markets", report.TotalMarkets,
		"correct", report.CorrectPredictions,
		"win_rate", report.WinRate,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return report
}

func (a *Analyzer) analyze(ctx context.Context, m domain.MarketConfig) MarketAnalysis {
	res := a.engine.Predict(ctx, m.ID, m.Entries)
	actual := a.resolver.Resolve(ctx, resolver.Target{MarketID: m.ID, Entries: m.Entries})
	p := res.Prediction

	out := MarketAnalysis{
		MarketID:     m.ID,
		MarketName:   m.Name,
		DisplayOrder: m.DisplayOrder,
		CloseDate:    m.CloseDate,
		ActualWinner: actual.Winner,
		WinnerSource: actual.Source,
		BeliefScore:  p.TopBelief,
		Correct:      resolver.IsCorrect(p.PredictedWinner, actual),
		EvalCount:    p.MaxEvalCount,
		Beliefs:      p.Beliefs,
		Rankings:     p.Rankings,
		FailedModels: len(res.Failed),
	}
	if p.HasWinner() {
		winner := p.PredictedWinner
		out.PredictedWinner = &winner
	}
	return out
}

// closedUpstream devuelve los mercados cerrados en Delphi que no están en el registro
// ni son fantasmas, con su entry map descubierto. Un fallo de Delphi deja la lista vacía.
func (a *Analyzer) closedUpstream(ctx context.Context) []domain.MarketConfig {
	if a.upstream == nil {
		return nil
	}
	closed, err := a.upstream.Markets.ListMarkets(ctx, domain.StatusClosed, a.upstream.Limit)
	if err != nil {
		slog.Warn("closed markets unavailable, analyzing registry only", "err", err)
		return nil
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].CreatedAt.Before(closed[j].CreatedAt)
	})

	var unknown []domain.UpstreamMarket
	for _, c := range closed {
		if _, ok := a.registry.Market(c.ID); ok || a.registry.IsGhost(c.ID) {
			continue
		}
		unknown = append(unknown, c)
	}

	entries := make([]domain.EntryMap, len(unknown))
	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, c := range unknown {
		i, c := i, c
		g.Go(func() error {
			entries[i] = a.upstream.Entries.EntryMap(ctx, c.ID)
			return nil
		})
	}
	_ = g.Wait()

	order := 0
	if all := a.registry.Markets(); len(all) > 0 {
		order = all[len(all)-1].DisplayOrder
	}
	var out []domain.MarketConfig
	for i, c := range unknown {
		if len(entries[i]) == 0 {
			slog.Debug("closed market without entries, skipping", "market_id", c.ID)
			continue
		}
		order++
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("Market %s", c.ID)
		}
		out = append(out, domain.MarketConfig{
			ID:           c.ID,
			DisplayOrder: order,
			Name:         name,
			Entries:      entries[i],
		})
	}
	return out
}

// Summarize calcula el win rate (en %) sobre todos los mercados analizados.
func Summarize(markets []MarketAnalysis) Report {
	r := Report{Markets: markets, TotalMarkets: len(markets)}
	for _, m := range markets {
		if m.Correct {
			r.CorrectPredictions++
		}
	}
	if r.TotalMarkets > 0 {
		r.WinRate = float64(r.CorrectPredictions) / float64(r.TotalMarkets) * 100
	}
	return r
}
