package prediction

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/alejandrodnm/delphibot/internal/ports"
	"golang.org/x/sync/errgroup"
)

// Result es la predicción de un mercado junto con las series que la produjeron.
type Result struct {
	MarketID   string
	Prediction domain.Prediction
	Series     map[int]domain.EvalSeries // solo los índices que respondieron
	Failed     []int                     // índices cuyo fetch falló
}

// Engine calcula beliefs a partir de las evaluaciones de cada modelo.
type Engine struct {
	evals ports.EvalFetcher
}

// New crea un Engine. Si evals aplica un deadline por request (delphi.Client.WithEvalDeadline),
// un modelo lento no retrasa la respuesta más allá de ese deadline.
func New(evals ports.EvalFetcher) *Engine {
	return &Engine{evals: evals}
}

// Predict pide todas las series en paralelo y calcula la predicción.
// Un fallo en un modelo no cancela los demás: ese modelo cuenta como serie vacía.
func (e *Engine) Predict(ctx context.Context, marketID string, entries domain.EntryMap) Result {
	start := time.Now()

	var (
		mu     sync.Mutex
		series = make(map[int]domain.EvalSeries, len(entries))
		failed []int
		g      errgroup.Group
	)

	for _, idx := range entries.Indices() {
		idx := idx
		g.Go(func() error {
			s, err := e.evals.FetchEvals(ctx, marketID, idx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Debug("eval fetch failed, counting as empty",
					"market_id", marketID,
					"model_idx", idx,
					"err", err,
				)
				failed = append(failed, idx)
				return nil
			}
			series[idx] = s
			return nil
		})
	}
	_ = g.Wait()
	sort.Ints(failed)

	p := domain.ComputePrediction(entries, series)

	slog.Debug("prediction computed",
		"market_id", marketID,
		"models", len(entries),
		"failed", len(failed),
		"predicted", p.PredictedWinner,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return Result{MarketID: marketID, Prediction: p, Series: series, Failed: failed}
}
