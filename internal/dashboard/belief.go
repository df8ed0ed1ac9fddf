package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/alejandrodnm/delphibot/internal/prediction"
	"github.com/alejandrodnm/delphibot/internal/resolver"
	"golang.org/x/sync/errgroup"
)

// ModelPayload es la respuesta cruda de /evals de un modelo.
type ModelPayload struct {
	EntryIdx int             `json:"entry_idx"`
	Model    string          `json:"model"`
	Evals    json.RawMessage `json:"evals"` // null si el fetch falló
}

// SignalView es la señal de un modelo según el último precio del chart.
type SignalView struct {
	EntryIdx int           `json:"entry_idx"`
	Model    string        `json:"model"`
	PricePct float64       `json:"price_pct"`
	Belief   float64       `json:"belief"`
	Gap      float64       `json:"gap"`
	Signal   domain.Signal `json:"signal"`
}

// HumanBelief es el payload de /api/human-belief.
type HumanBelief struct {
	MarketID        string
	MarketName      string
	Status          domain.MarketStatus
	ModelNames      []string
	Raw             []ModelPayload
	Beliefs         map[string]float64
	PredictedWinner string
	TopBelief       float64
	MaxEvalCount    int
	Rankings        []domain.Ranking
	Signals         []SignalView
	FailedModels    []int
	Winner          domain.WinnerResolution // resultado del mercado con su procedencia
	ComputedAt      time.Time
}

// HumanBelief devuelve las evaluaciones y beliefs del mercado actual.
// Cacheado 8s y ligado al mercado activo: si cambia, se recalcula aunque el TTL no haya vencido.
func (s *Service) HumanBelief(ctx context.Context) (HumanBelief, error) {
	live, err := s.LiveMarket(ctx)
	if err != nil {
		return HumanBelief{}, err
	}

	e, err := s.belief.GetOrLoad(ctx, live.MarketID, func(ctx context.Context) (HumanBelief, error) {
		return s.computeHumanBelief(ctx, live), nil
	})
	if err != nil {
		return HumanBelief{}, err
	}
	return e.Value, nil
}

func (s *Service) computeHumanBelief(ctx context.Context, live domain.LiveMarket) HumanBelief {
	var (
		res    prediction.Result
		winner = domain.Undetermined()
		g      errgroup.Group
	)
	g.Go(func() error {
		res = s.engine.Predict(ctx, live.MarketID, live.Entries)
		return nil
	})
	if s.resolver != nil {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(ctx, s.cfg.BeliefDeadline)
			defer cancel()
			winner = s.resolver.Resolve(rctx, resolver.Target{MarketID: live.MarketID, Entries: live.Entries})
			return nil
		})
	}
	_ = g.Wait()
	p := res.Prediction

	hb := HumanBelief{
		MarketID:        live.MarketID,
		MarketName:      live.MarketName,
		Status:          live.Status,
		ModelNames:      live.Entries.Names(),
		Beliefs:         p.Beliefs,
		PredictedWinner: p.PredictedWinner,
		TopBelief:       p.TopBelief,
		MaxEvalCount:    p.MaxEvalCount,
		Rankings:        p.Rankings,
		FailedModels:    res.Failed,
		Winner:          winner,
		ComputedAt:      s.clock.Now().UTC(),
	}

	for _, idx := range live.Entries.Indices() {
		payload := ModelPayload{EntryIdx: idx, Model: live.Entries.Name(idx)}
		if series, ok := res.Series[idx]; ok {
			payload.Evals = series.Raw
		}
		hb.Raw = append(hb.Raw, payload)
	}

	hb.Signals = s.signals(ctx, live, p.Beliefs)
	return hb
}

// signals cruza beliefs con el último snapshot del chart. Best-effort: sin chart,
// sin beliefs o si el chart no llega dentro del deadline del belief, no hay señales.
func (s *Service) signals(ctx context.Context, live domain.LiveMarket, beliefs map[string]float64) []SignalView {
	if len(beliefs) == 0 {
		return nil
	}
	chart, err := s.loadChart(ctx, live.MarketID, "auto", s.cfg.BeliefDeadline)
	if err != nil {
		slog.Debug("chart unavailable, skipping signals", "market_id", live.MarketID, "err", err)
		return nil
	}
	point, ok := chart.Latest()
	if !ok {
		return nil
	}

	out := make([]SignalView, 0, len(point.Entries))
	for _, e := range point.Entries {
		name := live.Entries.Name(e.EntryIdx)
		belief, ok := beliefs[name]
		if !ok {
			continue
		}
		price := domain.PricePercent(e.Price)
		out = append(out, SignalView{
			EntryIdx: e.EntryIdx,
			Model:    name,
			PricePct: price,
			Belief:   belief,
			Gap:      domain.Gap(price, belief),
			Signal:   domain.ClassifySignal(price, belief, s.cfg.GapThreshold),
		})
	}
	return out
}
