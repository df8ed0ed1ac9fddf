package analysis_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/delphibot/internal/analysis"
	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/alejandrodnm/delphibot/internal/prediction"
	"github.com/alejandrodnm/delphibot/internal/registry"
	"github.com/alejandrodnm/delphibot/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvals map[string]map[int][]float64

func (s stubEvals) FetchEvals(_ context.Context, marketID string, idx int) (domain.EvalSeries, error) {
	scores, ok := s[marketID][idx]
	if !ok {
		return domain.EvalSeries{}, errors.New("no data")
	}
	out := domain.EvalSeries{MarketID: marketID, ModelIdx: idx}
	for _, v := range scores {
		out.Records = append(out.Records, domain.EvalRecord{Aggregate: v})
	}
	return out, nil
}

func TestAnalyzer_Run(t *testing.T) {
	reg, err := registry.Parse([]byte(`
markets:
  - {id: "1", order: 1, name: "first", confirmed_winner: "A", entries: {0: "A", 1: "B"}}
  - {id: "2", order: 2, name: "second", confirmed_winner: "D", entries: {0: "C", 1: "D"}}
  - {id: "3", order: 3, name: "empty", confirmed_winner: "E", entries: {0: "E"}}
  - {id: "4", order: 4, name: "live", entries: {0: "F"}}
`))
	require.NoError(t, err)

	evals := stubEvals{
		"1": {0: {80, 90}, 1: {70}},
		"2": {0: {60}, 1: {40}},
	}
	engine := prediction.New(evals)
	res := resolver.New(resolver.Confirmed{Registry: reg})

	report := analysis.NewAnalyzer(reg, engine, res, 2).Run(context.Background())

	require.Len(t, report.Markets, 3)
	assert.Equal(t, 3, report.TotalMarkets)
	assert.Equal(t, 1, report.CorrectPredictions)
	assert.InDelta(t, 33.333, report.WinRate, 0.01)

	first := report.Markets[0]
	assert.Equal(t, "1", first.MarketID)
	assert.True(t, first.Correct)
	require.NotNil(t, first.PredictedWinner)
	assert.Equal(t, "A", *first.PredictedWinner)
	assert.Equal(t, domain.SourceConfirmed, first.WinnerSource)
	assert.Equal(t, 2, first.EvalCount)
	assert.InDelta(t, 85.0/155.0*100, first.BeliefScore, 1e-9)

	second := report.Markets[1]
	assert.False(t, second.Correct)
	assert.Equal(t, "D", second.ActualWinner)

	empty := report.Markets[2]
	assert.Nil(t, empty.PredictedWinner)
	assert.False(t, empty.Correct)
	assert.Equal(t, 1, empty.FailedModels)
}

func TestSummarize_Empty(t *testing.T) {
	r := analysis.Summarize(nil)
	assert.Zero(t, r.WinRate)
	assert.Zero(t, r.TotalMarkets)
}

type stubUpstream struct {
	closed  []domain.UpstreamMarket
	entries map[string]domain.EntryMap
	markets map[string]map[string]any
	charts  map[string]domain.Chart

	mu     sync.Mutex
	mapped []string
}

func (u *stubUpstream) ListMarkets(_ context.Context, status domain.MarketStatus, _ int) ([]domain.UpstreamMarket, error) {
	if status != domain.StatusClosed {
		return nil, nil
	}
	return u.closed, nil
}

func (u *stubUpstream) EntryMap(_ context.Context, id string) domain.EntryMap {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mapped = append(u.mapped, id)
	return u.entries[id]
}

func (u *stubUpstream) FetchMarket(_ context.Context, id string) (map[string]any, error) {
	m, ok := u.markets[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return m, nil
}

func (u *stubUpstream) FetchChart(_ context.Context, id, _ string) (domain.Chart, error) {
	c, ok := u.charts[id]
	if !ok {
		return domain.Chart{}, errors.New("no chart")
	}
	return c, nil
}

func TestAnalyzer_ClosedUpstreamMarkets(t *testing.T) {
	reg, err := registry.Parse([]byte(`
ghost_markets: ["5"]
markets:
  - {id: "1", order: 1, name: "first", confirmed_winner: "A", entries: {0: "A", 1: "B"}}
`))
	require.NoError(t, err)

	two := domain.EntryMap{0: domain.PlaceholderName(0), 1: domain.PlaceholderName(1)}
	up := &stubUpstream{
		closed: []domain.UpstreamMarket{
			{ID: "51", Name: "by chart", CreatedAt: time.Unix(300, 0)},
			{ID: "1", CreatedAt: time.Unix(100, 0)},
			{ID: "5", CreatedAt: time.Unix(150, 0)},
			{ID: "50", Name: "by field", CreatedAt: time.Unix(200, 0)},
			{ID: "52", CreatedAt: time.Unix(400, 0)},
		},
		entries: map[string]domain.EntryMap{"50": two, "51": two},
		markets: map[string]map[string]any{"50": {"winning_entry_idx": 1.0}},
		charts: map[string]domain.Chart{"51": {Points: []domain.ChartPoint{{Entries: []domain.EntryPrice{
			{EntryIdx: 0, Price: 0.7},
			{EntryIdx: 1, Price: 0.3},
		}}}}},
	}
	evals := stubEvals{
		"1":  {0: {90}, 1: {10}},
		"50": {0: {10}, 1: {30}},
		"51": {0: {10}, 1: {30}},
	}

	a := analysis.NewAnalyzer(reg, prediction.New(evals), resolver.Default(reg, up, up), 2).
		WithUpstream(analysis.Upstream{Markets: up, Entries: up})
	report := a.Run(context.Background())

	assert.ElementsMatch(t, []string{"50", "51", "52"}, up.mapped)
	require.Len(t, report.Markets, 3)

	field := report.Markets[1]
	assert.Equal(t, "50", field.MarketID)
	assert.Equal(t, "by field", field.MarketName)
	assert.Equal(t, 2, field.DisplayOrder)
	assert.Equal(t, domain.SourceMarketField, field.WinnerSource)
	assert.Equal(t, "Entry #1", field.ActualWinner)
	assert.True(t, field.Correct)

	chart := report.Markets[2]
	assert.Equal(t, "51", chart.MarketID)
	assert.Equal(t, domain.SourceChartTop, chart.WinnerSource)
	assert.Equal(t, "Entry #0", chart.ActualWinner)
	assert.False(t, chart.Correct)

	assert.Equal(t, 2, report.CorrectPredictions)
}

func TestAnalyzer_ClosedUpstreamUnavailable(t *testing.T) {
	reg, err := registry.Parse([]byte(`
markets:
  - {id: "1", order: 1, name: "first", confirmed_winner: "A", entries: {0: "A"}}
`))
	require.NoError(t, err)

	a := analysis.NewAnalyzer(reg, prediction.New(stubEvals{"1": {0: {1}}}), resolver.New(resolver.Confirmed{Registry: reg}), 1).
		WithUpstream(analysis.Upstream{Markets: failingLister{}, Entries: &stubUpstream{}})
	report := a.Run(context.Background())

	require.Len(t, report.Markets, 1)
	assert.Equal(t, "1", report.Markets[0].MarketID)
}

type failingLister struct{}

func (failingLister) ListMarkets(context.Context, domain.MarketStatus, int) ([]domain.UpstreamMarket, error) {
	return nil, errors.New("delphi down")
}
