package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alejandrodnm/delphibot/internal/adapters/httpapi"
	"github.com/alejandrodnm/delphibot/internal/analysis"
	"github.com/alejandrodnm/delphibot/internal/dashboard"
	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	live     domain.LiveMarket
	liveErr  error
	chart    domain.Chart
	chartErr error
	belief   dashboard.HumanBelief
	report   analysis.Report
	panics   bool
}

func (b *stubBackend) LiveMarket(context.Context) (domain.LiveMarket, error) {
	return b.live, b.liveErr
}

func (b *stubBackend) EntryMap(_ context.Context, id string) (dashboard.EntryMapView, error) {
	if id == "" {
		return dashboard.EntryMapView{MarketID: b.live.MarketID, Entries: b.live.Entries, Source: dashboard.MapSourceRegistry}, b.liveErr
	}
	return dashboard.EntryMapView{MarketID: id, Entries: domain.EntryMap{0: "Entry #0"}, Source: dashboard.MapSourceProbe}, nil
}

func (b *stubBackend) Chart(context.Context, string, string) (domain.Chart, error) {
	return b.chart, b.chartErr
}

func (b *stubBackend) HumanBelief(context.Context) (dashboard.HumanBelief, error) {
	if b.panics {
		panic("boom")
	}
	return b.belief, nil
}

func (b *stubBackend) Historical(context.Context) (analysis.Report, error) {
	return b.report, nil
}

func newBackend() *stubBackend {
	return &stubBackend{
		live: domain.LiveMarket{
			MarketID:   "10",
			MarketName: "Live ten",
			Status:     domain.StatusOngoing,
			Entries:    domain.EntryMap{0: "X", 1: "Y"},
			IsKnown:    true,
		},
		chart: domain.Chart{Raw: json.RawMessage(`{"data_points":[]}`)},
	}
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestHealth(t *testing.T) {
	h := httpapi.NewServer(httpapi.Config{}, newBackend(), nil).Handler()
	rec, body := get(t, h, "/api/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["fetched_at"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLiveMarket(t *testing.T) {
	h := httpapi.NewServer(httpapi.Config{}, newBackend(), nil).Handler()
	rec, body := get(t, h, "/api/live-market")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "10", body["market_id"])
	assert.Equal(t, true, body["is_live"])
	assert.Equal(t, true, body["is_known_market"])
	assert.Equal(t, 2.0, body["entry_count"])
	assert.Equal(t, map[string]any{"0": "X", "1": "Y"}, body["entry_map"])
}

func TestLiveMarket_UnexpectedErrorIsGeneric500(t *testing.T) {
	b := newBackend()
	b.liveErr = errors.New("registry has no settled market")
	h := httpapi.NewServer(httpapi.Config{}, b, nil).Handler()

	rec, body := get(t, h, "/api/live-market")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body["error"])
}

func TestEntryMap_WithMarketID(t *testing.T) {
	h := httpapi.NewServer(httpapi.Config{}, newBackend(), nil).Handler()
	_, body := get(t, h, "/api/entry-map?market_id=77")

	assert.Equal(t, "77", body["market_id"])
	assert.Equal(t, "probe", body["map_source"])
	assert.Equal(t, 1.0, body["entry_count"])
}

func TestChart(t *testing.T) {
	h := httpapi.NewServer(httpapi.Config{}, newBackend(), nil).Handler()
	_, body := get(t, h, "/api/delphi-chart")

	assert.Equal(t, "10", body["market_id"])
	assert.Equal(t, "auto", body["timeframe"])
	assert.Equal(t, map[string]any{"data_points": []any{}}, body["market_chart"])
}

func TestChart_UpstreamFailureDegrades(t *testing.T) {
	b := newBackend()
	b.chartErr = errors.New("delphi down")
	h := httpapi.NewServer(httpapi.Config{}, b, nil).Handler()

	rec, body := get(t, h, "/api/delphi-chart?timeframe=1h")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["market_chart"])
	assert.Equal(t, "1h", body["timeframe"])
}

func TestHumanBelief_NoWinnerIsNull(t *testing.T) {
	b := newBackend()
	b.belief = dashboard.HumanBelief{MarketID: "10", ModelNames: []string{"X", "Y"}, Beliefs: map[string]float64{}}
	h := httpapi.NewServer(httpapi.Config{}, b, nil).Handler()

	_, body := get(t, h, "/api/human-belief")
	assert.Equal(t, "10", body["market_id"])
	assert.Nil(t, body["predicted_winner"])
	assert.Equal(t, []any{"X", "Y"}, body["model_names"])
}

func TestHumanBelief_PanicRecovered(t *testing.T) {
	b := newBackend()
	b.panics = true
	h := httpapi.NewServer(httpapi.Config{}, b, nil).Handler()

	rec, body := get(t, h, "/api/human-belief")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body["error"])
}

func TestHistorical(t *testing.T) {
	b := newBackend()
	winner := "A"
	b.report = analysis.Summarize([]analysis.MarketAnalysis{
		{MarketID: "1", ActualWinner: "A", PredictedWinner: &winner, Correct: true},
		{MarketID: "2", ActualWinner: "B"},
	})
	h := httpapi.NewServer(httpapi.Config{}, b, nil).Handler()

	_, body := get(t, h, "/api/historical-analysis")
	assert.Equal(t, 50.0, body["winRate"])
	assert.Equal(t, 2.0, body["totalMarkets"])
	assert.Equal(t, 1.0, body["correctPredictions"])

	markets := body["markets"].([]any)
	require.Len(t, markets, 2)
	first := markets[0].(map[string]any)
	assert.Equal(t, "1", first["marketId"])
	assert.Equal(t, "A", first["predictedWinner"])
	assert.Nil(t, markets[1].(map[string]any)["predictedWinner"])
}

func TestNotFound(t *testing.T) {
	h := httpapi.NewServer(httpapi.Config{}, newBackend(), nil).Handler()
	rec, _ := get(t, h, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHumanBelief_WinnerProvenance(t *testing.T) {
	b := newBackend()
	b.belief = dashboard.HumanBelief{
		MarketID:        "10",
		PredictedWinner: "X",
		Winner:          domain.WinnerResolution{Winner: "Y", Source: domain.SourceMarketField},
	}
	h := httpapi.NewServer(httpapi.Config{}, b, nil).Handler()

	_, body := get(t, h, "/api/human-belief")
	assert.Equal(t, "Y", body["actual_winner"])
	assert.Equal(t, "upstream_field", body["winner_source"])
}

func TestHistorical_UpstreamProvenance(t *testing.T) {
	b := newBackend()
	b.report = analysis.Summarize([]analysis.MarketAnalysis{
		{MarketID: "50", ActualWinner: "Entry #0", WinnerSource: domain.SourceChartTop},
	})
	h := httpapi.NewServer(httpapi.Config{}, b, nil).Handler()

	_, body := get(t, h, "/api/historical-analysis")
	markets := body["markets"].([]any)
	require.Len(t, markets, 1)
	assert.Equal(t, "chart_top_price", markets[0].(map[string]any)["winnerSource"])
}
