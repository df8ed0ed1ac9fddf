package delphi

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/alejandrodnm/delphibot/internal/domain"
)

var errNoDataPoints = errors.New("chart without data_points")

// mapMarkets convierte los items de /markets a domain.UpstreamMarket.
// Los items sin id se descartan.
func mapMarkets(raw []marketItem) []domain.UpstreamMarket {
	markets := make([]domain.UpstreamMarket, 0, len(raw))
	for _, r := range raw {
		if r.MarketID == "" {
			continue
		}
		markets = append(markets, domain.UpstreamMarket{
			ID:        string(r.MarketID),
			Name:      r.MarketName,
			Status:    domain.MarketStatus(r.Status),
			CreatedAt: parseCreatedTS(r.CreatedTS),
		})
	}
	return markets
}

// parseCreatedTS acepta epoch en segundos o en milisegundos.
func parseCreatedTS(ts flexNumber) time.Time {
	v := ts.Float()
	if v <= 0 {
		return time.Time{}
	}
	if v > 1e12 {
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Unix(int64(v), 0).UTC()
}

// decodeEvals acepta {"evals": [...]} o directamente el array.
func decodeEvals(body json.RawMessage) ([]evalItem, error) {
	var resp evalsResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		return resp.Evals, nil
	}
	var items []evalItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// mapEvals convierte los items de /evals a una domain.EvalSeries.
func mapEvals(marketID string, modelIdx int, items []evalItem, raw json.RawMessage) domain.EvalSeries {
	s := domain.EvalSeries{
		MarketID: marketID,
		ModelIdx: modelIdx,
		Records:  make([]domain.EvalRecord, 0, len(items)),
		Raw:      raw,
	}
	for _, it := range items {
		s.Records = append(s.Records, domain.EvalRecord{
			Aggregate: it.Aggregate.Float(),
			Benchmark: it.Benchmark,
		})
	}
	return s
}

// locateChart busca data_points en las tres ubicaciones conocidas:
// market_chart.data_points, data_points y data.market_chart.data_points.
// Devuelve el objeto que contiene data_points para reenviarlo tal cual.
func locateChart(body json.RawMessage) (json.RawMessage, []chartPoint, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, nil, err
	}

	if mc, ok := top["market_chart"]; ok {
		if points, err := dataPoints(mc); err == nil {
			return mc, points, nil
		}
	}
	if _, ok := top["data_points"]; ok {
		if points, err := dataPoints(body); err == nil {
			return body, points, nil
		}
	}
	if data, ok := top["data"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(data, &inner); err == nil {
			if mc, ok := inner["market_chart"]; ok {
				if points, err := dataPoints(mc); err == nil {
					return mc, points, nil
				}
			}
		}
	}
	return nil, nil, errNoDataPoints
}

func dataPoints(obj json.RawMessage) ([]chartPoint, error) {
	var holder struct {
		DataPoints *[]chartPoint `json:"data_points"`
	}
	if err := json.Unmarshal(obj, &holder); err != nil {
		return nil, err
	}
	if holder.DataPoints == nil {
		return nil, errNoDataPoints
	}
	return *holder.DataPoints, nil
}

// mapChart convierte los data points. Entradas con índice o precio no numérico se descartan.
func mapChart(marketID, timeframe string, raw json.RawMessage, points []chartPoint) domain.Chart {
	c := domain.Chart{
		MarketID:  marketID,
		Timeframe: timeframe,
		Raw:       raw,
		Points:    make([]domain.ChartPoint, 0, len(points)),
	}
	for _, p := range points {
		ts := string(p.Timestamp)
		if ts == "" {
			ts = string(p.TS)
		}
		cp := domain.ChartPoint{Timestamp: ts}
		for _, e := range p.Entries {
			if !e.EntryIdx.Valid || !e.Price.Valid || e.EntryIdx.Value < 0 {
				continue
			}
			cp.Entries = append(cp.Entries, domain.EntryPrice{
				EntryIdx: int(e.EntryIdx.Value),
				Price:    e.Price.Float(),
			})
		}
		c.Points = append(c.Points, cp)
	}
	return c
}
