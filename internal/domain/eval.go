package domain

import (
	"encoding/json"
	"math"
)

// EvalRecord es una evaluación individual de un modelo en un benchmark.
type EvalRecord struct {
	Aggregate float64
	Benchmark string
}

// EvalSeries es el histórico de evaluaciones de un modelo en un mercado.
// Raw conserva el payload original para exponerlo tal cual en la API.
type EvalSeries struct {
	MarketID string
	ModelIdx int
	Records  []EvalRecord
	Raw      json.RawMessage
}

// Average devuelve la media del aggregate. Valores no finitos cuentan como 0;
// una serie vacía tiene media 0.
func (s EvalSeries) Average() float64 {
	if len(s.Records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range s.Records {
		sum += finiteOrZero(r.Aggregate)
	}
	return sum / float64(len(s.Records))
}

// Scores devuelve los aggregates saneados, en el orden original.
func (s EvalSeries) Scores() []float64 {
	out := make([]float64, len(s.Records))
	for i, r := range s.Records {
		out[i] = finiteOrZero(r.Aggregate)
	}
	return out
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// EntryPrice es el precio de un slot en un punto del chart.
type EntryPrice struct {
	EntryIdx int
	Price    float64
}

// ChartPoint es un snapshot de precios del mercado.
type ChartPoint struct {
	Timestamp string
	Entries   []EntryPrice
}

// Chart es la serie de precios de un mercado.
type Chart struct {
	MarketID  string
	Timeframe string
	Points    []ChartPoint
	Raw       json.RawMessage // objeto market_chart original
}

// Latest devuelve el punto más reciente (el último de la serie).
func (c Chart) Latest() (ChartPoint, bool) {
	if len(c.Points) == 0 {
		return ChartPoint{}, false
	}
	return c.Points[len(c.Points)-1], true
}

// TopEntry devuelve el slot con el precio más alto en el último snapshot.
// En empate gana el primero encontrado.
func (c Chart) TopEntry() (EntryPrice, bool) {
	p, ok := c.Latest()
	if !ok || len(p.Entries) == 0 {
		return EntryPrice{}, false
	}
	best := p.Entries[0]
	for _, e := range p.Entries[1:] {
		if e.Price > best.Price {
			best = e
		}
	}
	return best, true
}
