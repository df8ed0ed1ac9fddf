package domain

import "sort"

// ModelStats resume las evaluaciones de un modelo dentro de un mercado.
type ModelStats struct {
	EntryIdx  int
	Name      string
	Average   float64
	EvalCount int
	Scores    []float64
}

// Ranking es una fila del ranking por score medio, con los scores crudos para drill-down.
type Ranking struct {
	Rank      int       `json:"rank"`
	EntryIdx  int       `json:"entry_idx"`
	Model     string    `json:"model"`
	Average   float64   `json:"avg_score"`
	Belief    float64   `json:"belief"`
	EvalCount int       `json:"eval_count"`
	Scores    []float64 `json:"scores"`
}

// Prediction es la salida del pipeline de belief para un mercado.
type Prediction struct {
	PerModel        []ModelStats
	Beliefs         map[string]float64 // modelo → porcentaje [0,100]
	PredictedWinner string             // vacío si ningún modelo tiene señal
	TopBelief       float64
	MaxEvalCount    int
	Rankings        []Ranking
}

// HasWinner devuelve true si hay un ganador predicho.
func (p Prediction) HasWinner() bool {
	return p.PredictedWinner != ""
}

// BuildModelStats calcula las estadísticas por modelo en orden de índice.
// Un índice sin serie se trata como serie vacía (media 0).
func BuildModelStats(entries EntryMap, series map[int]EvalSeries) []ModelStats {
	stats := make([]ModelStats, 0, len(entries))
	for _, idx := range entries.Indices() {
		s := series[idx]
		stats = append(stats, ModelStats{
			EntryIdx:  idx,
			Name:      entries.Name(idx),
			Average:   s.Average(),
			EvalCount: len(s.Records),
			Scores:    s.Scores(),
		})
	}
	return stats
}

// ComputeBeliefs normaliza las medias a porcentajes que suman 100.
//
// Las medias negativas cuentan como 0, así cada belief queda en [0, 100].
// Si el total es 0 devuelve un mapa vacío y ningún ganador. El ganador es el
// modelo con belief estrictamente mayor recorriendo stats en orden de índice,
// así que en empate gana el índice más bajo.
func ComputeBeliefs(stats []ModelStats) (beliefs map[string]float64, winner string, top float64) {
	beliefs = make(map[string]float64)

	var total float64
	for _, s := range stats {
		total += max(s.Average, 0)
	}
	if total <= 0 {
		return beliefs, "", 0
	}

	for _, s := range stats {
		b := max(s.Average, 0) / total * 100
		beliefs[s.Name] += b
		if b > top {
			top = b
			winner = s.Name
		}
	}
	return beliefs, winner, top
}

// RankByAverage ordena los modelos por score medio descendente.
// El sort es estable: en empate se mantiene el orden de índice.
func RankByAverage(stats []ModelStats, beliefs map[string]float64) []Ranking {
	sorted := make([]ModelStats, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Average > sorted[j].Average
	})

	rankings := make([]Ranking, len(sorted))
	for i, s := range sorted {
		rankings[i] = Ranking{
			Rank:      i + 1,
			EntryIdx:  s.EntryIdx,
			Model:     s.Name,
			Average:   s.Average,
			Belief:    beliefs[s.Name],
			EvalCount: s.EvalCount,
			Scores:    s.Scores,
		}
	}
	return rankings
}

// ComputePrediction encadena stats → beliefs → ranking.
func ComputePrediction(entries EntryMap, series map[int]EvalSeries) Prediction {
	stats := BuildModelStats(entries, series)
	beliefs, winner, top := ComputeBeliefs(stats)

	maxEvals := 0
	for _, s := range stats {
		maxEvals = max(maxEvals, s.EvalCount)
	}

	return Prediction{
		PerModel:        stats,
		Beliefs:         beliefs,
		PredictedWinner: winner,
		TopBelief:       top,
		MaxEvalCount:    maxEvals,
		Rankings:        RankByAverage(stats, beliefs),
	}
}
