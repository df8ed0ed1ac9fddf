package domain

import "strings"

// WinnerUndetermined es el centinela cuando ningún tier resuelve el ganador.
const WinnerUndetermined = "TBD"

// WinnerSource indica qué tier de resolución produjo el ganador.
type WinnerSource string

const (
	SourceConfirmed   WinnerSource = "confirmed_config"
	SourceMarketField WinnerSource = "upstream_field"
	SourceChartTop    WinnerSource = "chart_top_price"
	SourceUnavailable WinnerSource = "unavailable"
)

// WinnerResolution es el resultado real de un mercado y su procedencia.
type WinnerResolution struct {
	Winner string
	Source WinnerSource
}

// Determined devuelve true si hay un ganador real.
func (w WinnerResolution) Determined() bool {
	return w.Source != SourceUnavailable && w.Winner != "" && w.Winner != WinnerUndetermined
}

// Undetermined construye la resolución del último tier.
func Undetermined() WinnerResolution {
	return WinnerResolution{Winner: WinnerUndetermined, Source: SourceUnavailable}
}

// NormalizeName recorta, pasa a minúsculas y colapsa espacios.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NamesMatch compara dos nombres de modelo con igualdad estricta tras normalizar.
// No usa contains: "qwen2.5-7b" y "qwen2.5-7b-instruct" son modelos distintos.
func NamesMatch(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}
