package domain

import (
	"fmt"
	"sort"
	"time"
)

// MarketStatus es el estado de un mercado tal y como lo expone Delphi.
type MarketStatus string

const (
	StatusOngoing MarketStatus = "ongoing"
	StatusClosed  MarketStatus = "closed"
)

// EntryMap asocia el índice local de un mercado (0, 1, 2...) con el modelo que ocupa ese slot.
type EntryMap map[int]string

// Indices devuelve los índices del mapa en orden ascendente.
// El orden importa: el desempate de la predicción usa el primer índice encontrado.
func (m EntryMap) Indices() []int {
	idx := make([]int, 0, len(m))
	for i := range m {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Name devuelve el modelo en el índice dado, o un placeholder "Entry #N" si no está mapeado.
func (m EntryMap) Name(idx int) string {
	if name, ok := m[idx]; ok && name != "" {
		return name
	}
	return PlaceholderName(idx)
}

// Names devuelve los nombres de modelo en orden de índice.
func (m EntryMap) Names() []string {
	names := make([]string, 0, len(m))
	for _, i := range m.Indices() {
		names = append(names, m[i])
	}
	return names
}

// Clone devuelve una copia independiente del mapa.
func (m EntryMap) Clone() EntryMap {
	out := make(EntryMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PlaceholderName es el nombre que recibe un slot descubierto por probing.
func PlaceholderName(idx int) string {
	return fmt.Sprintf("Entry #%d", idx)
}

// MarketConfig es la definición estática de un mercado conocido. Nunca se muta en runtime.
type MarketConfig struct {
	ID              string
	DisplayOrder    int
	Name            string
	CloseDate       string // vacío o "Live" para mercados en curso
	ConfirmedWinner string // solo en mercados liquidados
	Entries         EntryMap
}

// IsSettled devuelve true si el mercado tiene un ganador confirmado.
func (m MarketConfig) IsSettled() bool {
	return m.ConfirmedWinner != ""
}

// UpstreamMarket es un item de GET /markets.
type UpstreamMarket struct {
	ID        string
	Name      string
	Status    MarketStatus
	CreatedAt time.Time
}

// LiveMarket es el resultado de la detección del mercado actual.
type LiveMarket struct {
	MarketID   string
	MarketName string
	Status     MarketStatus
	Entries    EntryMap
	IsKnown    bool
}

// IsLive devuelve true si el mercado detectado sigue en curso.
func (l LiveMarket) IsLive() bool {
	return l.Status == StatusOngoing
}
