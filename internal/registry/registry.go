package registry

// registry.go — tabla declarativa de mercados conocidos + estado que solo crece.
//
// La parte estática (mercados, entry maps, ganadores confirmados) se carga una vez
// desde markets.yaml y no se muta. La parte dinámica es monótona:
//   - ghosts: ids "ongoing" sin evaluaciones; una vez dentro, no salen.
//   - discovered: entry maps descubiertos por probing, para no repetir el probe.

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/alejandrodnm/delphibot/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed markets.yaml
var defaultDocument []byte

// document es el formato YAML del registro.
type document struct {
	Version int           `yaml:"version"`
	Ghosts  []string      `yaml:"ghost_markets"`
	Markets []marketEntry `yaml:"markets"`
}

type marketEntry struct {
	ID              string         `yaml:"id"`
	Order           int            `yaml:"order"`
	Name            string         `yaml:"name"`
	CloseDate       string         `yaml:"close_date"`
	ConfirmedWinner string         `yaml:"confirmed_winner"`
	Entries         map[int]string `yaml:"entries"`
}

// Registry es el registro de mercados. Seguro para uso concurrente.
type Registry struct {
	version int
	markets []domain.MarketConfig // ordenados por DisplayOrder ascendente
	byID    map[string]domain.MarketConfig

	mu         sync.RWMutex
	ghosts     map[string]struct{}
	discovered map[string]domain.EntryMap
}

// Load carga el registro desde path, o el documento embebido si path está vacío.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Parse(defaultDocument)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse construye un Registry a partir de un documento YAML.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("registry.Parse: %w", err)
	}

	r := &Registry{
		version:    doc.Version,
		byID:       make(map[string]domain.MarketConfig, len(doc.Markets)),
		ghosts:     make(map[string]struct{}, len(doc.Ghosts)),
		discovered: make(map[string]domain.EntryMap),
	}

	for _, m := range doc.Markets {
		if m.ID == "" {
			return nil, fmt.Errorf("registry.Parse: market %q without id", m.Name)
		}
		if _, dup := r.byID[m.ID]; dup {
			return nil, fmt.Errorf("registry.Parse: duplicate market id %q", m.ID)
		}
		entries := make(domain.EntryMap, len(m.Entries))
		for idx, name := range m.Entries {
			if idx < 0 {
				return nil, fmt.Errorf("registry.Parse: market %q: negative entry index %d", m.ID, idx)
			}
			entries[idx] = name
		}
		cfg := domain.MarketConfig{
			ID:              m.ID,
			DisplayOrder:    m.Order,
			Name:            m.Name,
			CloseDate:       m.CloseDate,
			ConfirmedWinner: m.ConfirmedWinner,
			Entries:         entries,
		}
		r.byID[m.ID] = cfg
		r.markets = append(r.markets, cfg)
	}

	sort.SliceStable(r.markets, func(i, j int) bool {
		return r.markets[i].DisplayOrder < r.markets[j].DisplayOrder
	})

	for _, id := range doc.Ghosts {
		r.ghosts[id] = struct{}{}
	}
	return r, nil
}

// Version devuelve la versión del documento cargado.
func (r *Registry) Version() int { return r.version }

// Market busca un mercado conocido por id.
func (r *Registry) Market(id string) (domain.MarketConfig, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Markets devuelve todos los mercados, del más antiguo al más nuevo.
func (r *Registry) Markets() []domain.MarketConfig {
	out := make([]domain.MarketConfig, len(r.markets))
	copy(out, r.markets)
	return out
}

// Settled devuelve los mercados con ganador confirmado, del más antiguo al más nuevo.
func (r *Registry) Settled() []domain.MarketConfig {
	var out []domain.MarketConfig
	for _, m := range r.markets {
		if m.IsSettled() {
			out = append(out, m)
		}
	}
	return out
}

// LatestSettled devuelve el mercado liquidado con mayor DisplayOrder.
func (r *Registry) LatestSettled() (domain.MarketConfig, bool) {
	settled := r.Settled()
	if len(settled) == 0 {
		return domain.MarketConfig{}, false
	}
	return settled[len(settled)-1], true
}

// IsGhost devuelve true si el id ya fue clasificado como fantasma.
func (r *Registry) IsGhost(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ghosts[id]
	return ok
}

// MarkGhost añade el id al set de fantasmas. Devuelve true si es nuevo.
func (r *Registry) MarkGhost(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ghosts[id]; ok {
		return false
	}
	r.ghosts[id] = struct{}{}
	return true
}

// Ghosts devuelve los ids fantasma ordenados.
func (r *Registry) Ghosts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ghosts))
	for id := range r.ghosts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RememberEntryMap guarda un entry map descubierto por probing.
func (r *Registry) RememberEntryMap(id string, m domain.EntryMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered[id] = m.Clone()
}

// DiscoveredEntryMap devuelve un entry map descubierto previamente.
func (r *Registry) DiscoveredEntryMap(id string) (domain.EntryMap, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.discovered[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}
