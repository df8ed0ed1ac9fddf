package detector

// detector.go — decide cuál es el mercado "actual".
//
// Delphi marca como ongoing mercados que nunca recibieron evaluaciones (fantasmas).
// Un candidato solo se acepta si el slot 0 tiene al menos una evaluación; si no,
// se registra como fantasma para el resto de la vida del proceso y no se vuelve
// a sondear. Si nada valida, se cae al último mercado liquidado del registro.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/alejandrodnm/delphibot/internal/ports"
	"github.com/alejandrodnm/delphibot/internal/registry"
	"golang.org/x/sync/errgroup"
)

const (
	defaultOngoingLimit = 10
	defaultProbeCeiling = 10 // índices 0..9
	defaultEmptyMapTTL  = 30 * time.Second
)

// ErrNoMarket se devuelve solo si no hay candidato vivo ni mercado liquidado en el registro.
var ErrNoMarket = errors.New("no live market and no settled fallback")

// Config controla la detección.
type Config struct {
	OngoingLimit int // máximo de mercados ongoing a pedir
	ProbeCeiling int // número de índices a sondear al descubrir un entry map

	// EmptyMapTTL es cuánto se recuerda que un mercado no tiene entradas antes de volver a sondearlo.
	EmptyMapTTL time.Duration
	Now         func() time.Time // nil = time.Now
}

// DefaultConfig devuelve los valores de producción.
func DefaultConfig() Config {
	return Config{OngoingLimit: defaultOngoingLimit, ProbeCeiling: defaultProbeCeiling, EmptyMapTTL: defaultEmptyMapTTL}
}

// Detector implementa la detección del mercado vivo.
type Detector struct {
	cfg      Config
	markets  ports.MarketLister
	evals    ports.EvalFetcher
	registry *registry.Registry

	mu    sync.Mutex
	empty map[string]time.Time // market → cuándo se descubrió vacío
}

// New crea un Detector.
func New(cfg Config, markets ports.MarketLister, evals ports.EvalFetcher, reg *registry.Registry) *Detector {
	if cfg.OngoingLimit <= 0 {
		cfg.OngoingLimit = defaultOngoingLimit
	}
	if cfg.ProbeCeiling <= 0 {
		cfg.ProbeCeiling = defaultProbeCeiling
	}
	if cfg.EmptyMapTTL <= 0 {
		cfg.EmptyMapTTL = defaultEmptyMapTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Detector{cfg: cfg, markets: markets, evals: evals, registry: reg, empty: make(map[string]time.Time)}
}

// Detect devuelve el mercado actual. Los fallos de upstream nunca son fatales:
// en el peor caso se devuelve el último mercado liquidado conocido.
//
// Solo un probe del slot 0 que responde sin evaluaciones marca el mercado como
// fantasma. Un probe que falla (transporte, timeout, status no-2xx) descarta el
// candidato en este ciclo pero no lo marca: se vuelve a sondear en el siguiente.
func (d *Detector) Detect(ctx context.Context) (domain.LiveMarket, error) {
	candidates, err := d.markets.ListMarkets(ctx, domain.StatusOngoing, d.cfg.OngoingLimit)
	if err != nil {
		slog.Warn("ongoing markets unavailable, using settled fallback", "err", err)
		return d.fallback()
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	for _, c := range candidates {
		if d.registry.IsGhost(c.ID) {
			continue
		}

		hasData, err := d.probe(ctx, c.ID, 0)
		if err != nil {
			// un fallo de transporte no prueba que el mercado esté vacío
			slog.Debug("probe failed, skipping candidate this cycle", "market_id", c.ID, "err", err)
			continue
		}
		if !hasData {
			if d.registry.MarkGhost(c.ID) {
				slog.Info("ghost market detected", "market_id", c.ID, "market_name", c.Name)
			}
			continue
		}

		return d.accept(ctx, c), nil
	}

	return d.fallback()
}

// accept construye el resultado para un candidato validado.
func (d *Detector) accept(ctx context.Context, c domain.UpstreamMarket) domain.LiveMarket {
	if cfg, ok := d.registry.Market(c.ID); ok {
		return domain.LiveMarket{
			MarketID:   c.ID,
			MarketName: cfg.Name,
			Status:     domain.StatusOngoing,
			Entries:    cfg.Entries.Clone(),
			IsKnown:    true,
		}
	}

	name := c.Name
	if name == "" {
		name = fmt.Sprintf("Market %s", c.ID)
	}
	return domain.LiveMarket{
		MarketID:   c.ID,
		MarketName: name,
		Status:     domain.StatusOngoing,
		Entries:    d.EntryMap(ctx, c.ID),
		IsKnown:    false,
	}
}

// EntryMap devuelve el entry map de un mercado desconocido: primero el memo del
// registro y, si no existe, lo descubre sondeando y lo memoriza. Un resultado
// vacío se recuerda durante EmptyMapTTL para no repetir los probes en cada llamada.
func (d *Detector) EntryMap(ctx context.Context, marketID string) domain.EntryMap {
	if m, ok := d.registry.DiscoveredEntryMap(marketID); ok {
		return m
	}
	if d.recentlyEmpty(marketID) {
		return domain.EntryMap{}
	}

	m := d.Discover(ctx, marketID)
	if len(m) > 0 {
		d.registry.RememberEntryMap(marketID, m)
		return m
	}

	d.mu.Lock()
	d.empty[marketID] = d.cfg.Now()
	d.mu.Unlock()
	return m
}

func (d *Detector) recentlyEmpty(marketID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	at, ok := d.empty[marketID]
	if !ok {
		return false
	}
	if d.cfg.Now().Sub(at) >= d.cfg.EmptyMapTTL {
		delete(d.empty, marketID)
		return false
	}
	return true
}

// Discover sondea en paralelo los índices 0..ProbeCeiling-1. Cada índice con al
// menos una evaluación entra al mapa con nombre placeholder.
func (d *Detector) Discover(ctx context.Context, marketID string) domain.EntryMap {
	var (
		mu    sync.Mutex
		found = make(domain.EntryMap)
		g     errgroup.Group
	)
	for idx := 0; idx < d.cfg.ProbeCeiling; idx++ {
		idx := idx
		g.Go(func() error {
			hasData, err := d.probe(ctx, marketID, idx)
			if err != nil || !hasData {
				return nil
			}
			mu.Lock()
			found[idx] = domain.PlaceholderName(idx)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slog.Debug("entry map discovered", "market_id", marketID, "entries", len(found))
	return found
}

func (d *Detector) probe(ctx context.Context, marketID string, idx int) (bool, error) {
	s, err := d.evals.FetchEvals(ctx, marketID, idx)
	if err != nil {
		return false, err
	}
	return len(s.Records) > 0, nil
}

// fallback devuelve el mercado liquidado más reciente del registro.
func (d *Detector) fallback() (domain.LiveMarket, error) {
	m, ok := d.registry.LatestSettled()
	if !ok {
		return domain.LiveMarket{}, ErrNoMarket
	}
	return domain.LiveMarket{
		MarketID:   m.ID,
		MarketName: m.Name,
		Status:     domain.StatusClosed,
		Entries:    m.Entries.Clone(),
		IsKnown:    true,
	}, nil
}
