package dashboard

// service.go — orquesta detector, engine y resolver detrás de los cuatro slots de caché.
//
// Slot          TTL   Key
// live-market   60s   ""                      (se refresca solo)
// chart         5s    marketID|timeframe      (cambiar de mercado activo cambia la key)
// human-belief  8s    marketID activo
// historical    30s   ""                      (los mercados liquidados no cambian)

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/delphibot/internal/analysis"
	"github.com/alejandrodnm/delphibot/internal/cache"
	"github.com/alejandrodnm/delphibot/internal/detector"
	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/alejandrodnm/delphibot/internal/ports"
	"github.com/alejandrodnm/delphibot/internal/prediction"
	"github.com/alejandrodnm/delphibot/internal/registry"
	"github.com/alejandrodnm/delphibot/internal/resolver"
)

// Config contiene los TTLs y el umbral de señal.
type Config struct {
	ChartTTL       time.Duration
	HumanBeliefTTL time.Duration
	HistoricalTTL  time.Duration
	LiveMarketTTL  time.Duration
	GapThreshold   float64       // puntos porcentuales
	BeliefDeadline time.Duration // tope de cada llamada upstream del human belief fuera de las evals
}

// DefaultConfig devuelve los TTLs de producción.
func DefaultConfig() Config {
	return Config{
		ChartTTL:       5 * time.Second,
		HumanBeliefTTL: 8 * time.Second,
		HistoricalTTL:  30 * time.Second,
		LiveMarketTTL:  60 * time.Second,
		GapThreshold:   5,
		BeliefDeadline: 9 * time.Second,
	}
}

// Deps son las dependencias del servicio.
type Deps struct {
	Registry     *registry.Registry
	Detector     *detector.Detector
	Charts       ports.ChartFetcher
	BeliefEngine *prediction.Engine // con deadline por request
	Analyzer     *analysis.Analyzer
	Resolver     *resolver.Resolver // ganador del mercado actual; nil = sin resolución
	Clock        cache.Clock
	Observer     cache.Observer
}

// Service expone los datos que sirve la API.
type Service struct {
	cfg      Config
	registry *registry.Registry
	detector *detector.Detector
	charts   ports.ChartFetcher
	engine   *prediction.Engine
	analyzer *analysis.Analyzer
	resolver *resolver.Resolver
	clock    cache.Clock

	live       *cache.Slot[domain.LiveMarket]
	chart      *cache.Slot[domain.Chart]
	belief     *cache.Slot[HumanBelief]
	historical *cache.Slot[analysis.Report]
}

// New crea el Service con sus cuatro slots.
func New(cfg Config, deps Deps) *Service {
	def := DefaultConfig()
	if cfg.ChartTTL <= 0 {
		cfg.ChartTTL = def.ChartTTL
	}
	if cfg.HumanBeliefTTL <= 0 {
		cfg.HumanBeliefTTL = def.HumanBeliefTTL
	}
	if cfg.HistoricalTTL <= 0 {
		cfg.HistoricalTTL = def.HistoricalTTL
	}
	if cfg.LiveMarketTTL <= 0 {
		cfg.LiveMarketTTL = def.LiveMarketTTL
	}
	if cfg.GapThreshold <= 0 {
		cfg.GapThreshold = def.GapThreshold
	}
	if cfg.BeliefDeadline <= 0 {
		cfg.BeliefDeadline = def.BeliefDeadline
	}
	clock := deps.Clock
	if clock == nil {
		clock = cache.SystemClock
	}

	return &Service{
		cfg:      cfg,
		registry: deps.Registry,
		detector: deps.Detector,
		charts:   deps.Charts,
		engine:   deps.BeliefEngine,
		analyzer: deps.Analyzer,
		resolver: deps.Resolver,
		clock:    clock,

		live:       cache.NewSlot[domain.LiveMarket]("live_market", cfg.LiveMarketTTL, clock, deps.Observer),
		chart:      cache.NewSlot[domain.Chart]("chart", cfg.ChartTTL, clock, deps.Observer),
		belief:     cache.NewSlot[HumanBelief]("human_belief", cfg.HumanBeliefTTL, clock, deps.Observer),
		historical: cache.NewSlot[analysis.Report]("historical", cfg.HistoricalTTL, clock, deps.Observer),
	}
}

// LiveMarket devuelve el mercado actual, cacheado 60s.
func (s *Service) LiveMarket(ctx context.Context) (domain.LiveMarket, error) {
	e, err := s.live.GetOrLoad(ctx, "", s.detector.Detect)
	if err != nil {
		return domain.LiveMarket{}, fmt.Errorf("dashboard.LiveMarket: %w", err)
	}
	return e.Value, nil
}

// Fuentes del entry map devuelto por EntryMap.
const (
	MapSourceRegistry   = "registry"
	MapSourceDiscovered = "discovered"
	MapSourceProbe      = "probe"
)

// EntryMapView es un entry map con su procedencia.
type EntryMapView struct {
	MarketID string
	Entries  domain.EntryMap
	Source   string
}

// EntryMap resuelve el entry map de marketID (vacío = mercado actual):
// registro, luego memo de descubrimientos y por último probing.
func (s *Service) EntryMap(ctx context.Context, marketID string) (EntryMapView, error) {
	if marketID == "" {
		live, err := s.LiveMarket(ctx)
		if err != nil {
			return EntryMapView{}, err
		}
		source := MapSourceRegistry
		if !live.IsKnown {
			source = MapSourceDiscovered
		}
		return EntryMapView{MarketID: live.MarketID, Entries: live.Entries, Source: source}, nil
	}

	if m, ok := s.registry.Market(marketID); ok {
		return EntryMapView{MarketID: marketID, Entries: m.Entries.Clone(), Source: MapSourceRegistry}, nil
	}
	if m, ok := s.registry.DiscoveredEntryMap(marketID); ok {
		return EntryMapView{MarketID: marketID, Entries: m, Source: MapSourceDiscovered}, nil
	}
	return EntryMapView{MarketID: marketID, Entries: s.detector.EntryMap(ctx, marketID), Source: MapSourceProbe}, nil
}

// Chart devuelve el chart de marketID (vacío = mercado actual), cacheado 5s.
func (s *Service) Chart(ctx context.Context, marketID, timeframe string) (domain.Chart, error) {
	if timeframe == "" {
		timeframe = "auto"
	}
	if marketID == "" {
		live, err := s.LiveMarket(ctx)
		if err != nil {
			return domain.Chart{}, err
		}
		marketID = live.MarketID
	}

	return s.loadChart(ctx, marketID, timeframe, 0)
}

// loadChart pasa por el slot del chart. Con deadline > 0 tanto la espera como el
// fetch upstream quedan acotados por él.
func (s *Service) loadChart(ctx context.Context, marketID, timeframe string, deadline time.Duration) (domain.Chart, error) {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	key := marketID + "|" + timeframe
	e, err := s.chart.GetOrLoad(ctx, key, func(ctx context.Context) (domain.Chart, error) {
		if deadline > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, deadline)
			defer cancel()
		}
		return s.charts.FetchChart(ctx, marketID, timeframe)
	})
	if err != nil {
		return domain.Chart{}, fmt.Errorf("dashboard.Chart: %w", err)
	}
	return e.Value, nil
}

// Historical devuelve el análisis de mercados liquidados, cacheado 30s.
func (s *Service) Historical(ctx context.Context) (analysis.Report, error) {
	e, err := s.historical.GetOrLoad(ctx, "", func(ctx context.Context) (analysis.Report, error) {
		return s.analyzer.Run(ctx), nil
	})
	if err != nil {
		return analysis.Report{}, fmt.Errorf("dashboard.Historical: %w", err)
	}
	return e.Value, nil
}

// Ghosts devuelve los mercados fantasma conocidos.
func (s *Service) Ghosts() []string {
	return s.registry.Ghosts()
}
