package detector_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/delphibot/internal/detector"
	"github.com/alejandrodnm/delphibot/internal/domain"
	"github.com/alejandrodnm/delphibot/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRegistry = `
version: 1
markets:
  - id: "1"
    order: 1
    name: "Old"
    confirmed_winner: "A"
    entries: {0: "A", 1: "B"}
  - id: "2"
    order: 2
    name: "Newest settled"
    confirmed_winner: "C"
    entries: {0: "C", 1: "D"}
  - id: "30"
    order: 3
    name: "Known live"
    entries: {0: "E", 1: "F"}
`

// fakeUpstream responde con mercados y evaluaciones en memoria y cuenta los probes.
type fakeUpstream struct {
	mu       sync.Mutex
	markets  []domain.UpstreamMarket
	listErr  error
	evals    map[string]map[int]int // market → idx → número de evaluaciones
	failing  map[string]bool
	probes   map[string]int
	idxCalls map[string][]int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		evals:    make(map[string]map[int]int),
		failing:  make(map[string]bool),
		probes:   make(map[string]int),
		idxCalls: make(map[string][]int),
	}
}

func (f *fakeUpstream) ListMarkets(_ context.Context, _ domain.MarketStatus, limit int) ([]domain.UpstreamMarket, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.markets) > limit {
		return f.markets[:limit], nil
	}
	return f.markets, nil
}

func (f *fakeUpstream) FetchEvals(_ context.Context, marketID string, idx int) (domain.EvalSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes[marketID]++
	f.idxCalls[marketID] = append(f.idxCalls[marketID], idx)
	if f.failing[marketID] {
		return domain.EvalSeries{}, errors.New("connection reset")
	}
	s := domain.EvalSeries{MarketID: marketID, ModelIdx: idx}
	for i := 0; i < f.evals[marketID][idx]; i++ {
		s.Records = append(s.Records, domain.EvalRecord{Aggregate: 50})
	}
	return s, nil
}

func (f *fakeUpstream) probeCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes[id]
}

func market(id string, created int64) domain.UpstreamMarket {
	return domain.UpstreamMarket{
		ID:        id,
		Name:      fmt.Sprintf("Upstream %s", id),
		Status:    domain.StatusOngoing,
		CreatedAt: time.Unix(created, 0),
	}
}

func newDetector(t *testing.T, up *fakeUpstream) (*detector.Detector, *registry.Registry) {
	t.Helper()
	reg, err := registry.Parse([]byte(testRegistry))
	require.NoError(t, err)
	return detector.New(detector.DefaultConfig(), up, up, reg), reg
}

func TestDetect_KnownLiveMarket(t *testing.T) {
	up := newFakeUpstream()
	up.markets = []domain.UpstreamMarket{market("30", 100)}
	up.evals["30"] = map[int]int{0: 3}

	d, _ := newDetector(t, up)
	live, err := d.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "30", live.MarketID)
	assert.Equal(t, "Known live", live.MarketName)
	assert.True(t, live.IsKnown)
	assert.True(t, live.IsLive())
	assert.Equal(t, domain.EntryMap{0: "E", 1: "F"}, live.Entries)
}

func TestDetect_NewestFirstAndGhostsNeverReprobed(t *testing.T) {
	up := newFakeUpstream()
	// 40 es el más nuevo pero no tiene datos; 30 es válido
	up.markets = []domain.UpstreamMarket{market("30", 100), market("40", 200)}
	up.evals["30"] = map[int]int{0: 1}

	d, reg := newDetector(t, up)

	first, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "30", first.MarketID)
	assert.True(t, reg.IsGhost("40"))
	assert.Equal(t, 1, up.probeCount("40"))

	second, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, up.probeCount("40"), "ghost must not be probed again")
}

func TestDetect_SeededGhostSkipped(t *testing.T) {
	up := newFakeUpstream()
	up.markets = []domain.UpstreamMarket{market("30", 100)}
	up.evals["30"] = map[int]int{0: 1}

	d, reg := newDetector(t, up)
	reg.MarkGhost("30")

	live, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", live.MarketID)
	assert.Equal(t, 0, up.probeCount("30"))
}

func TestDetect_UnknownMarketDiscoversEntryMap(t *testing.T) {
	up := newFakeUpstream()
	up.markets = []domain.UpstreamMarket{market("77", 100)}
	up.evals["77"] = map[int]int{0: 2, 1: 1, 3: 4}

	d, reg := newDetector(t, up)
	live, err := d.Detect(context.Background())
	require.NoError(t, err)

	assert.False(t, live.IsKnown)
	assert.Equal(t, "Upstream 77", live.MarketName)
	assert.Equal(t, domain.EntryMap{0: "Entry #0", 1: "Entry #1", 3: "Entry #3"}, live.Entries)

	remembered, ok := reg.DiscoveredEntryMap("77")
	require.True(t, ok)
	assert.Equal(t, live.Entries, remembered)

	// 1 probe de validación + 10 de descubrimiento
	assert.Equal(t, 11, up.probeCount("77"))

	_, err = d.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, up.probeCount("77"), "discovered map is reused")
}

func TestDetect_AllGhostsFallsBackToLatestSettled(t *testing.T) {
	up := newFakeUpstream()
	up.markets = []domain.UpstreamMarket{market("40", 200), market("41", 100)}

	d, reg := newDetector(t, up)
	live, err := d.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2", live.MarketID)
	assert.Equal(t, domain.StatusClosed, live.Status)
	assert.False(t, live.IsLive())
	assert.True(t, reg.IsGhost("40"))
	assert.True(t, reg.IsGhost("41"))
}

func TestDetect_UpstreamOutageFallsBack(t *testing.T) {
	up := newFakeUpstream()
	up.listErr = errors.New("dial tcp: no such host")

	d, _ := newDetector(t, up)
	live, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", live.MarketID)
	assert.Equal(t, domain.StatusClosed, live.Status)
}

func TestDetect_ProbeFailureIsNotGhost(t *testing.T) {
	up := newFakeUpstream()
	up.markets = []domain.UpstreamMarket{market("50", 100)}
	up.failing["50"] = true

	d, reg := newDetector(t, up)
	live, err := d.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2", live.MarketID)
	assert.False(t, reg.IsGhost("50"))
}

func TestDetect_EmptyRegistryNoCandidates(t *testing.T) {
	reg, err := registry.Parse([]byte(`version: 1`))
	require.NoError(t, err)

	d := detector.New(detector.DefaultConfig(), newFakeUpstream(), newFakeUpstream(), reg)
	_, err = d.Detect(context.Background())
	assert.ErrorIs(t, err, detector.ErrNoMarket)
}

func TestDiscover_RespectsCeiling(t *testing.T) {
	up := newFakeUpstream()
	up.evals["9"] = map[int]int{0: 1, 4: 1, 12: 1}

	reg, err := registry.Parse([]byte(testRegistry))
	require.NoError(t, err)
	d := detector.New(detector.Config{ProbeCeiling: 5}, up, up, reg)

	m := d.Discover(context.Background(), "9")
	assert.Equal(t, domain.EntryMap{0: "Entry #0", 4: "Entry #4"}, m)
	assert.Equal(t, 5, up.probeCount("9"))
}

func TestEntryMap_EmptyResultRememberedBriefly(t *testing.T) {
	up := newFakeUpstream()
	reg, err := registry.Parse([]byte(testRegistry))
	require.NoError(t, err)

	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	cfg := detector.DefaultConfig()
	cfg.EmptyMapTTL = 30 * time.Second
	cfg.Now = func() time.Time { return now }
	d := detector.New(cfg, up, up, reg)

	ctx := context.Background()
	assert.Empty(t, d.EntryMap(ctx, "404"))
	assert.Equal(t, 10, up.probeCount("404"))

	now = now.Add(10 * time.Second)
	assert.Empty(t, d.EntryMap(ctx, "404"))
	assert.Equal(t, 10, up.probeCount("404"), "empty map reused within TTL")

	// aparecen datos y vence la ventana
	up.mu.Lock()
	up.evals["404"] = map[int]int{2: 1}
	up.mu.Unlock()
	now = now.Add(30 * time.Second)
	assert.Equal(t, domain.EntryMap{2: "Entry #2"}, d.EntryMap(ctx, "404"))
	assert.Equal(t, 20, up.probeCount("404"))
}
