package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamesMatch(t *testing.T) {
	assert.True(t, NamesMatch("Qwen2.5-7B", "  qwen2.5-7b "))
	assert.True(t, NamesMatch("Llama  3.1   8B", "llama 3.1 8b"))
	assert.False(t, NamesMatch("qwen2.5-7b", "qwen2.5-7b-instruct"))
	assert.False(t, NamesMatch("", ""))
	assert.False(t, NamesMatch("X", WinnerUndetermined))
}

func TestWinnerResolution_Determined(t *testing.T) {
	assert.False(t, Undetermined().Determined())
	assert.True(t, WinnerResolution{Winner: "X", Source: SourceChartTop}.Determined())
}

func TestChart_TopEntryUsesLatestPoint(t *testing.T) {
	c := Chart{Points: []ChartPoint{
		{Entries: []EntryPrice{{EntryIdx: 0, Price: 0.9}, {EntryIdx: 1, Price: 0.1}}},
		{Entries: []EntryPrice{{EntryIdx: 0, Price: 0.3}, {EntryIdx: 1, Price: 0.6}, {EntryIdx: 2, Price: 0.6}}},
	}}

	top, ok := c.TopEntry()
	assert.True(t, ok)
	assert.Equal(t, 1, top.EntryIdx)

	_, ok = Chart{}.TopEntry()
	assert.False(t, ok)
}

func TestClassifySignal(t *testing.T) {
	assert.Equal(t, SignalBuy, ClassifySignal(20, 30, 5))
	assert.Equal(t, SignalOvervalued, ClassifySignal(40, 30, 5))
	assert.Equal(t, SignalHold, ClassifySignal(33, 30, 5))
	assert.InDelta(t, 42.0, PricePercent(0.42), 1e-9)
	assert.InDelta(t, 42.0, PricePercent(42), 1e-9)
}

func TestEntryMap_NameFallsBackToPlaceholder(t *testing.T) {
	m := EntryMap{0: "X"}
	assert.Equal(t, "X", m.Name(0))
	assert.Equal(t, "Entry #3", m.Name(3))
	assert.Equal(t, []int{0}, m.Indices())
}
