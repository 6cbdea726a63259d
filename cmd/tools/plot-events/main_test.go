package main

import (
	"testing"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSinceTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSinceTime("30m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-30*time.Minute), got)

	got, err = parseSinceTime("2024-04-30T10:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 30, 10, 0, 0, 0, time.UTC), got)

	got, err = parseSinceTime("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "пустое значение снимает ограничение по времени")

	_, err = parseSinceTime("вчера", now)
	assert.Error(t, err)
}

func TestParseStringList(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"plot.cleared", "plot.trusted"}, parseStringList(" plot.cleared, ,plot.trusted "))
}

func TestTailOptionsFilter(t *testing.T) {
	now := time.Now().UTC()
	ev, err := eventbus.NewEnvelope(eventbus.TypePlotCleared, eventbus.PlotCleared{World: "plots", Plot: "0;0"}, map[string]string{"world": "plots"})
	require.NoError(t, err)

	opts := &TailOptions{Since: now.Add(-time.Minute)}
	assert.True(t, opts.filter().Match(ev))
	assert.Empty(t, opts.filter().Worlds)

	opts.World = "nether"
	assert.False(t, opts.filter().Match(ev), "событие другого мира")

	opts.World = "plots"
	opts.EventTypes = []string{eventbus.TypePlotExported}
	assert.False(t, opts.filter().Match(ev), "тип не входит в фильтр")

	opts.EventTypes = nil
	opts.Since = now.Add(time.Hour)
	assert.False(t, opts.filter().Match(ev), "событие старше границы since")
}
