package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusFiltersByType(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	got := make(chan *Envelope, 4)
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{TypePlotExported}}, func(_ context.Context, ev *Envelope) {
		got <- ev
	})
	require.NoError(t, err)

	cleared, err := NewEnvelope(TypePlotCleared, PlotCleared{World: "w", Plot: "1;1"}, nil)
	require.NoError(t, err)
	exported, err := NewEnvelope(TypePlotExported, PlotExported{World: "w", Plot: "1;1", Regions: 2}, map[string]string{"world": "w"})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), cleared))
	require.NoError(t, bus.Publish(context.Background(), exported))

	select {
	case ev := <-got:
		assert.Equal(t, TypePlotExported, ev.EventType)
		var p PlotExported
		require.NoError(t, ev.Decode(&p))
		assert.Equal(t, 2, p.Regions)
		assert.Equal(t, Source, ev.Source)
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
	}

	select {
	case ev := <-got:
		t.Fatalf("лишнее событие %s", ev.EventType)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusClose(t *testing.T) {
	bus := NewMemoryBus(1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "повторное закрытие безопасно")

	ev, err := NewEnvelope(TypeRegionEdited, RegionEdited{Operation: "swap"}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrClosed)
}

func TestGlobalEmitWithoutBus(t *testing.T) {
	Init(nil)
	assert.NoError(t, Emit(TypePlotTrusted, PlotTrusted{World: "w"}, nil))
}

func TestRegisterMetricsReadsStats(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(bus, reg))
	assert.Error(t, RegisterMetrics(bus, reg), "повторная регистрация отклоняется")

	ev, err := NewEnvelope(TypePlotCleared, PlotCleared{}, nil)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range mfs {
		m := mf.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			values[mf.GetName()] = c.GetValue()
		}
	}
	assert.Equal(t, 1.0, values["plots_eventbus_messages_published_total"])
	assert.Contains(t, values, "plots_eventbus_messages_dropped_total")
}

func TestMemoryBusOrderAndWorldFilter(t *testing.T) {
	bus := NewMemoryBus(64)

	var got []string
	_, err := bus.Subscribe(context.Background(), Filter{Worlds: []string{"plots"}}, func(_ context.Context, ev *Envelope) {
		var p RegionEdited
		if ev.Decode(&p) == nil {
			got = append(got, p.Operation)
		}
	})
	require.NoError(t, err)

	for i, op := range []string{"set", "swap", "copy", "biome"} {
		w := "plots"
		if i == 2 {
			w = "nether"
		}
		ev, err := NewEnvelope(TypeRegionEdited, RegionEdited{World: w, Operation: op}, map[string]string{"world": w})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}

	// Close дожидается обработки полученных подписчиком событий
	require.NoError(t, bus.Close())
	assert.Equal(t, []string{"set", "swap", "biome"}, got, "порядок публикации сохраняется, чужой мир отфильтрован")
	assert.EqualValues(t, 3, bus.Metrics().Consumed)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()

	got := make(chan struct{}, 8)
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) { got <- struct{}{} })
	require.NoError(t, err)
	sub.Unsubscribe()
	sub.Unsubscribe()

	ev, err := NewEnvelope(TypePlotTrusted, PlotTrusted{}, nil)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	select {
	case <-got:
		t.Fatal("событие доставлено после отписки")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFilterSince(t *testing.T) {
	ev, err := NewEnvelope(TypePlotCleared, PlotCleared{}, nil)
	require.NoError(t, err)

	assert.True(t, Filter{Since: ev.Timestamp}.Match(ev), "граница включительно")
	assert.False(t, Filter{Since: ev.Timestamp.Add(time.Second)}.Match(ev))
	assert.True(t, Filter{}.Match(ev))
}

func TestJetStreamSubjects(t *testing.T) {
	ev, err := NewEnvelope(TypePlotCleared, PlotCleared{}, map[string]string{"world": "plot.world 1"})
	require.NoError(t, err)
	assert.Equal(t, "plots.plot_world_1."+TypePlotCleared, eventSubject(ev), "точки и пробелы в имени мира экранируются")

	noWorld, err := NewEnvelope(TypePlotTrusted, PlotTrusted{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "plots._."+TypePlotTrusted, eventSubject(noWorld))

	assert.Equal(t, "plots.*.>", filterSubject(Filter{}))
	assert.Equal(t, "plots.alpha.>", filterSubject(Filter{Worlds: []string{"alpha"}}))
	assert.Equal(t, "plots.*."+TypePlotExported, filterSubject(Filter{Types: []string{TypePlotExported}}))
	assert.Equal(t, "plots.*.>", filterSubject(Filter{Worlds: []string{"a", "b"}}), "несколько миров фильтруются на клиенте")
}
