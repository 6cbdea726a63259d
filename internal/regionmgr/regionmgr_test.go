package regionmgr

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/AgaveCraft/PlotSquared/internal/world"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

type fixture struct {
	mgr   Manager
	store *world.MemoryStore
	queue *queue.GlobalQueue
}

func newFixture(t *testing.T, kind Kind, clear bool) *fixture {
	t.Helper()
	store := world.NewMemoryStore()
	gq := queue.NewGlobalQueue(store, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = gq.Shutdown(ctx)
	})
	m, err := New(kind, Options{
		Queue:            gq,
		Generator:        world.NewFlatGenerator(0),
		AcceleratedClear: clear,
		MinY:             0,
		MaxY:             31,
	})
	require.NoError(t, err)
	return &fixture{mgr: m, store: store, queue: gq}
}

func wait(t *testing.T, f *queue.Future) error {
	t.Helper()
	require.NotNil(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "операция не завершилась вовремя")
	return err
}

func (f *fixture) block(t *testing.T, w string, x, y, z int) world.BlockState {
	t.Helper()
	st, err := f.store.Block(w, vec.Vec3{X: x, Y: y, Z: z})
	require.NoError(t, err)
	return st
}

// fill заполняет куб уникальными блоками с префиксом prefix, минуя очередь.
func (f *fixture) fill(t *testing.T, w string, c world.Cuboid, prefix string) {
	t.Helper()
	require.NoError(t, c.ForEach(func(p vec.Vec3) error {
		rel := p.Sub(c.Min())
		return f.store.SetBlock(w, p, world.BlockState(fmt.Sprintf("%s_%d_%d_%d", prefix, rel.X, rel.Y, rel.Z)))
	}))
}

// content возвращает блоки куба в относительных координатах.
func (f *fixture) content(t *testing.T, w string, c world.Cuboid) map[vec.Vec3]world.BlockState {
	t.Helper()
	out := make(map[vec.Vec3]world.BlockState)
	require.NoError(t, c.ForEach(func(p vec.Vec3) error {
		st, err := f.store.Block(w, p)
		out[p.Sub(c.Min())] = st
		return err
	}))
	return out
}

func testArea(name string) *plot.Area {
	return &plot.Area{World: name, MinY: 0, MaxY: 7, Manager: plot.NewHybridManager(4)}
}

func TestSetCuboidsWritesOnlyBand(t *testing.T) {
	for _, kind := range []Kind{KindQueue, KindAccelerated} {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t, kind, false)
			region := world.NewCuboid(vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 20, Y: 31, Z: 3})

			fut, ok := f.mgr.SetCuboids(context.Background(), testArea("w"), []world.Cuboid{region}, world.NewPattern(world.Stone), 2, 5)
			require.True(t, ok)
			require.NoError(t, wait(t, fut))

			for x := -1; x <= 21; x++ {
				for z := -1; z <= 4; z++ {
					for y := 0; y <= 7; y++ {
						inside := x >= 0 && x <= 20 && z >= 0 && z <= 3 && y >= 2 && y <= 5
						want := world.Air
						if inside {
							want = world.Stone
						}
						require.Equal(t, want, f.block(t, "w", x, y, z), "блок (%d,%d,%d)", x, y, z)
					}
				}
			}
		})
	}
}

func TestSetCuboidsMultipleRegionsJoin(t *testing.T) {
	f := newFixture(t, KindQueue, false)
	regions := []world.Cuboid{
		world.NewCuboid(vec.Vec3{X: 0, Z: 0}, vec.Vec3{X: 1, Z: 1}),
		world.NewCuboid(vec.Vec3{X: 40, Z: 40}, vec.Vec3{X: 41, Z: 41}),
	}
	fut, ok := f.mgr.SetCuboids(context.Background(), testArea("w"), regions, world.NewPattern(world.Sand), 0, 0)
	require.True(t, ok)
	require.NoError(t, wait(t, fut))
	assert.Equal(t, world.Sand, f.block(t, "w", 0, 0, 0))
	assert.Equal(t, world.Sand, f.block(t, "w", 41, 0, 41))
}

func TestSetCuboidsRejectsEmptyInput(t *testing.T) {
	f := newFixture(t, KindQueue, false)

	fut, ok := f.mgr.SetCuboids(context.Background(), testArea("w"), nil, world.NewPattern(world.Stone), 0, 1)
	assert.False(t, ok)
	assert.Nil(t, fut)

	region := world.NewCuboid(vec.Vec3{}, vec.Vec3{X: 1, Z: 1})
	fut, ok = f.mgr.SetCuboids(context.Background(), testArea("w"), []world.Cuboid{region}, world.NewPattern(), 0, 1)
	assert.False(t, ok, "пустой шаблон")
	assert.Nil(t, fut)
	assert.Zero(t, f.store.Writes("w"))
}

func TestSwapIsInvolution(t *testing.T) {
	for _, kind := range []Kind{KindQueue, KindAccelerated} {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t, kind, false)
			a := world.NewCuboid(vec.Vec3{X: 14, Y: 0, Z: 0}, vec.Vec3{X: 17, Y: 2, Z: 3})
			b := a.Translate(vec.Vec3{X: 20})
			f.fill(t, "w", a, "a")
			f.fill(t, "w", b, "b")
			origA, origB := f.content(t, "w", a), f.content(t, "w", b)

			pos1 := world.Location{World: "w", Pos: a.Min()}
			pos2 := world.Location{World: "w", Pos: a.Max()}
			swapPos := world.Location{World: "w", Pos: b.Min()}

			fut, ok := f.mgr.Swap(context.Background(), pos1, pos2, swapPos)
			require.True(t, ok)
			require.NoError(t, wait(t, fut))
			assert.Equal(t, origB, f.content(t, "w", a))
			assert.Equal(t, origA, f.content(t, "w", b))

			fut, _ = f.mgr.Swap(context.Background(), pos1, pos2, swapPos)
			require.NoError(t, wait(t, fut))
			assert.Equal(t, origA, f.content(t, "w", a), "двойной обмен восстанавливает A")
			assert.Equal(t, origB, f.content(t, "w", b), "двойной обмен восстанавливает B")
		})
	}
}

func TestSwapAcrossWorlds(t *testing.T) {
	f := newFixture(t, KindQueue, false)
	a := world.NewCuboid(vec.Vec3{}, vec.Vec3{X: 2, Y: 1, Z: 2})
	f.fill(t, "left", a, "l")
	f.fill(t, "right", a, "r")
	origL, origR := f.content(t, "left", a), f.content(t, "right", a)

	fut, ok := f.mgr.Swap(context.Background(),
		world.Location{World: "left", Pos: a.Min()},
		world.Location{World: "left", Pos: a.Max()},
		world.Location{World: "right", Pos: a.Min()})
	require.True(t, ok)
	require.NoError(t, wait(t, fut))
	assert.Equal(t, origR, f.content(t, "left", a))
	assert.Equal(t, origL, f.content(t, "right", a))
}

func TestSwapRejectsOverlap(t *testing.T) {
	f := newFixture(t, KindQueue, false)
	fut, ok := f.mgr.Swap(context.Background(),
		world.Location{World: "w", Pos: vec.Vec3{}},
		world.Location{World: "w", Pos: vec.Vec3{X: 5, Y: 5, Z: 5}},
		world.Location{World: "w", Pos: vec.Vec3{X: 3}})
	require.True(t, ok)
	assert.ErrorIs(t, wait(t, fut), ErrOverlap)
	assert.Zero(t, f.store.Writes("w"))
}

func TestCopyRegion(t *testing.T) {
	t.Run("Без пересечения", func(t *testing.T) {
		f := newFixture(t, KindAccelerated, false)
		src := world.NewCuboid(vec.Vec3{X: 500, Y: 0, Z: 0}, vec.Vec3{X: 520, Y: 1, Z: 1})
		f.fill(t, "w", src, "s")
		dst := src.Translate(vec.Vec3{Z: 10})

		fut, ok := f.mgr.CopyRegion(context.Background(),
			world.Location{World: "w", Pos: src.Min()},
			world.Location{World: "w", Pos: src.Max()},
			world.Location{World: "w", Pos: dst.Min()})
		require.True(t, ok)
		require.NoError(t, wait(t, fut))
		assert.Equal(t, f.content(t, "w", src), f.content(t, "w", dst))
	})

	t.Run("С пересечением", func(t *testing.T) {
		f := newFixture(t, KindQueue, false)
		src := world.NewCuboid(vec.Vec3{X: 10}, vec.Vec3{X: 25})
		f.fill(t, "w", src, "s")
		orig := f.content(t, "w", src)
		dst := src.Translate(vec.Vec3{X: 3})

		fut, ok := f.mgr.CopyRegion(context.Background(),
			world.Location{World: "w", Pos: src.Min()},
			world.Location{World: "w", Pos: src.Max()},
			world.Location{World: "w", Pos: dst.Min()})
		require.True(t, ok)
		require.NoError(t, wait(t, fut))
		assert.Equal(t, orig, f.content(t, "w", dst), "источник буферизуется целиком")
	})

	t.Run("Между мирами", func(t *testing.T) {
		f := newFixture(t, KindQueue, false)
		src := world.NewCuboid(vec.Vec3{}, vec.Vec3{X: 3, Y: 3, Z: 3})
		f.fill(t, "from", src, "s")
		before := f.store.Writes("from")
		dst := src.Translate(vec.Vec3{X: 100})

		fut, ok := f.mgr.CopyRegion(context.Background(),
			world.Location{World: "from", Pos: src.Min()},
			world.Location{World: "from", Pos: src.Max()},
			world.Location{World: "to", Pos: dst.Min()})
		require.True(t, ok)
		require.NoError(t, wait(t, fut))
		assert.Equal(t, f.content(t, "from", src), f.content(t, "to", dst))
		assert.Equal(t, before, f.store.Writes("from"), "источник не изменяется")
	})
}

func TestSetBiomeExtend(t *testing.T) {
	region := world.NewCuboid(vec.Vec3{X: 0, Y: 10, Z: 0}, vec.Vec3{X: 1, Y: 12, Z: 1})
	cases := []struct {
		name   string
		extend int
		lo, hi int
	}{
		{"Полоса области", ExtendNone, 10, 12},
		{"Расширение", 2, 8, 14},
		{"Расширение до границ мира", 40, 0, 31},
		{"Вся колонна", ExtendColumn, 0, 31},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, KindQueue, false)
			fut, ok := f.mgr.SetBiome(context.Background(), region, tc.extend, world.Desert, "w")
			require.True(t, ok)
			require.NoError(t, wait(t, fut))

			for y := 0; y <= 31; y++ {
				want := world.Plains
				if y >= tc.lo && y <= tc.hi {
					want = world.Desert
				}
				b, err := f.store.Biome("w", vec.Vec3{X: 1, Y: y, Z: 0})
				require.NoError(t, err)
				require.Equal(t, want, b, "y=%d", y)
			}
		})
	}
}

func TestSetBiomeInvalidExtend(t *testing.T) {
	f := newFixture(t, KindAccelerated, false)
	region := world.NewCuboid(vec.Vec3{}, vec.Vec3{X: 1, Y: 1, Z: 1})

	fut, ok := f.mgr.SetBiome(context.Background(), region, -2, world.Desert, "w")
	require.True(t, ok)
	assert.ErrorIs(t, wait(t, fut), ErrInvalidExtend)
	assert.Zero(t, f.store.Writes("w"), "проверка до постановки задач")
}

func TestRegenerateRegion(t *testing.T) {
	f := newFixture(t, KindQueue, false)
	region := world.NewCuboid(vec.Vec3{}, vec.Vec3{X: 3, Y: 3, Z: 3})
	require.NoError(t, region.ForEach(func(p vec.Vec3) error {
		return f.store.SetBlock("w", p, world.Sand)
	}))
	for x := 0; x <= 3; x++ {
		require.NoError(t, f.store.SetBiome("w", x, 0, 0, 3, world.Desert))
	}

	ignore := func(x, z int) bool { return x == 0 }
	fut, ok := f.mgr.RegenerateRegion(context.Background(),
		world.Location{World: "w", Pos: region.Min()},
		world.Location{World: "w", Pos: region.Max()}, ignore)
	require.True(t, ok)
	require.NoError(t, wait(t, fut))

	assert.Equal(t, world.Sand, f.block(t, "w", 0, 2, 2), "пропущенная колонна не меняется")
	assert.Equal(t, world.Bedrock, f.block(t, "w", 1, 0, 1))
	assert.Equal(t, world.Stone, f.block(t, "w", 3, 3, 3))

	b, err := f.store.Biome("w", vec.Vec3{X: 2, Y: 1, Z: 0})
	require.NoError(t, err)
	assert.Equal(t, world.Plains, b)
	b, err = f.store.Biome("w", vec.Vec3{X: 0, Y: 1, Z: 0})
	require.NoError(t, err)
	assert.Equal(t, world.Desert, b)
}

func TestRegenerateWithoutGenerator(t *testing.T) {
	gq := queue.NewGlobalQueue(world.NewMemoryStore(), nil)
	m, err := New(KindQueue, Options{Queue: gq, MaxY: 10})
	require.NoError(t, err)
	fut, ok := m.RegenerateRegion(context.Background(), world.Location{World: "w"}, world.Location{World: "w"}, nil)
	assert.False(t, ok)
	assert.Nil(t, fut)
}

func newPlot(area *plot.Area) *plot.Plot {
	return plot.New(plot.ID{X: 0, Y: 0}, area, uuid.New(),
		world.NewCuboid(vec.Vec3{X: 0, Z: 0}, vec.Vec3{X: 3, Z: 3}))
}

func TestHandleClearUnsupportedWritesNothing(t *testing.T) {
	cases := []struct {
		name  string
		kind  Kind
		clear bool
		area  *plot.Area
	}{
		{"Общий вариант", KindQueue, true, testArea("w")},
		{"Ускоренный без флага", KindAccelerated, false, testArea("w")},
		{"Плоская область", KindAccelerated, true, &plot.Area{World: "w", MaxY: 7, Manager: &plot.FlatManager{Floor: world.Grass, Height: 3}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.kind, tc.clear)
			fut, ok := f.mgr.HandleClear(context.Background(), newPlot(tc.area))
			assert.False(t, ok)
			assert.Nil(t, fut)
			assert.False(t, f.mgr.NotifyClear(tc.area.Manager))
			assert.Zero(t, f.store.Writes("w"))
		})
	}
}

func assertCleared(t *testing.T, f *fixture) {
	t.Helper()
	assert.Equal(t, world.Bedrock, f.block(t, "w", 1, 0, 1))
	assert.Equal(t, world.Stone, f.block(t, "w", 1, 2, 1))
	assert.Equal(t, world.Grass, f.block(t, "w", 3, 4, 3))
	assert.Equal(t, world.Air, f.block(t, "w", 2, 6, 2))
	assert.Equal(t, world.Sand, f.block(t, "w", 4, 6, 0), "соседний плот не затронут")
}

func TestAcceleratedClear(t *testing.T) {
	f := newFixture(t, KindAccelerated, true)
	area := testArea("w")
	require.True(t, f.mgr.NotifyClear(area.Manager))
	require.NoError(t, f.store.SetBlock("w", vec.Vec3{X: 2, Y: 6, Z: 2}, world.Sand))
	require.NoError(t, f.store.SetBlock("w", vec.Vec3{X: 4, Y: 6, Z: 0}, world.Sand))

	fut, ok := f.mgr.HandleClear(context.Background(), newPlot(area))
	require.True(t, ok)
	require.NoError(t, wait(t, fut))
	assertCleared(t, f)
}

func TestClearPlotFallsBackToLayers(t *testing.T) {
	f := newFixture(t, KindQueue, false)
	require.NoError(t, f.store.SetBlock("w", vec.Vec3{X: 2, Y: 6, Z: 2}, world.Sand))
	require.NoError(t, f.store.SetBlock("w", vec.Vec3{X: 4, Y: 6, Z: 0}, world.Sand))

	require.NoError(t, wait(t, ClearPlot(context.Background(), f.mgr, newPlot(testArea("w")))))
	assertCleared(t, f)
}

func TestSplitByRegionFile(t *testing.T) {
	c := world.NewCuboid(vec.Vec3{X: -10, Y: 0, Z: 0}, vec.Vec3{X: 600, Y: 5, Z: 5})
	parts := splitByRegionFile(c)
	require.Len(t, parts, 3)
	assert.Equal(t, world.NewCuboid(vec.Vec3{X: -10, Z: 0}, vec.Vec3{X: -1, Y: 5, Z: 5}), parts[0])
	assert.Equal(t, world.NewCuboid(vec.Vec3{X: 0, Z: 0}, vec.Vec3{X: 511, Y: 5, Z: 5}), parts[1])
	assert.Equal(t, world.NewCuboid(vec.Vec3{X: 512, Z: 0}, vec.Vec3{X: 600, Y: 5, Z: 5}), parts[2])

	vol := 0
	for _, p := range parts {
		vol += p.Volume()
	}
	assert.Equal(t, c.Volume(), vol)
}

func TestParseKindAndNew(t *testing.T) {
	k, err := ParseKind(" Accelerated ")
	require.NoError(t, err)
	assert.Equal(t, KindAccelerated, k)

	_, err = ParseKind("fawe")
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = New(KindQueue, Options{})
	assert.Error(t, err, "без очереди")

	gq := queue.NewGlobalQueue(world.NewMemoryStore(), nil)
	_, err = New("other", Options{Queue: gq})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
