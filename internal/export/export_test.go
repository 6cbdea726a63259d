package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/leveldat"
	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/regionfile"
	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/AgaveCraft/PlotSquared/internal/world"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const worldName = "plotworld"

var originalSpawn = vec.Vec3{X: 5, Y: 70, Z: -5}

type fixture struct {
	exp    *Exporter
	gq     *queue.GlobalQueue
	store  *world.MemoryStore
	handle *world.Handle
	plot   *plot.Plot

	mu     sync.Mutex
	saves  []vec.Vec3
	failOn int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	worlds := world.NewRegistry(t.TempDir())
	h := worlds.Handle(worldName)
	require.NoError(t, os.MkdirAll(h.RegionDir(), 0o755))

	f := &fixture{store: world.NewMemoryStore(), handle: h}
	require.NoError(t, f.store.SetSpawn(worldName, originalSpawn))
	f.store.SaveHook = func(_ string, spawn vec.Vec3) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.saves = append(f.saves, spawn)
		if f.failOn == len(f.saves) {
			return errors.New("диск недоступен")
		}
		return nil
	}

	gq := queue.NewGlobalQueue(f.store, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gq.Shutdown(ctx)
	})
	f.gq = gq
	f.exp = New(gq, worlds, regionfile.NewLocator(regionfile.DefaultExtension))

	area := &plot.Area{World: worldName, MinY: 0, MaxY: 255, Manager: plot.NewHybridManager(64)}
	f.plot = plot.New(plot.ID{X: 0, Y: 0}, area, uuid.New(),
		world.NewCuboid(vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 15, Y: 255, Z: 15}))
	return f
}

func (f *fixture) writeLevelDat(t *testing.T) {
	t.Helper()
	raw, err := nbt.MarshalEncoding(map[string]any{"Data": map[string]any{
		"LevelName": worldName,
		"SpawnX":    int32(originalSpawn.X),
		"SpawnY":    int32(originalSpawn.Y),
		"SpawnZ":    int32(originalSpawn.Z),
		"Time":      int64(42),
	}}, nbt.BigEndian)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(f.handle.LevelDat(), buf.Bytes(), 0o644))
}

func (f *fixture) writeRegions(t *testing.T) {
	t.Helper()
	for name, data := range map[string]string{
		"r.0.0.mca":  "region-0-0",
		"r.1.0.mca":  "region-1-0",
		"r.-1.0.mca": "region-m1-0",
		"r.0.0.mcr":  "old-format",
		"r.x.0.mca":  "broken",
		"junk.txt":   "junk",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(f.handle.RegionDir(), name), []byte(data), 0o644))
	}
}

func (f *fixture) savedSpawns() []vec.Vec3 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]vec.Vec3(nil), f.saves...)
}

func (f *fixture) liveSpawn(t *testing.T) vec.Vec3 {
	t.Helper()
	s, err := f.store.Spawn(worldName)
	require.NoError(t, err)
	return s
}

func readArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string][]byte)
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[zf.Name] = b
	}
	return out
}

func archiveNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	return names
}

func TestExportPlotArchiveLayout(t *testing.T) {
	f := newFixture(t)
	f.writeLevelDat(t)
	f.writeRegions(t)

	var buf bytes.Buffer
	res, err := f.exp.ExportPlot(context.Background(), f.plot, &buf)
	require.NoError(t, err)

	want := []string{"level.dat", "region/r.0.0.mca"}
	assert.Equal(t, want, res.Entries)
	assert.Equal(t, want, archiveNames(t, buf.Bytes()), "метаданные первой записью")
	assert.Equal(t, 1, res.Regions)
	assert.Equal(t, int64(buf.Len()), res.Bytes)

	entries := readArchive(t, buf.Bytes())
	assert.Equal(t, "region-0-0", string(entries["region/r.0.0.mca"]), "регион копируется без изменений")

	lvl, err := leveldat.Decode(entries["level.dat"])
	require.NoError(t, err)
	assert.Equal(t, vec.Vec3{X: 7, Y: 65, Z: 7}, lvl.Spawn, "точка появления в доме плота")
	assert.Equal(t, int64(42), lvl.Data["Time"])

	assert.Equal(t, originalSpawn, f.liveSpawn(t))
	assert.Equal(t, []vec.Vec3{f.plot.Home(), originalSpawn}, f.savedSpawns(),
		"мир сохраняется с домом плота, затем с исходной точкой")
}

func TestExportPlotWithoutLevelDat(t *testing.T) {
	f := newFixture(t)
	f.writeRegions(t)

	var buf bytes.Buffer
	res, err := f.exp.ExportPlot(context.Background(), f.plot, &buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"region/r.0.0.mca"}, archiveNames(t, buf.Bytes()))
	assert.Equal(t, 1, res.Regions)
	assert.Equal(t, originalSpawn, f.liveSpawn(t))
}

func TestExportPlotMergedRegions(t *testing.T) {
	f := newFixture(t)
	f.writeRegions(t)
	f.plot.Merge(world.NewCuboid(vec.Vec3{X: 600, Z: 0}, vec.Vec3{X: 610, Z: 10}))

	var buf bytes.Buffer
	res, err := f.exp.ExportPlot(context.Background(), f.plot, &buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"region/r.0.0.mca", "region/r.1.0.mca"}, res.Entries)
}

func TestExportPlotRestoresSpawnOnRegionFailure(t *testing.T) {
	f := newFixture(t)
	f.writeLevelDat(t)
	require.NoError(t, os.Mkdir(filepath.Join(f.handle.RegionDir(), "r.0.0.mca"), 0o755))

	_, err := f.exp.ExportPlot(context.Background(), f.plot, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region/r.0.0.mca")
	assert.Equal(t, originalSpawn, f.liveSpawn(t), "точка появления восстановлена после ошибки")
	assert.Equal(t, []vec.Vec3{f.plot.Home(), originalSpawn}, f.savedSpawns())
}

func TestExportPlotRestoresSpawnOnMetadataFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.handle.LevelDat(), []byte{0x1f, 0x8b, 0, 1, 2}, 0o644))

	_, err := f.exp.ExportPlot(context.Background(), f.plot, io.Discard)
	require.Error(t, err)
	assert.Equal(t, originalSpawn, f.liveSpawn(t))
}

func TestExportPlotRestoresSpawnWhenOverrideSaveFails(t *testing.T) {
	f := newFixture(t)
	f.failOn = 1

	_, err := f.exp.ExportPlot(context.Background(), f.plot, io.Discard)
	require.Error(t, err)
	assert.Equal(t, originalSpawn, f.liveSpawn(t))
	assert.Len(t, f.savedSpawns(), 2)
}

func TestUploadToFileSink(t *testing.T) {
	f := newFixture(t)
	f.writeLevelDat(t)
	f.writeRegions(t)
	dir := t.TempDir()

	fut := f.exp.Upload(context.Background(), f.plot, FileSink{Dir: dir})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fut.Wait(ctx))

	data, err := os.ReadFile(filepath.Join(dir, "plotworld_0_0.zip"))
	require.NoError(t, err)
	assert.Equal(t, []string{"level.dat", "region/r.0.0.mca"}, archiveNames(t, data))
}

func TestUploadDiscardsPartialArchive(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Mkdir(filepath.Join(f.handle.RegionDir(), "r.0.0.mca"), 0o755))
	dir := t.TempDir()

	fut := f.exp.Upload(context.Background(), f.plot, FileSink{Dir: dir})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Error(t, fut.Wait(ctx))

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, left, "частичный архив удалён")
	assert.Equal(t, originalSpawn, f.liveSpawn(t))
}

// hookWriter вызывает hook при первой записи архива, то есть пока точка
// появления мира перенесена в дом плота.
type hookWriter struct {
	once sync.Once
	hook func()
	buf  bytes.Buffer
}

func (w *hookWriter) Write(p []byte) (int, error) {
	w.once.Do(w.hook)
	return w.buf.Write(p)
}

func TestConcurrentExportsRestoreOriginalSpawn(t *testing.T) {
	f := newFixture(t)
	f.writeRegions(t)
	other := plot.New(plot.ID{X: 1, Y: 0}, f.plot.Area(), uuid.New(),
		world.NewCuboid(vec.Vec3{X: 32, Y: 0, Z: 0}, vec.Vec3{X: 47, Y: 255, Z: 15}))
	require.NotEqual(t, f.plot.Home(), other.Home())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	otherDone := make(chan error, 1)
	var duringFirst vec.Vec3
	w := &hookWriter{hook: func() {
		go func() {
			_, err := f.exp.ExportPlot(ctx, other, io.Discard)
			otherDone <- err
		}()
		time.Sleep(50 * time.Millisecond)
		duringFirst = f.liveSpawn(t)
	}}

	_, err := f.exp.ExportPlot(ctx, f.plot, w)
	require.NoError(t, err)
	assert.Equal(t, f.plot.Home(), duringFirst, "второй экспорт мира ждёт завершения первого")

	select {
	case err := <-otherDone:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("второй экспорт не завершился")
	}
	assert.Equal(t, originalSpawn, f.liveSpawn(t), "после обоих экспортов точка появления исходная")
	assert.Equal(t, []vec.Vec3{f.plot.Home(), originalSpawn, other.Home(), originalSpawn}, f.savedSpawns())
}

type writerFunc func(p []byte) (int, error)

func (fn writerFunc) Write(p []byte) (int, error) { return fn(p) }

// blockingSink задерживает запись архива до закрытия release.
type blockingSink struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (s *blockingSink) Deliver(_ context.Context, _ string, write func(io.Writer) error) error {
	return write(writerFunc(func(p []byte) (int, error) {
		s.once.Do(func() { close(s.started) })
		<-s.release
		return len(p), nil
	}))
}

func TestShutdownWaitsForUploadBeforeQueuesStop(t *testing.T) {
	f := newFixture(t)
	f.writeRegions(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sink := &blockingSink{started: make(chan struct{}), release: make(chan struct{})}
	fut := f.exp.Upload(ctx, f.plot, sink)
	select {
	case <-sink.started:
	case <-ctx.Done():
		t.Fatal("выгрузка не началась")
	}
	assert.Equal(t, f.plot.Home(), f.liveSpawn(t))

	stopped := make(chan error, 1)
	go func() { stopped <- f.exp.Shutdown(ctx) }()
	select {
	case <-stopped:
		t.Fatal("Shutdown вернулся до завершения выгрузки")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Shutdown не дождался выгрузки")
	}
	require.NoError(t, fut.Wait(ctx))
	require.NoError(t, f.gq.Shutdown(ctx))
	assert.Equal(t, originalSpawn, f.liveSpawn(t), "точка появления восстановлена до остановки очередей")

	assert.ErrorIs(t, f.exp.Upload(ctx, f.plot, FileSink{Dir: t.TempDir()}).Err(), ErrClosed)
	_, err := f.exp.ExportPlot(ctx, f.plot, io.Discard)
	assert.ErrorIs(t, err, ErrClosed)
}
