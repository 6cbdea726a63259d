// Package export собирает переносимый архив плота: метаданные мира с точкой
// появления в доме плота и сырые файлы регионов, пересекающих плот.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/leveldat"
	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/regionfile"
	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/AgaveCraft/PlotSquared/internal/world"
	"github.com/klauspost/compress/zip"
)

// restoreTimeout ограничивает ожидание восстановления точки появления,
// когда контекст экспорта уже отменён.
const restoreTimeout = 30 * time.Second

// Result описывает собранный архив.
type Result struct {
	// Entries - имена записей в порядке записи.
	Entries []string
	Regions int
	Bytes   int64
}

// ErrClosed возвращается экспортом, начатым после Shutdown.
var ErrClosed = errors.New("export: экспортёр остановлен")

// Exporter собирает архивы плотов.
type Exporter struct {
	queue   *queue.GlobalQueue
	worlds  *world.Registry
	locator *regionfile.Locator
	log     *logging.Logger

	// spawnLocks держит мир занятым от переноса точки появления до её
	// восстановления: экспорты одного мира идут по очереди.
	spawnMu    sync.Mutex
	spawnLocks map[string]chan struct{}

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New создаёт экспортёр. Точка появления меняется только через очереди миров.
func New(q *queue.GlobalQueue, worlds *world.Registry, locator *regionfile.Locator) *Exporter {
	return &Exporter{
		queue:      q,
		worlds:     worlds,
		locator:    locator,
		log:        logging.GetExportLogger(),
		spawnLocks: make(map[string]chan struct{}),
	}
}

// begin регистрирует экспорт для Shutdown.
func (e *Exporter) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.inflight.Add(1)
	return nil
}

// Shutdown запрещает новые экспорты и ждёт начатые, включая восстановление
// точки появления. Вызывается до остановки очередей миров.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ожидание экспортов: %w", ctx.Err())
	}
}

// lockSpawn занимает мир на время подмены точки появления.
func (e *Exporter) lockSpawn(ctx context.Context, worldName string) (func(), error) {
	e.spawnMu.Lock()
	ch, ok := e.spawnLocks[worldName]
	if !ok {
		ch = make(chan struct{}, 1)
		e.spawnLocks[worldName] = ch
	}
	e.spawnMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExportPlot пишет zip-архив плота в w: сначала level.dat (если он есть) с
// точкой появления в доме плота, затем по записи region/r.<rx>.<rz>.<ext> на
// каждый пересекающий плот файл региона.
//
// На время сборки живая точка появления мира переносится в дом плота. Она
// восстанавливается на любом пути выхода; ошибка восстановления объединяется
// с ошибкой экспорта. При ошибке архив не финализируется.
//
// Экспорты одного мира выполняются по очереди, поэтому каждый видит и
// восстанавливает исходную точку появления.
func (e *Exporter) ExportPlot(ctx context.Context, p *plot.Plot, w io.Writer) (*Result, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.inflight.Done()
	return e.exportPlot(ctx, p, w)
}

func (e *Exporter) exportPlot(ctx context.Context, p *plot.Plot, w io.Writer) (res *Result, err error) {
	home := p.Home()
	h := e.worlds.Handle(p.World())
	c := e.queue.Coordinator(p.World())

	unlock, err := e.lockSpawn(ctx, p.World())
	if err != nil {
		return nil, fmt.Errorf("ожидание экспорта мира %s: %w", p.World(), err)
	}
	defer unlock()

	guard, err := overrideSpawn(ctx, c, home)
	if guard != nil {
		defer func() {
			if rerr := guard.restore(ctx); rerr != nil {
				e.log.Error("❌ Не удалось восстановить точку появления мира %s: %v", p.World(), rerr)
				err = errors.Join(err, rerr)
			}
		}()
	}
	if err != nil {
		return nil, fmt.Errorf("перенос точки появления: %w", err)
	}

	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	res = &Result{}

	meta, err := os.ReadFile(h.LevelDat())
	switch {
	case errors.Is(err, os.ErrNotExist):
		e.log.Debug("Мир %s без level.dat, метаданные не добавлены", p.World())
	case err != nil:
		return nil, fmt.Errorf("чтение %s: %w", h.LevelDat(), err)
	default:
		patched, err := leveldat.Patch(meta, home)
		if err != nil {
			return nil, fmt.Errorf("правка %s: %w", leveldat.FileName, err)
		}
		if err := writeEntry(zw, leveldat.FileName, func(dst io.Writer) error {
			_, err := dst.Write(patched)
			return err
		}); err != nil {
			return nil, err
		}
		res.Entries = append(res.Entries, leveldat.FileName)
	}

	files, err := e.locator.Intersecting(h, p.Regions())
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := writeEntry(zw, f.EntryName(), func(dst io.Writer) error {
			return copyFile(dst, f.Path)
		}); err != nil {
			return nil, err
		}
		res.Entries = append(res.Entries, f.EntryName())
		res.Regions++
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("завершение архива: %w", err)
	}
	res.Bytes = cw.n
	e.log.Info("📦 Плот %s/%s выгружен: %d регионов, %d байт", p.World(), p.ID(), res.Regions, res.Bytes)
	return res, nil
}

func writeEntry(zw *zip.Writer, name string, fill func(io.Writer) error) error {
	dst, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("запись %s: %w", name, err)
	}
	if err := fill(dst); err != nil {
		return fmt.Errorf("запись %s: %w", name, err)
	}
	return nil
}

func copyFile(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// spawnGuard хранит исходную точку появления мира до её восстановления.
type spawnGuard struct {
	c        *queue.Coordinator
	original vec.Vec3
}

// overrideSpawn через очередь мира запоминает точку появления, переносит её в
// home и сохраняет мир. guard не nil, если точка могла быть изменена.
func overrideSpawn(ctx context.Context, c *queue.Coordinator, home vec.Vec3) (*spawnGuard, error) {
	g := &spawnGuard{c: c}
	var touched bool
	id, f := c.Enqueue(queue.Task{
		Name: "перенос точки появления",
		Run: func(tx *queue.Tx) error {
			orig, err := tx.Spawn()
			if err != nil {
				return err
			}
			g.original = orig
			touched = true
			if err := tx.SetSpawn(home); err != nil {
				return err
			}
			return tx.Save()
		},
	})
	c.Start()

	err := f.Wait(ctx)
	if err != nil && ctx.Err() != nil && !c.Cancel(id) {
		// Задача уже выполняется: дождёмся её, чтобы знать, что восстанавливать.
		<-f.Done()
	}
	if touched {
		return g, err
	}
	return nil, err
}

// restore возвращает точку появления и сохраняет мир. Выполняется даже при
// отменённом ctx.
func (g *spawnGuard) restore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	return g.c.Exec("восстановление точки появления", func(tx *queue.Tx) error {
		if err := tx.SetSpawn(g.original); err != nil {
			return err
		}
		return tx.Save()
	}).Wait(ctx)
}
