package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/AgaveCraft/PlotSquared/internal/eventbus"
	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
)

// Sink принимает готовый архив. write пишет архив в переданный writer;
// если write вернул ошибку, приёмник должен отбросить частичные данные.
type Sink interface {
	Deliver(ctx context.Context, name string, write func(io.Writer) error) error
}

// ArchiveName - имя архива плота: <мир>_<x>_<y>.zip.
func ArchiveName(p *plot.Plot) string {
	return fmt.Sprintf("%s_%d_%d.zip", p.World(), p.ID().X, p.ID().Y)
}

// Upload асинхронно собирает архив плота и передаёт его в sink.
// Future завершается после доставки; по завершении публикуется plot.exported.
// Shutdown экспортёра дожидается выгрузки.
func (e *Exporter) Upload(ctx context.Context, p *plot.Plot, sink Sink) *queue.Future {
	if err := e.begin(); err != nil {
		return queue.Resolved(err)
	}
	f, resolve := queue.Pending()
	go func() {
		defer e.inflight.Done()
		var res *Result
		err := sink.Deliver(ctx, ArchiveName(p), func(w io.Writer) error {
			var err error
			res, err = e.exportPlot(ctx, p, w)
			return err
		})

		payload := eventbus.PlotExported{World: p.World(), Plot: p.ID().String()}
		if res != nil {
			payload.Regions = res.Regions
			payload.Bytes = res.Bytes
		}
		if err != nil {
			payload.Error = err.Error()
			e.log.Error("❌ Выгрузка плота %s/%s: %v", p.World(), p.ID(), err)
		}
		if perr := eventbus.Emit(eventbus.TypePlotExported, payload, map[string]string{"world": p.World()}); perr != nil {
			e.log.Warn("⚠️ Не удалось опубликовать %s: %v", eventbus.TypePlotExported, perr)
		}
		resolve(err)
	}()
	return f
}

// FileSink сохраняет архивы в каталог. Архив пишется во временный файл и
// переименовывается только после успешной записи.
type FileSink struct {
	Dir string
}

func (s FileSink) Deliver(ctx context.Context, name string, write func(io.Writer) error) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("создание каталога %s: %w", s.Dir, err)
	}
	tmp, err := os.CreateTemp(s.Dir, name+".*.part")
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.Dir, name))
}
