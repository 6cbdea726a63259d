package regionmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/eventbus"
	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/AgaveCraft/PlotSquared/internal/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// splitFunc делит куб на части, каждая из которых становится отдельной задачей.
type splitFunc func(c world.Cuboid) []world.Cuboid

// engine - общая часть вариантов. Варианты отличаются разбиением на задачи
// и поддержкой очистки.
type engine struct {
	kind       Kind
	queue      *queue.GlobalQueue
	gen        world.Generator
	minY, maxY int
	split      splitFunc
	log        *logging.Logger
	tracer     trace.Tracer
}

func newEngine(kind Kind, opts Options, split splitFunc) *engine {
	return &engine{
		kind:   kind,
		queue:  opts.Queue,
		gen:    opts.Generator,
		minY:   opts.MinY,
		maxY:   opts.MaxY,
		split:  split,
		log:    logging.GetRegionLogger(),
		tracer: otel.Tracer("github.com/AgaveCraft/PlotSquared/internal/regionmgr"),
	}
}

func (e *engine) Kind() Kind { return e.kind }

// track открывает span операции, строит её задачи и закрывает span, когда
// объединённый Future завершится. По завершении публикуется region.edited.
func (e *engine) track(ctx context.Context, op, worldName string, regions int, build func() *queue.Future) *queue.Future {
	_, span := e.tracer.Start(ctx, "regionmgr."+op, trace.WithAttributes(
		attribute.String("regionmgr.kind", string(e.kind)),
		attribute.String("plot.world", worldName),
		attribute.Int("regionmgr.regions", regions),
	))
	start := time.Now()
	f := build()
	f.OnDone(func(err error) {
		payload := eventbus.RegionEdited{World: worldName, Operation: op, Regions: regions}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			payload.Error = err.Error()
			e.log.Warn("⚠️ %s в мире %s завершилась ошибкой: %v", op, worldName, err)
		} else {
			e.log.Debug("✅ %s в мире %s: %d областей за %v", op, worldName, regions, time.Since(start))
		}
		span.End()
		if err := eventbus.Emit(eventbus.TypeRegionEdited, payload, map[string]string{"world": worldName}); err != nil {
			e.log.Warn("⚠️ Не удалось опубликовать %s: %v", eventbus.TypeRegionEdited, err)
		}
	})
	return f
}

// enqueueParts ставит по задаче на каждую часть каждого куба и запускает очередь.
// Запуск привязывает сохранённую задачу завершения очереди к её хвосту.
func (e *engine) enqueueParts(c *queue.Coordinator, name string, regions []world.Cuboid, fn func(tx *queue.Tx, part world.Cuboid) error) *queue.Future {
	var futures []*queue.Future
	for _, r := range regions {
		for _, part := range e.split(r) {
			part := part
			_, f := c.Enqueue(queue.Task{
				Name: fmt.Sprintf("%s %s", name, part),
				Run:  func(tx *queue.Tx) error { return fn(tx, part) },
			})
			futures = append(futures, f)
		}
	}
	c.Start()
	return queue.All(futures...)
}

func (e *engine) SetCuboids(ctx context.Context, area *plot.Area, regions []world.Cuboid, pattern world.Pattern, minY, maxY int) (*queue.Future, bool) {
	if len(regions) == 0 || pattern.IsEmpty() {
		return nil, false
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	band := make([]world.Cuboid, 0, len(regions))
	for _, r := range regions {
		band = append(band, r.WithY(minY, maxY))
	}
	return e.track(ctx, "set_cuboids", area.World, len(band), func() *queue.Future {
		c := e.queue.Coordinator(area.World)
		return e.enqueueParts(c, "заливка", band, func(tx *queue.Tx, part world.Cuboid) error {
			return tx.Fill(part, pattern)
		})
	}), true
}

func (e *engine) Swap(ctx context.Context, pos1, pos2, swapPos world.Location) (*queue.Future, bool) {
	a := world.NewCuboid(pos1.Pos, pos2.Pos)
	delta := swapPos.Pos.Sub(a.Min())
	b := a.Translate(delta)

	if pos1.World == swapPos.World && a.Intersects(b) {
		return queue.Resolved(fmt.Errorf("%w: %s и %s", ErrOverlap, a, b)), true
	}

	return e.track(ctx, "swap", pos1.World, 2, func() *queue.Future {
		if pos1.World == swapPos.World {
			c := e.queue.Coordinator(pos1.World)
			return e.enqueueParts(c, "обмен", []world.Cuboid{a}, func(tx *queue.Tx, pa world.Cuboid) error {
				pb := pa.Translate(delta)
				bufA, err := copyFrom(tx, pa)
				if err != nil {
					return err
				}
				bufB, err := copyFrom(tx, pb)
				if err != nil {
					return err
				}
				if err := bufB.pasteTo(tx, pa.Min()); err != nil {
					return err
				}
				return bufA.pasteTo(tx, pb.Min())
			})
		}

		// Разные миры: каждый мир читается и пишется только своей очередью.
		ca, cb := e.queue.Coordinator(pos1.World), e.queue.Coordinator(swapPos.World)
		var bufA, bufB *clipboard
		readA := ca.Exec("чтение для обмена", func(tx *queue.Tx) (err error) {
			bufA, err = copyFrom(tx, a)
			return err
		})
		readB := cb.Exec("чтение для обмена", func(tx *queue.Tx) (err error) {
			bufB, err = copyFrom(tx, b)
			return err
		})
		return queue.All(readA, readB).Then(func() *queue.Future {
			return queue.All(
				ca.Exec("запись обмена", func(tx *queue.Tx) error { return bufB.pasteTo(tx, a.Min()) }),
				cb.Exec("запись обмена", func(tx *queue.Tx) error { return bufA.pasteTo(tx, b.Min()) }),
			)
		})
	}), true
}

func (e *engine) CopyRegion(ctx context.Context, pos1, pos2, pos3 world.Location) (*queue.Future, bool) {
	src := world.NewCuboid(pos1.Pos, pos2.Pos)
	delta := pos3.Pos.Sub(src.Min())
	dst := src.Translate(delta)

	return e.track(ctx, "copy", pos3.World, 1, func() *queue.Future {
		if pos1.World != pos3.World {
			from, to := e.queue.Coordinator(pos1.World), e.queue.Coordinator(pos3.World)
			var buf *clipboard
			read := from.Exec("чтение для копирования", func(tx *queue.Tx) (err error) {
				buf, err = copyFrom(tx, src)
				return err
			})
			return read.Then(func() *queue.Future {
				return to.Exec("запись копии", func(tx *queue.Tx) error { return buf.pasteTo(tx, dst.Min()) })
			})
		}

		c := e.queue.Coordinator(pos1.World)
		if src.Intersects(dst) {
			// Пересечение: буферизуем весь источник до первой записи.
			return c.Exec("копирование", func(tx *queue.Tx) error {
				buf, err := copyFrom(tx, src)
				if err != nil {
					return err
				}
				return buf.pasteTo(tx, dst.Min())
			})
		}
		return e.enqueueParts(c, "копирование", []world.Cuboid{src}, func(tx *queue.Tx, part world.Cuboid) error {
			buf, err := copyFrom(tx, part)
			if err != nil {
				return err
			}
			return buf.pasteTo(tx, part.Min().Add(delta))
		})
	}), true
}

// biomeBand возвращает полосу высот для SetBiome.
func (e *engine) biomeBand(region world.Cuboid, extend int) (int, int, error) {
	switch {
	case extend == ExtendColumn:
		return e.minY, e.maxY, nil
	case extend < ExtendColumn:
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidExtend, extend)
	default:
		lo := max(region.Min().Y-extend, e.minY)
		hi := min(region.Max().Y+extend, e.maxY)
		return lo, hi, nil
	}
}

func (e *engine) SetBiome(ctx context.Context, region world.Cuboid, extend int, biome world.Biome, worldName string) (*queue.Future, bool) {
	lo, hi, err := e.biomeBand(region, extend)
	if err != nil {
		return queue.Resolved(err), true
	}
	return e.track(ctx, "set_biome", worldName, 1, func() *queue.Future {
		c := e.queue.Coordinator(worldName)
		return e.enqueueParts(c, "биом", []world.Cuboid{region}, func(tx *queue.Tx, part world.Cuboid) error {
			for x := part.Min().X; x <= part.Max().X; x++ {
				for z := part.Min().Z; z <= part.Max().Z; z++ {
					if err := tx.SetBiome(x, z, lo, hi, biome); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}), true
}

func (e *engine) RegenerateRegion(ctx context.Context, pos1, pos2 world.Location, ignore func(x, z int) bool) (*queue.Future, bool) {
	if e.gen == nil {
		return nil, false
	}
	region := world.NewCuboid(pos1.Pos, pos2.Pos)
	return e.track(ctx, "regenerate", pos1.World, 1, func() *queue.Future {
		c := e.queue.Coordinator(pos1.World)
		return e.enqueueParts(c, "регенерация", []world.Cuboid{region}, func(tx *queue.Tx, part world.Cuboid) error {
			lo, hi := part.Min().Y, part.Max().Y
			for x := part.Min().X; x <= part.Max().X; x++ {
				for z := part.Min().Z; z <= part.Max().Z; z++ {
					if ignore != nil && ignore(x, z) {
						continue
					}
					col := e.gen.Column(x, z, lo, hi)
					for y := lo; y <= hi; y++ {
						if err := tx.SetBlock(vec.Vec3{X: x, Y: y, Z: z}, col.At(y)); err != nil {
							return err
						}
					}
					if err := tx.SetBiome(x, z, lo, hi, col.Biome); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}), true
}
