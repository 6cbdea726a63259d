package regionmgr

import (
	"context"

	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/AgaveCraft/PlotSquared/internal/world"
)

// acceleratedManager ставит одну задачу на часть куба внутри файла региона
// и умеет очищать гибридные плоты, переписывая только их собственные кубы.
type acceleratedManager struct {
	*engine
	clear bool
}

func newAcceleratedManager(opts Options) *acceleratedManager {
	return &acceleratedManager{
		engine: newEngine(KindAccelerated, opts, splitByRegionFile),
		clear:  opts.AcceleratedClear,
	}
}

// splitByRegionFile делит проекцию XZ куба по границам файлов регионов.
func splitByRegionFile(c world.Cuboid) []world.Cuboid {
	lo, hi := c.RegionBounds()
	var parts []world.Cuboid
	for rx := lo.X; rx <= hi.X; rx++ {
		for rz := lo.Z; rz <= hi.Z; rz++ {
			minX, minZ := rx<<vec.RegionShift, rz<<vec.RegionShift
			a := vec.Vec3{X: max(c.Min().X, minX), Y: c.Min().Y, Z: max(c.Min().Z, minZ)}
			b := vec.Vec3{X: min(c.Max().X, minX+511), Y: c.Max().Y, Z: min(c.Max().Z, minZ+511)}
			parts = append(parts, world.NewCuboid(a, b))
		}
	}
	return parts
}

func (m *acceleratedManager) NotifyClear(pm plot.Manager) bool {
	return m.clear && pm != nil && pm.Kind() == plot.KindHybrid
}

func (m *acceleratedManager) HandleClear(ctx context.Context, p *plot.Plot) (*queue.Future, bool) {
	area := p.Area()
	if !m.NotifyClear(area.Manager) {
		return nil, false
	}
	regions := p.Regions()
	layers := area.Manager.Layers(area)

	return m.track(ctx, "clear", area.World, len(regions), func() *queue.Future {
		c := m.queue.Coordinator(area.World)
		return m.enqueueParts(c, "очистка плота "+p.ID().String(), regions, func(tx *queue.Tx, part world.Cuboid) error {
			for _, l := range layers {
				band, ok := part.ClampY(l.MinY, l.MaxY)
				if !ok {
					continue
				}
				if err := tx.Fill(band, world.NewPattern(l.State)); err != nil {
					return err
				}
			}
			return nil
		})
	}), true
}
