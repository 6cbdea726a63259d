package regionmgr

import (
	"context"

	"github.com/AgaveCraft/PlotSquared/internal/eventbus"
	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/world"
)

// ClearPlot очищает плот: сначала через HandleClear, а если вариант его не
// поддерживает - послойной заливкой SetCuboids по слоям менеджера области.
// По завершении публикуется plot.cleared.
func ClearPlot(ctx context.Context, m Manager, p *plot.Plot) *queue.Future {
	area := p.Area()
	f, accelerated := m.HandleClear(ctx, p)
	if !accelerated {
		var futures []*queue.Future
		if area.Manager != nil {
			for _, l := range area.Manager.Layers(area) {
				lf, ok := m.SetCuboids(ctx, area, p.Regions(), world.NewPattern(l.State), l.MinY, l.MaxY)
				if ok {
					futures = append(futures, lf)
				}
			}
		}
		f = queue.All(futures...)
	}

	f.OnDone(func(err error) {
		payload := eventbus.PlotCleared{World: area.World, Plot: p.ID().String(), Accelerated: accelerated}
		if err != nil {
			payload.Error = err.Error()
			logging.GetPlotLogger().Error("❌ Очистка плота %s/%s: %v", area.World, p.ID(), err)
		} else {
			logging.GetPlotLogger().Info("🧹 Плот %s/%s очищен (ускоренно: %v)", area.World, p.ID(), accelerated)
		}
		if err := eventbus.Emit(eventbus.TypePlotCleared, payload, map[string]string{"world": area.World}); err != nil {
			logging.GetPlotLogger().Warn("⚠️ Не удалось опубликовать %s: %v", eventbus.TypePlotCleared, err)
		}
	})
	return f
}
