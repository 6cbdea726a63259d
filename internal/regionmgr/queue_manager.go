package regionmgr

import (
	"context"

	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/world"
)

// queueManager - общий вариант: одна задача на колонну чанка.
// Быструю очистку не поддерживает.
type queueManager struct {
	*engine
}

func newQueueManager(opts Options) *queueManager {
	return &queueManager{engine: newEngine(KindQueue, opts, world.Cuboid.ChunkColumns)}
}

func (m *queueManager) NotifyClear(plot.Manager) bool { return false }

func (m *queueManager) HandleClear(context.Context, *plot.Plot) (*queue.Future, bool) {
	return nil, false
}
