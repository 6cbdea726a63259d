package storage

import (
	"fmt"

	"github.com/AgaveCraft/PlotSquared/internal/plot"
)

var (
	_ plot.Repository = (*MemoryPlotRepo)(nil)
	_ plot.Repository = (*MariaPlotRepo)(nil)
)

// plotKey - ключ плота в пределах всех миров.
type plotKey struct {
	world string
	id    plot.ID
}

func (k plotKey) String() string {
	return fmt.Sprintf("%s/%s", k.world, k.id)
}

func validatePlot(p *plot.Plot) error {
	if p == nil {
		return fmt.Errorf("плот не задан")
	}
	if p.World() == "" {
		return fmt.Errorf("плот %s: не задан мир", p.ID())
	}
	return nil
}
