package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/AgaveCraft/PlotSquared/internal/plot"
)

// MemoryPlotRepo хранит снимки плотов в памяти.
// Используется как fallback, когда MariaDB недоступна, и в тестах.
type MemoryPlotRepo struct {
	mu   sync.RWMutex
	data map[plotKey]plot.Snapshot
}

func NewMemoryPlotRepo() *MemoryPlotRepo {
	return &MemoryPlotRepo{data: make(map[plotKey]plot.Snapshot)}
}

func (r *MemoryPlotRepo) Save(ctx context.Context, p *plot.Plot) error {
	if err := validatePlot(p); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[plotKey{p.World(), p.ID()}] = p.Snapshot()
	return nil
}

func (r *MemoryPlotRepo) Load(ctx context.Context, area *plot.Area, id plot.ID) (*plot.Plot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	s, ok := r.data[plotKey{area.World, id}]
	r.mu.RUnlock()
	if !ok {
		return nil, plot.ErrNotFound
	}
	return plot.FromSnapshot(area, s)
}

func (r *MemoryPlotRepo) Delete(ctx context.Context, world string, id plot.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	k := plotKey{world, id}
	if _, ok := r.data[k]; !ok {
		return plot.ErrNotFound
	}
	delete(r.data, k)
	return nil
}

// List возвращает плоты области, упорядоченные по id.
func (r *MemoryPlotRepo) List(ctx context.Context, area *plot.Area) ([]*plot.Plot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	var snaps []plot.Snapshot
	for k, s := range r.data {
		if k.world == area.World {
			snaps = append(snaps, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		a, b := snaps[i].ID, snaps[j].ID
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})

	out := make([]*plot.Plot, 0, len(snaps))
	for _, s := range snaps {
		p, err := plot.FromSnapshot(area, s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Count возвращает количество сохранённых плотов (для отладки).
func (r *MemoryPlotRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
