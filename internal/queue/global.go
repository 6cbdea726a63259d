package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/AgaveCraft/PlotSquared/internal/world"
)

// leaseTable следит, чтобы у мира был не более чем один работающий обработчик.
type leaseTable struct {
	mu     sync.Mutex
	owners map[string]*Coordinator
}

func newLeaseTable() *leaseTable {
	return &leaseTable{owners: make(map[string]*Coordinator)}
}

func (l *leaseTable) acquire(worldName string, c *Coordinator) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if owner, ok := l.owners[worldName]; ok && owner != c {
		panic(fmt.Errorf("%w: мир %q уже обрабатывается другой очередью", ErrConcurrentAccess, worldName))
	}
	l.owners[worldName] = c
}

func (l *leaseTable) release(worldName string, c *Coordinator) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[worldName] == c {
		delete(l.owners, worldName)
	}
}

// GlobalQueue хранит по одной очереди на мир и переиспользует активную очередь.
type GlobalQueue struct {
	store   world.Store
	metrics *Metrics
	leases  *leaseTable

	mu     sync.Mutex
	coords map[string]*Coordinator
	closed bool
}

// NewGlobalQueue создаёт реестр очередей поверх хранилища мира.
// metrics может быть nil.
func NewGlobalQueue(store world.Store, metrics *Metrics) *GlobalQueue {
	return &GlobalQueue{
		store:   store,
		metrics: metrics,
		leases:  newLeaseTable(),
		coords:  make(map[string]*Coordinator),
	}
}

// Store возвращает хранилище, в которое пишут очереди.
func (g *GlobalQueue) Store() world.Store { return g.store }

// Coordinator возвращает активную очередь мира, создавая её при первом обращении.
// После Shutdown возвращает остановленную очередь, которая отклоняет задачи.
func (g *GlobalQueue) Coordinator(worldName string) *Coordinator {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.coords[worldName]; ok {
		return c
	}
	c := NewCoordinator(worldName, g.store, g.leases, g.metrics)
	if g.closed {
		c.halt()
		return c
	}
	g.coords[worldName] = c
	logging.Debug("🧵 Создана очередь для мира %s", worldName)
	return c
}

// newDetached создаёт очередь мира в обход реестра, но с общей таблицей владения.
// Запуск такой очереди при работающей очереди того же мира приводит к панике
// ErrConcurrentAccess; используется тестами проверки единственного писателя.
func (g *GlobalQueue) newDetached(worldName string) *Coordinator {
	return NewCoordinator(worldName, g.store, g.leases, g.metrics)
}

// Release дожидается очереди мира и удаляет её из реестра.
func (g *GlobalQueue) Release(ctx context.Context, worldName string) error {
	g.mu.Lock()
	c, ok := g.coords[worldName]
	g.mu.Unlock()
	if !ok {
		return nil
	}
	err := c.Stop(ctx)

	g.mu.Lock()
	if g.coords[worldName] == c {
		delete(g.coords, worldName)
	}
	g.mu.Unlock()
	return err
}

// Stats возвращает состояние всех очередей, отсортированное по имени мира.
func (g *GlobalQueue) Stats() []Stats {
	g.mu.Lock()
	coords := make([]*Coordinator, 0, len(g.coords))
	for _, c := range g.coords {
		coords = append(coords, c)
	}
	g.mu.Unlock()

	stats := make([]Stats, 0, len(coords))
	for _, c := range coords {
		stats = append(stats, c.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].World < stats[j].World })
	return stats
}

// Shutdown дожидается всех очередей и останавливает их. Новые очереди не создаются.
func (g *GlobalQueue) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	coords := make([]*Coordinator, 0, len(g.coords))
	for _, c := range g.coords {
		coords = append(coords, c)
	}
	g.coords = make(map[string]*Coordinator)
	g.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, c := range coords {
		wg.Add(1)
		go func(c *Coordinator) {
			defer wg.Done()
			if err := c.Stop(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("мир %s: %w", c.World(), err))
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	logging.Info("🛑 Очереди миров остановлены (%d)", len(coords))
	return errors.Join(errs...)
}
