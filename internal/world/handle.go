package world

import (
	"path/filepath"
	"sort"
	"sync"
)

// Handle - ссылка на мир во внешнем хранилище: имя и текущий каталог на диске.
// Каталог может меняться (например, при переносе мира), поэтому доступ к нему синхронизирован.
type Handle struct {
	name string

	mu  sync.RWMutex
	dir string
}

// NewHandle создаёт ссылку на мир.
func NewHandle(name, dir string) *Handle {
	return &Handle{name: name, dir: dir}
}

func (h *Handle) Name() string { return h.name }

// Dir возвращает текущий каталог мира.
func (h *Handle) Dir() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dir
}

// Relocate меняет каталог мира.
func (h *Handle) Relocate(dir string) {
	h.mu.Lock()
	h.dir = dir
	h.mu.Unlock()
}

// RegionDir - каталог файлов регионов.
func (h *Handle) RegionDir() string {
	return filepath.Join(h.Dir(), "region")
}

// LevelDat - путь к файлу метаданных мира.
func (h *Handle) LevelDat() string {
	return filepath.Join(h.Dir(), "level.dat")
}

// Registry хранит ссылки на миры контейнера.
type Registry struct {
	container string

	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewRegistry создаёт реестр миров, лежащих в каталоге container.
func NewRegistry(container string) *Registry {
	return &Registry{container: container, handles: make(map[string]*Handle)}
}

// Container возвращает каталог контейнера миров.
func (r *Registry) Container() string { return r.container }

// Handle возвращает ссылку на мир, создавая её с каталогом container/name.
func (r *Registry) Handle(name string) *Handle {
	r.mu.RLock()
	h, ok := r.handles[name]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[name]; ok {
		return h
	}
	h = NewHandle(name, filepath.Join(r.container, name))
	r.handles[name] = h
	return h
}

// Register добавляет или заменяет ссылку на мир.
func (r *Registry) Register(h *Handle) {
	r.mu.Lock()
	r.handles[h.Name()] = h
	r.mu.Unlock()
}

// Names возвращает отсортированные имена известных миров.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handles))
	for n := range r.handles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
