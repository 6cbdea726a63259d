package world

import (
	"sync"

	"github.com/AgaveCraft/PlotSquared/internal/vec"
)

// Store - внешнее хранилище мира. Все записи должны идти через очередь мира,
// реализация не обязана быть потокобезопасной относительно одного мира.
type Store interface {
	// Block возвращает блок; отсутствующий блок считается воздухом.
	Block(world string, pos vec.Vec3) (BlockState, error)
	SetBlock(world string, pos vec.Vec3, state BlockState) error
	// Biome возвращает биом в точке (биомы хранятся по колоннам и высоте).
	Biome(world string, pos vec.Vec3) (Biome, error)
	// SetBiome назначает биом колонне (x, z) в диапазоне высот [minY, maxY].
	SetBiome(world string, x, z, minY, maxY int, biome Biome) error
	Spawn(world string) (vec.Vec3, error)
	SetSpawn(world string, pos vec.Vec3) error
	// Save сбрасывает мир на диск.
	Save(world string) error
}

type memWorld struct {
	blocks map[vec.Vec3]BlockState
	biomes map[vec.Vec3]Biome
	spawn  vec.Vec3
	saves  int
	writes int
}

// MemoryStore хранит миры в памяти.
type MemoryStore struct {
	mu     sync.RWMutex
	worlds map[string]*memWorld

	// SaveHook, если задан, вызывается из Save с текущей точкой спавна.
	SaveHook func(world string, spawn vec.Vec3) error
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{worlds: make(map[string]*memWorld)}
}

func (s *MemoryStore) get(world string) *memWorld {
	w, ok := s.worlds[world]
	if !ok {
		w = &memWorld{
			blocks: make(map[vec.Vec3]BlockState),
			biomes: make(map[vec.Vec3]Biome),
		}
		s.worlds[world] = w
	}
	return w
}

func (s *MemoryStore) Block(world string, pos vec.Vec3) (BlockState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.worlds[world]; ok {
		if st, ok := w.blocks[pos]; ok {
			return st, nil
		}
	}
	return Air, nil
}

func (s *MemoryStore) SetBlock(world string, pos vec.Vec3, state BlockState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.get(world)
	w.writes++
	if state == Air || state == "" {
		delete(w.blocks, pos)
		return nil
	}
	w.blocks[pos] = state
	return nil
}

func (s *MemoryStore) Biome(world string, pos vec.Vec3) (Biome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.worlds[world]; ok {
		if b, ok := w.biomes[pos]; ok {
			return b, nil
		}
	}
	return Plains, nil
}

func (s *MemoryStore) SetBiome(world string, x, z, minY, maxY int, biome Biome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.get(world)
	w.writes++
	for y := minY; y <= maxY; y++ {
		w.biomes[vec.Vec3{X: x, Y: y, Z: z}] = biome
	}
	return nil
}

func (s *MemoryStore) Spawn(world string) (vec.Vec3, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.worlds[world]; ok {
		return w.spawn, nil
	}
	return vec.Vec3{}, nil
}

func (s *MemoryStore) SetSpawn(world string, pos vec.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(world).spawn = pos
	return nil
}

func (s *MemoryStore) Save(world string) error {
	s.mu.Lock()
	w := s.get(world)
	w.saves++
	spawn := w.spawn
	hook := s.SaveHook
	s.mu.Unlock()

	if hook != nil {
		return hook(world, spawn)
	}
	return nil
}

// Writes возвращает число операций записи блоков и биомов в мир.
func (s *MemoryStore) Writes(world string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.worlds[world]; ok {
		return w.writes
	}
	return 0
}

// Saves возвращает число вызовов Save для мира.
func (s *MemoryStore) Saves(world string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.worlds[world]; ok {
		return w.saves
	}
	return 0
}
