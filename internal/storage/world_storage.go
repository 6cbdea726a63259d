package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/AgaveCraft/PlotSquared/internal/leveldat"
	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/AgaveCraft/PlotSquared/internal/world"
	"github.com/dgraph-io/badger/v3"
)

// ErrNotReady - хранилище закрыто.
var ErrNotReady = errors.New("storage: хранилище не готово")

// WorldStorage хранит блоки, биомы и точки появления миров в BadgerDB.
// При сохранении мира точка появления дописывается в его level.dat.
type WorldStorage struct {
	db      *badger.DB
	dbPath  string
	worlds  *world.Registry
	mutex   sync.RWMutex
	isReady bool
}

var _ world.Store = (*WorldStorage)(nil)

// NewWorldStorage открывает хранилище в каталоге dataPath. worlds может быть nil,
// тогда Save только сбрасывает базу на диск.
func NewWorldStorage(dataPath string, worlds *world.Registry) (*WorldStorage, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &WorldStorage{
		db:      db,
		dbPath:  dbPath,
		worlds:  worlds,
		isReady: true,
	}, nil
}

// Close закрывает хранилище данных
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	return ws.db.Close()
}

func blockKey(w string, p vec.Vec3) []byte {
	return []byte(fmt.Sprintf("block:%s:%d:%d:%d", w, p.X, p.Y, p.Z))
}

func biomeKey(w string, p vec.Vec3) []byte {
	return []byte(fmt.Sprintf("biome:%s:%d:%d:%d", w, p.X, p.Y, p.Z))
}

func spawnKey(w string) []byte {
	return []byte("spawn:" + w)
}

// get читает значение ключа; отсутствующий ключ возвращает nil без ошибки.
func (ws *WorldStorage) get(key []byte) ([]byte, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, ErrNotReady
	}

	var data []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return data, nil
}

func (ws *WorldStorage) Block(w string, pos vec.Vec3) (world.BlockState, error) {
	data, err := ws.get(blockKey(w, pos))
	if err != nil || data == nil {
		return world.Air, err
	}
	return world.BlockState(data), nil
}

// SetBlock записывает блок; воздух удаляет ключ.
func (ws *WorldStorage) SetBlock(w string, pos vec.Vec3, state world.BlockState) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}

	err := ws.db.Update(func(txn *badger.Txn) error {
		if state == world.Air || state == "" {
			return txn.Delete(blockKey(w, pos))
		}
		return txn.Set(blockKey(w, pos), []byte(state))
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения блока %s в BadgerDB: %w", pos, err)
	}
	return nil
}

func (ws *WorldStorage) Biome(w string, pos vec.Vec3) (world.Biome, error) {
	data, err := ws.get(biomeKey(w, pos))
	if err != nil || data == nil {
		return world.Plains, err
	}
	return world.Biome(data), nil
}

// SetBiome записывает биом колонны одним пакетом.
func (ws *WorldStorage) SetBiome(w string, x, z, minY, maxY int, biome world.Biome) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}

	wb := ws.db.NewWriteBatch()
	defer wb.Cancel()
	for y := minY; y <= maxY; y++ {
		if err := wb.Set(biomeKey(w, vec.Vec3{X: x, Y: y, Z: z}), []byte(biome)); err != nil {
			return fmt.Errorf("ошибка записи биома: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("ошибка сохранения биома в BadgerDB: %w", err)
	}
	return nil
}

// Spawn возвращает сохранённую точку появления. Если её нет, берётся точка из
// level.dat мира.
func (ws *WorldStorage) Spawn(w string) (vec.Vec3, error) {
	data, err := ws.get(spawnKey(w))
	if err != nil {
		return vec.Vec3{}, err
	}
	if data == nil {
		return ws.levelSpawn(w)
	}
	var pos vec.Vec3
	if err := json.Unmarshal(data, &pos); err != nil {
		return vec.Vec3{}, fmt.Errorf("ошибка десериализации точки появления: %w", err)
	}
	return pos, nil
}

func (ws *WorldStorage) levelSpawn(w string) (vec.Vec3, error) {
	if ws.worlds == nil {
		return vec.Vec3{}, nil
	}
	lvl, err := leveldat.Read(ws.worlds.Handle(w).LevelDat())
	if errors.Is(err, leveldat.ErrNotFound) {
		return vec.Vec3{}, nil
	}
	if err != nil {
		return vec.Vec3{}, err
	}
	return lvl.Spawn, nil
}

func (ws *WorldStorage) SetSpawn(w string, pos vec.Vec3) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("ошибка сериализации точки появления: %w", err)
	}

	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}
	return ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set(spawnKey(w), data)
	})
}

// Save сбрасывает базу на диск и переносит точку появления в level.dat мира.
// Отсутствие level.dat не считается ошибкой.
func (ws *WorldStorage) Save(w string) error {
	spawn, err := ws.Spawn(w)
	if err != nil {
		return err
	}

	ws.mutex.RLock()
	if !ws.isReady {
		ws.mutex.RUnlock()
		return ErrNotReady
	}
	err = ws.db.Sync()
	ws.mutex.RUnlock()
	if err != nil {
		return fmt.Errorf("ошибка синхронизации BadgerDB: %w", err)
	}

	if ws.worlds == nil {
		return nil
	}
	h := ws.worlds.Handle(w)
	if err := leveldat.PatchFile(h.LevelDat(), spawn); err != nil {
		if errors.Is(err, leveldat.ErrNotFound) {
			logging.Debug("Мир %s: level.dat отсутствует, точка появления не записана", w)
			return nil
		}
		return fmt.Errorf("мир %s: %w", w, err)
	}
	return nil
}
