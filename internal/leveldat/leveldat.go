// Package leveldat читает и правит метаданные мира (level.dat): сжатое gzip
// дерево NBT в big-endian кодировке с составным тегом Data в корне.
package leveldat

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/klauspost/compress/gzip"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

var (
	// ErrNotFound - файла метаданных нет. Для экспорта это не ошибка.
	ErrNotFound = errors.New("leveldat: файл метаданных не найден")
	// ErrNoData - в корне дерева нет составного тега Data.
	ErrNoData = errors.New("leveldat: нет составного тега Data")
)

// FileName - имя файла метаданных в каталоге мира.
const FileName = "level.dat"

// Level - разобранные метаданные мира.
type Level struct {
	// Data - содержимое составного тега Data.
	Data map[string]any
	// Spawn - точка появления; HasSpawn=false, если полей нет.
	Spawn    vec.Vec3
	HasSpawn bool
}

// Read читает и разбирает файл метаданных.
func Read(path string) (*Level, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("чтение %s: %w", path, err)
	}
	return Decode(raw)
}

// Decode разбирает содержимое level.dat (сжатое или нет).
func Decode(data []byte) (*Level, error) {
	raw, _, err := inflate(data)
	if err != nil {
		return nil, err
	}

	var root map[string]any
	if err := nbt.UnmarshalEncoding(raw, &root, nbt.BigEndian); err != nil {
		return nil, fmt.Errorf("декодирование NBT: %w", err)
	}
	d, ok := root["Data"].(map[string]any)
	if !ok {
		return nil, ErrNoData
	}

	lvl := &Level{Data: d}
	x, okX := d["SpawnX"].(int32)
	y, okY := d["SpawnY"].(int32)
	z, okZ := d["SpawnZ"].(int32)
	if okX && okY && okZ {
		lvl.Spawn = vec.Vec3{X: int(x), Y: int(y), Z: int(z)}
		lvl.HasSpawn = true
	}
	return lvl, nil
}

// Patch возвращает копию level.dat с заменёнными Data.SpawnX/Y/Z.
// Остальные байты несжатого дерева сохраняются; сжатие сохраняется, если оно было.
func Patch(data []byte, spawn vec.Vec3) ([]byte, error) {
	raw, compressed, err := inflate(data)
	if err != nil {
		return nil, err
	}
	patched, err := PatchRaw(raw, spawn)
	if err != nil {
		return nil, err
	}
	if !compressed {
		return patched, nil
	}
	return deflate(patched)
}

// PatchFile переписывает точку появления в файле метаданных на месте
// (через временный файл и rename).
func PatchFile(path string, spawn vec.Vec3) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("чтение %s: %w", path, err)
	}
	patched, err := Patch(data, spawn)
	if err != nil {
		return fmt.Errorf("правка %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(patched); err != nil {
		tmp.Close()
		return fmt.Errorf("запись %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func inflate(data []byte) ([]byte, bool, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, false, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, false, fmt.Errorf("gzip: %w", err)
	}
	return raw, true, nil
}

func deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
